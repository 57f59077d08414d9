// Package pathways analyzes metabolic pathway participation: EC numbers
// extracted from a PALADIN UniProt report are matched against KEGG pathway
// definitions, lazily fetched and memoized in a cache store.
package pathways

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/spf13/pflag"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/report"
)

const (
	// StoreName is the pathway/enzyme cache store.
	StoreName = "pathways"

	enzymeTable  = "enzyme"
	pathwayTable = "pathway"

	queryEnzyme  = "enzyme-lookup"
	queryPathway = "pathway-lookup"

	keggURLTemplate = "https://rest.kegg.jp/get/%s"
)

var (
	ecPattern    = regexp.MustCompile(`\(EC ([0-9-]+\.[0-9-]+\.[0-9-]+\.[0-9-]+)\)`)
	keggFieldSep = regexp.MustCompile(" +")
)

// fetchKEGG downloads the raw flat-file record for a KEGG ID. Swappable in
// tests.
var fetchKEGG = func(keggID string) (string, error) {
	resp, err := http.Get(fmt.Sprintf(keggURLTemplate, keggID)) //nolint:gosec // G107: fixed KEGG endpoint
	if err != nil {
		return "", fmt.Errorf("retrieving KEGG entry %s: %w", keggID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading KEGG entry %s: %w", keggID, err)
	}
	return string(body), nil
}

// Options holds the plugin's parsed arguments.
type Options struct {
	Input    string
	Quality  int
	PathID   string
	Abstract int
	Rounding int
}

// Connect populates the plugin definition.
func Connect(def *pipeline.Definition) error {
	def.Name = "pathways"
	def.Description = "Analyze metabolic pathway participation"
	def.Version = pipeline.Version{Major: 1, Minor: 0, Revision: 0}
	def.Dependencies = []string{"taxonomy"}
	def.ParseArgs = parseArgs
	def.Init = initialize
	def.Run = run
	return nil
}

func parseArgs(argv []string) (any, error) {
	opts := &Options{}
	fs := pflag.NewFlagSet("pathways", pflag.ContinueOnError)
	fs.StringVarP(&opts.Input, "input", "i", "", "PALADIN UniProt report")
	fs.IntVarP(&opts.Quality, "quality", "q", 0, "Minimum mapping quality filter")
	fs.StringVarP(&opts.PathID, "pathway", "p", "", "KEGG pathway ID")
	fs.IntVarP(&opts.Abstract, "abstract", "a", 0, "Level of EC hierarchy abstraction")
	fs.IntVarP(&opts.Rounding, "rounding", "r", 4, "Rounding precision")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if opts.Input == "" {
		return nil, errors.New("input report is required (-i)")
	}
	return opts, nil
}

func initialize(ctx *pipeline.Context) error {
	dbEntry, err := ctx.Files.Register("pathways-db", "pathways-db", "pathways.db", "",
		filestore.KindCache, filestore.OptNone)
	if err != nil {
		return err
	}

	ds, err := ctx.Data.Open(StoreName, dbEntry.Path())
	if err != nil {
		return err
	}
	if err := ds.CreateTable(enzymeTable, []datastore.Column{
		{Name: "ec", Type: "text", Modifier: "PRIMARY KEY"},
		{Name: "pathway", Type: "text"},
	}); err != nil {
		return err
	}
	if err := ds.CreateTable(pathwayTable, []datastore.Column{
		{Name: "pathway", Type: "text", Modifier: "PRIMARY KEY"},
		{Name: "info", Type: "text"},
	}); err != nil {
		return err
	}
	ds.DefineQuery(queryEnzyme, "SELECT pathway FROM enzyme WHERE ec = ?")
	ds.DefineQuery(queryPathway, "SELECT info FROM pathway WHERE pathway = ?")

	// KEGG records accumulate lazily; an expired cache is cleared wholesale
	// and refilled on demand.
	expired, err := ds.Expired(enzymeTable, float64(ctx.Files.ExpiryDays()))
	if err != nil {
		return err
	}
	if expired {
		if err := ds.DeleteRows(enzymeTable, ""); err != nil {
			return err
		}
		if err := ds.DeleteRows(pathwayTable, ""); err != nil {
			return err
		}
		if err := ds.MarkFresh(enzymeTable); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx *pipeline.Context, args any) error {
	opts := args.(*Options)

	entries, err := ctx.Reports.UniprotEntries(opts.Input, opts.Quality, "")
	if err != nil {
		return err
	}
	present := extractEC(entries, opts.Abstract)
	if len(present) == 0 {
		ctx.Out.Send(pipeline.Stderr, "No EC annotations detected in report")
		return nil
	}

	ds := ctx.Data.Get(StoreName)

	var pathIDs []string
	if opts.PathID != "" {
		pathIDs = []string{opts.PathID}
	} else {
		ctx.Out.Send(pipeline.Stderr, "Pathway unspecified, retrieving all detected pathways...")
		pathIDs, err = detectPathways(ds, present)
		if err != nil {
			return err
		}
	}

	ctx.Out.Send(pipeline.Stdout, "Pathway\tName\tParticipation")
	for _, pathID := range pathIDs {
		info, err := cacheRecord(ds, pathwayTable, queryPathway, pathID)
		if err != nil {
			return err
		}
		enzymes := info["ENZYME"]
		if len(enzymes) == 0 {
			continue
		}

		matched := 0
		for _, ec := range splitEnzymes(enzymes) {
			if _, ok := present[ec]; ok {
				matched++
			}
		}
		participation := float64(matched) / float64(len(splitEnzymes(enzymes))) * 100

		name := ""
		if names := info["NAME"]; len(names) > 0 {
			name = names[0]
		}
		ctx.Out.Sendf(pipeline.Stdout, "%s\t%s\t%.*f", pathID, name, opts.Rounding, participation)
	}
	return nil
}

// extractEC collects EC numbers (with per-level hierarchy abstraction) and
// their summed counts across report entries.
func extractEC(entries map[string]*report.UniprotEntry, abstract int) map[string]int {
	present := make(map[string]int)
	for _, entry := range entries {
		match := ecPattern.FindStringSubmatch(entry.Protein)
		if match == nil {
			continue
		}
		present[match[1]] += entry.Count

		// Abstract toward class level by dashing trailing components.
		groups := strings.Split(match[1], ".")
		for level := 1; level <= abstract && level < len(groups); level++ {
			groups[len(groups)-level] = "-"
			present[strings.Join(groups, ".")] += entry.Count
		}
	}
	return present
}

// detectPathways finds every pathway referenced by a present enzyme.
func detectPathways(ds *datastore.Store, present map[string]int) ([]string, error) {
	seen := make(map[string]bool)
	var pathIDs []string
	for ec := range present {
		info, err := cacheRecord(ds, enzymeTable, queryEnzyme, "ec:"+ec)
		if err != nil {
			return nil, err
		}
		for _, pathway := range info["PATHWAY"] {
			fields := strings.Fields(pathway)
			if len(fields) == 0 {
				continue
			}
			if !seen[fields[0]] {
				seen[fields[0]] = true
				pathIDs = append(pathIDs, fields[0])
			}
		}
	}
	return pathIDs, nil
}

// cacheRecord returns the parsed KEGG record for id, fetching and caching
// the raw text on first use.
func cacheRecord(ds *datastore.Store, table, query, id string) (map[string][]string, error) {
	result, err := ds.Query(query, id)
	if err != nil {
		return nil, err
	}
	if result.Next() {
		var raw string
		if err := result.Scan(&raw); err != nil {
			_ = result.Close()
			return nil, err
		}
		_ = result.Close()
		return parseKEGG(raw), nil
	}
	_ = result.Close()

	raw, err := fetchKEGG(id)
	if err != nil {
		return nil, err
	}
	if err := ds.InsertRows(table, [][]any{{id, raw}}); err != nil {
		return nil, err
	}
	return parseKEGG(raw), nil
}

// parseKEGG splits a raw KEGG flat-file record into field -> lines.
// Continuation lines (leading spaces) belong to the preceding field.
func parseKEGG(raw string) map[string][]string {
	info := make(map[string][]string)
	if strings.TrimSpace(raw) == "" {
		return info
	}

	field := ""
	for _, line := range strings.Split(raw, "\n") {
		fields := keggFieldSep.Split(line, -1)
		if fields[0] != "" {
			field = fields[0]
		}
		info[field] = append(info[field], strings.Join(fields[1:], " "))
	}
	return info
}

// splitEnzymes flattens the ENZYME field's space-separated EC lists.
func splitEnzymes(lines []string) []string {
	var out []string
	for _, line := range lines {
		out = append(out, strings.Fields(line)...)
	}
	return out
}
