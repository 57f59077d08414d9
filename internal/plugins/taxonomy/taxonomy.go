// Package taxonomy performs taxonomic grouping and abundance reporting over
// a PALADIN UniProt report, backed by a cached UniProt lineage database.
package taxonomy

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/pflag"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
)

const (
	// StoreName is the cache store shared with dependent plugins.
	StoreName = "taxonomy"

	lineageTable = "lineage"
	// LineageQuery resolves a UniProt species mnemonic to its lineage.
	LineageQuery = "lineage-lookup"

	lineageURL = "https://rest.uniprot.org/taxonomy/stream?fields=id%2Cmnemonic%2Clineage&format=tsv&query=%28%2A%29"

	insertBatchSize = 500
)

// Options holds the plugin's parsed arguments.
type Options struct {
	Input   string
	Quality int
	Custom  string
	Type    string
	Filter  []string
	Sam     string
	Level   int
	Rank    string
}

// levelUnset marks the mutually exclusive level/rank pair as "rank chosen".
const levelUnset = math.MinInt

// Connect populates the plugin definition.
func Connect(def *pipeline.Definition) error {
	def.Name = "taxonomy"
	def.Description = "Perform taxonomic grouping and abundance reporting"
	def.Version = pipeline.Version{Major: 1, Minor: 1, Revision: 3}
	def.ParseArgs = parseArgs
	def.Init = initialize
	def.Run = run
	return nil
}

func parseArgs(argv []string) (any, error) {
	opts := &Options{}
	fs := pflag.NewFlagSet("taxonomy", pflag.ContinueOnError)
	fs.StringVarP(&opts.Input, "input", "i", "", "PALADIN UniProt report")
	fs.IntVarP(&opts.Quality, "quality", "q", 0, "Minimum mapping quality filter")
	fs.StringVarP(&opts.Custom, "custom", "c", "", "Species-parsing regex pattern for non-UniProt entries")
	fs.StringVarP(&opts.Type, "type", "t", "species", "Type of report (children or species)")
	fs.StringSliceVarP(&opts.Filter, "filter", "f", nil, "Filter non-standard entries (unknown, custom, group)")
	fs.StringVarP(&opts.Sam, "sam", "s", "", "SAM file for reporting reads contributing to each taxonomic rank")
	fs.IntVarP(&opts.Level, "level", "l", levelUnset, "Hierarchy level")
	fs.StringVarP(&opts.Rank, "rank", "r", "", "Regex pattern for named rank")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if opts.Input == "" {
		return nil, errors.New("input report is required (-i)")
	}
	if (opts.Level == levelUnset) == (opts.Rank == "") {
		return nil, errors.New("exactly one of level (-l) or rank (-r) is required")
	}
	if opts.Type != "children" && opts.Type != "species" {
		return nil, fmt.Errorf("unknown report type %q", opts.Type)
	}
	return opts, nil
}

// initialize registers the lineage database resources and refreshes the
// cached lineage data when it has expired.
func initialize(ctx *pipeline.Context) error {
	dbEntry, err := ctx.Files.Register("taxonomy-db", "taxonomy-db", "taxonomy.db", "",
		filestore.KindCache, filestore.OptNone)
	if err != nil {
		return err
	}
	if _, err := ctx.Files.Register("taxonomy-lineage", "taxonomy-lineage", "taxonomy-lineage.dat",
		lineageURL, filestore.KindTemp, filestore.OptNone); err != nil {
		return err
	}

	ds, err := ctx.Data.Open(StoreName, dbEntry.Path())
	if err != nil {
		return err
	}
	if err := ds.CreateTable(lineageTable, []datastore.Column{
		{Name: "mnemonic", Type: "text", Modifier: "PRIMARY KEY"},
		{Name: "lineage", Type: "text"},
	}); err != nil {
		return err
	}
	ds.DefineQuery(LineageQuery, "SELECT lineage FROM lineage WHERE mnemonic = ?")

	return populate(ctx, ds)
}

// populate refreshes the lineage table from UniProt when expired. The delete
// and reload are bracketed by one transaction so readers never observe a
// partially cleared table.
func populate(ctx *pipeline.Context, ds *datastore.Store) error {
	expired, err := ds.Expired(lineageTable, float64(ctx.Files.ExpiryDays()))
	if err != nil {
		return err
	}
	if !expired {
		return nil
	}

	ctx.Out.Send(pipeline.Stderr, "Populating taxonomic lineage data...")

	entry, err := ctx.Files.Entry("taxonomy-lineage", "")
	if err != nil {
		return err
	}
	if err := ctx.Files.Materialize(entry); err != nil {
		return err
	}

	handle, err := entry.Open("r")
	if err != nil {
		return err
	}

	if err := ds.Begin(); err != nil {
		return err
	}
	if err := ds.DeleteRows(lineageTable, ""); err != nil {
		return err
	}

	batch := make([][]any, 0, insertBatchSize)
	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 3 || fields[1] == "" {
			continue
		}
		batch = append(batch, []any{fields[1], fields[2]})
		if len(batch) == insertBatchSize {
			if err := ds.InsertRows(lineageTable, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading lineage data: %w", err)
	}
	if err := ds.InsertRows(lineageTable, batch); err != nil {
		return err
	}

	if err := ds.End(); err != nil {
		return err
	}
	return ds.MarkFresh(lineageTable)
}
