package taxonomy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/report"
)

// taxon keys aggregated counts by species mnemonic and full name; virtual
// group entries share a mnemonic but differ in full name.
type taxon struct {
	ID   string
	Full string
}

// node is one rank in the lineage tree with the summed count of every
// taxon below it.
type node struct {
	children map[string]*node
	count    int
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func run(ctx *pipeline.Context, args any) error {
	opts := args.(*Options)

	entries, err := ctx.Reports.UniprotEntries(opts.Input, opts.Quality, opts.Custom)
	if err != nil {
		return err
	}

	ds := ctx.Data.Get(StoreName)
	species := speciesLookup(entries)
	taxa, _ := aggregateTaxa(entries, opts.Filter)

	var rendered map[string]int
	var total int
	var header string

	if opts.Type == "children" {
		tree, err := buildLineageTree(ds, taxa)
		if err != nil {
			return err
		}
		if opts.Level != levelUnset {
			rendered, total = flattenTree(tree, opts.Level)
			header = fmt.Sprintf("Count\tAbundance\tRank %d", opts.Level)
		} else {
			rankRe, err := regexp.Compile(opts.Rank)
			if err != nil {
				return fmt.Errorf("compiling rank pattern: %w", err)
			}
			subtree := findRankSubtree(tree, rankRe)
			if subtree == nil {
				subtree = newNode()
			}
			rendered, total = treeChildren(subtree)
			header = "Count\tAbundance\tRank"
		}
	} else {
		pattern := opts.Rank
		if opts.Level != levelUnset {
			pattern = ".*"
		}
		filtered, count, err := filterTaxa(ds, taxa, pattern)
		if err != nil {
			return err
		}
		rendered = make(map[string]int, len(filtered))
		for t, n := range filtered {
			rendered[species[t]] = n
		}
		total = count
		header = "Count\tAbundance\tSpecies"
	}

	if opts.Sam == "" {
		renderAbundance(ctx.Out, rendered, header, total)
		return nil
	}

	grouped, err := groupSam(ctx, ds, rendered, opts.Sam, species)
	if err != nil {
		return err
	}
	renderSam(ctx.Out, grouped)
	return nil
}

// aggregateTaxa groups report entries by species, applying the requested
// entry-type filters, and returns per-taxon counts plus the grand total.
func aggregateTaxa(entries map[string]*report.UniprotEntry, filters []string) (map[taxon]int, int) {
	skip := make(map[string]bool, len(filters))
	for _, f := range filters {
		skip[f] = true
	}

	taxa := make(map[taxon]int)
	total := 0
	for _, entry := range entries {
		if skip["unknown"] && entry.Type == report.TypeUnknown {
			continue
		}
		if skip["custom"] && entry.Type == report.TypeCustom {
			continue
		}
		if skip["group"] && entry.Type == report.TypeUniprotGroup {
			continue
		}
		key := taxon{ID: entry.SpeciesID, Full: entry.SpeciesFull}
		taxa[key] += entry.Count
		total += entry.Count
	}
	return taxa, total
}

// speciesLookup maps each taxon key to its full species name.
func speciesLookup(entries map[string]*report.UniprotEntry) map[taxon]string {
	lookup := make(map[taxon]string)
	for _, entry := range entries {
		key := taxon{ID: entry.SpeciesID, Full: entry.SpeciesFull}
		if _, ok := lookup[key]; !ok {
			lookup[key] = entry.SpeciesFull
		}
	}
	return lookup
}

// lineageOf resolves a species mnemonic to its semicolon-delimited lineage.
func lineageOf(ds *datastore.Store, mnemonic string) (string, bool, error) {
	result, err := ds.Query(LineageQuery, mnemonic)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = result.Close() }()

	if !result.Next() {
		return "", false, result.Err()
	}
	var lineage string
	if err := result.Scan(&lineage); err != nil {
		return "", false, err
	}
	return lineage, true, nil
}

// filterTaxa keeps taxa whose lineage matches the rank pattern.
func filterTaxa(ds *datastore.Store, taxa map[taxon]int, pattern string) (map[taxon]int, int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("compiling rank pattern: %w", err)
	}

	out := make(map[taxon]int)
	total := 0
	for t, count := range taxa {
		lineage, found, err := lineageOf(ds, t.ID)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			lineage = "Unknown"
		}
		if re.MatchString(lineage) {
			out[t] = count
			total += count
		}
	}
	return out, total, nil
}

// buildLineageTree arranges taxa counts into a rank tree, accumulating each
// taxon's count at every rank along its lineage.
func buildLineageTree(ds *datastore.Store, taxa map[taxon]int) (*node, error) {
	root := newNode()
	for t, count := range taxa {
		lineage, found, err := lineageOf(ds, t.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		parent := root
		root.count += count
		for _, rank := range strings.Split(lineage, ";") {
			rank = strings.TrimSpace(rank)
			child, ok := parent.children[rank]
			if !ok {
				child = newNode()
				parent.children[rank] = child
			}
			child.count += count
			parent = child
		}
	}
	return root, nil
}

// findRankSubtree locates the first subtree whose rank name matches re,
// searching each level before recursing.
func findRankSubtree(tree *node, re *regexp.Regexp) *node {
	for rank, child := range tree.children {
		if re.MatchString(rank) {
			return child
		}
	}
	for _, child := range tree.children {
		if found := findRankSubtree(child, re); found != nil {
			return found
		}
	}
	return nil
}

// treeChildren returns the immediate children of a rank branch with counts.
func treeChildren(tree *node) (map[string]int, int) {
	out := make(map[string]int, len(tree.children))
	total := 0
	for rank, child := range tree.children {
		out[rank] = child.count
		total += child.count
	}
	return out, total
}

// flattenTree collapses the tree to the ranks at a given depth. A negative
// level selects leaf ranks instead.
func flattenTree(tree *node, level int) (map[string]int, int) {
	out := make(map[string]int)
	total := 0

	if level < 0 {
		for rank, child := range tree.children {
			if len(child.children) == 0 {
				out[rank] = child.count
				total += child.count
				continue
			}
			sub, count := flattenTree(child, level)
			for k, v := range sub {
				out[k] += v
			}
			total += count
		}
		return out, total
	}

	if level == 0 {
		return treeChildren(tree)
	}
	for _, child := range tree.children {
		sub, count := flattenTree(child, level-1)
		for k, v := range sub {
			out[k] += v
		}
		total += count
	}
	return out, total
}

// renderAbundance writes the standard count/abundance report, sorted by
// descending count with name as tiebreak.
func renderAbundance(out *pipeline.Output, data map[string]int, header string, total int) {
	type row struct {
		name  string
		count int
	}
	rows := make([]row, 0, len(data))
	for name, count := range data {
		rows = append(rows, row{name, count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})

	out.Send(pipeline.Stdout, header)
	for _, r := range rows {
		abundance := 0.0
		if total > 0 {
			abundance = float64(r.count) / float64(total) * 100
		}
		out.Sendf(pipeline.Stdout, "%d\t%g\t%s", r.count, abundance, r.name)
	}
}

// groupSam maps each aligned read to the taxonomic ranks (present in the
// rendered report) along its reference's lineage.
func groupSam(ctx *pipeline.Context, ds *datastore.Store, data map[string]int,
	samFile string, species map[taxon]string) (map[string][]string, error) {

	byMnemonic := make(map[string]string, len(species))
	for t, full := range species {
		byMnemonic[t.ID] = full
	}

	entries, err := ctx.Reports.SamEntries(samFile, 0)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]string)
	for _, entry := range entries {
		// Only UniProt-style references carry a species mnemonic.
		if !strings.Contains(entry.Reference, "_") {
			continue
		}
		mnemonic := strings.SplitN(entry.Reference, "_", 2)[1]

		// Skip overly ambiguous entries or mnemonics UniProt has moved.
		full, known := byMnemonic[mnemonic]
		if !known {
			continue
		}

		lineage, found, err := lineageOf(ds, mnemonic)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		ranks := strings.Split(lineage, ";")
		for i := range ranks {
			ranks[i] = strings.TrimSpace(ranks[i])
		}
		ranks = append(ranks, full)

		for _, rank := range ranks {
			if _, wanted := data[rank]; wanted {
				grouped[entry.Query] = append(grouped[entry.Query], rank)
			}
		}
	}
	return grouped, nil
}

// renderSam writes the per-read taxonomy report.
func renderSam(out *pipeline.Output, data map[string][]string) {
	out.Send(pipeline.Stdout, "Read\tTaxonomy")

	reads := make([]string, 0, len(data))
	for read := range data {
		reads = append(reads, read)
	}
	sort.Strings(reads)

	for _, read := range reads {
		for _, rank := range data[read] {
			out.Sendf(pipeline.Stdout, "%s\t%s", read, rank)
		}
	}
}
