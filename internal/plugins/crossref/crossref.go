// Package crossref maintains a cached UniProt ID cross-reference database
// and exposes lookup queries to other plugins. It has no direct report
// output of its own.
package crossref

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
)

const (
	// StoreName is the cache store other plugins query through.
	StoreName = "crossref"

	mappingTable = "uniprot"
	mappingURL   = "https://ftp.uniprot.org/pub/databases/uniprot/current_release/knowledgebase/idmapping/idmapping.dat.gz"

	// QueryAccCross resolves (accession, database) to a cross-reference.
	QueryAccCross = "uniprot_acc_cross"
	// QueryAccAll lists every cross-reference for an accession.
	QueryAccAll = "uniprot_acc_all"
	// QueryCrossAcc resolves (database, cross-reference) back to an accession.
	QueryCrossAcc = "uniprot_cross_acc"

	insertBatchSize = 500
)

var indexes = map[string]struct {
	columns []string
}{
	"uniprot_acc":      {columns: []string{"acc"}},
	"uniprot_acc_db":   {columns: []string{"acc", "db"}},
	"uniprot_db_cross": {columns: []string{"db", "cross"}},
}

// Connect populates the plugin definition.
func Connect(def *pipeline.Definition) error {
	def.Name = "crossref"
	def.Description = "Provide database cross-references between IDs"
	def.Version = pipeline.Version{Major: 1, Minor: 1, Revision: 0}
	def.ParseArgs = parseArgs
	def.Init = initialize
	return nil
}

func parseArgs(argv []string) (any, error) {
	fs := pflag.NewFlagSet("crossref", pflag.ContinueOnError)
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	return nil, nil
}

func initialize(ctx *pipeline.Context) error {
	dbEntry, err := ctx.Files.Register("crossref-db", "crossref-db", "crossref.db", "",
		filestore.KindCache, filestore.OptNone)
	if err != nil {
		return err
	}
	if _, err := ctx.Files.Register("crossref-uniprot", "crossref-uniprot", "idmapping.dat.gz",
		mappingURL, filestore.KindTemp, filestore.OptGzip); err != nil {
		return err
	}

	ds, err := ctx.Data.Open(StoreName, dbEntry.Path())
	if err != nil {
		return err
	}
	if err := ds.CreateTable(mappingTable, []datastore.Column{
		{Name: "acc", Type: "text"},
		{Name: "db", Type: "text"},
		{Name: "cross", Type: "text"},
	}); err != nil {
		return err
	}

	ds.DefineQuery(QueryAccCross, "SELECT cross FROM uniprot WHERE acc = ? AND db = ?")
	ds.DefineQuery(QueryAccAll, "SELECT db, cross FROM uniprot WHERE acc = ?")
	ds.DefineQuery(QueryCrossAcc, "SELECT acc FROM uniprot WHERE db = ? AND cross = ?")
	for name, def := range indexes {
		ds.DefineIndex(name, mappingTable, def.columns, false)
	}

	return populate(ctx, ds)
}

// populate rebuilds the cross-reference table when expired. Indexes are
// dropped for the bulk load and rebuilt afterward, bounding index
// maintenance to once per refresh rather than once per row.
func populate(ctx *pipeline.Context, ds *datastore.Store) error {
	expired, err := ds.Expired(mappingTable, float64(ctx.Files.ExpiryDays()))
	if err != nil {
		return err
	}
	if !expired {
		return nil
	}

	ctx.Out.Send(pipeline.Stderr, "Populating UniProt database cross-references...")

	entry, err := ctx.Files.Entry("crossref-uniprot", "")
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

	for name := range indexes {
		if err := ds.DropIndex(name); err != nil {
			return err
		}
	}
	if err := ds.Begin(); err != nil {
		return err
	}
	if err := ds.DeleteRows(mappingTable, ""); err != nil {
		return err
	}

	batch := make([][]any, 0, insertBatchSize)
	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 3 {
			continue
		}
		batch = append(batch, []any{fields[0], fields[1], fields[2]})
		if len(batch) == insertBatchSize {
			if err := ds.InsertRows(mappingTable, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading idmapping data: %w", err)
	}
	if err := ds.InsertRows(mappingTable, batch); err != nil {
		return err
	}

	if err := ds.End(); err != nil {
		return err
	}
	for name := range indexes {
		if err := ds.CreateIndex(name); err != nil {
			return err
		}
	}
	return ds.MarkFresh(mappingTable)
}

// Lookup resolves an accession to its cross-reference in the named database.
// Returns empty when the mapping (or the whole store) is absent: crossref is
// an optional dependency for its consumers.
func Lookup(ds *datastore.Store, acc, db string) (string, error) {
	result, err := ds.Query(QueryAccCross, acc, db)
	if err != nil {
		return "", err
	}
	defer func() { _ = result.Close() }()

	if !result.Next() {
		return "", result.Err()
	}
	var cross string
	if err := result.Scan(&cross); err != nil {
		return "", err
	}
	return cross, nil
}
