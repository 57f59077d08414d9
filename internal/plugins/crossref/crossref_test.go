package crossref

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/testutil"
)

const idmappingData = "P0A6F5\tGeneID\t944766\n" +
	"P0A6F5\tSTRING\t511145.b4143\n" +
	"P0A8V2\tGeneID\t948488\n" +
	"short\tline\n" +
	"P0A6F5\tGeneID\t944766\n"

// newMappingStore opens the crossref store with the mapping schema, queries,
// and index definitions in place.
func newMappingStore(t *testing.T, ctx *pipeline.Context) *datastore.Store {
	t.Helper()
	ds, err := ctx.Data.Open(StoreName, filepath.Join(t.TempDir(), "crossref.db"))
	require.NoError(t, err)
	require.NoError(t, ds.CreateTable(mappingTable, []datastore.Column{
		{Name: "acc", Type: "text"},
		{Name: "db", Type: "text"},
		{Name: "cross", Type: "text"},
	}))
	ds.DefineQuery(QueryAccCross, "SELECT cross FROM uniprot WHERE acc = ? AND db = ?")
	ds.DefineQuery(QueryAccAll, "SELECT db, cross FROM uniprot WHERE acc = ?")
	ds.DefineQuery(QueryCrossAcc, "SELECT acc FROM uniprot WHERE db = ? AND cross = ?")
	for name, def := range indexes {
		ds.DefineIndex(name, mappingTable, def.columns, false)
	}
	return ds
}

func TestPopulateAndLookup(t *testing.T) {
	ctx, console := testutil.NewContext(t)
	ds := newMappingStore(t, ctx)

	path := filepath.Join(t.TempDir(), "idmapping.dat.gz")
	testutil.WriteGzip(t, path, idmappingData)
	_, err := ctx.Files.Register("crossref-uniprot", "crossref-uniprot", path, "",
		filestore.KindUser, filestore.OptGzip)
	require.NoError(t, err)

	require.NoError(t, populate(ctx, ds))
	require.Contains(t, console.Stderr.String(), "Populating UniProt database cross-references...")
	require.False(t, ds.InTransaction())

	cross, err := Lookup(ds, "P0A6F5", "GeneID")
	require.NoError(t, err)
	require.Equal(t, "944766", cross)

	cross, err = Lookup(ds, "P0A8V2", "GeneID")
	require.NoError(t, err)
	require.Equal(t, "948488", cross)

	// Absent mappings resolve to empty, not an error.
	cross, err = Lookup(ds, "NOTTHERE", "GeneID")
	require.NoError(t, err)
	require.Empty(t, cross)

	// Reverse lookup through the named query.
	result, err := ds.Query(QueryCrossAcc, "STRING", "511145.b4143")
	require.NoError(t, err)
	require.True(t, result.Next())
	var acc string
	require.NoError(t, result.Scan(&acc))
	require.NoError(t, result.Close())
	require.Equal(t, "P0A6F5", acc)

	// Fresh data short-circuits the next refresh.
	console.Stderr.Reset()
	require.NoError(t, populate(ctx, ds))
	require.Empty(t, console.Stderr.String())
}

func TestLookupWithoutData(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	ds := newMappingStore(t, ctx)

	cross, err := Lookup(ds, "P0A6F5", "GeneID")
	require.NoError(t, err)
	require.Empty(t, cross)
}

func TestConnectHasNoRunHook(t *testing.T) {
	def := &pipeline.Definition{}
	require.NoError(t, Connect(def))
	require.Equal(t, "crossref", def.Name)
	require.NotNil(t, def.Init)
	require.Nil(t, def.Run, "crossref only provides lookups to other plugins")

	// Stray arguments are rejected by the shared parser contract.
	_, err := def.ParseArgs([]string{"--bogus"})
	require.Error(t, err)
}
