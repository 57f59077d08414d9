// Package testutil provides shared fixtures for pipeline and plugin tests: an
// isolated execution context, cache store setup, and report file builders.
package testutil

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/flags"
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/report"
)

// Console captures what a test pipeline wrote to its console streams.
type Console struct {
	Stdout *bytes.Buffer
	Stderr *bytes.Buffer
}

// NewContext builds a fully wired pipeline context rooted in t.TempDir, with
// output buffers captured instead of hitting the process streams. Teardown is
// registered on t.Cleanup.
func NewContext(t *testing.T) (*pipeline.Context, *Console) {
	t.Helper()

	root := t.TempDir()
	files, err := filestore.New(filestore.Config{
		TempPrefix:   "pp-test-",
		CacheDir:     filepath.Join(root, "cache"),
		OutputDir:    filepath.Join(root, "output"),
		ExpiryDays:   30,
		FetchRetries: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })

	data := datastore.NewManager()
	t.Cleanup(func() { _ = data.CloseAll() })

	console := &Console{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	out := pipeline.NewOutputWriters(console.Stdout, console.Stderr)

	ctx := &pipeline.Context{
		Files:   files,
		Data:    data,
		Out:     out,
		Reports: report.NewCache(),
		Flags:   flags.New(nil),
	}
	return ctx, console
}

// NewStore opens a cache store at a temporary path, with the freshness
// schema migrated.
func NewStore(t *testing.T, name string) *datastore.Store {
	t.Helper()

	m := datastore.NewManager()
	t.Cleanup(func() { _ = m.CloseAll() })

	s, err := m.Open(name, filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	return s
}

// WriteFile writes contents under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

// WriteGzip writes gzip-compressed contents to path.
func WriteGzip(t *testing.T, path, contents string) {
	t.Helper()
	f, err := os.Create(path) //nolint:gosec // G304: test fixture path
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// SamReport is a minimal PALADIN SAM output: two mapped reads (one of them a
// secondary hit of the same read), one unmapped read, and one low-quality
// mapping.
const SamReport = `@HD	VN:1.6	SO:unsorted
@SQ	SN:sp|P0A6F5|CH60_ECOLI	LN:548
1:2:16:read1	0	sp|P0A6F5|CH60_ECOLI	10	60	30M	*	0	0	ATGGCTGCTAAAGACGTAAAATTCGGTAACGA	40
1:2:16:read1	256	sp|P0A6F5|CH60_ECOLI	55	60	30M	*	0	0	ATGGCTGCTAAAGACGTAAAATTCGGTAACGA	40
2:1:8:read2	4	*	0	0	*	*	0	0	TTTTTTTTTTTTTTTTTTTTTTTTTTTTTTTT	2
3:1:4:read3	0	sp|P0A6F5|CH60_ECOLI	88	5	30M	*	0	0	GGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG	12
`

// UniprotReport is a minimal PALADIN UniProt report: one exact UniProt row
// with an EC annotation, one virtual-group row, one unannotated row, and one
// low-quality row.
const UniprotReport = `Count	Abundance	Quality (Avg)	Quality (Max)	UniProtKB	ID	Species	Protein	Genes	Pathway	Features	Ontology
10	50.0	30.5	40	CH60_ECOLI	P0A6F5	Escherichia coli	60 kDa chaperonin (EC 5.6.1.7)	groEL	.	.	GO:0005524; GO:0016887
6	30.0	22.0	35	DNAK_9BACT	A0A009	uncultured bacterium	Chaperone protein DnaK	dnaK	.	.	GO:0005524
3	15.0	20.0	25	customspecies01
1	5.0	4.0	8	RPOB_ECOLI	P0A8V2	Escherichia coli	DNA-directed RNA polymerase (EC 2.7.7.6)	rpoB	.	.	GO:0003899
`
