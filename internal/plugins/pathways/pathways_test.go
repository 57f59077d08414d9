package pathways

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/report"
	"github.com/paladinbio/paladin-plugins/internal/testutil"
)

const enzymeRecord = `ENTRY       EC 5.6.1.7                  Enzyme
NAME        chaperonin ATPase
PATHWAY     ec05134  Legionellosis
            ec05152  Tuberculosis
///
`

const pathwayRecord = `ENTRY       ec05134                     Pathway
NAME        Legionellosis
ENZYME      5.6.1.7         3.6.4.10
///
`

const secondPathwayRecord = `ENTRY       ec05152                     Pathway
NAME        Tuberculosis
ENZYME      1.1.1.1         2.2.2.2         3.3.3.3         5.6.1.7
///
`

// stubKEGG replaces the KEGG fetcher with a canned record set and returns a
// counter of fetches per ID.
func stubKEGG(t *testing.T, records map[string]string) map[string]int {
	t.Helper()
	fetches := make(map[string]int)
	orig := fetchKEGG
	fetchKEGG = func(keggID string) (string, error) {
		fetches[keggID]++
		record, ok := records[keggID]
		if !ok {
			return "", fmt.Errorf("no such record %s", keggID)
		}
		return record, nil
	}
	t.Cleanup(func() { fetchKEGG = orig })
	return fetches
}

func keggRecords() map[string]string {
	return map[string]string{
		"ec:5.6.1.7": enzymeRecord,
		"ec05134":    pathwayRecord,
		"ec05152":    secondPathwayRecord,
	}
}

func TestParseArgsRequiresInput(t *testing.T) {
	_, err := parseArgs([]string{"-p", "ec05134"})
	require.ErrorContains(t, err, "input report is required")

	parsed, err := parseArgs([]string{"-i", "report.tsv", "-q", "20", "-p", "ec05134", "-a", "1", "-r", "2"})
	require.NoError(t, err)
	opts := parsed.(*Options)
	require.Equal(t, "report.tsv", opts.Input)
	require.Equal(t, 20, opts.Quality)
	require.Equal(t, "ec05134", opts.PathID)
	require.Equal(t, 1, opts.Abstract)
	require.Equal(t, 2, opts.Rounding)
}

func TestRunDetectsPathways(t *testing.T) {
	fetches := stubKEGG(t, keggRecords())
	ctx, console := testutil.NewContext(t)
	require.NoError(t, initialize(ctx))
	input := testutil.WriteFile(t, t.TempDir(), "report.tsv", testutil.UniprotReport)

	err := run(ctx, &Options{Input: input, Quality: 20, Rounding: 2})
	require.NoError(t, err)
	require.Contains(t, console.Stderr.String(), "Pathway unspecified")

	require.NoError(t, ctx.Out.Render("", pipeline.Stdout))
	require.Equal(t, "Pathway\tName\tParticipation\n"+
		"ec05134\tLegionellosis\t50.00\n"+
		"ec05152\tTuberculosis\t25.00\n",
		console.Stdout.String())

	require.Equal(t, 1, fetches["ec:5.6.1.7"])
	require.Equal(t, 1, fetches["ec05134"])
	require.Equal(t, 1, fetches["ec05152"])
}

func TestRunUsesCachedRecords(t *testing.T) {
	fetches := stubKEGG(t, keggRecords())
	ctx, _ := testutil.NewContext(t)
	require.NoError(t, initialize(ctx))
	input := testutil.WriteFile(t, t.TempDir(), "report.tsv", testutil.UniprotReport)

	opts := &Options{Input: input, Quality: 20, Rounding: 2}
	require.NoError(t, run(ctx, opts))
	require.NoError(t, run(ctx, opts))

	// The second run answers everything from the cache store.
	require.Equal(t, 1, fetches["ec:5.6.1.7"])
	require.Equal(t, 1, fetches["ec05134"])
	require.Equal(t, 1, fetches["ec05152"])
}

func TestRunSinglePathway(t *testing.T) {
	stubKEGG(t, keggRecords())
	ctx, console := testutil.NewContext(t)
	require.NoError(t, initialize(ctx))
	input := testutil.WriteFile(t, t.TempDir(), "report.tsv", testutil.UniprotReport)

	err := run(ctx, &Options{Input: input, Quality: 20, PathID: "ec05134", Rounding: 4})
	require.NoError(t, err)

	require.NoError(t, ctx.Out.Render("", pipeline.Stdout))
	require.Equal(t, "Pathway\tName\tParticipation\nec05134\tLegionellosis\t50.0000\n",
		console.Stdout.String())
	require.NotContains(t, console.Stderr.String(), "Pathway unspecified")
}

func TestRunNoAnnotations(t *testing.T) {
	stubKEGG(t, nil)
	ctx, console := testutil.NewContext(t)
	require.NoError(t, initialize(ctx))

	// Only the group entry (no EC tag in its protein name) passes the filter.
	input := testutil.WriteFile(t, t.TempDir(), "report.tsv",
		"Count\tAbundance\tQuality (Avg)\tQuality (Max)\tUniProtKB\tID\tSpecies\tProtein\tGenes\tPathway\tFeatures\tOntology\n"+
			"6\t30.0\t22.0\t35\tDNAK_9BACT\tA0A009\tuncultured bacterium\tChaperone protein DnaK\tdnaK\t.\t.\tGO:0005524\n")

	err := run(ctx, &Options{Input: input, Quality: 20, Rounding: 2})
	require.NoError(t, err)
	require.Contains(t, console.Stderr.String(), "No EC annotations detected")
}

func TestExtractECAbstraction(t *testing.T) {
	input := testutil.WriteFile(t, t.TempDir(), "report.tsv", testutil.UniprotReport)
	entries, err := report.ParseUniprot(input, 20, "")
	require.NoError(t, err)

	present := extractEC(entries, 2)
	require.Equal(t, 10, present["5.6.1.7"])
	require.Equal(t, 10, present["5.6.1.-"])
	require.Equal(t, 10, present["5.6.-.-"])
	require.NotContains(t, present, "5.-.-.-")
}

func TestParseKEGGContinuationLines(t *testing.T) {
	info := parseKEGG(enzymeRecord)
	require.Equal(t, []string{"chaperonin ATPase"}, info["NAME"])
	require.Equal(t, []string{"ec05134 Legionellosis", "ec05152 Tuberculosis"}, info["PATHWAY"])
}
