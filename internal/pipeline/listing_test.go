package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatListing(t *testing.T) {
	ctx := &Context{Out: NewOutputWriters(&bytes.Buffer{}, &bytes.Buffer{})}
	r := NewRegistry(ctx, false)

	short := func(def *Definition) error {
		def.Name = "crossref"
		def.Description = "Provide database cross-references between IDs"
		def.Version = Version{Major: 1, Minor: 1}
		return nil
	}
	long := func(def *Definition) error {
		def.Name = "taxonomy"
		def.Description = "Perform taxonomic grouping and abundance reporting " +
			"over alignment results with optional per-read rank attribution"
		def.Version = Version{Major: 1, Minor: 1, Revision: 3}
		return nil
	}
	require.NoError(t, r.Discover([]Module{
		{Name: "taxonomy", Connect: long},
		{Name: "crossref", Connect: short},
	}))

	lines := r.FormatListing()
	require.Equal(t, "The following plugins are available:", lines[0])

	// Sorted by name regardless of registration order.
	require.True(t, strings.HasPrefix(lines[1], "  crossref (1.1.0):"))
	require.True(t, strings.HasPrefix(lines[2], "  taxonomy (1.1.3):"))

	// The long description wraps with a hanging indent.
	require.Greater(t, len(lines), 3)
	require.True(t, strings.HasPrefix(lines[3], strings.Repeat(" ", 24)))
	for _, line := range lines[1:] {
		require.LessOrEqual(t, len(line), 78)
	}
}
