package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputBuffersStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputWriters(&stdout, &stderr)

	out.Send(Stdout, "line one")
	out.Sendf(Stdout, "value %d", 42)
	out.SendSuffix(Stdout, "no newline", "")

	require.Equal(t, 3, out.Len(Stdout))
	require.Empty(t, stdout.String(), "buffered fragments must not reach the console early")

	require.NoError(t, out.Render("", Stdout))
	require.Equal(t, "line one\nvalue 42\nno newline", stdout.String())
}

func TestOutputRenderIsDestructive(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputWriters(&stdout, &stderr)

	out.Send(Stdout, "once")
	require.NoError(t, out.Render("", Stdout))
	require.Equal(t, 0, out.Len(Stdout))

	stdout.Reset()
	require.NoError(t, out.Render("", Stdout))
	require.Empty(t, stdout.String(), "second render must produce nothing")
}

func TestOutputRenderToFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputWriters(&stdout, &stderr)
	path := filepath.Join(t.TempDir(), "results.tsv")

	out.Send(Stdout, "a\tb")
	out.Send(Stdout, "1\t2")
	require.NoError(t, out.Render(path, Stdout))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a\tb\n1\t2\n", string(contents))
	require.Empty(t, stdout.String())
	require.Equal(t, 0, out.Len(Stdout))
}

func TestOutputStderrStreamsByDefault(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputWriters(&stdout, &stderr)

	out.Send(Stderr, "progress...")
	require.Equal(t, "progress...\n", stderr.String())
	require.Equal(t, 0, out.Len(Stderr))
}

func TestOutputStreamStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputWriters(&stdout, &stderr)
	out.StreamStdout = true

	out.Send(Stdout, "immediate")
	require.Equal(t, "immediate\n", stdout.String())
	require.Equal(t, 0, out.Len(Stdout))
}
