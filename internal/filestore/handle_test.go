package filestore

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenGzipRoundTrip(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Register("g", "data", "data.tsv.gz", "", KindTemp, OptGzip)
	require.NoError(t, err)

	w, err := e.Open("w")
	require.NoError(t, err)
	_, err = w.Write([]byte("acc\tdb\tref\n"))
	require.NoError(t, err)

	// Reopening flushes and closes the writer before reading back.
	r, err := e.Open("r")
	require.NoError(t, err)
	contents, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "acc\tdb\tref\n", string(contents))
}

func TestOpenPlainAppend(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Register("g", "log", "run.log", "", KindTemp, OptNone)
	require.NoError(t, err)

	w, err := e.Open("w")
	require.NoError(t, err)
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)

	a, err := e.Open("a")
	require.NoError(t, err)
	_, err = a.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.Nil(t, e.Handle().file)

	contents, err := os.ReadFile(e.Path())
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(contents))
}

func TestOpenRejectsUnknownMode(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Register("g", "data", "data.tsv", "", KindTemp, OptNone)
	require.NoError(t, err)

	_, err = e.Open("rw")
	require.ErrorContains(t, err, `unsupported open mode "rw"`)
}

func TestStoreCloseClosesHandles(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Register("g", "data", "data.tsv", "", KindTemp, OptNone)
	require.NoError(t, err)

	_, err = e.Open("w")
	require.NoError(t, err)
	require.NotNil(t, e.Handle())

	require.NoError(t, s.Close())
	require.Nil(t, e.Handle())
}
