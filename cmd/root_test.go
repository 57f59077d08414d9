package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paladinbio/paladin-plugins/internal/pipeline"
)

func TestPluginHelpExitsClean(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rootCmd.SetArgs([]string{"@@taxonomy", "--help"})
	require.NoError(t, rootCmd.Execute())
}

func TestUnknownPluginFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rootCmd.SetArgs([]string{"@@doesnotexist"})
	err := rootCmd.Execute()
	require.ErrorIs(t, err, pipeline.ErrInvalidPlugin)
}

func TestBadPluginArgumentsFail(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rootCmd.SetArgs([]string{"@@taxonomy", "--bogus"})
	err := rootCmd.Execute()
	require.ErrorContains(t, err, "arguments")
}
