package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePipeline(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []Step
	}{
		{
			name: "single step",
			args: []string{"@@taxonomy", "-i", "report.tsv", "-q", "20", "-l", "1"},
			want: []Step{{Plugin: "taxonomy", Args: "-i report.tsv -q 20 -l 1"}},
		},
		{
			name: "multiple steps",
			args: []string{"@@taxonomy", "-i", "report.tsv", "-l", "1", "@@write", "out.tsv"},
			want: []Step{
				{Plugin: "taxonomy", Args: "-i report.tsv -l 1"},
				{Plugin: "write", Args: "out.tsv"},
			},
		},
		{
			name: "step without args",
			args: []string{"@@crossref"},
			want: []Step{{Plugin: "crossref"}},
		},
		{
			name: "argv token with spaces is requoted",
			args: []string{"@@taxonomy", "-r", "Escherichia coli", "-i", "report.tsv", "-l", "1"},
			want: []Step{{Plugin: "taxonomy", Args: `-r "Escherichia coli" -i report.tsv -l 1`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := ParsePipeline(tt.args)
			require.NoError(t, err)
			require.Equal(t, tt.want, steps)
		})
	}
}

func TestParsePipelineRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"empty", nil},
		{"no delimiter", []string{"taxonomy", "-i", "report.tsv"}},
		{"leading junk", []string{"junk", "@@taxonomy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline(tt.args)
			require.ErrorIs(t, err, ErrBadPipeline)
		})
	}
}
