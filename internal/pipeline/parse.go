package pipeline

import (
	"errors"
	"strings"
)

// stepDelimiter introduces each plugin invocation on the command line.
const stepDelimiter = "@@"

// ErrBadPipeline reports malformed pipeline syntax on the command line.
var ErrBadPipeline = errors.New("pipeline must start with @@plugin")

// Step is one (plugin name, raw argument string) unit of work.
type Step struct {
	Plugin string
	Args   string
}

// ParsePipeline extracts ordered (plugin, arguments) pairs from the raw
// command-line remainder. Each step is introduced by the @@ delimiter
// followed by the plugin name and a free-form argument string; argv tokens
// containing spaces are re-quoted so the per-plugin tokenizer preserves them.
func ParsePipeline(args []string) ([]Step, error) {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if strings.Contains(arg, " ") {
			quoted[i] = `"` + arg + `"`
		} else {
			quoted[i] = arg
		}
	}

	joined := strings.Join(quoted, " ")
	groups := strings.Split(joined, stepDelimiter)
	if len(groups) < 2 || strings.TrimSpace(groups[0]) != "" {
		return nil, ErrBadPipeline
	}

	steps := make([]Step, 0, len(groups)-1)
	for _, group := range groups[1:] {
		group = strings.TrimSpace(group)
		tokens := strings.SplitN(group, " ", 2)
		step := Step{Plugin: tokens[0]}
		if len(tokens) > 1 {
			step.Args = strings.TrimSpace(tokens[1])
		}
		steps = append(steps, step)
	}
	return steps, nil
}
