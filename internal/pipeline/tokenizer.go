package pipeline

import "strings"

// SplitArgs splits a plugin argument string into tokens, preserving quoted
// substrings containing spaces as single tokens. Both quote styles work;
// quotes are stripped from the resulting token. This is the shared tokenizer
// feeding every plugin's own flag parser.
func SplitArgs(s string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	flush()
	return tokens
}
