package pipeline

import (
	"fmt"
	"strings"
)

const (
	listDescColumn = 21
	listWrapWidth  = 78
)

// FormatListing renders every discovered plugin as indented, wrapped lines:
// the name and version triple, then the description aligned to a fixed
// column with a hanging indent on continuation lines.
func (r *Registry) FormatListing() []string {
	lines := []string{"The following plugins are available:"}
	hanging := strings.Repeat(" ", listDescColumn+3)

	for _, def := range r.Definitions() {
		header := fmt.Sprintf("  %s (%s):", def.Name, def.Version)
		padding := listDescColumn + 2 - len(header)
		if padding < 1 {
			padding = 1
		}

		current := header + strings.Repeat(" ", padding)
		first := true
		for _, word := range strings.Fields(def.Description) {
			if !first && len(current)+1+len(word) > listWrapWidth {
				lines = append(lines, current)
				current = hanging + word
				continue
			}
			if first {
				current += word
				first = false
			} else {
				current += " " + word
			}
		}
		lines = append(lines, current)
	}
	return lines
}
