// Package plugins holds the static registration table mapping plugin names
// to their connect entry points. Adding a plugin means adding a row here.
package plugins

import (
	"github.com/paladinbio/paladin-plugins/internal/pipeline"
	"github.com/paladinbio/paladin-plugins/internal/plugins/crossref"
	"github.com/paladinbio/paladin-plugins/internal/plugins/pathways"
	"github.com/paladinbio/paladin-plugins/internal/plugins/taxonomy"
)

// Modules returns the registration table walked by plugin discovery.
func Modules() []pipeline.Module {
	return []pipeline.Module{
		{Name: "crossref", Connect: crossref.Connect},
		{Name: "pathways", Connect: pathways.Connect},
		{Name: "taxonomy", Connect: taxonomy.Connect},
	}
}
