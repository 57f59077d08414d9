// Package pipeline discovers processing plugins, resolves their declared
// dependencies, and executes user-specified pipelines of plugin invocations,
// routing rendered output through shared buffers.
package pipeline

import (
	"fmt"

	"github.com/paladinbio/paladin-plugins/internal/datastore"
	"github.com/paladinbio/paladin-plugins/internal/filestore"
	"github.com/paladinbio/paladin-plugins/internal/flags"
	"github.com/paladinbio/paladin-plugins/internal/report"
)

// Version is a plugin's semantic version triple.
type Version struct {
	Major    int
	Minor    int
	Revision int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// Context carries the shared resources every plugin hook receives. It is
// constructed once at process start and threaded into every invocation,
// so tests can build isolated instances instead of mutating globals.
type Context struct {
	Files   *filestore.Store
	Data    *datastore.Manager
	Out     *Output
	Reports *report.Cache
	Flags   *flags.Registry
}

// Definition is one discovered plugin's metadata and hooks. A plugin
// populates it during its one-time connect call; all three hooks are
// optional.
type Definition struct {
	Name         string
	Description  string
	Version      Version
	Dependencies []string

	// ParseArgs parses the plugin's argument vector. Returning ErrUsage
	// (or pflag's help error) is a controlled abort, not a failure.
	ParseArgs func(argv []string) (any, error)

	// Init performs one-time setup: registering resources, opening cache
	// stores, refreshing reference data. Runs at most once per process.
	Init func(ctx *Context) error

	// Run executes the plugin against its parsed arguments.
	Run func(ctx *Context, args any) error
}

// Connector is the plugin SPI entry point: a module participates by
// exposing a connect function that populates a fresh Definition.
type Connector func(def *Definition) error

// Module is one row of the static registration table the registry walks
// during discovery.
type Module struct {
	Name     string
	Connect  Connector
	Disabled bool
}
