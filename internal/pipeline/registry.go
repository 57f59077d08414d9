package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/paladinbio/paladin-plugins/internal/log"
)

// ErrUsage is the controlled-abort path for a plugin whose parser was asked
// for help: usage has already been printed, the pipeline stops, and no
// further diagnostics are wanted. The command maps it to a clean exit.
var ErrUsage = errors.New("usage requested")

// ErrInvalidPlugin reports a pipeline step naming an unknown plugin. The
// diagnostic has already been written to the error stream when this is
// returned.
var ErrInvalidPlugin = errors.New("invalid plugin")

// InternalFunc is a built-in plugin operating on the shared output buffers
// rather than an external module.
type InternalFunc func(ctx *Context, arg string) error

// Registry holds every discovered plugin definition and drives pipeline
// execution against a Context.
type Registry struct {
	plugins     map[string]*Definition
	internal    map[string]InternalFunc
	disabled    map[string]bool
	initialized map[string]bool

	ctx   *Context
	debug bool
}

// NewRegistry creates a registry bound to ctx. Under debug, discovery
// errors propagate instead of demoting to skipped-plugin warnings.
func NewRegistry(ctx *Context, debug bool) *Registry {
	r := &Registry{
		plugins:     make(map[string]*Definition),
		internal:    make(map[string]InternalFunc),
		disabled:    make(map[string]bool),
		initialized: make(map[string]bool),
		ctx:         ctx,
		debug:       debug,
	}

	// The two fixed internal plugins map directly to the output renderer:
	// their argument is the optional destination filename.
	r.internal["flush"] = func(ctx *Context, arg string) error {
		return ctx.Out.Render(arg, Stdout)
	}
	r.internal["write"] = func(ctx *Context, arg string) error {
		return ctx.Out.Render(arg, Stdout)
	}
	return r
}

// Discover walks the registration table, invoking each module's connect
// entry point once with a fresh Definition. A failing connect is skipped
// with a warning unless debug mode propagates it.
func (r *Registry) Discover(modules []Module) error {
	for _, m := range modules {
		if m.Disabled {
			r.disabled[m.Name] = true
			continue
		}

		def := &Definition{}
		if err := m.Connect(def); err != nil {
			if r.debug {
				return fmt.Errorf("loading plugin %q: %w", m.Name, err)
			}
			r.ctx.Out.Send(Stderr, fmt.Sprintf("Error loading %q, skipping...", m.Name))
			log.ErrorErr(log.CatPipeline, "Plugin failed to load", err, "plugin", m.Name)
			continue
		}

		r.plugins[def.Name] = def
		log.Debug(log.CatPipeline, "Discovered plugin", "plugin", def.Name, "version", def.Version)
	}
	return nil
}

// Definitions returns every discovered plugin sorted by name.
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.plugins))
	for _, def := range r.plugins {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve validates a requested plugin set and initializes the one-level
// dependency closure, each plugin at most once per process, in first-seen
// order. Unknown or disabled names fail before any step executes.
func (r *Registry) Resolve(requested []string) error {
	var queue []string
	seen := make(map[string]bool)
	enqueue := func(name string) {
		if !seen[name] {
			seen[name] = true
			queue = append(queue, name)
		}
	}

	for _, name := range requested {
		_, external := r.plugins[name]
		_, internal := r.internal[name]
		if !external && !internal {
			if r.disabled[name] {
				return fmt.Errorf("disabled plugin: %s", name)
			}
			return fmt.Errorf("unknown plugin: %s", name)
		}
		if external {
			for _, dep := range r.plugins[name].Dependencies {
				enqueue(dep)
			}
			enqueue(name)
		}
	}

	for _, name := range queue {
		if err := r.initOnce(name); err != nil {
			return err
		}
	}
	return nil
}

// initOnce runs a plugin's Init hook if it has not already run this process.
func (r *Registry) initOnce(name string) error {
	if r.initialized[name] {
		return nil
	}
	def, ok := r.plugins[name]
	if !ok {
		return fmt.Errorf("unknown dependency: %s", name)
	}
	if def.Init != nil {
		log.Debug(log.CatPipeline, "Initializing plugin", "plugin", name)
		if err := def.Init(r.ctx); err != nil {
			return fmt.Errorf("initializing plugin %q: %w", name, err)
		}
	}
	r.initialized[name] = true
	return nil
}

// Execute runs pipeline steps strictly in order. Dependency initialization
// is re-checked lazily at each step (one level, at most once per process).
// After all steps, the standard-output buffer is flushed implicitly.
func (r *Registry) Execute(steps []Step) error {
	for _, step := range steps {
		if fn, ok := r.internal[step.Plugin]; ok {
			if err := fn(r.ctx, strings.Trim(step.Args, `"`)); err != nil {
				return err
			}
			continue
		}

		def, ok := r.plugins[step.Plugin]
		if !ok {
			r.ctx.Out.Send(Stderr, fmt.Sprintf("Invalid plugin %q", step.Plugin))
			return fmt.Errorf("%w %q", ErrInvalidPlugin, step.Plugin)
		}

		var parsed any
		if def.ParseArgs != nil {
			var err error
			parsed, err = def.ParseArgs(SplitArgs(step.Args))
			if err != nil {
				if errors.Is(err, pflag.ErrHelp) || errors.Is(err, ErrUsage) {
					return ErrUsage
				}
				return fmt.Errorf("plugin %q arguments: %w", step.Plugin, err)
			}
		}

		for _, dep := range def.Dependencies {
			if err := r.initOnce(dep); err != nil {
				return err
			}
		}
		if err := r.initOnce(def.Name); err != nil {
			return err
		}

		if def.Run != nil {
			log.Debug(log.CatPipeline, "Running plugin", "plugin", def.Name, "args", step.Args)
			if err := def.Run(r.ctx, parsed); err != nil {
				return fmt.Errorf("plugin %q: %w", def.Name, err)
			}
		}
	}

	return r.ctx.Out.Render("", Stdout)
}
