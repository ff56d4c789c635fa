package sandbox

import (
	"errors"

	"github.com/dop251/goja"
)

// errDisabled marks a module switched off by configuration. Optional
// modules report it from their loader and are silently omitted.
var errDisabled = errors.New("module disabled")

// Loader instantiates a module's value inside a specific VM. Module values
// are never shared between VMs.
type Loader func(vm *goja.Runtime) (goja.Value, error)

type moduleDef struct {
	name    string
	alias   string
	version string
	core    bool
	loader  Loader
}

// Registry is the process-wide module catalogue shared by all sandboxes.
// It is immutable after construction.
type Registry struct {
	modules map[string]moduleDef
	order   []string
}

// Options tunes registry construction.
type Options struct {
	// DisabledModules lists optional modules to leave out, by name.
	// Disabling a core module has no effect.
	DisabledModules []string
}

// NewRegistry builds the default module catalogue: the always-available
// core set plus the optional analysis modules.
func NewRegistry(opts Options) *Registry {
	disabled := make(map[string]bool, len(opts.DisabledModules))
	for _, name := range opts.DisabledModules {
		disabled[name] = true
	}

	r := &Registry{modules: make(map[string]moduleDef)}

	// Core: numeric/data manipulation and utility modules.
	r.add(moduleDef{name: "dataframe", alias: "df", version: "1.0", core: true, loader: dataframeModule})
	r.add(moduleDef{name: "csv", version: "1.0", core: true, loader: csvModule})
	r.add(moduleDef{name: "stats", version: "1.0", core: true, loader: statsModule})
	r.add(moduleDef{name: "strings", version: "1.0", core: true, loader: stringsModule})
	r.add(moduleDef{name: "uuid", version: "1.6", core: true, loader: uuidModule})
	r.add(moduleDef{name: "hash", version: "1.0", core: true, loader: hashModule})
	r.add(moduleDef{name: "base64", version: "1.0", core: true, loader: base64Module})
	r.add(moduleDef{name: "random", version: "1.0", core: true, loader: randomModule})

	// Optional: statistical/ML modules, loaded best-effort.
	r.add(moduleDef{name: "regress", version: "0.3", loader: optional(regressModule, disabled["regress"])})
	r.add(moduleDef{name: "cluster", version: "0.3", loader: optional(clusterModule, disabled["cluster"])})

	return r
}

func (r *Registry) add(def moduleDef) {
	r.modules[def.name] = def
	r.order = append(r.order, def.name)
}

func optional(loader Loader, disabled bool) Loader {
	if !disabled {
		return loader
	}
	return func(*goja.Runtime) (goja.Value, error) { return nil, errDisabled }
}

// LibraryInfo describes one module for the introspection call.
type LibraryInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Alias     string `json:"alias,omitempty"`
}

// Libraries reports which modules would actually bind into a fresh
// namespace, probing optional loaders against a scratch VM.
func (r *Registry) Libraries() map[string]LibraryInfo {
	probe := goja.New()
	out := make(map[string]LibraryInfo, len(r.modules))
	for _, name := range r.order {
		def := r.modules[name]
		info := LibraryInfo{Available: true, Version: def.version, Alias: def.alias}
		if !def.core {
			if _, err := def.loader(probe); err != nil {
				info = LibraryInfo{Available: false}
			}
		}
		out[name] = info
	}
	return out
}
