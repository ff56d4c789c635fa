// Package sandbox builds the restricted interpreter environment in which
// untrusted code runs. Each Sandbox wraps a fresh goja VM whose globals are
// reduced to a positive allowlist, with the curated module set pre-bound and
// a host require() serving the module registry. A Sandbox is used for
// exactly one execution and then discarded; nothing in it is shared across
// requests.
package sandbox

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"

	"github.com/oneprompteu/oneprompt/internal/dataframe"
)

//go:embed js/restrict.js
var restrictScript string

//go:embed js/freeze.js
var freezeScript string

// maxCallStackSize bounds interpreter recursion depth.
const maxCallStackSize = 512

// Sandbox is a single-use restricted execution environment.
type Sandbox struct {
	vm       *goja.Runtime
	registry *Registry
	loaded   map[string]goja.Value

	stdout io.Writer
	stderr io.Writer
}

// New constructs a sandbox from the registry's module set. Core modules are
// loaded eagerly and a failure is returned to the caller; optional modules
// are attempted best-effort and silently omitted when their loader fails.
func New(registry *Registry) (*Sandbox, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	if _, err := vm.RunString(restrictScript); err != nil {
		return nil, fmt.Errorf("sandbox: restricting globals: %w", err)
	}
	if _, err := vm.RunString(freezeScript); err != nil {
		return nil, fmt.Errorf("sandbox: freezing intrinsics: %w", err)
	}

	s := &Sandbox{
		vm:       vm,
		registry: registry,
		loaded:   make(map[string]goja.Value),
		stdout:   io.Discard,
		stderr:   io.Discard,
	}

	s.bindOutput()

	if err := vm.Set("require", s.require); err != nil {
		return nil, fmt.Errorf("sandbox: binding require: %w", err)
	}

	for _, def := range registry.modules {
		val, err := def.loader(vm)
		if err != nil {
			if def.core {
				return nil, &ModuleLoadError{Module: def.name, Err: err}
			}
			continue
		}
		s.loaded[def.name] = val
		if err := vm.Set(def.name, val); err != nil {
			return nil, fmt.Errorf("sandbox: binding module %s: %w", def.name, err)
		}
		if def.alias != "" {
			if err := vm.Set(def.alias, val); err != nil {
				return nil, fmt.Errorf("sandbox: binding alias %s: %w", def.alias, err)
			}
		}
	}

	return s, nil
}

// ModuleLoadError reports a core module that failed to load. The engine
// maps it to the import_error kind.
type ModuleLoadError struct {
	Module string
	Err    error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("sandbox: loading module %s: %v", e.Module, e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }

// SetOutput directs print/console writes to the given buffers. Must be
// called before Run; the default discards all output.
func (s *Sandbox) SetOutput(stdout, stderr io.Writer) {
	s.stdout = stdout
	s.stderr = stderr
}

// Run executes a compiled program and returns its completion value.
func (s *Sandbox) Run(prog *goja.Program) (goja.Value, error) {
	return s.vm.RunProgram(prog)
}

// Interrupt aborts the running program with the given cause. Safe to call
// from any goroutine.
func (s *Sandbox) Interrupt(cause any) {
	s.vm.Interrupt(cause)
}

// ClearInterrupt removes a pending interrupt. Called after a successful run
// to close the race where the timer fires between return and disarm.
func (s *Sandbox) ClearInterrupt() {
	s.vm.ClearInterrupt()
}

// Set binds a host value into the sandbox's global namespace.
func (s *Sandbox) Set(name string, value any) error {
	return s.vm.Set(name, value)
}

// Runtime exposes the underlying VM for helper binding within the package
// and for tests.
func (s *Sandbox) Runtime() *goja.Runtime { return s.vm }

// require serves module lookups from the registry with a per-VM instance
// cache. The validator has already vetted the module name, but the lookup
// re-checks so the sandbox holds on its own.
func (s *Sandbox) require(name string) (goja.Value, error) {
	top := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		top = name[:i]
	}
	if val, ok := s.loaded[top]; ok {
		return val, nil
	}
	def, ok := s.registry.modules[top]
	if !ok {
		return nil, fmt.Errorf("module not available: %s", top)
	}
	val, err := def.loader(s.vm)
	if err != nil {
		return nil, fmt.Errorf("module not available: %s", top)
	}
	s.loaded[top] = val
	return val, nil
}

// bindOutput installs print and console over the sandbox's writers. The
// closures read s.stdout/s.stderr at call time so the engine can attach
// buffers to a pre-built sandbox.
func (s *Sandbox) bindOutput() {
	write := func(w func() io.Writer) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = formatValue(arg)
			}
			fmt.Fprintln(w(), strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	stdout := write(func() io.Writer { return s.stdout })
	stderr := write(func() io.Writer { return s.stderr })

	s.vm.Set("print", stdout)
	console := s.vm.NewObject()
	console.Set("log", stdout)
	console.Set("info", stdout)
	console.Set("warn", stderr)
	console.Set("error", stderr)
	s.vm.Set("console", console)
}

// formatValue renders one printed argument. Strings print bare; tabular
// values use their table rendering; everything else structured goes through
// JSON with a plain-string fallback.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch exported := v.Export().(type) {
	case string:
		return exported
	case *dataframe.DataFrame:
		return exported.String()
	case map[string]any, []any:
		if b, err := json.Marshal(exported); err == nil {
			return string(b)
		}
	}
	return v.String()
}
