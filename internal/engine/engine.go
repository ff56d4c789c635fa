// Package engine orchestrates a single sandboxed execution: validate, build
// a fresh namespace, inject helpers, run under a wall-clock budget, capture
// and bound output, and classify failures. Every failure mode is returned
// as data: Execute never reports an error to its caller any other way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/oneprompteu/oneprompt/internal/artifact"
	"github.com/oneprompteu/oneprompt/internal/policy"
	"github.com/oneprompteu/oneprompt/internal/sandbox"
	"github.com/oneprompteu/oneprompt/internal/validator"
)

// Request is one code execution call. SessionID and RunID are opaque
// scoping strings resolved by the transport layer; they only ever reach the
// artifact helpers, never any cross-call state.
type Request struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// Result is the structured outcome of an execution.
type Result struct {
	OK     bool         `json:"ok"`
	Output string       `json:"output,omitempty"`
	Result *string      `json:"result,omitempty"`
	Error  *ErrorRecord `json:"error,omitempty"`
}

// ErrorKind is the closed failure taxonomy.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindImport     ErrorKind = "import_error"
	KindTimeout    ErrorKind = "timeout"
	KindExecution  ErrorKind = "execution_error"
)

// ErrorRecord carries the typed error details for a failed execution.
type ErrorRecord struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message,omitempty"`
	Type       string    `json:"type,omitempty"`
	Traceback  string    `json:"traceback,omitempty"`
	Violations []string  `json:"violations,omitempty"`
}

// Config bounds every execution the engine performs.
type Config struct {
	// DefaultTimeoutSeconds applies when a request omits its timeout.
	DefaultTimeoutSeconds int
	// MaxTimeoutSeconds caps the requested timeout.
	MaxTimeoutSeconds int
	// MaxOutputSize caps combined stdout/stderr bytes before truncation.
	MaxOutputSize int
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutSeconds: 30,
		MaxTimeoutSeconds:     120,
		MaxOutputSize:         100000,
	}
}

const sourceName = "user_code.js"

// truncationMarker is appended when output exceeds the configured cap.
func truncationMarker(max int) string {
	return fmt.Sprintf("\n... [output truncated, exceeds %d bytes]", max)
}

// Engine runs code in single-use sandboxes. It holds no mutable state
// between calls beyond the immutable policy tables and module registry, so
// it is safe for concurrent use.
type Engine struct {
	cfg       Config
	validator *validator.Validator
	registry  *sandbox.Registry
	pool      *sandbox.Pool
	artifacts *artifact.Client
	logger    *slog.Logger
}

// New creates an Engine. artifacts may be nil when no store is configured;
// executions then simply get no artifact helpers.
func New(cfg Config, pol *policy.Set, registry *sandbox.Registry, artifacts *artifact.Client, logger *slog.Logger) *Engine {
	if cfg.DefaultTimeoutSeconds <= 0 {
		cfg.DefaultTimeoutSeconds = 30
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = 120
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = 100000
	}
	return &Engine{
		cfg:       cfg,
		validator: validator.New(pol),
		registry:  registry,
		artifacts: artifacts,
		logger:    logger,
	}
}

// UsePool makes the engine draw pre-built sandboxes from p instead of
// constructing one per call.
func (e *Engine) UsePool(p *sandbox.Pool) { e.pool = p }

// LibrariesReport is the introspection payload.
type LibrariesReport struct {
	OK              bool                           `json:"ok"`
	Libraries       map[string]sandbox.LibraryInfo `json:"libraries"`
	HelperFunctions []string                       `json:"helper_functions"`
}

// Libraries reports which modules a fresh namespace would contain and the
// artifact helper signatures.
func (e *Engine) Libraries() LibrariesReport {
	return LibrariesReport{
		OK:              true,
		Libraries:       e.registry.Libraries(),
		HelperFunctions: sandbox.HelperSignatures,
	}
}

// Execute runs one request through the full state machine. The returned
// Result always has OK or a typed Error; partial output written before a
// timeout or exception is preserved.
func (e *Engine) Execute(ctx context.Context, req Request) Result {
	outcome := e.validator.Validate(req.Code)
	if !outcome.Valid {
		return Result{
			OK: false,
			Error: &ErrorRecord{
				Kind:       KindValidation,
				Message:    "code failed security validation",
				Violations: outcome.Violations,
			},
		}
	}

	timeout := e.clampTimeout(req.TimeoutSeconds)

	s, err := e.newSandbox()
	if err != nil {
		var loadErr *sandbox.ModuleLoadError
		if errors.As(err, &loadErr) {
			return Result{OK: false, Error: &ErrorRecord{
				Kind:    KindImport,
				Message: fmt.Sprintf("error loading module %s: %v", loadErr.Module, loadErr.Err),
			}}
		}
		return Result{OK: false, Error: &ErrorRecord{
			Kind:    KindImport,
			Message: fmt.Sprintf("error building namespace: %v", err),
		}}
	}

	s.BindIdentity(req.SessionID, req.RunID)
	if req.SessionID != "" && e.artifacts != nil {
		s.BindArtifactHelpers(ctx, e.artifacts, req.SessionID, req.RunID)
	}

	stdout := newLimitBuffer(e.cfg.MaxOutputSize + 1)
	stderr := newLimitBuffer(e.cfg.MaxOutputSize + 1)
	s.SetOutput(stdout, stderr)

	prog, err := goja.Compile(sourceName, req.Code, false)
	if err != nil {
		// Unreachable in practice: validation already parsed the code.
		return Result{OK: false, Error: &ErrorRecord{
			Kind:    KindExecution,
			Message: fmt.Sprintf("compiling code: %v", err),
		}}
	}

	// Single preemptive timeout strategy: goja interrupts abort the running
	// program from any goroutine, so there is no abandoned-worker fallback.
	timer := time.AfterFunc(time.Duration(timeout)*time.Second, func() {
		s.Interrupt(timeoutCause{seconds: timeout})
	})
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Interrupt(ctx.Err())
		case <-watchDone:
		}
	}()

	value, runErr := s.Run(prog)

	close(watchDone)
	timer.Stop()
	if runErr == nil {
		s.ClearInterrupt()
	}

	output := e.combineOutput(stdout.String(), stderr.String())

	if runErr != nil {
		return e.classify(runErr, output)
	}

	res := Result{OK: true, Output: output}
	if hasTrailingExpression(req.Code) {
		res.Result = formatResult(value)
	}
	return res
}

func (e *Engine) newSandbox() (*sandbox.Sandbox, error) {
	if e.pool != nil {
		return e.pool.Get()
	}
	return sandbox.New(e.registry)
}

// clampTimeout maps a zero request to the default and bounds everything
// else to [1, MaxTimeoutSeconds]. A negative request clamps to 1 rather
// than silently picking up the default.
func (e *Engine) clampTimeout(requested int) int {
	if requested == 0 {
		requested = e.cfg.DefaultTimeoutSeconds
	}
	if requested < 1 {
		requested = 1
	}
	if requested > e.cfg.MaxTimeoutSeconds {
		requested = e.cfg.MaxTimeoutSeconds
	}
	return requested
}

// combineOutput joins the stdout and stderr captures with a marked stderr
// section, truncating at the configured cap.
func (e *Engine) combineOutput(stdout, stderr string) string {
	combined := stdout
	if stderr != "" {
		combined += "\n[stderr]:\n" + stderr
	}
	if len(combined) > e.cfg.MaxOutputSize {
		combined = combined[:e.cfg.MaxOutputSize] + truncationMarker(e.cfg.MaxOutputSize)
	}
	return combined
}

// timeoutCause is the interrupt value armed by the deadline timer, so the
// classifier can tell a budget expiry apart from a context cancellation.
type timeoutCause struct {
	seconds int
}

func (t timeoutCause) String() string {
	return fmt.Sprintf("execution cancelled: exceeded the %d second time limit", t.seconds)
}

func (e *Engine) classify(err error, output string) Result {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(timeoutCause); ok {
			return Result{
				OK:     false,
				Output: output,
				Error:  &ErrorRecord{Kind: KindTimeout, Message: cause.String()},
			}
		}
		// Interrupted for another reason: the caller cancelled the request
		// context. That is not a budget expiry.
		return Result{
			OK:     false,
			Output: output,
			Error: &ErrorRecord{
				Kind:    KindExecution,
				Message: fmt.Sprintf("execution cancelled: %v", interrupted.Value()),
			},
		}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		name, message := exceptionDetails(exc)
		return Result{
			OK:     false,
			Output: output,
			Error: &ErrorRecord{
				Kind:      KindExecution,
				Type:      name,
				Message:   message,
				Traceback: cleanTraceback(exc.String()),
			},
		}
	}

	return Result{
		OK:     false,
		Output: output,
		Error:  &ErrorRecord{Kind: KindExecution, Message: err.Error()},
	}
}

// hasTrailingExpression reports whether the last top-level statement is a
// bare expression whose value should be surfaced as the result. Assignments
// are expressions in this grammar, so they are excluded explicitly.
func hasTrailingExpression(code string) bool {
	program, err := parser.ParseFile(nil, sourceName, code, 0)
	if err != nil || len(program.Body) == 0 {
		return false
	}
	stmt, ok := program.Body[len(program.Body)-1].(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	_, isAssign := stmt.Expression.(*ast.AssignExpression)
	return !isAssign
}
