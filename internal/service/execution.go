// Package service contains the business layer between the facades and the
// engine: it runs executions, records audit history, and updates metrics.
// Handlers never touch the engine or the repository directly.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oneprompteu/oneprompt/internal/apperror"
	"github.com/oneprompteu/oneprompt/internal/engine"
	"github.com/oneprompteu/oneprompt/internal/metrics"
	"github.com/oneprompteu/oneprompt/internal/model"
	"github.com/oneprompteu/oneprompt/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	// MaxCodeLength bounds request size before it ever reaches a parser.
	MaxCodeLength = 100000
)

// Executor is the engine surface the service needs; engine.Engine
// implements it, tests substitute a mock.
type Executor interface {
	Execute(ctx context.Context, req engine.Request) engine.Result
	Libraries() engine.LibrariesReport
}

// ExecutionService orchestrates one execution end to end. The history
// write is best-effort: an audit failure is logged, never surfaced to the
// caller, and never blocks returning the result.
type ExecutionService struct {
	engine  Executor
	runs    repository.RunRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewExecutionService wires the service. runs and m may be nil when
// history or metrics are disabled.
func NewExecutionService(exec Executor, runs repository.RunRepository, m *metrics.Metrics, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{engine: exec, runs: runs, metrics: m, logger: logger}
}

// Execute validates request bounds, runs the engine, and records the
// outcome. The engine's error taxonomy passes through untouched.
func (s *ExecutionService) Execute(ctx context.Context, req engine.Request) (engine.Result, error) {
	if req.Code == "" {
		return engine.Result{}, fmt.Errorf("executing code: %w", apperror.ValidationFailed("code", "code cannot be empty"))
	}
	if len(req.Code) > MaxCodeLength {
		return engine.Result{}, fmt.Errorf("executing code: %w",
			apperror.ValidationFailed("code", fmt.Sprintf("code exceeds %d bytes", MaxCodeLength)))
	}

	start := time.Now()
	result := s.engine.Execute(ctx, req)
	elapsed := time.Since(start)

	s.record(ctx, req, result, elapsed)
	s.observe(result, elapsed)

	s.logger.Info("execution completed",
		slog.Bool("ok", result.OK),
		slog.String("session", req.SessionID),
		slog.Duration("duration", elapsed),
		slog.Int("outputBytes", len(result.Output)),
	)

	return result, nil
}

// Libraries reports the engine's introspection payload.
func (s *ExecutionService) Libraries() engine.LibrariesReport {
	return s.engine.Libraries()
}

// ListRuns returns audit history, newest first.
func (s *ExecutionService) ListRuns(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	runs, err := s.runs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one audit record by ID.
func (s *ExecutionService) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if s.runs == nil {
		return nil, apperror.NotFound("run", id)
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

func (s *ExecutionService) record(ctx context.Context, req engine.Request, result engine.Result, elapsed time.Duration) {
	if s.runs == nil {
		return
	}
	run := &model.Run{
		SessionID:  req.SessionID,
		RunID:      req.RunID,
		OK:         result.OK,
		CodeSize:   len(req.Code),
		OutputSize: len(result.Output),
		Duration:   elapsed,
	}
	if result.Error != nil {
		run.ErrorKind = string(result.Error.Kind)
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Error("failed to record run", slog.String("error", err.Error()))
	}
}

func (s *ExecutionService) observe(result engine.Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if result.Error != nil {
		status = string(result.Error.Kind)
	}
	s.metrics.Executions.WithLabelValues(status).Inc()
	s.metrics.Duration.Observe(elapsed.Seconds())
	if truncated(result.Output) {
		s.metrics.Truncated.Inc()
	}
}

func truncated(output string) bool {
	// The truncation marker always closes the output when applied.
	const marker = "... [output truncated"
	return len(output) > 0 && output[len(output)-1] == ']' &&
		strings.Contains(output[max(0, len(output)-256):], marker)
}
