package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oneprompteu/oneprompt/internal/apperror"
	"github.com/oneprompteu/oneprompt/internal/engine"
	"github.com/oneprompteu/oneprompt/internal/model"
	"github.com/oneprompteu/oneprompt/internal/repository"
)

// ExecutionService is the service surface the handlers depend on.
type ExecutionService interface {
	Execute(ctx context.Context, req engine.Request) (engine.Result, error)
	Libraries() engine.LibrariesReport
	ListRuns(ctx context.Context, opts repository.ListOptions) ([]model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	service ExecutionService
	logger  *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(service ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{service: service, logger: logger}
}

// executeRequest is the JSON body accepted by POST /api/execute.
type executeRequest struct {
	Code      string `json:"code"`
	Timeout   int    `json:"timeout,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// HandleExecute runs one piece of untrusted code and returns the outcome.
// Sandbox failures (validation, import, timeout, runtime errors) are data
// in the result payload, not HTTP errors; the response is 200 either way.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "request body must be valid JSON"))
		return
	}

	result, err := h.service.Execute(r.Context(), engine.Request{
		Code:           req.Code,
		TimeoutSeconds: req.Timeout,
		SessionID:      req.SessionID,
		RunID:          req.RunID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
