package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oneprompteu/oneprompt/internal/repository"
)

// RunsHandler serves the execution audit history.
type RunsHandler struct {
	service ExecutionService
	logger  *slog.Logger
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(service ExecutionService, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{service: service, logger: logger}
}

// HandleList returns recent runs, newest first. Supports ?limit=,
// ?offset= and ?session= query parameters.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts := repository.ListOptions{
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
		SessionID: r.URL.Query().Get("session"),
	}

	runs, err := h.service.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list runs", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// HandleGet returns a single run by ID.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed. The service applies its own bounds.
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
