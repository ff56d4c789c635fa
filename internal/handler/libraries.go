package handler

import (
	"log/slog"
	"net/http"
)

// LibrariesHandler reports which sandbox modules are importable.
type LibrariesHandler struct {
	service ExecutionService
	logger  *slog.Logger
}

// NewLibrariesHandler creates a new LibrariesHandler.
func NewLibrariesHandler(service ExecutionService, logger *slog.Logger) *LibrariesHandler {
	return &LibrariesHandler{service: service, logger: logger}
}

// HandleList returns the module availability report. The report is
// computed against the live registry, so a disabled optional module shows
// up as unavailable rather than vanishing from the list.
func (h *LibrariesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Libraries())
}
