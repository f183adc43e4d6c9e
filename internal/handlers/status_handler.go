package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/services/status"
)

// StatusHandler serves the latest aggregated engine snapshot
type StatusHandler struct {
	status *status.Service
	logger arbor.ILogger
}

// NewStatusHandler creates the status handler
func NewStatusHandler(statusService *status.Service, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{status: statusService, logger: logger}
}

// GetStatusHandler returns the current snapshot. The handler never touches
// storage; it serves whatever the aggregator produced on its last tick.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.status.Current())
}
