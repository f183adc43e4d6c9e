package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/modules"
)

// ModuleHandler dispatches start/stop commands to the module registry
type ModuleHandler struct {
	registry *modules.Registry
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewModuleHandler creates the module command handler
func NewModuleHandler(registry *modules.Registry, logger arbor.ILogger) *ModuleHandler {
	return &ModuleHandler{
		registry: registry,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleModuleRoutes routes /api/modules/{id}/start and /api/modules/{id}/stop
func (h *ModuleHandler) HandleModuleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/modules/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := models.ParseModuleID(parts[0])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	switch parts[1] {
	case "start":
		h.startModule(w, r, id)
	case "stop":
		h.stopModule(w, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// startModule accepts optional run parameters in the request body. The start
// is acknowledged immediately; progress flows through /api/status and the
// websocket feed. A module already running absorbs the command.
func (h *ModuleHandler) startModule(w http.ResponseWriter, r *http.Request, id models.ModuleID) {
	var params models.StartParams

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body failed")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := h.validate.Struct(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid parameters: "+err.Error())
			return
		}
	}

	if err := h.registry.Start(r.Context(), id, params); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().
		Str("module", string(id)).
		Str("period", params.Period).
		Msg("Module start accepted")

	writeJSON(w, http.StatusAccepted, map[string]string{
		"module": string(id),
		"status": "accepted",
	})
}

func (h *ModuleHandler) stopModule(w http.ResponseWriter, id models.ModuleID) {
	if err := h.registry.Stop(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().Str("module", string(id)).Msg("Module stop accepted")

	writeJSON(w, http.StatusAccepted, map[string]string{
		"module": string(id),
		"status": "stopping",
	})
}
