package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket status/log feed
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Module commands: POST /api/modules/{id}/start, POST /api/modules/{id}/stop
	mux.HandleFunc("/api/modules/", s.app.ModuleHandler.HandleModuleRoutes)

	// Aggregated engine status
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// Log tail for late-connecting clients
	mux.HandleFunc("/api/logs/recent", s.app.WSHandler.GetRecentLogsHandler)

	// System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	return mux
}
