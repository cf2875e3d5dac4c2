package server

import (
	"net/http"

	"github.com/Matanbitton/cheap-crawler/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Synchronous scrape API
	mux.HandleFunc("/scrape", s.app.ScrapeHandler.ScrapeHandler)
	mux.HandleFunc("/health", s.app.HealthHandler.HealthHandler)

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - queued scrape jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.JobsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobByIDHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "Not found")
}
