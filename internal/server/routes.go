package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/lotwatch/internal/common"
	"github.com/ternarybob/lotwatch/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - job event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Scrape jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Dealer catalog
	mux.HandleFunc("/api/dealers", s.handleDealersRoute)
	mux.HandleFunc("/api/dealers/import", s.handleDealerImportRoute)
	mux.HandleFunc("/api/dealers/", s.handleDealerRoutes) // Handles /api/dealers/{id}

	// API routes - Reconciled market state
	mux.HandleFunc("/api/listings", s.handleListingsRoute)
	mux.HandleFunc("/api/listings/", s.handleListingRoutes) // Handles /api/listings/{dealer_id}/{vin}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.versionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleJobRoutes routes /api/jobs/{id} requests
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/jobs/{id}/cancel
	if r.Method == "POST" && strings.HasSuffix(path, "/cancel") {
		s.app.JobHandler.CancelJobHandler(w, r)
		return
	}

	// GET /api/jobs/{id}
	if r.Method == "GET" && len(path) > len("/api/jobs/") {
		s.app.JobHandler.GetJobHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleDealersRoute routes /api/dealers requests
func (s *Server) handleDealersRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.DealerHandler.ListDealersHandler,
	})
}

// handleDealerImportRoute routes /api/dealers/import requests
func (s *Server) handleDealerImportRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"POST": s.app.DealerHandler.ImportDealersHandler,
	})
}

// handleDealerRoutes routes /api/dealers/{id} requests
func (s *Server) handleDealerRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.DealerHandler.GetDealerHandler,
	})
}

// handleListingsRoute routes /api/listings requests
func (s *Server) handleListingsRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.ListingHandler.ListListingsHandler,
	})
}

// handleListingRoutes routes /api/listings/{dealer_id}/{vin} requests
func (s *Server) handleListingRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.ListingHandler.GetListingHandler,
	})
}

// versionHandler handles GET /api/version
func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, "GET") {
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"service": "lotwatch",
		"version": common.GetVersion(),
	})
}

// notFoundHandler returns a JSON 404 for unmatched API paths
func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteError(w, http.StatusNotFound, "Not found")
}
