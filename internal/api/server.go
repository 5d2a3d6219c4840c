// Package api provides the HTTP control surface of a sharer node: catalog
// management, searches, the routing table and role transitions.
package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/sharer/internal/health"
	"github.com/tutu-network/sharer/internal/infra/sqlite"
	"github.com/tutu-network/sharer/internal/overlay"
	"github.com/tutu-network/sharer/internal/resource"
	"github.com/tutu-network/sharer/internal/routing"
)

// History reads persisted query history.
type History interface {
	ListQueries(limit int) ([]sqlite.QueryRecord, error)
	QueryHits(queryID string) ([]sqlite.HitRecord, error)
}

// Server is the sharer HTTP API server.
type Server struct {
	router  *routing.Router
	overlay *overlay.Manager
	queries *overlay.QueryManager
	catalog *resource.Catalog

	health         *health.Checker
	history        History
	metricsEnabled bool
	corsOrigins    []string
}

// NewServer creates a new API server.
func NewServer(r *routing.Router, ov *overlay.Manager, qm *overlay.QueryManager, c *resource.Catalog) *Server {
	return &Server{router: r, overlay: ov, queries: qm, catalog: c}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth reports the checker's statuses in /api/status.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetHistory enables the /api/history endpoints.
func (s *Server) SetHistory(h History) { s.history = h }

// SetCORSOrigins restricts CORS to origins. Empty allows any origin.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/resources", s.handleListResources)
		r.Post("/resources", s.handleAddResource)
		r.Delete("/resources/{name}", s.handleRemoveResource)

		r.Post("/query", s.handleStartQuery)
		r.Get("/query", s.handleQueryResults)
		r.Get("/queries", s.handleListQueries)
		r.Delete("/queries", s.handleClearQueries)

		r.Get("/overlay", s.handleOverlay)
		r.Post("/overlay/promote", s.handlePromote)
		r.Post("/overlay/demote", s.handleDemote)

		if s.history != nil {
			r.Get("/history", s.handleHistory)
			r.Get("/history/{id}", s.handleHistoryHits)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// requestID tags every response with a fresh X-Request-Id unless the
// caller supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.corsOrigins) > 0 && !slices.Contains(s.corsOrigins, "*") {
			origin = ""
			if o := r.Header.Get("Origin"); slices.Contains(s.corsOrigins, o) {
				origin = o
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
