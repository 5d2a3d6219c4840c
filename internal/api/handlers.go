package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/health"
	"github.com/tutu-network/sharer/internal/resource"
)

// ─── Status ─────────────────────────────────────────────────────────────────

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Address           domain.Address  `json:"address"`
	Role              string          `json:"role"`
	Strategy          string          `json:"strategy"`
	TTL               int             `json:"ttl"`
	Neighbours        NeighbourCounts `json:"neighbours"`
	AssignedSuperPeer *domain.Address `json:"assigned_super_peer,omitempty"`
	Resources         int             `json:"resources"`
	Queries           int             `json:"queries"`
	Healthy           bool            `json:"healthy"`
	Health            []health.Status `json:"health,omitempty"`
}

// NeighbourCounts sizes each routing table category.
type NeighbourCounts struct {
	Unstructured     int `json:"unstructured"`
	SuperPeers       int `json:"super_peers"`
	AssignedOrdinary int `json:"assigned_ordinary"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t := s.router.Table()
	cfg := s.router.Config()
	resp := StatusResponse{
		Address:  s.router.Self(),
		Role:     t.Role().String(),
		Strategy: cfg.Strategy.String(),
		TTL:      cfg.TTL,
		Neighbours: NeighbourCounts{
			Unstructured:     len(t.Unstructured()),
			SuperPeers:       len(t.SuperPeers()),
			AssignedOrdinary: t.AssignedOrdinaryCount(),
		},
		Resources: s.catalog.Index().Len(),
		Queries:   len(s.queries.Queries()),
		Healthy:   true,
	}
	if sp, ok := t.AssignedSuperPeer(); ok {
		resp.AssignedSuperPeer = &sp.Address
	}
	if s.health != nil {
		resp.Healthy = s.health.IsHealthy()
		resp.Health = s.health.Statuses()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Resources ──────────────────────────────────────────────────────────────

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources": s.catalog.List(),
	})
}

func (s *Server) handleAddResource(w http.ResponseWriter, r *http.Request) {
	var req resource.OwnedResource
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.catalog.Add(req); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrMissingField) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	got, _ := s.catalog.Index().Get(req.Name)
	if got.Name == "" {
		got = req
	}
	writeJSON(w, http.StatusCreated, got)
}

func (s *Server) handleRemoveResource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.catalog.Remove(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrResourceNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Queries ────────────────────────────────────────────────────────────────

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleStartQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := s.queries.Query(r.Context(), req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrQueryEmpty):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrRouterStopped):
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, q)
}

func (s *Server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	if text == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	res, err := s.queries.Results(text)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queries": s.queries.Queries(),
	})
}

func (s *Server) handleClearQueries(w http.ResponseWriter, r *http.Request) {
	if err := s.queries.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.history.ListQueries(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queries": list,
	})
}

func (s *Server) handleHistoryHits(w http.ResponseWriter, r *http.Request) {
	hits, err := s.history.QueryHits(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits": hits,
	})
}

// ─── Overlay ────────────────────────────────────────────────────────────────

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.router.Table().Snapshot())
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	changed := !s.router.Table().IsSuperPeer()
	s.overlay.SelfPromote(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":    s.router.Table().Role().String(),
		"changed": changed,
	})
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	changed := s.router.Table().IsSuperPeer()
	s.overlay.Demote()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":    s.router.Table().Role().String(),
		"changed": changed,
	})
}
