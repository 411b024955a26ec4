package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/eventstore"
)

// EntryResponse is the view of one cache entry.
type EntryResponse struct {
	cachestate.Inspection
	Summary *eventstore.EntrySummary `json:"summary,omitempty"`
	Events  []eventstore.Event       `json:"events,omitempty"`
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	if fp == "" || strings.ContainsAny(fp, `/\`) || strings.HasPrefix(fp, ".") {
		s.Error(w, http.StatusBadRequest, "invalid fingerprint")
		return
	}

	ins, err := s.deps.Store.Entry(fp).Inspect(r.Context())
	if err != nil {
		s.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := EntryResponse{Inspection: ins}
	if s.deps.Projection != nil {
		resp.Summary, _ = s.deps.Projection.Entry(fp)
	}
	if wantEvents, _ := strconv.ParseBool(r.URL.Query().Get("events")); wantEvents && s.deps.Journal != nil {
		resp.Events, err = s.deps.Journal.Events(r.Context(), fp)
		if err != nil {
			s.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.Success(w, http.StatusOK, resp)
}

func (s *Server) handleRecentEntries(w http.ResponseWriter, r *http.Request) {
	if s.deps.Projection == nil {
		s.Error(w, http.StatusNotFound, "event journal is not configured")
		return
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	s.Success(w, http.StatusOK, s.deps.Projection.Recent(limit))
}

func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request) {
	s.Success(w, http.StatusOK, s.deps.Pools.Stats())
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Janitor == nil {
		s.Error(w, http.StatusNotFound, "janitor is not configured")
		return
	}
	rep, err := s.deps.Janitor.Sweep(r.Context())
	if err != nil {
		s.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Success(w, http.StatusOK, rep)
}
