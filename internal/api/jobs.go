package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/queue"
	"git.home.luguber.info/inful/repocache/internal/request"
)

const maxRequestBody = 64 << 10

// JobsResponse lists running and recently finished jobs.
type JobsResponse struct {
	Queued  int               `json:"queued"`
	Active  []*queue.CloneJob `json:"active"`
	History []*queue.CloneJob `json:"history"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		s.Error(w, http.StatusNotFound, "local queue is not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := request.FromJSON(body)
	if err != nil {
		s.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.deps.Queue.Enqueue(req)
	switch {
	case errors.Is(err, queue.ErrDuplicate):
		s.Success(w, http.StatusOK, job)
	case errors.Is(err, queue.ErrQueueFull):
		s.Error(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.Error(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Info("Accepted clone request", logfields.JobID(job.ID), logfields.Fingerprint(job.Fingerprint))
		s.Success(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Queue == nil {
		s.Error(w, http.StatusNotFound, "local queue is not configured")
		return
	}
	s.Success(w, http.StatusOK, JobsResponse{
		Queued:  s.deps.Queue.Length(),
		Active:  s.deps.Queue.ActiveJobs(),
		History: s.deps.Queue.History(),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		s.Error(w, http.StatusNotFound, "local queue is not configured")
		return
	}
	job, ok := s.deps.Queue.JobSnapshot(chi.URLParam(r, "id"))
	if !ok {
		s.Error(w, http.StatusNotFound, "job not found")
		return
	}
	s.Success(w, http.StatusOK, job)
}
