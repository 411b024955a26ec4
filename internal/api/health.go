package api

import (
	"net/http"
	"os"
	"time"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse represents the complete health check response.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Checks    []HealthCheck `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}

	cacheCheck := HealthCheck{Name: "cache_root", Status: HealthStatusHealthy}
	if fi, err := os.Stat(s.deps.Store.Root()); err != nil || !fi.IsDir() {
		cacheCheck.Status = HealthStatusUnhealthy
		cacheCheck.Message = "cache root is not accessible"
		resp.Status = HealthStatusUnhealthy
	}
	resp.Checks = append(resp.Checks, cacheCheck)

	if q := s.deps.Queue; q != nil {
		qc := HealthCheck{Name: "queue", Status: HealthStatusHealthy}
		if active := len(q.ActiveJobs()); active > 0 && q.Length() > 0 {
			qc.Message = "workers busy with pending jobs"
		}
		resp.Checks = append(resp.Checks, qc)
	}

	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
