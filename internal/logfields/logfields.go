// Package logfields holds the canonical slog attribute names used across repocache.
package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID       = "job_id"
	KeyJobStatus   = "job_status"
	KeyWorker      = "worker"
	KeyFingerprint = "fingerprint"
	KeyRepo        = "repository"
	KeyCommit      = "commit"
	KeyMask        = "checkout_mask"
	KeySubmodules  = "submodules"
	KeyPath        = "path"
	KeyState       = "state"
	KeyAttempt     = "attempt"
	KeyDurationMS  = "duration_ms"
	KeyBackend     = "backend"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr          { return slog.String(KeyJobID, id) }
func JobStatus(s string) slog.Attr       { return slog.String(KeyJobStatus, s) }
func Worker(w string) slog.Attr          { return slog.String(KeyWorker, w) }
func Fingerprint(fp string) slog.Attr    { return slog.String(KeyFingerprint, fp) }
func Repository(r string) slog.Attr      { return slog.String(KeyRepo, r) }
func Commit(c string) slog.Attr          { return slog.String(KeyCommit, c) }
func Mask(paths []string) slog.Attr      { return slog.Any(KeyMask, paths) }
func Submodules(b bool) slog.Attr        { return slog.Bool(KeySubmodules, b) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func State(s string) slog.Attr           { return slog.String(KeyState, s) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func Backend(b string) slog.Attr         { return slog.String(KeyBackend, b) }
func Duration(d time.Duration) slog.Attr { return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
