package cachestate

import (
	"encoding/json"
	"time"
)

// recordVersion is bumped when Record gains incompatible fields.
const recordVersion = 1

// State is the derived state of a cache entry.
type State string

const (
	StateAbsent   State = "absent"
	StateInFlight State = "in_flight"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Terminal reports whether the state is never retried by the fast path.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Record is the body of the READY marker.
type Record struct {
	Version      int       `json:"version"`
	State        State     `json:"state"`
	Fingerprint  string    `json:"fingerprint"`
	Repo         string    `json:"repo"`
	CommitHash   string    `json:"commit_hash"`
	CheckoutMask []string  `json:"checkout_mask"`
	Submodules   bool      `json:"submodules"`
	Message      string    `json:"message,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Inspection is a point-in-time view of one entry, read without the lock.
type Inspection struct {
	Fingerprint  string  `json:"fingerprint"`
	Path         string  `json:"path"`
	State        State   `json:"state"`
	Locked       bool    `json:"locked"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Record       *Record `json:"record,omitempty"`
}

// decodeRecord parses a READY body. Empty or foreign bodies (a bare touch from
// an older writer) yield nil without error.
func decodeRecord(data []byte) *Record {
	if len(data) == 0 {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.State == "" {
		return nil
	}
	return &rec
}
