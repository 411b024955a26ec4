package eventstore

import "time"

// Event is one journaled observation about a cache entry.
type Event struct {
	ID          int64             `json:"id"`
	Fingerprint string            `json:"fingerprint"`
	Repo        string            `json:"repo"`
	Type        string            `json:"event_type"`
	Timestamp   time.Time         `json:"timestamp"`
	Payload     []byte            `json:"payload,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Payload is the JSON body written for orchestrator events.
type Payload struct {
	CommitHash string  `json:"commit_hash,omitempty"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
}
