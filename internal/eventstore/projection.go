// Package eventstore journals cache entry events in SQLite and keeps an
// in-memory summary per fingerprint.
package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/repocache/internal/repocache"
)

// EntrySummary is a read model of everything observed for one fingerprint.
type EntrySummary struct {
	Fingerprint   string        `json:"fingerprint"`
	Repo          string        `json:"repo"`
	CommitHash    string        `json:"commit_hash,omitempty"`
	Hits          int           `json:"hits"`
	Contentions   int           `json:"contentions"`
	Clones        int           `json:"clones"`
	Purges        int           `json:"purges"`
	PoolExhausted int           `json:"pool_exhausted"`
	LastOutcome   string        `json:"last_outcome,omitempty"`
	LastMessage   string        `json:"last_message,omitempty"`
	LastDuration  time.Duration `json:"last_duration,omitempty"`
	FirstSeen     time.Time     `json:"first_seen"`
	LastSeen      time.Time     `json:"last_seen"`
}

// EntryProjection maintains summaries reconstructed from the journal. It is
// bounded: the least recently seen fingerprints are evicted first.
type EntryProjection struct {
	mu       sync.RWMutex
	store    Store
	entries  map[string]*EntrySummary
	maxSize  int
	lastSync time.Time
}

// NewEntryProjection creates a projection backed by store.
func NewEntryProjection(store Store, maxEntries int) *EntryProjection {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &EntryProjection{store: store, entries: make(map[string]*EntrySummary), maxSize: maxEntries}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *EntryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.Range(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]*EntrySummary)
	for _, ev := range events {
		p.applyLocked(ev)
	}
	p.pruneLocked()
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event.
func (p *EntryProjection) Apply(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(ev)
	p.pruneLocked()
}

func (p *EntryProjection) applyLocked(ev Event) {
	if ev.Fingerprint == "" {
		return
	}
	s, ok := p.entries[ev.Fingerprint]
	if !ok {
		s = &EntrySummary{Fingerprint: ev.Fingerprint, Repo: ev.Repo, FirstSeen: ev.Timestamp}
		p.entries[ev.Fingerprint] = s
	}
	s.LastSeen = ev.Timestamp

	var payload Payload
	_ = json.Unmarshal(ev.Payload, &payload)
	if payload.CommitHash != "" {
		s.CommitHash = payload.CommitHash
	}

	switch repocache.EventType(ev.Type) {
	case repocache.EventCacheHit:
		s.Hits++
	case repocache.EventLockContention:
		s.Contentions++
	case repocache.EventPoolExhausted:
		s.PoolExhausted++
	case repocache.EventCloneStarted:
		s.Clones++
	case repocache.EventClonePurged:
		s.Purges++
		s.setOutcome(ev.Type, payload)
	case repocache.EventCloneSucceeded, repocache.EventCloneFailed:
		s.setOutcome(ev.Type, payload)
	}
}

func (s *EntrySummary) setOutcome(eventType string, payload Payload) {
	s.LastOutcome = eventType
	s.LastMessage = payload.Message
	s.LastDuration = time.Duration(payload.DurationMS * float64(time.Millisecond))
}

func (p *EntryProjection) pruneLocked() {
	if len(p.entries) <= p.maxSize {
		return
	}
	all := make([]*EntrySummary, 0, len(p.entries))
	for _, s := range p.entries {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastSeen.Before(all[j].LastSeen) })
	for _, s := range all[:len(all)-p.maxSize] {
		delete(p.entries, s.Fingerprint)
	}
}

// Entry returns a copy of the summary for fingerprint.
func (p *EntryProjection) Entry(fingerprint string) (*EntrySummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.entries[fingerprint]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Recent returns up to n summaries, most recently seen first.
func (p *EntryProjection) Recent(n int) []*EntrySummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*EntrySummary, 0, len(p.entries))
	for _, s := range p.entries {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *EntryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
