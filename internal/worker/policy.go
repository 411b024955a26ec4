package worker

import "git.home.luguber.info/inful/repocache/internal/config"

// BackpressurePolicy decides what a job does when it cannot make progress
// within its bounded waits (pool exhausted or entry locked elsewhere).
type BackpressurePolicy string

const (
	// DropOnBackpressure ends the job successfully without cloning. Another
	// actor is already producing the entry, or a later request will.
	DropOnBackpressure BackpressurePolicy = "drop"
	// FailOnBackpressure returns the contention error so the queue redelivers.
	FailOnBackpressure BackpressurePolicy = "fail"
)

// PolicyFromConfig maps the configured mode.
func PolicyFromConfig(mode config.BackpressureMode) BackpressurePolicy {
	if mode == config.BackpressureFail {
		return FailOnBackpressure
	}
	return DropOnBackpressure
}

// Apply returns the job result for a contention error under p.
func (p BackpressurePolicy) Apply(err error) error {
	if p == FailOnBackpressure {
		return err
	}
	return nil
}
