// Package cachestate implements the per-fingerprint cache entry state machine
// over a shared cache root.
//
// Layout for fingerprint f under root R:
//
//	R/f/                    checkout content
//	R/f.package_part_ready  READY marker, body is a JSON Record
//	R/f.clone_lock          LOCK marker
//	R/f.error               ERROR marker, body is the failure message
//
// Markers are written whole via rename, so lock-free readers observe either the
// previous or the new state. Content and markers are mutated only by the holder
// of the entry lock; the lock itself is provided by a Locker and must be honoured
// across processes (flock on the LOCK marker, or a NATS JetStream KV key).
package cachestate
