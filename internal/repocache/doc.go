// Package repocache implements the clone orchestrator: given a repository
// request it returns the path of a cache entry holding that exact checkout,
// cloning it at most once across every process sharing the cache root.
//
// The protocol per request is:
//
//  1. reject requests for a repository other than the bound one;
//  2. return the entry at once when it is terminal (READY and not locked);
//  3. take the entry lock with a bounded wait, or report ErrCloneInProgress;
//  4. re-check READY under the lock, clear leftovers, invoke the clone delegate;
//  5. record classified failures as terminal entries, purge and propagate
//     anything else;
//  6. release the lock on every path that acquired it.
package repocache
