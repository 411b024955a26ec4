// Package errors provides the classified error primitives used across repocache.
//
// A ClassifiedError carries a category, a severity and a retry strategy next to
// the message and cause, so callers can route failures (drop the job, hand it
// back to the queue, exit the CLI with a specific code) without string parsing.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryLock, "lock acquisition timed out").
//		Immediate().
//		WithContext("fingerprint", fp).
//		WithCause(ctxErr).
//		Build()
//
// Sentinel values built with this package compare with errors.Is on category and
// message, so a wrapped sentinel carrying extra context still matches.
package errors
