// Package git provides the clone delegates used to materialize a cache entry:
// a pure Go implementation on go-git and one that drives the git binary.
//
// A delegate clones one repository at one commit into a destination
// directory, optionally restricted to a checkout mask and with submodules.
// Failures the cache treats as terminal are reported as *CloneFailedError or
// *FetchFailedError; anything else is returned unchanged and is treated as
// transient by the caller.
package git
