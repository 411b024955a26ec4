// Package version carries build metadata injected with -ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/repocache/internal/version.Version=v0.3.0"
package version

import "fmt"

var Version = "dev"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by `repocache --version`.
func String() string {
	return fmt.Sprintf("repocache %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
