package git

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/repocache/internal/auth"
	"git.home.luguber.info/inful/repocache/internal/config"
)

var authManager = auth.NewManager()

// Cloner materializes one commit of a bound repository into dest.
type Cloner interface {
	Clone(ctx context.Context, dest, commit string, mask []string, submodules bool) error
}

// Factory binds a Cloner to a repository URL.
type Factory func(repo string) Cloner

// NewFactory returns the delegate factory selected by cfg.Backend.
func NewFactory(cfg config.CloneConfig) (Factory, error) {
	switch cfg.Backend {
	case config.CloneBackendCLI:
		if _, _, err := authManager.CLISettings(cfg.Auth); err != nil {
			return nil, err
		}
		return func(repo string) Cloner { return NewCLICloner(repo, cfg.GitBinary, cfg.Auth) }, nil
	case config.CloneBackendGoGit, "":
		method, err := authManager.CreateAuth(cfg.Auth)
		if err != nil {
			return nil, err
		}
		return func(repo string) Cloner { return NewGoGitCloner(repo).WithAuth(method) }, nil
	default:
		return nil, fmt.Errorf("unsupported clone backend %q", cfg.Backend)
	}
}

// maskRoots converts checkout mask entries to repository-relative paths.
// A nil result means the whole tree.
func maskRoots(mask []string) []string {
	var out []string
	for _, m := range mask {
		p := strings.TrimPrefix(path.Clean("/"+m), "/")
		if p == "" {
			return nil
		}
		out = append(out, p)
	}
	return out
}

// verifyMask checks that every masked path was materialized under dest.
func verifyMask(dest string, roots []string) error {
	for _, r := range roots {
		if _, err := os.Lstat(filepath.Join(dest, filepath.FromSlash(r))); err != nil {
			if os.IsNotExist(err) {
				return notFound("pathspec '%s' did not match any file(s) known to git", r)
			}
			return fmt.Errorf("stat %s: %w", r, err)
		}
	}
	return nil
}
