package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/logfields"
)

// CLICloner drives the git binary: init, shallow fetch of the one commit,
// optional non-cone sparse checkout and submodule update.
type CLICloner struct {
	repo      string
	binary    string
	logger    *slog.Logger
	extraEnv  []string
	gitConfig []string
}

// NewCLICloner binds a git-binary delegate to repo.
func NewCLICloner(repo, binary string, authCfg *config.AuthConfig) *CLICloner {
	if binary == "" {
		binary = config.DefaultGitBinary
	}
	c := &CLICloner{repo: repo, binary: binary, logger: slog.Default()}
	c.gitConfig, c.extraEnv, _ = authManager.CLISettings(authCfg)
	return c
}

// commandError carries the exit status and stderr of a failed git invocation.
type commandError struct {
	args   []string
	status int
	stderr string
	err    error
}

func (e *commandError) Error() string {
	if e.stderr != "" {
		return e.stderr
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.args, " "), e.err)
}

func (e *commandError) Unwrap() error { return e.err }

// run executes git in dir, capturing stderr for the error message.
func (c *CLICloner) run(ctx context.Context, dir string, args ...string) error {
	full := make([]string, 0, len(args)+2*len(c.gitConfig)+2)
	for _, kv := range c.gitConfig {
		full = append(full, "-c", kv)
	}
	if dir != "" {
		full = append(full, "-C", dir)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, c.binary, full...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, c.extraEnv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		ce := &commandError{args: args, status: -1, stderr: strings.TrimSpace(stderr.String()), err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.status = exitErr.ExitCode()
		}
		return ce
	}
	return nil
}

func (c *CLICloner) Clone(ctx context.Context, dest, commit string, mask []string, submodules bool) error {
	c.logger.Debug("Cloning repository with git binary", logfields.Repository(c.repo), logfields.Commit(commit), logfields.Path(dest))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create clone directory: %w", err)
	}
	if err := c.run(ctx, "", "init", "-q", dest); err != nil {
		return c.unclassified(ctx, "init", err)
	}
	if err := c.run(ctx, dest, "remote", "add", "origin", c.repo); err != nil {
		return c.unclassified(ctx, "remote add", err)
	}

	roots := maskRoots(mask)
	if len(roots) > 0 {
		patterns := make([]string, 0, len(roots))
		for _, r := range roots {
			patterns = append(patterns, "/"+r)
		}
		args := append([]string{"sparse-checkout", "set", "--no-cone"}, patterns...)
		if err := c.run(ctx, dest, args...); err != nil {
			return c.unclassified(ctx, "sparse-checkout", err)
		}
	}

	if err := c.run(ctx, dest, "fetch", "-q", "--depth", "1", "origin", commit); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ce *commandError
		if errors.As(err, &ce) && ce.status == ExitStatusNotFound && missingRemoteRef(ce.stderr) {
			return &CloneFailedError{ExitStatus: ce.status, Message: ce.Error()}
		}
		return &FetchFailedError{Message: err.Error()}
	}

	if err := c.run(ctx, dest, "checkout", "-q", "FETCH_HEAD"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status := 1
		var ce *commandError
		if errors.As(err, &ce) && ce.status > 0 {
			status = ce.status
		}
		return &CloneFailedError{ExitStatus: status, Message: err.Error()}
	}
	if err := verifyMask(dest, roots); err != nil {
		return err
	}

	if submodules {
		if err := c.run(ctx, dest, "submodule", "update", "--init", "--recursive"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &FetchFailedError{Message: err.Error()}
		}
	}
	return nil
}

func (c *CLICloner) unclassified(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("git %s for %s: %w", step, c.repo, err)
}

// missingRemoteRef recognizes git's messages for an unknown commit, ref or repository.
func missingRemoteRef(stderr string) bool {
	l := strings.ToLower(stderr)
	for _, needle := range []string{
		"not our ref",
		"couldn't find remote ref",
		"no such remote ref",
		"does not appear to be a git repository",
		"repository not found",
	} {
		if strings.Contains(l, needle) {
			return true
		}
	}
	return false
}
