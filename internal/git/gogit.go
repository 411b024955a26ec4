package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/repocache/internal/logfields"
)

// GoGitCloner clones with go-git: full clone without checkout, resolve the
// commit, then a (sparse) checkout of the masked paths.
type GoGitCloner struct {
	repo   string
	auth   transport.AuthMethod
	logger *slog.Logger
}

// NewGoGitCloner binds a go-git delegate to repo.
func NewGoGitCloner(repo string) *GoGitCloner {
	return &GoGitCloner{repo: repo, logger: slog.Default()}
}

// WithAuth attaches transport credentials (fluent helper).
func (c *GoGitCloner) WithAuth(method transport.AuthMethod) *GoGitCloner {
	c.auth = method
	return c
}

// WithLogger replaces the logger (fluent helper).
func (c *GoGitCloner) WithLogger(l *slog.Logger) *GoGitCloner {
	if l != nil {
		c.logger = l
	}
	return c
}

func (c *GoGitCloner) Clone(ctx context.Context, dest, commit string, mask []string, submodules bool) error {
	c.logger.Debug("Cloning repository", logfields.Repository(c.repo), logfields.Commit(commit), logfields.Path(dest))

	repository, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:        c.repo,
		Auth:       c.auth,
		NoCheckout: true,
	})
	if err != nil {
		return c.classifyTransport(ctx, err)
	}

	hash, err := repository.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return notFound("reference is not a tree: %s (%v)", commit, err)
	}
	commitObj, err := repository.CommitObject(*hash)
	if err != nil {
		return notFound("reference is not a commit: %s (%v)", commit, err)
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return fmt.Errorf("read tree of %s: %w", hash, err)
	}

	roots := maskRoots(mask)
	sparse, err := sparseDirectories(tree, roots)
	if err != nil {
		return err
	}

	wt, err := repository.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true, SparseCheckoutDirectories: sparse}); err != nil {
		return &CloneFailedError{ExitStatus: 1, Message: err.Error()}
	}
	if err := verifyMask(dest, roots); err != nil {
		return err
	}

	if submodules {
		if err := c.updateSubmodules(ctx, wt); err != nil {
			return err
		}
	}

	c.logger.Debug("Repository cloned", logfields.Repository(c.repo), logfields.Commit(hash.String()), logfields.Path(dest))
	return nil
}

func (c *GoGitCloner) updateSubmodules(ctx context.Context, wt *git.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return &FetchFailedError{Message: "read submodules: " + err.Error()}
	}
	if len(subs) == 0 {
		return nil
	}
	err = subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Auth:              c.auth,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &FetchFailedError{Message: "update submodules: " + err.Error()}
	}
	return nil
}

// sparseDirectories checks each mask root against the commit tree and returns
// index prefixes for a sparse checkout. Directories get a trailing slash so
// "lib" does not also select "library".
func sparseDirectories(tree *object.Tree, roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		entry, err := tree.FindEntry(r)
		if err != nil {
			return nil, notFound("pathspec '%s' did not match any file(s) known to git", r)
		}
		if entry.Mode == filemode.Dir {
			out = append(out, r+"/")
		} else {
			out = append(out, r)
		}
	}
	return out, nil
}

// classifyTransport maps go-git transport failures. A missing repository or
// rejected credentials are what `git clone` reports with status 128; network
// faults and cancellation stay unclassified so the job is retried.
func (c *GoGitCloner) classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return notFound("repository '%s' not accessible: %v", c.repo, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "repository not found") {
		return notFound("repository '%s' not found", c.repo)
	}
	return fmt.Errorf("clone %s: %w", c.repo, err)
}
