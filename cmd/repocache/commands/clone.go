package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/daemon"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/repocache"
	"git.home.luguber.info/inful/repocache/internal/request"
)

// CloneCmd implements the 'clone' command.
type CloneCmd struct {
	RequestFlags `embed:""`
	JSON         bool `help:"Print the outcome as JSON"`
}

func (c *CloneCmd) Run(g *Global, root *CLI) error {
	req, err := c.request()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	out, err := cloneOnce(ctx, g, cfg, req)
	if err != nil {
		return err
	}
	if c.JSON {
		if err := writeJSON(g.out(), out); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(g.out(), "%s\t%s\n", out.Path, out.State); err != nil {
		return err
	}
	if !out.Succeeded() {
		return ferrors.GitError("clone did not produce a ready entry").
			WithContext("state", string(out.State)).
			WithContext("message", out.Message).Build()
	}
	return nil
}

// cloneOnce runs one orchestrator call on a pooled instance and reports the
// resulting entry state.
func cloneOnce(ctx context.Context, g *Global, cfg *config.Config, req request.RepositoryRequest) (repocache.Outcome, error) {
	comps, err := daemon.Build(ctx, cfg, g.Logger)
	if err != nil {
		return repocache.Outcome{}, err
	}
	defer func() { _ = comps.Close() }()

	p, err := comps.Pools.Resolve(req.Repo())
	if err != nil {
		return repocache.Outcome{}, err
	}
	lease, err := p.Borrow(ctx, cfg.Pool.BorrowTimeout)
	if err != nil {
		return repocache.Outcome{}, err
	}
	defer lease.Release()

	inst := lease.Instance()
	if _, err := inst.CachedClone(ctx, req); err != nil {
		return repocache.Outcome{}, err
	}
	return inst.Result(ctx, req)
}

// runLocal performs the request through the worker, applying the configured
// backpressure policy, and prints the resulting entry.
func runLocal(ctx context.Context, g *Global, cfg *config.Config, req request.RepositoryRequest) error {
	comps, err := daemon.Build(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	if err := comps.Worker.Handle(ctx, req); err != nil {
		return err
	}
	in, err := comps.Store.Entry(req.Fingerprint()).Inspect(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "%s\t%s\t%s\n", req.Fingerprint(), in.State, in.Path)
	return err
}
