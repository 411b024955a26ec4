package commands

import (
	"context"
	"fmt"
)

// SweepCmd implements the 'sweep' command.
type SweepCmd struct{}

func (s *SweepCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	comps, err := buildComponents(ctx, g, root)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	rep, err := comps.Janitor.Sweep(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "scanned=%d stale_locks=%d orphans=%d expired_failures=%d busy=%d\n",
		rep.Scanned, rep.StaleLocks, rep.Orphans, rep.ExpiredFailures, rep.Busy)
	return err
}
