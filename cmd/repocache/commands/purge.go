package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/repocache/internal/repocache"
)

// PurgeCmd removes one entry so the next request clones it again.
type PurgeCmd struct {
	Fingerprint string `arg:"" help:"Entry fingerprint (hex digest)"`
}

func (p *PurgeCmd) Run(g *Global, root *CLI) error {
	fp, err := checkFingerprint(p.Fingerprint)
	if err != nil {
		return err
	}
	ctx := context.Background()
	comps, err := buildComponents(ctx, g, root)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	entry := comps.Store.Entry(fp)
	h, err := entry.AcquireLock(ctx, comps.Config.Cache.LockTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = entry.Release(h) }()

	before, err := entry.InspectLocked(h)
	if err != nil {
		return err
	}
	if err := entry.Purge(); err != nil {
		return err
	}
	if comps.Journal != nil {
		ev := repocache.Event{Type: repocache.EventClonePurged, Fingerprint: fp, Message: "purged from the command line"}
		if before.Record != nil {
			ev.Repo = before.Record.Repo
			ev.CommitHash = before.Record.CommitHash
		}
		comps.Journal.Observe(ctx, ev)
	}
	_, err = fmt.Fprintf(g.out(), "%s\t%s\n", fp, before.State)
	return err
}
