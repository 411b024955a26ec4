package commands

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/eventstore"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Fingerprint string `arg:"" help:"Entry fingerprint (hex digest)"`
	Events      bool   `help:"Include the entry's event history from the journal"`
}

// InspectResult is the JSON document printed by inspect.
type InspectResult struct {
	cachestate.Inspection
	Summary *eventstore.EntrySummary `json:"summary,omitempty"`
	Events  []eventstore.Event       `json:"events,omitempty"`
}

func (i *InspectCmd) Run(g *Global, root *CLI) error {
	fp, err := checkFingerprint(i.Fingerprint)
	if err != nil {
		return err
	}
	ctx := context.Background()
	comps, err := buildComponents(ctx, g, root)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	in, err := comps.Store.Entry(fp).Inspect(ctx)
	if err != nil {
		return err
	}
	res := InspectResult{Inspection: in}
	if comps.Projection != nil {
		if s, ok := comps.Projection.Entry(fp); ok {
			res.Summary = s
		}
	}
	if i.Events {
		if comps.Journal == nil {
			return ferrors.ConfigError("events.path is not configured").Build()
		}
		if res.Events, err = comps.Journal.Events(ctx, fp); err != nil {
			return fmt.Errorf("read events: %w", err)
		}
	}
	return writeJSON(g.out(), res)
}

// checkFingerprint rejects input that would escape the cache root.
func checkFingerprint(raw string) (string, error) {
	fp := strings.TrimSpace(raw)
	if fp == "" || strings.ContainsAny(fp, `/\`) || strings.HasPrefix(fp, ".") {
		return "", ferrors.ValidationError("invalid fingerprint").WithContext("fingerprint", raw).Build()
	}
	return fp, nil
}
