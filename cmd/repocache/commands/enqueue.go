package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/ingress"
	"git.home.luguber.info/inful/repocache/internal/request"
)

const publishTimeout = 30 * time.Second

// EnqueueCmd implements the 'enqueue' command.
type EnqueueCmd struct {
	RequestFlags `embed:""`
}

func (e *EnqueueCmd) Run(g *Global, root *CLI) error {
	req, err := e.request()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if !cfg.NATS.Enabled() {
		ctx, cancel := signalContext()
		defer cancel()
		return runLocal(ctx, g, cfg, req)
	}
	return publish(g, cfg.NATS, req)
}

func publish(g *Global, cfg config.NATSConfig, req request.RepositoryRequest) error {
	client, err := ingress.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	ack, err := client.Publisher().Publish(ctx, req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out(), "published %s stream=%s seq=%d duplicate=%t\n",
		req.Fingerprint(), ack.Stream, ack.Sequence, ack.Duplicate)
	return err
}
