package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/repocache/internal/daemon"
	"git.home.luguber.info/inful/repocache/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	NoWatch bool `help:"Do not reload the configuration file on change"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()
	return RunDaemon(ctx, g, root, !d.NoWatch)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// RunDaemon builds the components and runs the daemon until ctx is done.
func RunDaemon(ctx context.Context, g *Global, root *CLI, watch bool) error {
	comps, err := buildComponents(ctx, g, root)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			slog.Warn("Failed to close components", logfields.Error(err))
		}
	}()

	opts := []daemon.Option{daemon.WithLevelVar(g.Level), daemon.WithLogger(g.Logger)}
	if watch {
		opts = append(opts, daemon.WithConfigPath(root.Config))
	}
	d, err := daemon.New(comps, opts...)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	slog.Info("Daemon starting, waiting for shutdown signal...")
	if err := d.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
