package commands

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/daemon"
	"git.home.luguber.info/inful/repocache/internal/request"
)

// Global is shared state bound into every command.
type Global struct {
	Logger *slog.Logger
	Level  *slog.LevelVar
	Out    io.Writer
}

// NewGlobal returns a Global writing logs to stderr and results to stdout.
func NewGlobal() *Global {
	return &Global{Level: new(slog.LevelVar), Out: os.Stdout}
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"repocache.yaml" env:"REPOCACHE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Daemon  DaemonCmd  `cmd:"" help:"Run the clone worker daemon"`
	Enqueue EnqueueCmd `cmd:"" help:"Submit a clone request (NATS publish, or a local clone when NATS is not configured)"`
	Clone   CloneCmd   `cmd:"" help:"Materialize one checkout and print its cache path"`
	Inspect InspectCmd `cmd:"" help:"Show the state of a cache entry"`
	Purge   PurgeCmd   `cmd:"" help:"Remove one cache entry and its markers"`
	Sweep   SweepCmd   `cmd:"" help:"Run one janitor pass over the cache"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once. The handler format
// and level are refined by applyLogging once a command has loaded its config.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	if g.Level == nil {
		g.Level = new(slog.LevelVar)
	}
	if c.Verbose {
		g.Level.Set(slog.LevelDebug)
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: g.Level}))
	slog.SetDefault(g.Logger)
	return nil
}

// applyLogging switches the default logger to the configured handler. The
// --verbose flag wins over logging.level.
func (g *Global) applyLogging(cfg config.LoggingConfig, verbose bool) {
	if g.Level == nil {
		g.Level = new(slog.LevelVar)
	}
	if !verbose {
		g.Level.Set(cfg.Level.SlogLevel())
	}
	opts := &slog.HandlerOptions{Level: g.Level}
	var h slog.Handler
	if cfg.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	g.Logger = slog.New(h)
	slog.SetDefault(g.Logger)
}

func (g *Global) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// loadConfig reads the configuration file and applies its logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.applyLogging(cfg.Logging, root.Verbose)
	return cfg, nil
}

// buildComponents loads the configuration and wires the shared services.
func buildComponents(ctx context.Context, g *Global, root *CLI) (*daemon.Components, error) {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return nil, err
	}
	return daemon.Build(ctx, cfg, g.Logger)
}

// RequestFlags are the fields of a clone request.
type RequestFlags struct {
	Repo       string   `short:"r" required:"" help:"Repository URL"`
	Commit     string   `required:"" help:"Commit hash or ref to check out"`
	Path       []string `short:"p" name:"path" help:"Checkout mask path (repeatable); omit for the whole tree"`
	Submodules bool     `help:"Initialize and update submodules"`
}

func (f RequestFlags) request() (request.RepositoryRequest, error) {
	return request.New(f.Repo, f.Commit, f.Path, f.Submodules)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
