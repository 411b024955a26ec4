// Package daemon runs repocache as a long-lived worker: the local clone queue,
// the optional JetStream consumer, the janitor, the admin API and the config
// watcher, all sharing one set of Components.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/repocache/internal/api"
	"git.home.luguber.info/inful/repocache/internal/config"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/ingress"
	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/queue"
	"git.home.luguber.info/inful/repocache/internal/retry"
	"git.home.luguber.info/inful/repocache/internal/worker"
)

const stopTimeout = 30 * time.Second

// Status is the daemon's lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Daemon owns the running services.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string
	level      *slog.LevelVar
	status     Status

	comps    *Components
	queue    *queue.CloneQueue
	consumer *ingress.Consumer
	api      *api.Server
	watcher  *ConfigWatcher
	logger   *slog.Logger
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithConfigPath enables live reload of the file at path.
func WithConfigPath(path string) Option {
	return func(d *Daemon) { d.configPath = path }
}

// WithLevelVar lets reloads change the log level of the handler built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(d *Daemon) { d.level = v }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a daemon around already built components.
func New(comps *Components, opts ...Option) (*Daemon, error) {
	if comps == nil || comps.Config == nil {
		return nil, ferrors.DaemonError("components are required").Build()
	}
	d := &Daemon{
		cfg:    comps.Config,
		comps:  comps,
		status: StatusStopped,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	cfg := comps.Config
	d.queue = queue.New(cfg.Queue.Size, cfg.Queue.Workers, comps.Worker)
	d.queue.ConfigureRetry(cfg.Queue)
	d.queue.SetRecorder(comps.Recorder)
	d.queue.SetLogger(d.logger)

	if cfg.Metrics.Enabled {
		d.api = api.NewServer(cfg.Metrics.Listen, api.Deps{
			Store:      comps.Store,
			Pools:      comps.Pools,
			Queue:      d.queue,
			Journal:    comps.Journal,
			Projection: comps.Projection,
			Janitor:    comps.Janitor,
			Metrics:    metrics.HTTPHandler(comps.Registry),
		})
	}
	return d, nil
}

// Queue returns the local clone queue.
func (d *Daemon) Queue() *queue.CloneQueue { return d.queue }

// API returns the admin server, or nil when metrics.enabled is false.
func (d *Daemon) API() *api.Server { return d.api }

// Status reports the lifecycle state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Daemon) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// GetConfig returns the configuration currently in effect.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Run starts every service and blocks until ctx is done, then stops them.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.start(ctx); err != nil {
		d.stop(ctx)
		return err
	}
	<-ctx.Done()
	d.stop(ctx)
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	d.setStatus(StatusStarting)
	cfg := d.GetConfig()

	d.queue.Start(ctx)

	if d.comps.NATS != nil {
		policy := retry.FromQueueConfig(cfg.Queue)
		cons, err := d.comps.NATS.Consumer(ctx, d.comps.Worker, policy.Deliveries())
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryDaemon, "create JetStream consumer").Build()
		}
		d.consumer = cons.
			WithPolicy(policy).
			WithWorkers(cfg.Queue.Workers).
			WithLogger(d.logger)
		go func() {
			if err := d.consumer.Run(ctx); err != nil {
				d.logger.Error("JetStream consumer stopped", logfields.Error(err))
			}
		}()
	}

	if cfg.Janitor.Interval > 0 {
		if err := d.comps.Janitor.Start(ctx, cfg.Janitor.Interval); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryDaemon, "start janitor").Build()
		}
	}

	if d.api != nil {
		if err := d.api.Start(ctx); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryDaemon, "start admin API").Build()
		}
	}

	if d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			return err
		}
		w.SetLogger(d.logger)
		if err := w.Start(ctx); err != nil {
			_ = w.Stop(ctx)
			return err
		}
		d.watcher = w
	}

	d.setStatus(StatusRunning)
	d.logger.Info("Daemon started",
		slog.String("cache_root", cfg.Cache.Root),
		slog.Bool("nats", d.consumer != nil),
		slog.Bool("admin_api", d.api != nil))
	return nil
}

func (d *Daemon) stop(ctx context.Context) {
	d.setStatus(StatusStopping)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(stopCtx); err != nil {
			d.logger.Warn("Config watcher stop failed", logfields.Error(err))
		}
	}
	if d.api != nil {
		if err := d.api.Shutdown(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("Admin API shutdown failed", logfields.Error(err))
		}
	}
	d.queue.Stop(stopCtx)
	if err := d.comps.Janitor.Stop(); err != nil {
		d.logger.Warn("Janitor stop failed", logfields.Error(err))
	}

	d.setStatus(StatusStopped)
	d.logger.Info("Daemon stopped")
}

// ReloadConfig applies the settings that can change without a restart:
// logging.level, pool.borrow_timeout and worker.backpressure. Changes to
// anything else are logged and take effect on the next start.
func (d *Daemon) ReloadConfig(_ context.Context, next *config.Config) error {
	if next == nil {
		return ferrors.ConfigError("reloaded configuration is nil").Build()
	}
	current := d.GetConfig()
	for _, field := range restartOnlyChanges(current, next) {
		d.logger.Warn("Configuration change requires restart", slog.String("field", field))
	}

	if d.level != nil {
		d.level.Set(next.Logging.Level.SlogLevel())
	}
	d.comps.Worker.SetBorrowTimeout(next.Pool.BorrowTimeout)
	d.comps.Worker.SetPolicy(worker.PolicyFromConfig(next.Worker.Backpressure))

	d.mu.Lock()
	d.cfg = next
	d.mu.Unlock()

	d.logger.Info("Configuration applied",
		slog.String("log_level", string(next.Logging.Level)),
		slog.Duration("borrow_timeout", next.Pool.BorrowTimeout),
		slog.String("backpressure", string(next.Worker.Backpressure)))
	return nil
}

func restartOnlyChanges(cur, next *config.Config) []string {
	var fields []string
	check := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	check("cache.root", cur.Cache.Root != next.Cache.Root)
	check("cache.lock_backend", cur.Cache.LockBackend != next.Cache.LockBackend)
	check("clone.backend", cur.Clone.Backend != next.Clone.Backend)
	check("pool.size", cur.Pool.Size != next.Pool.Size)
	check("queue", cur.Queue != next.Queue)
	check("nats", cur.NATS != next.NATS)
	check("metrics", cur.Metrics != next.Metrics)
	check("events.path", cur.Events.Path != next.Events.Path)
	check("janitor.interval", cur.Janitor.Interval != next.Janitor.Interval)
	return fields
}
