package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/eventstore"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/git"
	"git.home.luguber.info/inful/repocache/internal/ingress"
	"git.home.luguber.info/inful/repocache/internal/janitor"
	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/pool"
	"git.home.luguber.info/inful/repocache/internal/repocache"
	"git.home.luguber.info/inful/repocache/internal/worker"
)

// projectionSize bounds the in-memory entry summaries kept by the projection.
const projectionSize = 1000

// Components is the fully wired set of services shared by the daemon and the
// one-shot CLI commands.
type Components struct {
	Config     *config.Config
	Store      *cachestate.Store
	Registry   *prometheus.Registry
	Recorder   *metrics.PrometheusRecorder
	Events     *eventstore.SQLiteStore
	Journal    *eventstore.Journal
	Projection *eventstore.EntryProjection
	Pools      *pool.Registry
	Worker     *worker.Worker
	Janitor    *janitor.Janitor
	NATS       *ingress.Client

	logger *slog.Logger
}

// Build wires every component from cfg. NATS is dialed only when nats.url is
// set; the event journal is opened only when events.path is set.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{Config: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			_ = c.Close()
		}
	}()

	var err error
	if cfg.NATS.Enabled() {
		if c.NATS, err = ingress.Connect(cfg.NATS); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "connect to NATS").Build()
		}
	}

	locker, err := c.locker(ctx)
	if err != nil {
		return nil, err
	}
	if c.Store, err = cachestate.NewStore(cfg.Cache.Root, locker); err != nil {
		return nil, err
	}
	c.Store.WithLogger(logger)

	c.Registry = metrics.NewRegistry()
	c.Recorder = metrics.NewPrometheusRecorder(c.Registry)

	var observer repocache.Observer
	if cfg.Events.Path != "" {
		if c.Events, err = eventstore.NewSQLiteStore(cfg.Events.Path); err != nil {
			return nil, err
		}
		c.Projection = eventstore.NewEntryProjection(c.Events, projectionSize)
		if err := c.Projection.Rebuild(ctx); err != nil {
			logger.Warn("Failed to rebuild entry projection", logfields.Error(err))
		}
		c.Journal = eventstore.NewJournal(c.Events, c.Projection)
		observer = c.Journal
	}

	cloners, err := git.NewFactory(cfg.Clone)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "configure clone backend").Build()
	}
	c.Pools, err = pool.NewRegistry(cfg.Pool.Size, func(repo string) *repocache.CachedRepository {
		return repocache.NewCachedRepository(repo, c.Store, cloners(repo)).
			WithLockTimeout(cfg.Cache.LockTimeout).
			WithCloneTimeout(cfg.Clone.Timeout).
			WithRecorder(c.Recorder).
			WithObserver(observer).
			WithLogger(logger)
	})
	if err != nil {
		return nil, err
	}

	c.Worker = worker.New(c.Pools, cfg.Pool.BorrowTimeout).
		WithRecorder(c.Recorder).
		WithObserver(observer).
		WithLogger(logger)
	c.Worker.SetPolicy(worker.PolicyFromConfig(cfg.Worker.Backpressure))

	c.Janitor = janitor.New(c.Store, cfg.Cache.FailureTTL).
		WithRecorder(c.Recorder).
		WithLogger(logger)

	logger.Info("Components initialized",
		slog.String("cache_root", cfg.Cache.Root),
		slog.String("lock_backend", locker.Name()),
		slog.String("clone_backend", string(cfg.Clone.Backend)),
		slog.Bool("nats", c.NATS != nil),
		slog.Bool("journal", c.Journal != nil))
	built = true
	return c, nil
}

func (c *Components) locker(ctx context.Context) (cachestate.Locker, error) {
	cfg := c.Config.Cache
	if cfg.LockBackend != config.LockBackendNATS {
		return cachestate.NewFileLocker(cfg.Root, cfg.PollInterval), nil
	}
	if c.NATS == nil {
		return nil, ferrors.ConfigError("lock_backend nats requires nats.url").Build()
	}
	kv, err := c.NATS.LockBucket(ctx)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "open lock bucket").Build()
	}
	return cachestate.NewKVLocker(kv, cfg.PollInterval), nil
}

// Close releases the journal database and the NATS connection.
func (c *Components) Close() error {
	var errs []error
	if c.Janitor != nil {
		if err := c.Janitor.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop janitor: %w", err))
		}
	}
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event store: %w", err))
		}
		c.Events = nil
	}
	if c.NATS != nil {
		if err := c.NATS.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
		c.NATS = nil
	}
	return errors.Join(errs...)
}
