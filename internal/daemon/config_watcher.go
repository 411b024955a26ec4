package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/logfields"
)

const defaultDebounce = 2 * time.Second

// Reloader applies a freshly loaded configuration.
type Reloader interface {
	ReloadConfig(ctx context.Context, cfg *config.Config) error
}

// ConfigWatcher reloads the configuration file after it changes. Bursts of
// file events within the debounce window collapse into one reload.
type ConfigWatcher struct {
	path     string
	reloader Reloader
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
	closeErr error
}

// NewConfigWatcher creates a watcher for path. Nothing is watched until Start.
func NewConfigWatcher(path string, reloader Reloader) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &ConfigWatcher{
		path:     abs,
		reloader: reloader,
		fsw:      fsw,
		debounce: defaultDebounce,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (cw *ConfigWatcher) SetDebounce(d time.Duration) { cw.debounce = d }

// SetLogger replaces the default logger. Call before Start.
func (cw *ConfigWatcher) SetLogger(l *slog.Logger) {
	if l != nil {
		cw.logger = l
	}
}

// Start watches the file's directory, so editors that save by rename are
// still noticed, and runs the event loop until ctx ends or Stop is called.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(cw.path)
	if err := cw.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}
	cw.logger.Info("Watching configuration", logfields.Path(cw.path))
	go cw.loop(ctx)
	return nil
}

// Stop ends the event loop and releases the watcher. Later calls return the
// result of the first.
func (cw *ConfigWatcher) Stop(_ context.Context) error {
	cw.stopOnce.Do(func() {
		close(cw.done)
		cw.closeErr = cw.fsw.Close()
	})
	return cw.closeErr
}

func (cw *ConfigWatcher) loop(ctx context.Context) {
	name := filepath.Base(cw.path)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.done:
			return
		case ev, ok := <-cw.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op.Has(fsnotify.Remove) {
				cw.logger.Warn("Configuration file removed; keeping current settings", logfields.Path(ev.Name))
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			cw.logger.Debug("Configuration change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := cw.performReload(ctx); err != nil {
				cw.logger.Error("Configuration reload failed; keeping current settings", logfields.Error(err))
			}
		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Configuration watcher error", logfields.Error(err))
		}
	}
}

func (cw *ConfigWatcher) performReload(ctx context.Context) error {
	next, err := config.Load(cw.path)
	if err != nil {
		return fmt.Errorf("load %s: %w", cw.path, err)
	}
	if err := cw.reloader.ReloadConfig(ctx, next); err != nil {
		return fmt.Errorf("apply %s: %w", cw.path, err)
	}
	cw.logger.Info("Configuration reloaded", logfields.Path(cw.path))
	return nil
}
