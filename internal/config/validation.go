package config

import (
	"errors"
	"fmt"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// normalize case-folds enum fields and rejects unknown values.
func (c *Config) normalize() error {
	var errs []error
	norm := func(field string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	norm("cache.lock_backend", func() (err error) {
		c.Cache.LockBackend, err = lockBackendNormalizer.NormalizeWithError(string(c.Cache.LockBackend))
		return err
	})
	norm("clone.backend", func() (err error) {
		c.Clone.Backend, err = cloneBackendNormalizer.NormalizeWithError(string(c.Clone.Backend))
		return err
	})
	norm("worker.backpressure", func() (err error) {
		c.Worker.Backpressure, err = backpressureNormalizer.NormalizeWithError(string(c.Worker.Backpressure))
		return err
	})
	norm("logging.level", func() (err error) {
		c.Logging.Level, err = logLevelNormalizer.NormalizeWithError(string(c.Logging.Level))
		return err
	})
	norm("logging.format", func() (err error) {
		c.Logging.Format, err = logFormatNormalizer.NormalizeWithError(string(c.Logging.Format))
		return err
	})
	if c.Queue.RetryBackoff != "" {
		mode := NormalizeRetryBackoff(string(c.Queue.RetryBackoff))
		if mode == "" {
			errs = append(errs, fmt.Errorf("queue.retry_backoff: invalid value %q, valid options: %v",
				c.Queue.RetryBackoff, retryBackoffNormalizer.ValidKeys()))
		}
		c.Queue.RetryBackoff = mode
	}
	if c.Clone.Auth != nil {
		norm("clone.auth.type", func() (err error) {
			c.Clone.Auth.Type, err = authTypeNormalizer.NormalizeWithError(string(c.Clone.Auth.Type))
			return err
		})
	}
	if err := errors.Join(errs...); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid configuration").Fatal().Build()
	}
	return nil
}

// Validate checks ranges and cross-field requirements of a defaulted config.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Cache.LockTimeout < 0 {
		add("cache.lock_timeout must not be negative")
	}
	if c.Cache.PollInterval < 0 {
		add("cache.poll_interval must not be negative")
	}
	if c.Cache.FailureTTL < 0 {
		add("cache.failure_ttl must not be negative")
	}
	if c.Cache.LockBackend == LockBackendNATS && !c.NATS.Enabled() {
		add("cache.lock_backend %q requires nats.url", c.Cache.LockBackend)
	}
	if c.Clone.Timeout < 0 {
		add("clone.timeout must not be negative")
	}
	if c.Pool.Size < 1 {
		add("pool.size must be at least 1")
	}
	if c.Pool.BorrowTimeout < 0 {
		add("pool.borrow_timeout must not be negative")
	}
	if c.Queue.Workers < 1 {
		add("queue.workers must be at least 1")
	}
	if c.Queue.Size < 1 {
		add("queue.size must be at least 1")
	}
	if c.Queue.MaxRetries < 0 {
		add("queue.max_retries must not be negative")
	}
	if c.Janitor.Interval < 0 {
		add("janitor.interval must not be negative")
	}
	if a := c.Clone.Auth; a != nil {
		switch a.Type {
		case AuthTypeToken:
			if a.Token == "" {
				add("clone.auth: token authentication requires a token")
			}
		case AuthTypeBasic:
			if a.Username == "" || a.Password == "" {
				add("clone.auth: basic authentication requires username and password")
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid configuration").Fatal().Build()
	}
	return nil
}
