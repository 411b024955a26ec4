package config

import "time"

// Default values applied to zero fields.
const (
	DefaultCacheRoot         = "/var/cache/repocache"
	DefaultLockTimeout       = 2 * time.Second
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultGitBinary         = "git"
	DefaultPoolSize          = 4
	DefaultBorrowTimeout     = 5 * time.Second
	DefaultQueueWorkers      = 4
	DefaultQueueSize         = 256
	DefaultMaxRetries        = 3
	DefaultRetryInitialDelay = time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultNATSStream        = "REPOCACHE"
	DefaultNATSSubject       = "repocache.clone"
	DefaultNATSDurable       = "repocache-worker"
	DefaultNATSAckWait       = 10 * time.Minute
	DefaultNATSLockBucket    = "repocache_locks"
	DefaultNATSLockTTL       = 30 * time.Minute
	DefaultMetricsListen     = ":9090"
	DefaultJanitorInterval   = 5 * time.Minute
)

func applyDefaults(c *Config) {
	if c.Cache.Root == "" {
		c.Cache.Root = DefaultCacheRoot
	}
	if c.Cache.LockTimeout == 0 {
		c.Cache.LockTimeout = DefaultLockTimeout
	}
	if c.Cache.LockBackend == "" {
		c.Cache.LockBackend = LockBackendFile
	}
	if c.Cache.PollInterval == 0 {
		c.Cache.PollInterval = DefaultPollInterval
	}

	if c.Clone.Backend == "" {
		c.Clone.Backend = CloneBackendGoGit
	}
	if c.Clone.GitBinary == "" {
		c.Clone.GitBinary = DefaultGitBinary
	}

	if c.Pool.Size == 0 {
		c.Pool.Size = DefaultPoolSize
	}
	if c.Pool.BorrowTimeout == 0 {
		c.Pool.BorrowTimeout = DefaultBorrowTimeout
	}

	if c.Worker.Backpressure == "" {
		c.Worker.Backpressure = BackpressureDrop
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = DefaultQueueWorkers
	}
	if c.Queue.Size == 0 {
		c.Queue.Size = DefaultQueueSize
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = DefaultMaxRetries
	}
	if c.Queue.RetryBackoff == "" {
		c.Queue.RetryBackoff = RetryBackoffLinear
	}
	if c.Queue.RetryInitialDelay == 0 {
		c.Queue.RetryInitialDelay = DefaultRetryInitialDelay
	}
	if c.Queue.RetryMaxDelay == 0 {
		c.Queue.RetryMaxDelay = DefaultRetryMaxDelay
	}

	if c.NATS.Stream == "" {
		c.NATS.Stream = DefaultNATSStream
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
	if c.NATS.Durable == "" {
		c.NATS.Durable = DefaultNATSDurable
	}
	if c.NATS.AckWait == 0 {
		c.NATS.AckWait = DefaultNATSAckWait
	}
	if c.NATS.LockBucket == "" {
		c.NATS.LockBucket = DefaultNATSLockBucket
	}
	if c.NATS.LockTTL == 0 {
		c.NATS.LockTTL = DefaultNATSLockTTL
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Janitor.Interval == 0 {
		c.Janitor.Interval = DefaultJanitorInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
}
