package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// Config is the complete runtime configuration. It is passed explicitly to
// constructors; nothing reads it from package state.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Clone   CloneConfig   `yaml:"clone"`
	Pool    PoolConfig    `yaml:"pool"`
	Worker  WorkerConfig  `yaml:"worker"`
	Queue   QueueConfig   `yaml:"queue"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
	Janitor JanitorConfig `yaml:"janitor"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig locates the shared cache root and tunes entry locking.
type CacheConfig struct {
	Root         string        `yaml:"root"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	LockBackend  LockBackend   `yaml:"lock_backend"`  // file|nats
	PollInterval time.Duration `yaml:"poll_interval"` // lock retry cadence
	// FailureTTL expires classified failures; zero keeps them forever.
	FailureTTL time.Duration `yaml:"failure_ttl"`
}

// CloneConfig selects the clone delegate.
type CloneConfig struct {
	Backend   CloneBackend `yaml:"backend"` // gogit|cli
	GitBinary string       `yaml:"git_binary"`
	// Timeout bounds one clone attempt; zero means unbounded.
	Timeout time.Duration `yaml:"timeout"`
	Auth    *AuthConfig   `yaml:"auth,omitempty"`
}

// AuthConfig holds the credentials used for every remote.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// IsZero reports whether no credentials are configured.
func (a *AuthConfig) IsZero() bool { return a == nil || a.Type == "" || a.Type == AuthTypeNone }

// PoolConfig sizes the per-repository orchestrator pools.
type PoolConfig struct {
	Size          int           `yaml:"size"`
	BorrowTimeout time.Duration `yaml:"borrow_timeout"`
}

// WorkerConfig controls how the worker reacts to contention.
type WorkerConfig struct {
	Backpressure BackpressureMode `yaml:"backpressure"` // drop|fail
}

// QueueConfig configures the in-process job queue.
type QueueConfig struct {
	Workers           int              `yaml:"workers"`
	Size              int              `yaml:"size"`
	MaxRetries        int              `yaml:"max_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay time.Duration    `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration    `yaml:"retry_max_delay"`
}

// NATSConfig enables the JetStream ingress and the KV lock backend. An empty
// URL disables both.
type NATSConfig struct {
	URL        string        `yaml:"url"`
	Stream     string        `yaml:"stream"`
	Subject    string        `yaml:"subject"`
	Durable    string        `yaml:"durable"`
	AckWait    time.Duration `yaml:"ack_wait"`
	LockBucket string        `yaml:"lock_bucket"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

// Enabled reports whether a NATS server is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// MetricsConfig configures the admin HTTP listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// EventsConfig locates the SQLite event journal. An empty path disables it.
type EventsConfig struct {
	Path string `yaml:"path"`
}

// JanitorConfig schedules the maintenance sweep.
type JanitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig selects level and handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads a YAML configuration file, expanding ${VAR} references after
// loading .env files, then applies defaults and validates.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load .env file").Build()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", path).UserAction().Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", path).Build()
	}
	return Parse(data)
}

// Parse decodes YAML bytes. Environment references are expanded first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Finalize applies defaults, normalizes enums and validates.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	applyDefaults(c)
	return c.Validate()
}

// String renders the effective configuration as YAML with secrets masked.
func (c *Config) String() string {
	redacted := *c
	if c.Clone.Auth != nil {
		a := *c.Clone.Auth
		if a.Password != "" {
			a.Password = "***"
		}
		if a.Token != "" {
			a.Token = "***"
		}
		redacted.Clone.Auth = &a
	}
	out, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("config(%v)", err)
	}
	return string(out)
}
