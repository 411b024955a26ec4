package config

import (
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// Example is the annotated configuration written by `repocache init`.
const Example = `# repocache configuration
cache:
  root: /var/cache/repocache
  lock_timeout: 2s
  lock_backend: file        # file | nats
  poll_interval: 50ms
  failure_ttl: 0s           # 0 keeps classified failures forever

clone:
  backend: gogit            # gogit | cli
  git_binary: git
  timeout: 0s               # 0 = unbounded
  # auth:
  #   type: token           # none | ssh | token | basic
  #   token: ${GIT_TOKEN}

pool:
  size: 4
  borrow_timeout: 5s

worker:
  backpressure: drop        # drop | fail

queue:
  workers: 4
  size: 256
  max_retries: 3
  retry_backoff: linear     # fixed | linear | exponential
  retry_initial_delay: 1s
  retry_max_delay: 30s

nats:
  url: ""                   # e.g. nats://127.0.0.1:4222; empty disables ingress
  stream: REPOCACHE
  subject: repocache.clone
  durable: repocache-worker
  ack_wait: 10m
  lock_bucket: repocache_locks
  lock_ttl: 30m

metrics:
  enabled: true
  listen: ":9090"

events:
  path: ""                  # SQLite journal; empty disables

janitor:
  interval: 5m

logging:
  level: info               # debug | info | warn | error
  format: text              # text | json
`

// Init writes the example configuration to path. It refuses to overwrite an
// existing file unless force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists").
			WithContext("path", path).UserAction().Build()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create config directory").Build()
		}
	}
	if err := os.WriteFile(path, []byte(Example), 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write config file").
			WithContext("path", path).Build()
	}
	return nil
}
