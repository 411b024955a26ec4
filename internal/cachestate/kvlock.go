package cachestate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// KeyValue is the subset of jetstream.KeyValue used for locking.
type KeyValue interface {
	Create(ctx context.Context, key string, value []byte, opts ...jetstream.KVCreateOpt) (uint64, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// KVLocker implements Locker on a NATS JetStream key-value bucket. Create is an
// atomic create-if-absent across the whole fleet; the bucket TTL acts as the
// lease that frees the key if a holder dies.
type KVLocker struct {
	kv   KeyValue
	poll time.Duration
}

// NewKVLocker wraps a bucket. Create the bucket with a TTL longer than the
// slowest expected clone.
func NewKVLocker(kv KeyValue, poll time.Duration) *KVLocker {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &KVLocker{kv: kv, poll: poll}
}

func (l *KVLocker) Name() string { return "nats-kv" }

// Held reports whether the key currently exists.
func (l *KVLocker) Held(ctx context.Context, key string) (bool, error) {
	_, err := l.kv.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("read lock key %s: %w", key, err)
}

// Acquire polls Create until it wins or timeout elapses.
func (l *KVLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Lock, error) {
	host, _ := os.Hostname()
	owner := []byte(fmt.Sprintf("host=%s pid=%d", host, os.Getpid()))
	deadline := time.Now().Add(timeout)
	for {
		rev, err := l.kv.Create(ctx, key, owner)
		if err == nil {
			return &kvLock{kv: l.kv, key: key, revision: rev}, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return nil, fmt.Errorf("create lock key %s: %w", key, err)
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout.WithContext("key", key)
		}
		if err := sleepCtx(ctx, nextWait(l.poll, deadline)); err != nil {
			return nil, err
		}
	}
}

type kvLock struct {
	once     sync.Once
	kv       KeyValue
	key      string
	revision uint64
	err      error
}

// Release deletes the key only if it still carries our revision.
func (k *kvLock) Release() error {
	k.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := k.kv.Delete(ctx, k.key, jetstream.LastRevision(k.revision))
		if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			k.err = fmt.Errorf("delete lock key %s: %w", k.key, err)
		}
	})
	return k.err
}
