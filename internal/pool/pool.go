// Package pool keeps a bounded set of clone orchestrators per repository and
// hands them out to workers with a bounded wait.
package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/repocache"
	"git.home.luguber.info/inful/repocache/internal/request"
)

// ErrBorrowTimeout is returned when no instance became idle within the timeout.
var ErrBorrowTimeout = ferrors.PoolError("no idle orchestrator within borrow timeout").Build()

// Factory builds one orchestrator bound to repo.
type Factory func(repo string) *repocache.CachedRepository

// Pool is a fixed-size set of orchestrators for one repository.
type Pool struct {
	repo string
	size int
	idle chan *repocache.CachedRepository
}

func newPool(repo string, size int, factory Factory) *Pool {
	p := &Pool{repo: repo, size: size, idle: make(chan *repocache.CachedRepository, size)}
	for range size {
		p.idle <- factory(repo)
	}
	return p
}

// Repo returns the repository the pool serves.
func (p *Pool) Repo() string { return p.repo }

// Borrow waits up to timeout for an idle orchestrator. A zero timeout only
// takes an instance that is idle right now.
func (p *Pool) Borrow(ctx context.Context, timeout time.Duration) (*Lease, error) {
	select {
	case inst := <-p.idle:
		return &Lease{pool: p, inst: inst}, nil
	default:
	}
	if timeout <= 0 {
		return nil, ErrBorrowTimeout.WithContext("repo", p.repo)
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case inst := <-p.idle:
		return &Lease{pool: p, inst: inst}, nil
	case <-t.C:
		return nil, ErrBorrowTimeout.WithContext("repo", p.repo)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Repo string `json:"repo"`
	Size int    `json:"size"`
	Idle int    `json:"idle"`
}

// Stats reports size and currently idle instances.
func (p *Pool) Stats() Stats {
	return Stats{Repo: p.repo, Size: p.size, Idle: len(p.idle)}
}

// Lease is exclusive use of one orchestrator until Release.
type Lease struct {
	once sync.Once
	pool *Pool
	inst *repocache.CachedRepository
}

// Instance returns the borrowed orchestrator.
func (l *Lease) Instance() *repocache.CachedRepository { return l.inst }

// Release returns the instance to its pool. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.idle <- l.inst })
}

// Registry lazily creates one Pool per normalized repository identity.
type Registry struct {
	mu      sync.Mutex
	size    int
	factory Factory
	pools   map[string]*Pool
}

// NewRegistry creates pools of size instances built by factory.
func NewRegistry(size int, factory Factory) (*Registry, error) {
	if size < 1 {
		return nil, ferrors.ConfigError("pool size must be at least 1").WithContext("size", size).Build()
	}
	if factory == nil {
		return nil, ferrors.ConfigError("pool factory is required").Build()
	}
	return &Registry{size: size, factory: factory, pools: make(map[string]*Pool)}, nil
}

// Resolve returns the pool for repo, creating it on first use.
func (r *Registry) Resolve(repo string) (*Pool, error) {
	key := request.NormalizeRepo(repo)
	if key == "" {
		return nil, ferrors.ValidationError("repository is required").Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		return p, nil
	}
	p := newPool(key, r.size, r.factory)
	r.pools[key] = p
	return p, nil
}

// Stats lists every pool, sorted by repository.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	out := make([]Stats, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p.Stats())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Repo < out[j].Repo })
	return out
}
