package resource

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/kinji/internal/config"
)

// DefaultRetireDelay is how long a snapshot replaced by Reload stays open for requests that
// still hold it.
const DefaultRetireDelay = 2 * time.Minute

// LoadFunc loads a snapshot for cfg.
type LoadFunc func(ctx context.Context, cfg *config.Config) (*Snapshot, error)

// Registry caches one Snapshot per config fingerprint. The first Get for a fingerprint
// loads it; concurrent callers wait for that same load. Entries are never invalidated
// implicitly; Reload replaces one explicitly.
type Registry struct {
	mu          sync.RWMutex
	snaps       map[string]*Snapshot
	group       singleflight.Group
	load        LoadFunc
	retireDelay time.Duration
	logger      *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithLoader replaces the snapshot loader.
func WithLoader(fn LoadFunc) RegistryOption {
	return func(r *Registry) { r.load = fn }
}

// WithRetireDelay sets how long a replaced snapshot stays open for in-flight requests.
func WithRetireDelay(d time.Duration) RegistryOption {
	return func(r *Registry) { r.retireDelay = d }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		snaps:       make(map[string]*Snapshot),
		retireDelay: DefaultRetireDelay,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.load == nil {
		logger := r.logger
		r.load = func(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
			return Load(ctx, cfg, logger)
		}
	}
	return r
}

func (r *Registry) cached(key string) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snaps[key]
}

// Get returns the snapshot for cfg, loading it on first use. A failed load is not cached.
func (r *Registry) Get(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	key := cfg.Fingerprint()
	if snap := r.cached(key); snap != nil {
		return snap, nil
	}

	// Waiters share this load, so one caller's cancellation must not abort it.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		if snap := r.cached(key); snap != nil {
			return snap, nil
		}
		snap, err := r.load(loadCtx, cfg)
		if err != nil {
			r.logger.Error("Failed to load snapshot", zap.String("fingerprint", key[:12]), zap.Error(err))
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		// A concurrent Reload wins.
		if existing := r.snaps[key]; existing != nil {
			go r.retire(snap)
			return existing, nil
		}
		r.snaps[key] = snap
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reload loads a fresh snapshot for cfg and swaps it in. The previous snapshot is closed
// after the retire delay. On failure the previous snapshot stays in place.
func (r *Registry) Reload(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	key := cfg.Fingerprint()
	snap, err := r.load(ctx, cfg)
	if err != nil {
		r.logger.Error("Reload failed", zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	old := r.snaps[key]
	r.snaps[key] = snap
	r.mu.Unlock()

	if old != nil {
		go r.retire(old)
	}
	r.logger.Info("Snapshot reloaded", zap.Int("records", snap.Store.Len()))
	return snap, nil
}

func (r *Registry) retire(old *Snapshot) {
	if r.retireDelay > 0 {
		time.Sleep(r.retireDelay)
	}
	if err := old.Close(); err != nil {
		r.logger.Warn("Failed to close retired snapshot", zap.Error(err))
	}
}

// Close closes every cached snapshot.
func (r *Registry) Close() error {
	r.mu.Lock()
	snaps := r.snaps
	r.snaps = make(map[string]*Snapshot)
	r.mu.Unlock()

	var errs []error
	for _, s := range snaps {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
