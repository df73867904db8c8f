// =============================
// File: internal/cache/snapshot.go
// =============================
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// Backend is a shared snapshot store behind the in-process LRU.
type Backend interface {
	Load(ctx context.Context, tokenID string) (curve.ReserveState, bool)
	Store(ctx context.Context, tokenID string, state curve.ReserveState)
}

// Snapshots is an advisory cache of reserve states. Entries expire after ttl
// and may be stale at any time; only quotes may read from it.
type Snapshots struct {
	lru     *expirable.LRU[string, curve.ReserveState]
	group   singleflight.Group
	backend Backend
	logger  *zap.Logger
}

// NewSnapshots creates a cache holding up to size entries. backend may be nil.
func NewSnapshots(size int, ttl time.Duration, backend Backend, logger *zap.Logger) *Snapshots {
	if size <= 0 {
		size = 1024
	}
	return &Snapshots{
		lru:     expirable.NewLRU[string, curve.ReserveState](size, nil, ttl),
		backend: backend,
		logger:  logger.Named("snapshot-cache"),
	}
}

// Load returns a cached snapshot, consulting the backend on a local miss.
func (s *Snapshots) Load(ctx context.Context, tokenID string) (curve.ReserveState, bool) {
	if state, ok := s.lru.Get(tokenID); ok {
		return state, true
	}
	if s.backend == nil {
		return curve.ReserveState{}, false
	}

	state, ok := s.backend.Load(ctx, tokenID)
	if ok {
		s.lru.Add(tokenID, state)
	}
	return state, ok
}

// Store records a snapshot locally and in the backend.
func (s *Snapshots) Store(ctx context.Context, tokenID string, state curve.ReserveState) {
	s.lru.Add(tokenID, state)
	if s.backend != nil {
		s.backend.Store(ctx, tokenID, state)
	}
}

// GetOrFetch returns a cached snapshot or fetches one. Concurrent misses for
// the same token share a single fetch.
func (s *Snapshots) GetOrFetch(
	ctx context.Context,
	tokenID string,
	fetch func(ctx context.Context, tokenID string) (curve.ReserveState, error),
) (curve.ReserveState, error) {
	if state, ok := s.Load(ctx, tokenID); ok {
		return state, nil
	}

	v, err, shared := s.group.Do(tokenID, func() (interface{}, error) {
		state, err := fetch(ctx, tokenID)
		if err != nil {
			return curve.ReserveState{}, err
		}
		s.Store(ctx, tokenID, state)
		return state, nil
	})
	if err != nil {
		return curve.ReserveState{}, err
	}
	if shared {
		s.logger.Debug("Snapshot fetch shared", zap.String("token", tokenID))
	}
	return v.(curve.ReserveState), nil
}

// Invalidate drops a token from the local cache.
func (s *Snapshots) Invalidate(tokenID string) {
	s.lru.Remove(tokenID)
}

// Len is the number of live local entries.
func (s *Snapshots) Len() int {
	return s.lru.Len()
}
