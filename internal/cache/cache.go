// Package cache memoizes expensive lookups inside the application snapshot.
//
// Entries live in the snapshot's cache field, so they are committed,
// observed and persisted like any other state. Writes go through the engine;
// reads use the current snapshot directly.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/value"
)

// Producer computes a value on a cache miss.
type Producer func(ctx context.Context) (value.Value, error)

// Committer is the part of the engine the cache needs.
type Committer interface {
	Current() state.Snapshot
	Apply(ctx context.Context, u engine.Updater) (state.Snapshot, error)
}

// Cache is a TTL cache stored in the snapshot.
//
// Concurrent GetOrCompute calls for the same key share one producer call.
type Cache struct {
	eng    Committer
	now    func() time.Time
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow overrides the wall clock used for freshness checks.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a Cache writing through eng.
func New(eng Committer, opts ...Option) *Cache {
	c := &Cache{
		eng:    eng,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peek returns the entry for key if it is fresh for ttl. It never produces.
func (c *Cache) Peek(key string, ttl time.Duration) (value.Value, bool) {
	e, ok := c.eng.Current().Cache().Get(key)
	if !ok || !e.Fresh(c.now(), ttl) {
		return nil, false
	}
	return e.Data, true
}

// GetOrCompute returns the cached value for key when it was stored less than
// ttl ago. Otherwise it calls produce, commits the result with the current
// time, and returns it.
//
// Producer errors are returned and nothing is cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce Producer) (value.Value, error) {
	if v, ok := c.Peek(key, ttl); ok {
		c.logger.Debug("cache hit", "key", key)
		return v, nil
	}

	// Wrap produce-and-commit in singleflight to prevent cache stampedes
	result, err, shared := c.group.Do(key, func() (any, error) {
		// Another flight may have committed while we waited for the group.
		if v, ok := c.Peek(key, ttl); ok {
			return v, nil
		}

		c.logger.Debug("cache miss", "key", key)
		v, err := produce(ctx)
		if err != nil {
			return nil, fmt.Errorf("cache produce %q: %w", key, err)
		}
		if v == nil {
			v = value.Null{}
		}

		entry := state.CacheEntry{Data: v, InsertedAt: c.now()}
		_, err = c.eng.Apply(ctx, func(cur state.Snapshot) (state.Patch, error) {
			return state.Patch{state.FieldCache: cur.Cache().With(key, entry)}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("cache store %q: %w", key, err)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("cache result shared", "key", key)
	}

	return result.(value.Value), nil
}

// Invalidate removes every entry whose key contains pattern, in one commit.
// An empty pattern removes everything. Returns the removed keys, sorted.
func (c *Cache) Invalidate(ctx context.Context, pattern string) ([]string, error) {
	var removed []string
	_, err := c.eng.Apply(ctx, func(cur state.Snapshot) (state.Patch, error) {
		table, keys := cur.Cache().WithoutMatching(pattern)
		removed = keys
		return state.Patch{state.FieldCache: table}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache invalidate %q: %w", pattern, err)
	}

	c.logger.Info("cache invalidated", "pattern", pattern, "removed", len(removed))
	return removed, nil
}

// Prune removes every entry older than ttl, in one commit.
// Returns the number of removed entries.
func (c *Cache) Prune(ctx context.Context, ttl time.Duration) (int, error) {
	now := c.now()
	var n int
	_, err := c.eng.Apply(ctx, func(cur state.Snapshot) (state.Patch, error) {
		var table state.CacheTable
		table, n = cur.Cache().WithoutStale(now, ttl)
		return state.Patch{state.FieldCache: table}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return n, nil
}
