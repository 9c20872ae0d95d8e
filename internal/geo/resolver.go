package geo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
)

// ErrNotFound means no resolver could place the name. Callers fall back
// to exact-text matching; this is never fatal for a match attempt.
var ErrNotFound = errors.New("geo: place not found")

// Backend is a single external name-to-coordinate service.
type Backend interface {
	Lookup(ctx context.Context, name string) (models.Coord, error)
}

// Cache stores resolved coordinates keyed by normalized place name.
// Entries are never invalidated mid-run.
type Cache interface {
	Get(ctx context.Context, name string) (models.Coord, bool)
	Set(ctx context.Context, name string, c models.Coord)
}

// Resolver answers place-name lookups: built-in settlement table first,
// then the cache, then external backends in a fixed fallback order, each
// bounded by a short timeout.
type Resolver struct {
	Backends []Backend
	Cache    Cache
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewResolver(cache Cache, timeout time.Duration, backends ...Backend) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{Backends: backends, Cache: cache, Timeout: timeout}
}

func (r *Resolver) Resolve(ctx context.Context, placeName string) (models.Coord, error) {
	name := NormalizeName(placeName)
	if name == "" {
		return models.Coord{}, ErrNotFound
	}
	if c, ok := lookupSettlement(name); ok {
		return c, nil
	}
	if r.Cache != nil {
		if c, ok := r.Cache.Get(ctx, name); ok {
			observability.GeocodeCacheHits.Inc()
			return c, nil
		}
		observability.GeocodeCacheMisses.Inc()
	}
	for _, b := range r.Backends {
		c, err := r.lookupWithTimeout(ctx, b, name)
		if err != nil {
			// a timeout or failure only skips this backend
			if r.Logger != nil {
				r.Logger.Debug("geocode backend failed", "place", name, "error", err)
			}
			continue
		}
		if r.Cache != nil {
			r.Cache.Set(ctx, name, c)
		}
		return c, nil
	}
	return models.Coord{}, ErrNotFound
}

func (r *Resolver) lookupWithTimeout(ctx context.Context, b Backend, name string) (models.Coord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return b.Lookup(ctx, name)
}

// MemoryCache is a mutex-guarded map with a size cap; place names repeat
// heavily so a plain memo is enough.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]models.Coord
	cap     int
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 4096
	}
	return &MemoryCache{entries: make(map[string]models.Coord), cap: capacity}
}

func (c *MemoryCache) Get(_ context.Context, name string) (models.Coord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[name]
	return v, ok
}

func (c *MemoryCache) Set(_ context.Context, name string, v models.Coord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.cap {
		return // full; keep existing entries, they never go stale
	}
	c.entries[name] = v
}
