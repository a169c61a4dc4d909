package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Aside wraps a Cache with the best-effort semantics the services rely on:
// failures are logged and never returned to the caller.
type Aside struct {
	Cache  Cache
	Logger *slog.Logger
}

// NewAside returns an Aside; a nil logger falls back to slog.Default.
func NewAside(c Cache, logger *slog.Logger) Aside {
	if logger == nil {
		logger = slog.Default()
	}
	return Aside{Cache: c, Logger: logger}
}

// Put writes value under key, logging instead of failing.
func (a Aside) Put(ctx context.Context, key string, value any, ttl time.Duration) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Set(ctx, key, value, ttl); err != nil {
		a.Logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Drop removes key, logging instead of failing.
func (a Aside) Drop(ctx context.Context, key string) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Delete(ctx, key); err != nil && !errors.Is(err, ErrCacheMiss) {
		a.Logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// Fetch implements read-through: it returns the cached value when present,
// otherwise calls load and, on success, repopulates the cache with ttl.
// A broken cache degrades to calling load every time. The bool reports a cache hit.
func Fetch[T any](ctx context.Context, a Aside, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, bool, error) {
	if a.Cache != nil {
		var cached T
		err := a.Cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, true, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			a.Logger.Warn("cache read failed", "key", key, "error", err)
		}
	}

	v, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	a.Put(ctx, key, v, ttl)
	return v, false, nil
}
