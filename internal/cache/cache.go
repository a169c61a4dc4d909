// Package cache is the disposable, TTL-based layer in front of the Store.
//
// Two kinds of entries live here. Read-through entries (cases, users) are
// written with Set and may be dropped or go stale at any time without
// correctness impact. Single-use entries (linking tokens) are written with Put
// and can only be read once, through Take, which removes them atomically.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent or logically expired.
var ErrCacheMiss = errors.New("cache: key is missing")

// Cache is implemented by Memory and Redis.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Put stores a single-use entry. It is never served from a local tier.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	// Take fetches and removes a single-use entry in one atomic step.
	// Of several concurrent callers at most one receives the value.
	Take(ctx context.Context, key string, dst any) error
}

// Keys for each entry kind.
func CaseKey(caseID string) string { return "case:" + caseID }
func UserKey(userID string) string { return "user:" + userID }
func LinkKey(token string) string  { return "link:" + token }
