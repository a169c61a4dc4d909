package cache

import (
	"context"
	"errors"
	"time"

	rcache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Redis is the production Cache. Read-through entries go through
// go-redis/cache, optionally fronted by an in-process TinyLFU tier;
// single-use entries bypass that tier and are consumed with GETDEL.
type Redis struct {
	rdb  *redis.Client
	data *rcache.Cache
}

// NewRedis wraps rdb. When localSize > 0 a local tier keeps up to localSize
// entries for localTTL; other instances may then serve a value up to localTTL stale.
func NewRedis(rdb *redis.Client, localSize int, localTTL time.Duration) *Redis {
	opts := &rcache.Options{Redis: rdb}
	if localSize > 0 {
		opts.LocalCache = rcache.NewTinyLFU(localSize, localTTL)
	}
	return &Redis{rdb: rdb, data: rcache.New(opts)}
}

func (r *Redis) Get(ctx context.Context, key string, dst any) error {
	err := r.data.Get(ctx, key, dst)
	if errors.Is(err, rcache.ErrCacheMiss) {
		return ErrCacheMiss
	}
	return err
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.data.Set(&rcache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	})
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	err := r.data.Delete(ctx, key)
	if errors.Is(err, rcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (r *Redis) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := r.data.Marshal(value)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key, b, ttl).Err()
}

func (r *Redis) Take(ctx context.Context, key string, dst any) error {
	b, err := r.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return r.data.Unmarshal(b, dst)
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

var _ Cache = (*Redis)(nil)
