package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/aerosuite/platform/pkg/log"
)

const (
	keyPrefix    = "aerosuite:cache:"
	tagPrefix    = "aerosuite:tag:"
	entityPrefix = "aerosuite:entity:"
)

// SharedStore is the cross-process cache tier. The shipped implementation
// is Redis; the interface keeps the backing pluggable.
type SharedStore interface {
	Get(ctx context.Context, key string) (value []byte, ttl time.Duration, err error)
	Set(ctx context.Context, key string, value []byte, opts Options) error
	Delete(ctx context.Context, key string) error
	InvalidateByTag(ctx context.Context, tag string) error
	InvalidateEntity(ctx context.Context, entityTag string) error
	Ping(ctx context.Context) error
	// Unavailable reports whether the store is currently failing fast.
	Unavailable() bool
	Close() error
}

// RedisStore implements SharedStore over go-redis with a circuit breaker
// so a dead Redis fails fast instead of stalling every request.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

// NewRedisStore connects to the Redis instance at addr.
func NewRedisStore(addr string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cache-redis",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithComponent("cache").Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &RedisStore{client: client, breaker: breaker}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	type result struct {
		value []byte
		ttl   time.Duration
	}
	out, err := r.breaker.Execute(func() (any, error) {
		pipe := r.client.Pipeline()
		getCmd := pipe.Get(ctx, keyPrefix+key)
		ttlCmd := pipe.TTL(ctx, keyPrefix+key)
		if _, err := pipe.Exec(ctx); err != nil {
			if errors.Is(err, redis.Nil) {
				return result{}, nil
			}
			return nil, err
		}
		value, _ := getCmd.Bytes()
		return result{value: value, ttl: ttlCmd.Val()}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	res := out.(result)
	return res.value, res.ttl, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, opts Options) error {
	_, err := r.breaker.Execute(func() (any, error) {
		pipe := r.client.Pipeline()
		pipe.Set(ctx, keyPrefix+key, value, opts.TTL)
		for _, tag := range opts.Tags {
			pipe.SAdd(ctx, tagPrefix+tag, key)
			// Tag sets outlive their members slightly; invalidation tolerates
			// keys that already expired
			pipe.Expire(ctx, tagPrefix+tag, opts.TTL+time.Minute)
		}
		if opts.EntityTag != "" {
			pipe.SAdd(ctx, entityPrefix+opts.EntityTag, key)
			pipe.Expire(ctx, entityPrefix+opts.EntityTag, opts.TTL+time.Minute)
		}
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	return err
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.client.Del(ctx, keyPrefix+key).Err()
	})
	return err
}

func (r *RedisStore) InvalidateByTag(ctx context.Context, tag string) error {
	return r.invalidateSet(ctx, tagPrefix+tag)
}

func (r *RedisStore) InvalidateEntity(ctx context.Context, entityTag string) error {
	return r.invalidateSet(ctx, entityPrefix+entityTag)
}

func (r *RedisStore) invalidateSet(ctx context.Context, setKey string) error {
	_, err := r.breaker.Execute(func() (any, error) {
		keys, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		pipe := r.client.Pipeline()
		for _, key := range keys {
			pipe.Del(ctx, keyPrefix+key)
		}
		pipe.Del(ctx, setKey)
		_, err = pipe.Exec(ctx)
		return nil, err
	})
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.client.Ping(ctx).Err()
	})
	return err
}

func (r *RedisStore) Unavailable() bool {
	return r.breaker.State() == gobreaker.StateOpen
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
