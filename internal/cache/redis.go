package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// Redis distributed cache shared across processes.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr. The connection is lazy; use Ping to verify.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client}
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

var _ Cache = (*Redis)(nil)

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, errors.Wrapf(err, "redis get %s", key)
	}
	return payload, nil
}

func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis exists %s", key)
	}
	return n > 0, nil
}

// DeleteByPattern walks the keyspace with SCAN so large keyspaces do not block the server.
func (r *Redis) DeleteByPattern(ctx context.Context, glob string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, glob, scanBatch).Result()
		if err != nil {
			return deleted, errors.Wrapf(err, "redis scan %s", glob)
		}

		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrapf(err, "redis del %s", glob)
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping checks the backend is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
