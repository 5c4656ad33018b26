package registry

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// RedisValueRegistry is a global-value registry backed by redis sets, one set per key.
type RedisValueRegistry struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
}

func NewRedisValueRegistry(client *redis.Client, prefix string, maxAttempts int) *RedisValueRegistry {
	return &RedisValueRegistry{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
	}
}

func (r *RedisValueRegistry) setKey(key string) string {
	return r.prefix + key
}

func (r *RedisValueRegistry) Reserve(ctx context.Context, key string, candidate func() string) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		v := candidate()
		added, err := r.client.SAdd(r.setKey(key), v).Result()
		if err != nil {
			return "", errors.Wrapf(err, "reserving %s in redis", key)
		}
		if added == 1 {
			return v, nil
		}
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return "", ErrExhausted
		}
	}
}

// Reset removes the sets for the given keys, scoping reservations to a single generation run.
func (r *RedisValueRegistry) Reset(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	setKeys := make([]string, len(keys))
	for i, k := range keys {
		setKeys[i] = r.setKey(k)
	}
	return errors.WithStack(r.client.Del(setKeys...).Err())
}
