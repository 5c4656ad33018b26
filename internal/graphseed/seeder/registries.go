package seeder

import (
	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/graphseed/configuration"
	"github.com/socialseed/graphseed/internal/graphseed/registry"
)

// valueRegistries hands out the global-value registry for one generation phase. Reservations never outlive the
// phase that made them.
type valueRegistries interface {
	forPhase(key string) (registry.ValueReserver, error)
	Close() error
}

type memoryRegistries struct {
	shards      int
	maxAttempts int
}

func (m memoryRegistries) forPhase(string) (registry.ValueReserver, error) {
	return registry.NewValueRegistry(m.shards, m.maxAttempts), nil
}

func (m memoryRegistries) Close() error {
	return nil
}

type redisRegistries struct {
	client   *redis.Client
	registry *registry.RedisValueRegistry
}

func (r redisRegistries) forPhase(key string) (registry.ValueReserver, error) {
	if err := r.registry.Reset(key); err != nil {
		return nil, err
	}
	return r.registry, nil
}

func (r redisRegistries) Close() error {
	return errors.WithStack(r.client.Close())
}

func newValueRegistries(config configuration.RegistryConfig) (valueRegistries, error) {
	switch config.Backend {
	case configuration.RegistryRedis:
		client := redis.NewClient(config.Redis.AsOptions())
		if err := client.Ping().Err(); err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(err, "connecting to redis at %s", config.Redis.Addr)
		}
		return redisRegistries{
			client:   client,
			registry: registry.NewRedisValueRegistry(client, config.KeyPrefix, config.MaxAttempts),
		}, nil
	default:
		return memoryRegistries{shards: config.Shards, maxAttempts: config.MaxAttempts}, nil
	}
}
