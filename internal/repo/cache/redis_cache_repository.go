package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

const defaultRedisTimeout = 5 * time.Second

// RedisCacheRepositoryConfig holds configuration for the Redis cache repository.
type RedisCacheRepositoryConfig struct {
	Addr     string `env:"ADDR, default=localhost:6379"`
	DB       int    `env:"DB, default=0"`
	Password string `env:"PASSWORD"`

	// KeyPrefix namespaces the session keys, one prefix per device or browser profile
	KeyPrefix string `env:"KEY_PREFIX, default=jobboard:session:"`

	// TTL expires idle entries; zero keeps them until deleted
	TTL time.Duration `env:"TTL, default=720h"`

	Timeout time.Duration `env:"TIMEOUT, default=5s"`
}

// RedisCacheRepository implements Repository on top of Redis.
type RedisCacheRepository struct {
	client redis.UniversalClient
	cfg    RedisCacheRepositoryConfig
	log    logging.Logger
}

var _ Repository = (*RedisCacheRepository)(nil)

// RedisCacheRepositoryFactory creates a factory function that connects to Redis.
func RedisCacheRepositoryFactory(cfg RedisCacheRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRedisTimeout
		}

		//nolint:exhaustruct
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			DB:       cfg.DB,
			Password: cfg.Password,
		})

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("redis ping: %w", err)
		}

		return NewRedisCacheRepository(client, cfg), nil
	}
}

// NewRedisCacheRepository wraps an existing client.
func NewRedisCacheRepository(client redis.UniversalClient, cfg RedisCacheRepositoryConfig) *RedisCacheRepository {
	return &RedisCacheRepository{
		client: client,
		cfg:    cfg,
		log:    logging.GetLogger("repo.cache.redis_cache_repository"),
	}
}

func (r *RedisCacheRepository) key(key string) string {
	return r.cfg.KeyPrefix + key
}

// Get implements Repository.Get using Redis.
func (r *RedisCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}

	return value, true, nil
}

// Put implements Repository.Put using Redis.
func (r *RedisCacheRepository) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, r.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	r.log.DebugContext(ctx, "cache entry written", "key", key, "bytes", len(value))

	return nil
}

// Delete implements Repository.Delete using Redis.
func (r *RedisCacheRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("del %s: %w", key, err)
	}

	r.log.DebugContext(ctx, "cache entry deleted", "key", key)

	return nil
}

// Close implements Repository.Close.
func (r *RedisCacheRepository) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}

	return nil
}
