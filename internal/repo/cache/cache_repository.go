package cache

import (
	"context"
	"errors"
	"fmt"
)

// Fixed keys of the persisted session state.
const (
	// UserKey holds the serialized current user record.
	UserKey = "user"
	// CredentialKey holds the serialized backend session cookies.
	CredentialKey = "session_cookies"
)

// ErrUnknownDriver is returned by NewRepositoryFactory for an unsupported driver.
var ErrUnknownDriver = errors.New("unknown cache driver")

// Repository is a small key/value store for session state that must survive
// process restarts.
type Repository interface {
	// Get returns the value stored under key and true, or nil and false if
	// the key is absent. Returns an error if the lookup fails.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func() (Repository, error)

// Config selects and configures the cache backend.
type Config struct {
	// Driver is "sqlite" (on-device database), "file" (one file per key)
	// or "redis" (shared, for web deployments)
	Driver string `env:"DRIVER, default=sqlite"`

	SQLite SQLiteCacheRepositoryConfig `env:", prefix=SQLITE_"`
	File   FileCacheRepositoryConfig   `env:", prefix=FILE_"`
	Redis  RedisCacheRepositoryConfig  `env:", prefix=REDIS_"`
}

// NewRepositoryFactory returns the factory for the configured driver.
func NewRepositoryFactory(cfg Config) (RepositoryFactory, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return SQLiteCacheRepositoryFactory(cfg.SQLite), nil
	case "file":
		return FileCacheRepositoryFactory(cfg.File), nil
	case "redis":
		return RedisCacheRepositoryFactory(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
