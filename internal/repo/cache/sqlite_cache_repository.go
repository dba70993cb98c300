package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

// SQLiteCacheRepositoryConfig holds configuration for the SQLite cache repository.
type SQLiteCacheRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH, default=var/storage/session.db"`
}

// SQLiteCacheRepository implements Repository using SQLite as the storage backend.
type SQLiteCacheRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteCacheRepository)(nil)

// SQLiteCacheRepositoryFactory creates a factory function that returns a new SQLiteCacheRepository.
func SQLiteCacheRepositoryFactory(cfg SQLiteCacheRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteCacheRepository(cfg)
	}
}

// NewSQLiteCacheRepository opens (and if needed creates) the database file
// and its schema.
func NewSQLiteCacheRepository(cfg SQLiteCacheRepositoryConfig) (*SQLiteCacheRepository, error) {
	log := logging.GetLogger("repo.cache.sqlite_cache_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	log.Debug("cache opened")

	return &SQLiteCacheRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_cache (
			key        TEXT    PRIMARY KEY,
			value      BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get implements Repository.Get using SQLite.
func (r *SQLiteCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM session_cache WHERE key = ?",
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("query %s: %w", key, err)
	}

	return value, true, nil
}

// Put implements Repository.Put using SQLite.
func (r *SQLiteCacheRepository) Put(ctx context.Context, key string, value []byte) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO session_cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}

	r.log.DebugContext(ctx, "cache entry written", "key", key, "bytes", len(value))

	return nil
}

// Delete implements Repository.Delete using SQLite.
func (r *SQLiteCacheRepository) Delete(ctx context.Context, key string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM session_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	r.log.DebugContext(ctx, "cache entry deleted", "key", key)

	return nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteCacheRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
