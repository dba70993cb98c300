package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/mkrupp/jobboard-session/internal/infra/logging"
)

const (
	fileCacheExt  = ".bin"
	fileCacheLock = ".lock"
)

// ErrInvalidKey is returned for keys that cannot be used as file names.
var ErrInvalidKey = errors.New("invalid cache key")

// FileCacheRepositoryConfig holds configuration for the file cache repository.
type FileCacheRepositoryConfig struct {
	// Basedir holds one file per key
	Basedir string `env:"BASEDIR, default=var/storage/session"`
}

// FileCacheRepositoryFactory creates a factory function that returns a new FileCacheRepository.
func FileCacheRepositoryFactory(cfg FileCacheRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewFileCacheRepository(cfg)
	}
}

// NewFileCacheRepository creates the base directory if needed.
func NewFileCacheRepository(cfg FileCacheRepositoryConfig) (*FileCacheRepository, error) {
	if err := os.MkdirAll(cfg.Basedir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	return &FileCacheRepository{
		cfg: cfg,
		log: logging.GetLogger("repo.cache.file_cache_repository").With(
			logging.Group("repo", "basedir", cfg.Basedir),
		),
		m: new(sync.Mutex),
	}, nil
}

// FileCacheRepository implements Repository with one file per key. Writes
// are atomic (temp file and rename); an flock on the directory keeps several
// processes sharing the directory consistent.
type FileCacheRepository struct {
	cfg FileCacheRepositoryConfig
	log logging.Logger
	m   *sync.Mutex
}

var _ Repository = (*FileCacheRepository)(nil)

func (r *FileCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	filename, err := r.filename(key)
	if err != nil {
		return nil, false, err
	}

	release, err := r.flock(ctx, syscall.LOCK_SH)
	if err != nil {
		return nil, false, err
	}
	defer release()

	value, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}

	return value, true, nil
}

func (r *FileCacheRepository) Put(ctx context.Context, key string, value []byte) (err error) {
	filename, err := r.filename(key)
	if err != nil {
		return err
	}

	defer func() {
		log := r.log.With(logging.Group("entry", "key", key, "size", len(value)))
		if err != nil {
			log.ErrorContext(ctx, "cache put failed", "error", err)
		} else {
			log.DebugContext(ctx, "cache entry stored")
		}
	}()

	release, err := r.flock(ctx, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer release()

	tmp, err := os.CreateTemp(r.cfg.Basedir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

func (r *FileCacheRepository) Delete(ctx context.Context, key string) error {
	filename, err := r.filename(key)
	if err != nil {
		return err
	}

	release, err := r.flock(ctx, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer release()

	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}

func (r *FileCacheRepository) Close() error {
	return nil
}

func (r *FileCacheRepository) filename(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(r.cfg.Basedir, key+fileCacheExt), nil
}

// flock locks the whole directory. The in-process mutex serializes
// goroutines, since flock locks are per open file description.
func (r *FileCacheRepository) flock(_ context.Context, mode int) (release func(), err error) {
	lockfile := filepath.Join(r.cfg.Basedir, fileCacheLock)

	r.m.Lock()

	file, err := os.OpenFile(lockfile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		r.m.Unlock()

		return nil, fmt.Errorf("open lockfile: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), mode); err != nil {
		_ = file.Close()
		r.m.Unlock()

		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()
		r.m.Unlock()
	}, nil
}
