package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/mkrupp/jobboard-session/internal/repo/cache"
)

func newFileRepo(t *testing.T) (*FileCacheRepository, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "session")

	repo, err := NewFileCacheRepository(FileCacheRepositoryConfig{Basedir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo, dir
}

func TestFileCacheRepository(t *testing.T) {
	t.Parallel()

	repo, _ := newFileRepo(t)

	exerciseRepository(t, repo)
}

func TestFileCacheRepository_SurvivesReopen(t *testing.T) {
	t.Parallel()

	repo, dir := newFileRepo(t)
	require.NoError(t, repo.Put(context.Background(), UserKey, []byte(`{"user_id":"u1"}`)))

	reopened, err := NewFileCacheRepository(FileCacheRepositoryConfig{Basedir: dir})
	require.NoError(t, err)

	value, ok, err := reopened.Get(context.Background(), UserKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"user_id":"u1"}`, string(value))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp", "no temp files left behind")
	}
}

func TestFileCacheRepository_RejectsPathKeys(t *testing.T) {
	t.Parallel()

	repo, _ := newFileRepo(t)

	for _, key := range []string{"", "../user", "a/b", "user.bak"} {
		require.ErrorIs(t, repo.Put(context.Background(), key, nil), ErrInvalidKey, key)
	}
}

func TestFileCacheRepository_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	repo, _ := newFileRepo(t)

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 20 {
				if err := repo.Put(context.Background(), UserKey, []byte(`{"user_id":"u1"}`)); err != nil {
					t.Error(err)
				}

				if _, _, err := repo.Get(context.Background(), UserKey); err != nil {
					t.Error(err)
				}
			}
		}()
	}

	wg.Wait()

	value, ok, err := repo.Get(context.Background(), UserKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"user_id":"u1"}`, string(value))
}

func TestNewRepositoryFactory_File(t *testing.T) {
	t.Parallel()

	factory, err := NewRepositoryFactory(Config{Driver: "file", File: FileCacheRepositoryConfig{Basedir: t.TempDir()}})
	require.NoError(t, err)

	repo, err := factory()
	require.NoError(t, err)
	require.IsType(t, &FileCacheRepository{}, repo)
}
