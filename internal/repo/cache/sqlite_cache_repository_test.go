//go:build integration || all

package cache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/mkrupp/jobboard-session/internal/repo/cache"
)

func TestSQLiteCacheRepository(t *testing.T) {
	t.Parallel()

	repo, err := NewSQLiteCacheRepository(SQLiteCacheRepositoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "nested", "session.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	exerciseRepository(t, repo)
}

func TestSQLiteCacheRepository_SurvivesReopen(t *testing.T) {
	t.Parallel()

	cfg := SQLiteCacheRepositoryConfig{DatabasePath: filepath.Join(t.TempDir(), "session.db")}
	ctx := context.Background()

	factory, err := NewRepositoryFactory(Config{Driver: "sqlite", SQLite: cfg})
	require.NoError(t, err)

	repo, err := factory()
	require.NoError(t, err)
	require.NoError(t, repo.Put(ctx, UserKey, []byte(`{"user_id":"u1"}`)))
	require.NoError(t, repo.Close())

	repo, err = factory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	value, ok, err := repo.Get(ctx, UserKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"user_id":"u1"}`, string(value))
}
