//go:build integration
// +build integration

package pack_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundbot/groundbot/internal/pack"
	"github.com/groundbot/groundbot/internal/testutil"
)

func TestStoreCRUD(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := pack.NewStore(db.Pool)
	require.NoError(t, err)

	ctx := context.Background()
	m := pack.Manifest{
		Key:     pack.Key("Redis", "7.2", "en", []string{"https://redis.io/docs/"}),
		Tech:    "Redis",
		Version: "7.2",
		Lang:    "en",
		Sources: []string{"https://redis.io/docs/"},
		TTLDays: 14,
	}

	t.Run("get missing pack", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, pack.ErrNotFound)
	})

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, m))

		got, err := store.Get(ctx, m.Key)
		require.NoError(t, err)
		assert.Equal(t, "Redis", got.Tech)
		assert.Equal(t, []string{"https://redis.io/docs/"}, got.Sources)
		assert.Zero(t, got.Completeness)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("duplicate create is a no-op", func(t *testing.T) {
		dup := m
		dup.Tech = "SomethingElse"
		require.NoError(t, store.Create(ctx, dup))

		got, err := store.Get(ctx, m.Key)
		require.NoError(t, err)
		assert.Equal(t, "Redis", got.Tech)
	})

	t.Run("raise completeness is monotonic", func(t *testing.T) {
		require.NoError(t, store.RaiseCompleteness(ctx, m.Key, pack.CompletenessStageB))
		require.NoError(t, store.RaiseCompleteness(ctx, m.Key, pack.CompletenessStageA))

		got, err := store.Get(ctx, m.Key)
		require.NoError(t, err)
		assert.Equal(t, pack.CompletenessStageB, got.Completeness)
	})

	t.Run("raise completeness on missing pack", func(t *testing.T) {
		assert.ErrorIs(t, store.RaiseCompleteness(ctx, "nope", 0.5), pack.ErrNotFound)
	})

	t.Run("ingest log merges", func(t *testing.T) {
		require.NoError(t, store.AppendIngestLog(ctx, m.Key,
			[]string{"https://redis.io/docs/", "https://redis.io/docs/persistence"}))
		require.NoError(t, store.AppendIngestLog(ctx, m.Key,
			[]string{"https://redis.io/docs/persistence", "https://redis.io/docs/replication"}))

		got, err := store.Get(ctx, m.Key)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://redis.io/docs/",
			"https://redis.io/docs/persistence",
			"https://redis.io/docs/replication",
		}, got.IngestLog)
	})

	t.Run("list", func(t *testing.T) {
		manifests, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, manifests, 1)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, m.Key))
		assert.ErrorIs(t, store.Delete(ctx, m.Key), pack.ErrNotFound)
	})
}
