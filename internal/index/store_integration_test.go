//go:build integration
// +build integration

package index_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/testutil"
)

// unitVec builds a 768-dim unit vector with a single spike, offering exact
// control over cosine similarity between test inputs.
func unitVec(spike int) []float32 {
	v := make([]float32, int(index.VectorDimension))
	v[spike] = 1
	return v
}

// mixVec builds a normalized blend of two spike positions.
func mixVec(a, b int, wa, wb float32) []float32 {
	v := make([]float32, int(index.VectorDimension))
	scale := 1 / float32(math.Sqrt(float64(wa*wa+wb*wb)))
	v[a] = wa * scale
	v[b] = wb * scale
	return v
}

func TestStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	g := testutil.NewGenkit(t)
	mock := testutil.NewMockEmbedder(int(index.VectorDimension))
	embedder := mock.Register(g)

	store, err := index.NewStore(db.Pool, embedder, log.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	// Persistence chunk is close to the persistence query, far from the
	// cluster one.
	mock.SetVector("passage: RDB snapshots persist the dataset to disk at intervals.", unitVec(0))
	mock.SetVector("passage: Redis Cluster shards data across multiple nodes.", unitVec(1))
	mock.SetVector("query: how does redis persistence work", mixVec(0, 1, 0.9, 0.1))

	chunks := []index.Chunk{
		{ID: "c1", PackKey: "pk1", URL: "https://redis.io/docs/persistence", Title: "Persistence",
			Position: 0, Content: "RDB snapshots persist the dataset to disk at intervals."},
		{ID: "c2", PackKey: "pk1", URL: "https://redis.io/docs/cluster", Title: "Cluster",
			Position: 0, Content: "Redis Cluster shards data across multiple nodes."},
	}
	require.NoError(t, store.Upsert(ctx, chunks))

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx, "pk1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("semantic search orders by similarity", func(t *testing.T) {
		results, err := store.Search(ctx, "how does redis persistence work",
			index.WithPackKey("pk1"), index.WithLimit(2))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "c1", results[0].ID)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("lexical search matches content words", func(t *testing.T) {
		results, err := store.Lexical(ctx, "snapshots disk", index.WithPackKey("pk1"))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c1", results[0].ID)
	})

	t.Run("re-upserting a page replaces its chunks", func(t *testing.T) {
		replacement := []index.Chunk{
			{ID: "c3", PackKey: "pk1", URL: "https://redis.io/docs/persistence", Title: "Persistence",
				Position: 0, Content: "AOF logging appends every write operation."},
		}
		require.NoError(t, store.Upsert(ctx, replacement))

		n, err := store.Count(ctx, "pk1")
		require.NoError(t, err)
		assert.Equal(t, 2, n, "old persistence chunk replaced, cluster chunk kept")

		results, err := store.Lexical(ctx, "snapshots", index.WithPackKey("pk1"))
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("pack filter isolates packs", func(t *testing.T) {
		other := []index.Chunk{
			{ID: "o1", PackKey: "pk2", URL: "https://example.com/x", Title: "X",
				Position: 0, Content: "unrelated pack content"},
		}
		require.NoError(t, store.Upsert(ctx, other))

		results, err := store.Search(ctx, "anything", index.WithPackKey("pk2"))
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, "pk2", r.PackKey)
		}
	})

	t.Run("count by pack", func(t *testing.T) {
		counts, err := store.CountByPack(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, counts["pk1"])
		assert.Equal(t, 1, counts["pk2"])
	})

	t.Run("delete pack", func(t *testing.T) {
		require.NoError(t, store.DeletePack(ctx, "pk1"))
		n, err := store.Count(ctx, "pk1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := store.Search(ctx, "")
		assert.ErrorIs(t, err, index.ErrEmptyQuery)
		_, err = store.Lexical(ctx, "")
		assert.ErrorIs(t, err, index.ErrEmptyQuery)
	})
}
