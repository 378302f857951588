package flowstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/errors"
)

// storeContract exercises behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("save without id creates", func(t *testing.T) {
		doc := validDoc()
		id, err := store.Save(ctx, doc)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, int64(1), doc.Version)
		assert.False(t, doc.CreatedAt.IsZero())

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "demo", loaded.Name)
		assert.Equal(t, "v", loaded.Nodes[0].Params["k"])
		assert.Equal(t, SchemaVersion, loaded.SchemaVersion)
	})

	t.Run("save with id updates in place", func(t *testing.T) {
		doc := validDoc()
		doc.Name = "updatable"
		id, err := store.Save(ctx, doc)
		require.NoError(t, err)
		created := doc.CreatedAt

		doc.Description = "second"
		again, err := store.Save(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, id, again)
		assert.Equal(t, int64(2), doc.Version)
		assert.True(t, created.Equal(doc.CreatedAt))

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.Description)

		list, err := store.List(ctx)
		require.NoError(t, err)
		count := 0
		for _, s := range list {
			if s.ID == id {
				count++
				assert.Equal(t, "updatable", s.Name)
				assert.Equal(t, 2, s.NodeCount)
			}
		}
		assert.Equal(t, 1, count, "saving twice never duplicates")
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		doc := validDoc()
		_, err := store.Save(ctx, doc)
		require.NoError(t, err)

		stale := doc.Clone()
		_, err = store.Save(ctx, doc)
		require.NoError(t, err)

		_, err = store.Save(ctx, stale)
		assert.ErrorIs(t, err, errors.ErrVersionConflict)
	})

	t.Run("caller chosen id is created", func(t *testing.T) {
		doc := validDoc()
		doc.ID = "fixed-id"
		id, err := store.Save(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", id)
	})

	t.Run("invalid document is rejected", func(t *testing.T) {
		doc := validDoc()
		doc.Edges[0].Target = doc.Edges[0].Source
		_, err := store.Save(ctx, doc)
		assert.ErrorIs(t, err, errors.ErrSelfLoop)
		assert.Empty(t, doc.ID)
	})

	t.Run("delete and not found", func(t *testing.T) {
		doc := validDoc()
		id, err := store.Save(ctx, doc)
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, id))
		_, err = store.Load(ctx, id)
		assert.ErrorIs(t, err, errors.ErrFlowNotFound)
		assert.ErrorIs(t, store.Delete(ctx, id), errors.ErrFlowNotFound)
	})
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storeContract(t, store)
}

func TestSQLiteStore_ListOrder(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store, err := OpenSQLite(context.Background(), ":memory:", WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	first := validDoc()
	first.Name = "first"
	_, err = store.Save(ctx, first)
	require.NoError(t, err)
	second := validDoc()
	second.Name = "second"
	_, err = store.Save(ctx, second)
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, "first", list[1].Name)
}
