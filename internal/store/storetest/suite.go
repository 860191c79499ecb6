// Package storetest holds a conformance suite every store.Driver must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/readthrough/internal/store"
)

// TestDriver runs the full suite. newDriver must return a fresh, empty
// driver for every call.
func TestDriver(t *testing.T, newDriver func(t *testing.T) store.Driver) {
	t.Run("StrictGetThenCreate", func(t *testing.T) {
		testStrictGet(t, newDriver(t))
	})
	t.Run("InvalidName", func(t *testing.T) {
		testInvalidName(t, newDriver(t))
	})
	t.Run("UpsertOverwrites", func(t *testing.T) {
		testUpsert(t, collection(t, newDriver(t)))
	})
	t.Run("DeleteByKey", func(t *testing.T) {
		testDelete(t, collection(t, newDriver(t)))
	})
	t.Run("DeleteAll", func(t *testing.T) {
		testDeleteAll(t, collection(t, newDriver(t)))
	})
	t.Run("FindOldestN", func(t *testing.T) {
		testOldest(t, collection(t, newDriver(t)))
	})
	t.Run("ConcurrentUpserts", func(t *testing.T) {
		testConcurrentUpserts(t, collection(t, newDriver(t)))
	})
	t.Run("CanceledContext", func(t *testing.T) {
		testCanceled(t, collection(t, newDriver(t)))
	})
}

func collection(t *testing.T, d store.Driver) store.Collection {
	t.Helper()
	c, err := d.CreateCollection(context.Background(), "suite")
	require.NoError(t, err)
	return c
}

func testStrictGet(t *testing.T, d store.Driver) {
	ctx := context.Background()

	_, err := d.Collection(ctx, "things")
	require.ErrorIs(t, err, store.ErrCollectionNotFound)

	created, err := d.CreateCollection(ctx, "things")
	require.NoError(t, err)
	assert.Equal(t, "things", created.Name())

	// Creating twice is harmless.
	_, err = d.CreateCollection(ctx, "things")
	require.NoError(t, err)

	got, err := d.Collection(ctx, "things")
	require.NoError(t, err)
	assert.Equal(t, "things", got.Name())
}

func testInvalidName(t *testing.T, d store.Driver) {
	for _, name := range []string{"", "a b", `x";drop`, "../up"} {
		_, err := d.CreateCollection(context.Background(), name)
		assert.ErrorIs(t, err, store.ErrInvalidName, "name %q", name)
	}
}

func testUpsert(t *testing.T, c store.Collection) {
	ctx := context.Background()
	t0 := time.Unix(1000, 0).UTC()

	require.NoError(t, c.UpsertByKey(ctx, "k", "v1", t0))
	require.NoError(t, c.UpsertByKey(ctx, "k", "v2", t0.Add(time.Second)))

	doc, ok, err := c.FindByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", doc.Value)
	assert.True(t, doc.Updated.Equal(t0.Add(time.Second)))

	n, err := c.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	oldest, err := c.FindOldestN(ctx, 5)
	require.NoError(t, err)
	require.Len(t, oldest, 1, "index must not keep the overwritten timestamp")

	_, ok, err = c.FindByKey(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDelete(t *testing.T, c store.Collection) {
	ctx := context.Background()
	t0 := time.Unix(2000, 0).UTC()
	require.NoError(t, c.UpsertByKey(ctx, "a", "1", t0))
	require.NoError(t, c.UpsertByKey(ctx, "b", "2", t0))

	doc, ok, err := c.DeleteByKey(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", doc.Value)
	assert.True(t, doc.Updated.Equal(t0))

	_, ok, err = c.DeleteByKey(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	docs, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].Key)

	oldest, err := c.FindOldestN(ctx, 5)
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "b", oldest[0].Key)
}

func testDeleteAll(t *testing.T, c store.Collection) {
	ctx := context.Background()
	for i := range 4 {
		require.NoError(t, c.UpsertByKey(ctx, fmt.Sprintf("k%d", i), "v", time.Unix(int64(i), 0)))
	}

	n, err := c.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	docs, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	n, err = c.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Still usable after a purge.
	require.NoError(t, c.UpsertByKey(ctx, "again", "v", time.Unix(9, 0)))
	count, err := c.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testOldest(t *testing.T, c store.Collection) {
	ctx := context.Background()
	require.NoError(t, c.UpsertByKey(ctx, "late", "v", time.Unix(300, 0)))
	require.NoError(t, c.UpsertByKey(ctx, "early", "v", time.Unix(100, 0)))
	require.NoError(t, c.UpsertByKey(ctx, "middle", "v", time.Unix(200, 0)))

	docs, err := c.FindOldestN(ctx, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "early", docs[0].Key)
	assert.Equal(t, "middle", docs[1].Key)

	// Touching "early" moves it to the back.
	require.NoError(t, c.UpsertByKey(ctx, "early", "v2", time.Unix(400, 0)))
	docs, err = c.FindOldestN(ctx, 3)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"middle", "late", "early"}, keys(docs))

	docs, err = c.FindOldestN(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testConcurrentUpserts(t *testing.T, c store.Collection) {
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.UpsertByKey(ctx, "shared", fmt.Sprintf("v%d", i), time.Now())
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := c.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	oldest, err := c.FindOldestN(ctx, writers)
	require.NoError(t, err)
	assert.Len(t, oldest, 1)
}

func testCanceled(t *testing.T, c store.Collection) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.UpsertByKey(ctx, "k", "v", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func keys(docs []store.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Key
	}
	return out
}
