package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/readthrough/internal/store"
	"github.com/leonardcser/readthrough/internal/store/boltstore"
	"github.com/leonardcser/readthrough/internal/store/storetest"
)

func open(t *testing.T, path string) *boltstore.Driver {
	t.Helper()
	d, err := boltstore.Open(path, boltstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDriver(t *testing.T) {
	storetest.TestDriver(t, func(t *testing.T) store.Driver {
		return open(t, filepath.Join(t.TempDir(), "cache.bbolt"))
	})
}

func TestDocumentsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.bbolt")

	d, err := boltstore.Open(path, boltstore.Options{})
	require.NoError(t, err)
	c, err := d.CreateCollection(ctx, "cache")
	require.NoError(t, err)
	updated := time.Unix(0, 1_700_000_000_123_456_789).UTC()
	require.NoError(t, c.UpsertByKey(ctx, "k", "persisted", updated))
	require.NoError(t, d.Close())

	d = open(t, path)
	c, err = d.Collection(ctx, "cache")
	require.NoError(t, err)
	doc, ok, err := c.FindByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persisted", doc.Value)
	assert.True(t, doc.Updated.Equal(updated), "nanosecond precision is kept")
}

func TestOpenLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bbolt")
	open(t, path)

	_, err := boltstore.Open(path, boltstore.Options{Timeout: 50 * time.Millisecond})
	assert.Error(t, err, "a second handle on a locked file must time out")
}

func TestListAllIsKeyOrdered(t *testing.T) {
	ctx := context.Background()
	c, err := open(t, filepath.Join(t.TempDir(), "cache.bbolt")).CreateCollection(ctx, "cache")
	require.NoError(t, err)

	for _, k := range []string{"b", "c", "a"} {
		require.NoError(t, c.UpsertByKey(ctx, k, "v", time.Now()))
	}
	docs, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].Key)
	assert.Equal(t, "b", docs[1].Key)
	assert.Equal(t, "c", docs[2].Key)
}
