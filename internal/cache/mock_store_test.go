package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/leonardcser/readthrough/internal/store"
)

// mockDriver is a testify mock of store.Driver.
type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Collection(ctx context.Context, name string) (store.Collection, error) {
	args := m.Called(ctx, name)
	coll, _ := args.Get(0).(store.Collection)
	return coll, args.Error(1)
}

func (m *mockDriver) CreateCollection(ctx context.Context, name string) (store.Collection, error) {
	args := m.Called(ctx, name)
	coll, _ := args.Get(0).(store.Collection)
	return coll, args.Error(1)
}

func (m *mockDriver) Close() error { return m.Called().Error(0) }

// faultyCollection wraps a real collection and fails selected calls.
type faultyCollection struct {
	store.Collection

	upsertErr error
	countErr  error
	deleteErr error
	// block makes FindByKey wait for the context to end.
	block bool
}

func (c *faultyCollection) UpsertByKey(ctx context.Context, key, value string, updated time.Time) error {
	if c.upsertErr != nil {
		return c.upsertErr
	}
	return c.Collection.UpsertByKey(ctx, key, value, updated)
}

func (c *faultyCollection) CountAll(ctx context.Context) (int, error) {
	if c.countErr != nil {
		return 0, c.countErr
	}
	return c.Collection.CountAll(ctx)
}

func (c *faultyCollection) DeleteByKey(ctx context.Context, key string) (store.Document, bool, error) {
	if c.deleteErr != nil {
		return store.Document{}, false, c.deleteErr
	}
	return c.Collection.DeleteByKey(ctx, key)
}

func (c *faultyCollection) FindByKey(ctx context.Context, key string) (store.Document, bool, error) {
	if c.block {
		<-ctx.Done()
		return store.Document{}, false, ctx.Err()
	}
	return c.Collection.FindByKey(ctx, key)
}
