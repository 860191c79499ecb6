// Package store defines the document store contract the cache engine is
// built on, and the shared helpers its drivers use.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Document is one persisted cache record.
type Document struct {
	Key     string
	Value   string
	Updated time.Time
}

// ErrCollectionNotFound is returned by Driver.Collection when the named
// collection has not been created yet.
var ErrCollectionNotFound = errors.New("store: collection not found")

// ErrInvalidName is returned for collection names that cannot be used as a
// bucket or table name.
var ErrInvalidName = errors.New("store: invalid collection name")

// Driver resolves named collections. Implementations must be safe for
// concurrent use by multiple goroutines.
type Driver interface {
	// Collection returns an existing collection or ErrCollectionNotFound.
	Collection(ctx context.Context, name string) (Collection, error)
	// CreateCollection creates the named collection. Creating one that
	// already exists is not an error.
	CreateCollection(ctx context.Context, name string) (Collection, error)
	Close() error
}

// Collection is a set of documents unique by key. Every method is a single
// store round trip; none of them are combined into a transaction.
type Collection interface {
	Name() string
	UpsertByKey(ctx context.Context, key, value string, updated time.Time) error
	FindByKey(ctx context.Context, key string) (Document, bool, error)
	DeleteByKey(ctx context.Context, key string) (Document, bool, error)
	ListAll(ctx context.Context) ([]Document, error)
	DeleteAll(ctx context.Context) (int, error)
	CountAll(ctx context.Context) (int, error)
	// FindOldestN returns up to n documents ordered by Updated ascending.
	FindOldestN(ctx context.Context, n int) ([]Document, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName reports whether name is usable as a collection name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
