// Package boltstore implements store.Driver on top of a bbolt file.
//
// Each collection is a top-level bucket holding two nested buckets: "docs"
// maps key to an encoded document and "updated" is an index whose keys are
// the update time followed by the document key, so walking it with a cursor
// yields documents oldest first.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/leonardcser/readthrough/internal/store"
)

var (
	docsBucket  = []byte("docs")
	indexBucket = []byte("updated")
)

var errCorrupt = errors.New("boltstore: corrupt document")

// Options configures Open.
type Options struct {
	// Timeout bounds how long Open waits for the file lock held by another
	// process. Zero means one second.
	Timeout time.Duration
}

// Driver is a store.Driver backed by a single bbolt database.
type Driver struct {
	db *bolt.DB
}

var _ store.Driver = (*Driver)(nil)

// Open opens or creates the database file at path.
func Open(path string, opts Options) (*Driver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, err
	}
	return &Driver{db: db}, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Collection returns the named collection if its bucket exists.
func (d *Driver) Collection(ctx context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := d.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return store.ErrCollectionNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Collection{db: d.db, name: []byte(name)}, nil
}

// CreateCollection creates the collection buckets if they are missing.
func (d *Driver) CreateCollection(ctx context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := d.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(docsBucket); err != nil {
			return err
		}
		_, err = root.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Collection{db: d.db, name: []byte(name)}, nil
}

// Collection is one bucket pair inside the database.
type Collection struct {
	db   *bolt.DB
	name []byte
}

var _ store.Collection = (*Collection)(nil)

func (c *Collection) Name() string { return string(c.name) }

func (c *Collection) buckets(tx *bolt.Tx) (docs, idx *bolt.Bucket, err error) {
	root := tx.Bucket(c.name)
	if root == nil {
		return nil, nil, store.ErrCollectionNotFound
	}
	docs, idx = root.Bucket(docsBucket), root.Bucket(indexBucket)
	if docs == nil || idx == nil {
		return nil, nil, store.ErrCollectionNotFound
	}
	return docs, idx, nil
}

func (c *Collection) view(ctx context.Context, fn func(docs, idx *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.View(func(tx *bolt.Tx) error {
		docs, idx, err := c.buckets(tx)
		if err != nil {
			return err
		}
		return fn(docs, idx)
	})
}

func (c *Collection) update(ctx context.Context, fn func(docs, idx *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		docs, idx, err := c.buckets(tx)
		if err != nil {
			return err
		}
		return fn(docs, idx)
	})
}

// UpsertByKey writes the document and moves its index entry in one
// transaction.
func (c *Collection) UpsertByKey(ctx context.Context, key, value string, updated time.Time) error {
	k := []byte(key)
	return c.update(ctx, func(docs, idx *bolt.Bucket) error {
		if old := docs.Get(k); old != nil {
			prev, _, err := decode(old)
			if err != nil {
				return err
			}
			if err := idx.Delete(indexKey(prev, k)); err != nil {
				return err
			}
		}
		if err := docs.Put(k, encode(value, updated)); err != nil {
			return err
		}
		return idx.Put(indexKey(updated, k), []byte{})
	})
}

func (c *Collection) FindByKey(ctx context.Context, key string) (store.Document, bool, error) {
	var (
		doc   store.Document
		found bool
	)
	err := c.view(ctx, func(docs, _ *bolt.Bucket) error {
		raw := docs.Get([]byte(key))
		if raw == nil {
			return nil
		}
		updated, value, err := decode(raw)
		if err != nil {
			return err
		}
		doc, found = store.Document{Key: key, Value: value, Updated: updated}, true
		return nil
	})
	return doc, found, err
}

func (c *Collection) DeleteByKey(ctx context.Context, key string) (store.Document, bool, error) {
	var (
		doc   store.Document
		found bool
	)
	k := []byte(key)
	err := c.update(ctx, func(docs, idx *bolt.Bucket) error {
		raw := docs.Get(k)
		if raw == nil {
			return nil
		}
		updated, value, err := decode(raw)
		if err != nil {
			return err
		}
		doc, found = store.Document{Key: key, Value: value, Updated: updated}, true
		if err := idx.Delete(indexKey(updated, k)); err != nil {
			return err
		}
		return docs.Delete(k)
	})
	return doc, found, err
}

// ListAll returns every document in key order.
func (c *Collection) ListAll(ctx context.Context) ([]store.Document, error) {
	var out []store.Document
	err := c.view(ctx, func(docs, _ *bolt.Bucket) error {
		return docs.ForEach(func(k, v []byte) error {
			updated, value, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, store.Document{Key: string(k), Value: value, Updated: updated})
			return nil
		})
	})
	return out, err
}

func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	var n int
	err := c.update(ctx, func(docs, idx *bolt.Bucket) error {
		n = docs.Stats().KeyN
		root := docs.Tx().Bucket(c.name)
		for _, name := range [][]byte{docsBucket, indexBucket} {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := root.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Collection) CountAll(ctx context.Context) (int, error) {
	var n int
	err := c.view(ctx, func(docs, _ *bolt.Bucket) error {
		n = docs.Stats().KeyN
		return nil
	})
	return n, err
}

func (c *Collection) FindOldestN(ctx context.Context, n int) ([]store.Document, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]store.Document, 0, n)
	err := c.view(ctx, func(docs, idx *bolt.Bucket) error {
		cur := idx.Cursor()
		for k, _ := cur.First(); k != nil && len(out) < n; k, _ = cur.Next() {
			if len(k) < 8 {
				return errCorrupt
			}
			key := k[8:]
			raw := docs.Get(key)
			if raw == nil {
				continue
			}
			updated, value, err := decode(raw)
			if err != nil {
				return err
			}
			out = append(out, store.Document{Key: string(key), Value: value, Updated: updated})
		}
		return nil
	})
	return out, err
}

// Layout: 8 bytes big endian unix nanos || raw value
func encode(value string, updated time.Time) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(updated.UnixNano()))
	copy(buf[8:], value)
	return buf
}

func decode(raw []byte) (time.Time, string, error) {
	if len(raw) < 8 {
		return time.Time{}, "", errCorrupt
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	return time.Unix(0, nanos).UTC(), string(raw[8:]), nil
}

func indexKey(updated time.Time, key []byte) []byte {
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf[:8], uint64(updated.UnixNano()))
	copy(buf[8:], key)
	return buf
}
