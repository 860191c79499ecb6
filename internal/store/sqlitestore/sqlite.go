// Package sqlitestore implements store.Driver with one SQLite table per
// collection.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary

	"github.com/leonardcser/readthrough/internal/store"
)

// Driver is a store.Driver backed by a SQLite database file.
type Driver struct {
	db *sql.DB
}

var _ store.Driver = (*Driver)(nil)

// Open opens or creates the database at path and applies connection
// pragmas.
func Open(ctx context.Context, path string) (*Driver, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "synchronous(normal)")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; statements queue on the pool instead of on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Driver{db: db}, nil
}

func (d *Driver) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Driver) Collection(ctx context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCollectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return newCollection(d.db, name), nil
}

func (d *Driver) CreateCollection(ctx context.Context, name string) (store.Collection, error) {
	if err := store.ValidateName(name); err != nil {
		return nil, err
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id      TEXT PRIMARY KEY,
			value   TEXT NOT NULL,
			updated INTEGER NOT NULL
		)`, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (updated)`, name+"_updated", name),
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return newCollection(d.db, name), nil
}

// Collection is one table. Natural order is rowid, which SQLite keeps in
// insertion order for tables without explicit rowid reuse.
type Collection struct {
	db    *sql.DB
	name  string
	table string
}

var _ store.Collection = (*Collection)(nil)

func newCollection(db *sql.DB, name string) *Collection {
	return &Collection{db: db, name: name, table: fmt.Sprintf("%q", name)}
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) UpsertByKey(ctx context.Context, key, value string, updated time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO `+c.table+` (id, value, updated) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
		key, value, updated.UnixNano())
	return err
}

func (c *Collection) FindByKey(ctx context.Context, key string) (store.Document, bool, error) {
	doc := store.Document{Key: key}
	var nanos int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value, updated FROM `+c.table+` WHERE id = ?`, key).Scan(&doc.Value, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, false, nil
	}
	if err != nil {
		return store.Document{}, false, err
	}
	doc.Updated = time.Unix(0, nanos).UTC()
	return doc, true, nil
}

func (c *Collection) DeleteByKey(ctx context.Context, key string) (store.Document, bool, error) {
	doc := store.Document{Key: key}
	var nanos int64
	err := c.db.QueryRowContext(ctx,
		`DELETE FROM `+c.table+` WHERE id = ? RETURNING value, updated`, key).Scan(&doc.Value, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, false, nil
	}
	if err != nil {
		return store.Document{}, false, err
	}
	doc.Updated = time.Unix(0, nanos).UTC()
	return doc, true, nil
}

func (c *Collection) ListAll(ctx context.Context) ([]store.Document, error) {
	return c.query(ctx, `SELECT id, value, updated FROM `+c.table+` ORDER BY rowid`)
}

func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM `+c.table)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c *Collection) CountAll(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(&n)
	return n, err
}

func (c *Collection) FindOldestN(ctx context.Context, n int) ([]store.Document, error) {
	if n <= 0 {
		return nil, nil
	}
	return c.query(ctx,
		`SELECT id, value, updated FROM `+c.table+` ORDER BY updated, rowid LIMIT ?`, n)
}

func (c *Collection) query(ctx context.Context, q string, args ...any) ([]store.Document, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var (
			doc   store.Document
			nanos int64
		)
		if err := rows.Scan(&doc.Key, &doc.Value, &nanos); err != nil {
			return nil, err
		}
		doc.Updated = time.Unix(0, nanos).UTC()
		out = append(out, doc)
	}
	return out, rows.Err()
}
