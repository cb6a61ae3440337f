// Package sqlite provides a SQLite implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/funtimes-arcaluminis/internal/storage"

	_ "modernc.org/sqlite"
)

const brightnessKey = "brightness"

// keepRenders bounds the render history table.
const keepRenders = 1000

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory SQLite store.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-based SQLite store.
func NewFileStore(path string) (*Store, error) {
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and the
	// daemon's write rate is tiny.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveBrightness(ctx context.Context, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
	`, brightnessKey, value, time.Now().UnixMilli())
	return err
}

func (s *Store) LoadBrightness(ctx context.Context) (float64, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = ?
	`, brightnessKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound{Resource: "setting", ID: brightnessKey}
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *Store) RecordRender(ctx context.Context, r *storage.Render) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO renders (applet, hash, ok, submitted, error, rendered_at, took_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Applet, r.Hash, r.OK, r.Submitted, r.Error, r.RenderedAt.UnixMilli(), r.Took.Milliseconds())
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM renders WHERE id <= (SELECT MAX(id) FROM renders) - ?
	`, keepRenders)
	return err
}

// RecentRenders returns up to limit renders, newest first.
func (s *Store) RecentRenders(ctx context.Context, limit int) ([]*storage.Render, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, applet, COALESCE(hash, ''), ok, submitted, COALESCE(error, ''), rendered_at, took_ms
		FROM renders ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []*storage.Render
	for rows.Next() {
		var r storage.Render
		var at, took int64
		if err := rows.Scan(&r.ID, &r.Applet, &r.Hash, &r.OK, &r.Submitted, &r.Error, &at, &took); err != nil {
			return nil, err
		}
		r.RenderedAt = time.UnixMilli(at)
		r.Took = time.Duration(took) * time.Millisecond
		renders = append(renders, &r)
	}
	return renders, rows.Err()
}

var _ storage.Store = (*Store)(nil)
