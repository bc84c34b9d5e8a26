// Package keystore is a small durable key/value store backed by a single
// sqlite table. The banking client keeps exactly two values in it: the
// device identity and the current refresh token, both opaque.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("keystore: store is closed")

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// Option configures a Store at open time.
type Option func(*Store)

// WithSealer encrypts values at rest with the given sealer.
func WithSealer(s *Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// Store persists opaque string values under string keys. The database
// handle is opened for the duration of one read or write and closed before
// returning, so no file handle outlives an operation. Writes are durable
// when Set returns. Concurrent processes sharing one file must serialize
// externally; the store adds no multi-writer guarantee beyond sqlite's
// own.
type Store struct {
	path   string
	sealer *Sealer
	closed bool
}

// Open validates that the backing file is usable and returns a store. An
// unreadable or corrupt file fails here rather than on the first
// operation.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}

	db, err := s.open(context.Background())
	if err != nil {
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("keystore: close %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", s.path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keystore: ensure schema in %s: %w", s.path, err)
	}
	return db, nil
}

// Get reads one value. A missing key is reported via ok=false, not an
// error; for the refresh token that state means interactive authorization
// is required.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.closed {
		return "", false, ErrClosed
	}

	db, err := s.open(ctx)
	if err != nil {
		return "", false, err
	}
	defer db.Close()

	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keystore: get %q: %w", key, err)
	}

	if s.sealer != nil {
		value, err = s.sealer.Open(value)
		if err != nil {
			return "", false, fmt.Errorf("keystore: unseal %q: %w", key, err)
		}
	}
	return string(value), true, nil
}

// Set writes one value. The write is committed before Set returns.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.closed {
		return ErrClosed
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	v := []byte(value)
	if s.sealer != nil {
		v, err = s.sealer.Seal(v)
		if err != nil {
			return fmt.Errorf("keystore: seal %q: %w", key, err)
		}
	}

	_, err = db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, v)
	if err != nil {
		return fmt.Errorf("keystore: set %q: %w", key, err)
	}
	return nil
}

// Delete removes one value. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.closed {
		return ErrClosed
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("keystore: delete %q: %w", key, err)
	}
	return nil
}

// Close marks the store closed. There is no long-held handle to release;
// subsequent operations fail with ErrClosed.
func (s *Store) Close() error {
	s.closed = true
	return nil
}
