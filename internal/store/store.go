package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"

// Store is the SQLite document store behind conversations, prompt logs,
// usage and system info snapshots.
//
// All writes go through a single-connection writer so check-then-insert
// sequences never interleave at the driver level; reads use a small
// query_only pool.
type Store struct {
	writer    *sql.DB
	reader    *sql.DB
	path      string
	closeOnce sync.Once
}

// Open creates a new Store backed by the SQLite database at path, creating
// the parent directory if needed, and runs all pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
	}

	writer, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", path+pragmas+"&_pragma=query_only(ON)")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("store: open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(0)

	if err := reader.Ping(); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("store: ping reader: %w", err)
	}

	s := &Store{
		writer: writer,
		reader: reader,
		path:   path,
	}

	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

// Close closes both connections. It is safe to call Close multiple times.
func (s *Store) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		for _, db := range []*sql.DB{s.writer, s.reader} {
			if db == nil {
				continue
			}
			if err := db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// Path returns the filesystem path of the database.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies that both the writer and reader connections are alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.writer.PingContext(ctx); err != nil {
		return fmt.Errorf("store: writer ping: %w", err)
	}
	if err := s.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("store: reader ping: %w", err)
	}
	return nil
}

// lookupErr wraps err for the given operation, mapping a missing row to
// ErrNotFound.
func lookupErr(op string, err error) error {
	if sqlscan.NotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
