package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
	_ "modernc.org/sqlite"          // registers "sqlite"
)

// Supported database/sql driver names
const (
	DriverModernc = "sqlite"  // pure Go, modernc.org/sqlite
	DriverMattn   = "sqlite3" // cgo, github.com/mattn/go-sqlite3
)

// ErrMissingTable is returned when a shard file lacks the books table
var ErrMissingTable = errors.New("books table not found")

// ErrStoreClosed is returned by operations on a closed store
var ErrStoreClosed = errors.New("store closed")

// Store is the read side of one shard's backing database
// All implementations must be safe for concurrent use
type Store interface {
	// Books runs a row query and scans every row into a Book
	Books(ctx context.Context, query string, args ...any) ([]Book, error)

	// Count runs a single-value COUNT query
	Count(ctx context.Context, query string, args ...any) (int64, error)

	// Ping verifies the backing file is still reachable
	Ping(ctx context.Context) error

	// Close releases the handle; further calls fail
	Close() error
}

// Options controls how a shard file is opened
type Options struct {
	Driver      string        // DriverModernc (default) or DriverMattn
	BusyTimeout time.Duration // SQLite busy timeout, 5s when zero
	Table       string        // table that must exist, "books" when empty
	Writable    bool          // open read-write; shards are read-only by default
	MaxConns    int           // open connections; DefaultReadConns read-only, 1 writable
}

// DefaultReadConns lets the row query, the count query and a health ping of
// one read-only shard run at the same time.
const DefaultReadConns = 4

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = DriverModernc
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.Table == "" {
		o.Table = "books"
	}
	switch {
	case o.Writable:
		o.MaxConns = 1
	case o.MaxConns <= 0:
		o.MaxConns = DefaultReadConns
	}
	return o
}

// SQLiteStore implements Store over a single SQLite file
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens an existing shard file and checks it carries the expected table
// The file is never created: a missing path is an error
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat shard file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("shard path %s is a directory", path)
	}

	dsn, err := buildDSN(path, opts)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Readers never contend for SQLite's write lock, so read-only shards get
	// a small pool. A writable file keeps a single connection.
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	ok, err := tableExists(ctx, db, opts.Table)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if !ok {
		db.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrMissingTable)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// buildDSN returns a SQLite URI for path. The path is made absolute and
// percent-escaped so '#', '?' and '%' in file names stay part of the name.
func buildDSN(path string, opts Options) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	mode := "ro"
	if opts.Writable {
		mode = "rw"
	}
	q := url.Values{}
	q.Set("mode", mode)
	ms := opts.BusyTimeout.Milliseconds()

	switch opts.Driver {
	case DriverModernc:
		q.Set("_pragma", fmt.Sprintf("busy_timeout(%d)", ms))
	case DriverMattn:
		q.Set("_busy_timeout", fmt.Sprintf("%d", ms))
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", opts.Driver)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	const q = "SELECT 1 FROM sqlite_master WHERE type='table' AND name=?"
	var flag int
	err := db.QueryRowContext(ctx, q, table).Scan(&flag)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// Path returns the file backing the store
func (s *SQLiteStore) Path() string {
	return s.path
}

// Books runs query and scans every row
// Columns Book does not know are skipped
func (s *SQLiteStore) Books(ctx context.Context, query string, args ...any) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	books := make([]Book, 0)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		var b Book
		for i, col := range columns {
			if err := b.SetField(col, values[i]); err != nil && !errors.Is(err, ErrUnknownColumn) {
				return nil, err
			}
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}
	return books, nil
}

// Count runs a query returning a single integer
func (s *SQLiteStore) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// Ping checks the database and the file are still there
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return err
	}
	return s.wrap(s.db.PingContext(ctx))
}

// Close closes the underlying *sql.DB
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrap(err error) error {
	if err != nil && err.Error() == "sql: database is closed" {
		return ErrStoreClosed
	}
	return err
}
