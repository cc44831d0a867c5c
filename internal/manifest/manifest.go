// Package manifest records extraction runs and per-file outcomes in a
// SQLite database so failed runs can be inspected after the fact.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed manifest.
var ErrClosed = errors.New("manifest is closed")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	version     TEXT NOT NULL,
	source      TEXT NOT NULL,
	pattern     TEXT NOT NULL,
	output_dir  TEXT NOT NULL,
	matched     INTEGER NOT NULL,
	extracted   INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	bytes       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	path_hash   TEXT NOT NULL,
	bundle      INTEGER NOT NULL,
	file_offset INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS entries_run_status ON entries(run_id, status);
`

// Manifest is a connection to a manifest database.
type Manifest struct {
	db        *sql.DB
	path      string
	batchSize int
}

// Options configures manifest creation and connection behavior.
type Options struct {
	// Path to the SQLite database file
	Path string

	// WALMode enables Write-Ahead Logging mode
	WALMode bool

	// BusyTimeout sets the timeout for locked database operations
	BusyTimeout time.Duration

	// BatchSize determines how many entries are inserted per transaction
	BatchSize int
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 30 * time.Second,
		BatchSize:   1000,
	}
}

// Open opens or creates the manifest database at options.Path and ensures
// its tables exist.
func Open(ctx context.Context, options *Options) (*Manifest, error) {
	if options == nil {
		return nil, fmt.Errorf("manifest options cannot be nil")
	}
	if options.Path == "" {
		return nil, fmt.Errorf("manifest path cannot be empty")
	}

	if err := ensureDirectory(options.Path); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	db, err := sql.Open("sqlite3", buildConnectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", options.Path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing manifest connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest tables: %w", err)
	}

	batch := options.BatchSize
	if batch < 1 {
		batch = 1000
	}

	return &Manifest{db: db, path: options.Path, batchSize: batch}, nil
}

// Path returns the database file path.
func (m *Manifest) Path() string {
	return m.path
}

// Close closes the database connection
func (m *Manifest) Close() error {
	if m.db == nil {
		return nil
	}

	err := m.db.Close()
	m.db = nil

	if err != nil {
		return fmt.Errorf("closing manifest connection: %w", err)
	}

	return nil
}

// Query executes a SQL query that returns rows
func (m *Manifest) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if m.db == nil {
		return nil, ErrClosed
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	return rows, nil
}

// buildConnectionString constructs the SQLite connection string with pragmas
func buildConnectionString(options *Options) string {
	pragmas := []string{"_foreign_keys=on"}

	if options.WALMode {
		pragmas = append(pragmas, "_journal_mode=WAL")
	}

	if options.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_busy_timeout=%d", options.BusyTimeout.Milliseconds()))
	}

	pragmas = append(pragmas, "_synchronous=NORMAL")

	return "file:" + options.Path + "?" + strings.Join(pragmas, "&")
}

// ensureDirectory creates the directory for the database file if it doesn't exist
func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}

	return os.MkdirAll(dir, 0o755)
}
