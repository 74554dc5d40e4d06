package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Default timeout for database operations that are not bound to a caller's
// lifetime (ping, schema setup, stats collection).
const defaultTimeout = 5 * time.Second

// Options configures a catalog database.
type Options struct {
	// MediaRoot is the absolute directory folder paths are stored relative to.
	MediaRoot string

	// RecordDerivatives makes InsertIfAbsent also catalog the thumbnail as a
	// derived_thumbnail row pointing back at its original.
	RecordDerivatives bool

	// MaxOpenConns bounds the connection pool. Each ingestion worker pins one
	// connection for the duration of a scan, so this must exceed the worker
	// count. Zero means 25.
	MaxOpenConns int
}

// queryer is the subset of *sql.DB and *sql.Conn the catalog needs.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Catalog implements the folder and media registries on top of either the
// shared pool or a single pinned connection.
type Catalog struct {
	q                 queryer
	root              string
	recordDerivatives bool
}

// Database owns the SQLite pool. Its embedded Catalog runs on the pool and is
// safe for concurrent use; workers that want a private connection call
// Session.
type Database struct {
	*Catalog
	db     *sql.DB
	dbPath string
}

// Session is a Catalog bound to one dedicated connection. It must not be
// shared between goroutines.
type Session struct {
	*Catalog
	conn *sql.Conn
}

// New opens (creating if needed) the catalog at dbPath. The parent directory
// must already exist and be writable; startup.Config.Prepare ensures that.
func New(ctx context.Context, dbPath string, opts Options) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if !filepath.IsAbs(opts.MediaRoot) {
		return nil, fmt.Errorf("media root must be absolute, got %q", opts.MediaRoot)
	}

	checkSidecarFiles(dbPath)

	// WAL for concurrent readers, foreign keys for the parent links, and
	// immediate transactions so concurrent writers wait on busy_timeout
	// instead of failing on lock upgrade.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		Catalog: &Catalog{
			q:                 db,
			root:              filepath.Clean(opts.MediaRoot),
			recordDerivatives: opts.RecordDerivatives,
		},
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES folders(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

	CREATE TABLE IF NOT EXISTS media_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_path TEXT NOT NULL UNIQUE,
		folder_id INTEGER NOT NULL REFERENCES folders(id),
		kind TEXT NOT NULL CHECK (kind IN ('original', 'derived_thumbnail', 'derived_converted')),
		media_type TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		thumbnail_path TEXT NOT NULL,
		converted_path TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		parent_id INTEGER REFERENCES media_items(id) ON DELETE SET NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		CHECK (parent_id IS NULL OR parent_id != id)
	);

	CREATE INDEX IF NOT EXISTS idx_media_items_folder ON media_items(folder_id, kind, source_path);
	CREATE INDEX IF NOT EXISTS idx_media_items_parent ON media_items(parent_id);
	CREATE INDEX IF NOT EXISTS idx_media_items_thumbnail ON media_items(thumbnail_path);
	CREATE INDEX IF NOT EXISTS idx_media_items_converted ON media_items(converted_path);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, schema)
	return err
}

// Session pins one pooled connection for exclusive use by the caller. Close
// returns it to the pool.
func (d *Database) Session(ctx context.Context) (*Session, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{
		Catalog: &Catalog{
			q:                 conn,
			root:              d.root,
			recordDerivatives: d.recordDerivatives,
		},
		conn: conn,
	}, nil
}

// Close releases the session's connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Root returns the media root folder paths are relative to.
func (c *Catalog) Root() string {
	return c.root
}

// withTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (c *Catalog) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	txStart := time.Now()

	tx, err := c.q.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(txStart).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = tx.Commit()
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(txStart).Seconds())
	return err
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// checkSidecarFiles warns about, and tries to fix, read-only WAL and SHM
// files left behind by a container running as a different user. Either one
// being read-only makes every write fail with "attempt to write a readonly
// database".
func checkSidecarFiles(dbPath string) {
	for _, suffix := range []string{"-wal", "-shm"} {
		p := dbPath + suffix
		info, err := os.Stat(p)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only (mode %v), this will cause write failures", p, info.Mode())
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", p)
		}
	}
}
