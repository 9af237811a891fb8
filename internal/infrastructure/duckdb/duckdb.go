package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2" // DuckDB driver
)

// Connection constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 10 * time.Second
)

// InMemory is the path value for an in-memory database (useful for tests).
const InMemory = ":memory:"

// DB wraps a DuckDB handle holding the market-data store.
//
// The wrapped *sql.DB owns both the database instance and its connection
// pool; closing the DB releases every connection before the instance itself,
// so connection lifetimes are always nested inside the handle lifetime.
type DB struct {
	*sql.DB
	path     string
	readOnly bool
}

// Config contains market-data store configuration options.
// These map to the market_data section of config.yaml.
type Config struct {
	// Path is the filesystem path to the DuckDB database file.
	// Use InMemory for an in-memory database.
	Path string

	// ReadOnly opens the database in read-only mode. Opening a file that
	// does not exist fails in this mode.
	ReadOnly bool

	// MemoryLimit is DuckDB's memory ceiling (e.g. "4GB"). Empty uses the
	// engine default.
	MemoryLimit string

	// Threads limits DuckDB's worker threads. 0 uses the engine default.
	Threads int
}

// Open creates a new DuckDB connection with the specified configuration.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist (file-backed only)
//  2. Opens the database (creates the file if not present, unless read-only)
//  3. Applies memory/thread limits via DSN options
//  4. Verifies the connection with a ping
//
// Parameters:
//   - cfg: Market-data store configuration
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: If connection or configuration fails
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}

	if cfg.Path != InMemory {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("duckdb", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	db := &DB{
		DB:       sqlDB,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying duckdb connection: %w", err)
	}

	return db, nil
}

// buildDSN constructs the DuckDB connection string from the configuration.
// Options are passed as query parameters: path?access_mode=read_only&threads=4
func buildDSN(cfg Config) string {
	path := cfg.Path
	if path == InMemory {
		path = ""
	}

	params := url.Values{}
	if cfg.ReadOnly {
		params.Set("access_mode", "read_only")
	}
	if cfg.MemoryLimit != "" {
		params.Set("memory_limit", cfg.MemoryLimit)
	}
	if cfg.Threads > 0 {
		params.Set("threads", strconv.Itoa(cfg.Threads))
	}

	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// Close closes the database handle gracefully.
// All open connections are released before the handle itself.
//
// Returns:
//   - error: If closing fails
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing duckdb: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the store was opened in read-only mode.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// HealthCheck verifies the database is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("duckdb health check failed: %w", err)
	}
	return nil
}

// FileSize returns the size of the database file in bytes.
// Returns 0 for in-memory databases or if the file does not exist yet.
func (db *DB) FileSize() int64 {
	if db.path == InMemory {
		return 0
	}
	info, err := os.Stat(db.path)
	if err != nil {
		return 0
	}
	return info.Size()
}
