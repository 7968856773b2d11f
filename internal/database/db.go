// Package database provides database connection and initialization for the
// persistence layer (spec component C1). It supports two engines behind one
// API: an embedded pure-Go SQLite engine (used for production, backtests,
// and tests) and a networked PostgreSQL engine (used where a shared,
// multi-instance deployment is required). Engine-specific maintenance
// adapts to the engine rather than failing: vacuum runs ANALYZE on
// Postgres, and WAL checkpoint and integrity check are no-ops there.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/lib/pq"    // PostgreSQL driver for the networked engine
	_ "modernc.org/sqlite" // Pure Go SQLite driver for the embedded engine
)

// Engine selects which SQL engine a DB talks to.
type Engine string

const (
	// EngineSQLite is the embedded, pure-Go engine used for production on
	// a single node, backtests, and tests.
	EngineSQLite Engine = "sqlite"
	// EnginePostgres is the networked engine used for shared deployments.
	EnginePostgres Engine = "postgres"
)

// DatabaseProfile defines different configuration profiles for databases.
// Profiles only affect SQLite connection PRAGMAs; Postgres ignores them.
type DatabaseProfile string

const (
	// ProfileLedger - maximum safety for the immutable trade/backtest audit trail.
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileCache - maximum speed for ephemeral cache data.
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard - balanced configuration for news/sentiment/price data.
	ProfileStandard DatabaseProfile = "standard"
)

// DB wraps the database connection with production-grade configuration.
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	engine  Engine
	name    string // Database name for logging, also keys the schema file
}

// Config holds database configuration.
type Config struct {
	Engine  Engine // defaults to EngineSQLite
	Path    string // SQLite file path, or a Postgres DSN when Engine == EnginePostgres
	Profile DatabaseProfile
	Name    string // Friendly name for logging (e.g., "market", "trading", "cache")
}

// New creates a new database connection with production-grade configuration.
func New(cfg Config) (*DB, error) {
	if cfg.Engine == "" {
		cfg.Engine = EngineSQLite
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	driver := "sqlite"
	connStr := cfg.Path

	switch cfg.Engine {
	case EngineSQLite:
		if !strings.HasPrefix(cfg.Path, "file:") {
			absPath, err := filepath.Abs(cfg.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
			}
			dir := filepath.Dir(absPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			cfg.Path = absPath
		}
		connStr = buildSQLiteConnectionString(cfg.Path, cfg.Profile)
	case EnginePostgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.Engine)
	}

	conn, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	db := &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		engine:  cfg.Engine,
		name:    cfg.Name,
	}

	return db, nil
}

// findSchemasDirectory locates the schemas directory using the source code
// location. Schemas are part of the source code, not the database file, so
// this works regardless of working directory or database location.
func findSchemasDirectory() (string, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	absFile, err := filepath.Abs(currentFile)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path of source file: %w", err)
	}

	dbDir := filepath.Dir(absFile)
	schemasDir := filepath.Join(dbDir, "schemas")

	if info, err := os.Stat(schemasDir); err != nil {
		return "", fmt.Errorf("schemas directory not found at %s: %w", schemasDir, err)
	} else if !info.IsDir() {
		return "", fmt.Errorf("schemas path exists but is not a directory: %s", schemasDir)
	}

	return schemasDir, nil
}

// buildSQLiteConnectionString creates a SQLite connection string with
// profile-specific PRAGMAs.
func buildSQLiteConnectionString(path string, profile DatabaseProfile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileLedger:
		connStr += "&_pragma=synchronous(FULL)" // fsync after every write
		connStr += "&_pragma=auto_vacuum(NONE)" // never shrink (append-only)
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)"   // no fsync, it's cache
		connStr += "&_pragma=auto_vacuum(FULL)"  // auto-reclaim space
		connStr += "&_pragma=temp_store(MEMORY)" // temp tables in RAM
	case ProfileStandard:
		connStr += "&_pragma=synchronous(NORMAL)"      // fsync at checkpoints
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)" // gradual space reclamation
		connStr += "&_pragma=temp_store(MEMORY)"       // temp tables in RAM
	}

	connStr += "&_pragma=foreign_keys(1)"          // enable foreign key constraints
	connStr += "&_pragma=wal_autocheckpoint(1000)" // checkpoint every 1000 pages
	connStr += "&_pragma=cache_size(-64000)"       // 64MB cache (negative = KB)

	return connStr
}

// configureConnectionPool sets up the connection pool for long-term operation.
func configureConnectionPool(conn *sql.DB, profile DatabaseProfile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(1 * time.Hour)
	conn.SetConnMaxIdleTime(15 * time.Minute)

	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection, used by repositories to
// execute queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging.
func (db *DB) Name() string {
	return db.name
}

// Profile returns the database profile.
func (db *DB) Profile() DatabaseProfile {
	return db.profile
}

// Engine returns the SQL engine backing this connection.
func (db *DB) Engine() Engine {
	return db.engine
}

// Path returns the database path or DSN.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies the database schema from the schemas directory. This is
// the single source of truth for each logical database's schema. Schema
// files are written in SQLite dialect; on the Postgres engine the same
// statements run unmodified (the schemas intentionally avoid
// engine-specific SQL beyond AUTOINCREMENT-free primary keys).
func (db *DB) Migrate() error {
	schemaFiles := map[string]string{
		"market":   "market_schema.sql",
		"trading":  "trading_schema.sql",
		"cache":    "cache_schema.sql",
		"learning": "learning_schema.sql",
	}

	schemaFile, ok := schemaFiles[db.name]
	if !ok {
		return nil
	}

	schemasDir, err := findSchemasDirectory()
	if err != nil {
		return nil
	}

	schemaPath := filepath.Join(schemasDir, schemaFile)
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema %s: %w", schemaFile, err)
	}

	if _, err := tx.Exec(string(content)); err != nil {
		_ = tx.Rollback()

		errStr := err.Error()
		if strings.Contains(errStr, "duplicate column") || strings.Contains(errStr, "already exists") {
			_ = tx.Commit()
			return nil
		}

		return fmt.Errorf("failed to execute schema %s for %s: %w", schemaFile, db.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema %s for %s: %w", schemaFile, db.name, err)
	}

	return nil
}

// Begin starts a new transaction.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// BeginTx starts a new transaction with options.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// WithTransaction executes fn within a database transaction, handling
// begin/commit/rollback and panic recovery. This is the one place a
// multi-step write (e.g. "record trade and update holding") becomes atomic.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

// Exec executes a query without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// ExecContext executes a query with context.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryContext executes a query with context.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// QueryRowContext executes a query with context.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// HealthCheck performs a comprehensive health check. The integrity_check
// PRAGMA is SQLite-specific; on Postgres, only the ping is meaningful.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	if db.engine != EngineSQLite {
		return nil
	}

	var integrityResult string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if integrityResult != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, integrityResult)
	}

	return nil
}

// QuickCheck performs a quick health check (ping only, no integrity check).
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WALCheckpoint forces a WAL checkpoint on SQLite to prevent WAL bloat. It
// is a no-op on engines without a WAL concept (e.g. Postgres).
func (db *DB) WALCheckpoint(mode string) error {
	if db.engine != EngineSQLite {
		return nil
	}
	if mode == "" {
		mode = "TRUNCATE"
	}

	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)
	if _, err := db.conn.Exec(query); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}

	return nil
}

// Vacuum reclaims space and reduces fragmentation on SQLite. On Postgres
// this is the analogous ANALYZE; on engines supporting neither, it no-ops.
func (db *DB) Vacuum() error {
	switch db.engine {
	case EngineSQLite:
		if _, err := db.conn.Exec("VACUUM"); err != nil {
			return fmt.Errorf("vacuum failed for %s: %w", db.name, err)
		}
	case EnginePostgres:
		if _, err := db.conn.Exec("ANALYZE"); err != nil {
			return fmt.Errorf("analyze failed for %s: %w", db.name, err)
		}
	}
	return nil
}

// Stats returns database statistics. File-size fields are zero on engines
// without a single on-disk file (e.g. Postgres).
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// GetStats retrieves database statistics.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if db.engine != EngineSQLite {
		return stats, nil
	}

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}

	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, fmt.Errorf("failed to get freelist count: %w", err)
	}

	return stats, nil
}
