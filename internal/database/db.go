package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dbFileName = "attribution.db"

// statement names a prepared hot-path query
type statement string

const (
	stmtInsertRun          statement = "insert_run"
	stmtInsertCredit       statement = "insert_credit"
	stmtGetRun             statement = "get_run"
	stmtGetCredits         statement = "get_credits"
	stmtListRuns           statement = "list_runs"
	stmtChannelLeaderboard statement = "channel_leaderboard"
)

var statements = map[statement]string{
	stmtInsertRun: `INSERT INTO attribution_runs (
		id, tenant, opportunity_id, method, conversion_value, weights,
		touchpoint_count, dropped_count, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	stmtInsertCredit: `INSERT INTO attribution_credits (
		run_id, touchpoint_id, channel, touchpoint_type, value, share
	) VALUES (?, ?, ?, ?, ?, ?)`,

	stmtGetRun: `SELECT id, tenant, opportunity_id, method, conversion_value, weights,
		touchpoint_count, dropped_count, created_at
		FROM attribution_runs WHERE id = ?`,

	stmtGetCredits: `SELECT touchpoint_id, channel, touchpoint_type, value, share
		FROM attribution_credits WHERE run_id = ? ORDER BY value DESC, touchpoint_id ASC`,

	stmtListRuns: `SELECT id, tenant, opportunity_id, method, conversion_value, weights,
		touchpoint_count, dropped_count, created_at
		FROM attribution_runs WHERE tenant = ?
		ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`,

	stmtChannelLeaderboard: `SELECT c.channel, SUM(c.value) AS total_value, COUNT(*) AS credits,
		COUNT(DISTINCT c.run_id) AS runs
		FROM attribution_credits c
		JOIN attribution_runs r ON r.id = c.run_id
		WHERE r.tenant = ?
		GROUP BY c.channel
		ORDER BY total_value DESC, c.channel ASC
		LIMIT ?`,
}

// migrations are applied in order; the schema version is the number applied
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS attribution_runs (
			id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL DEFAULT '',
			opportunity_id TEXT NOT NULL,
			method TEXT NOT NULL,
			conversion_value REAL NOT NULL,
			weights TEXT NOT NULL, -- JSON factor weights
			touchpoint_count INTEGER NOT NULL,
			dropped_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attribution_credits (
			run_id TEXT NOT NULL,
			touchpoint_id TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			touchpoint_type TEXT NOT NULL DEFAULT '',
			value REAL NOT NULL,
			share REAL NOT NULL,
			PRIMARY KEY (run_id, touchpoint_id),
			FOREIGN KEY (run_id) REFERENCES attribution_runs(id) ON DELETE CASCADE
		)`,
	},
	{
		`CREATE INDEX IF NOT EXISTS idx_runs_tenant_created ON attribution_runs(tenant, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_opportunity ON attribution_runs(opportunity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_credits_channel ON attribution_credits(channel)`,
	},
}

// PoolConfig sizes the connection pool
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DefaultPoolConfig suits a single-node SQLite file in WAL mode
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		MaxLifetime:  5 * time.Minute,
	}
}

// DB is the run history database with its prepared statements
type DB struct {
	*sql.DB
	pool PoolConfig

	mu       sync.RWMutex
	prepared map[statement]*sql.Stmt
}

// NewDB opens (creating if needed) the run history database under dataDir
func NewDB(dataDir string) (*DB, error) {
	return NewDBWithPool(dataDir, DefaultPoolConfig())
}

// NewDBWithPool is NewDB with explicit pool limits
func NewDBWithPool(dataDir string, pool PoolConfig) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)

	db := &DB{
		DB:       sqlDB,
		pool:     pool,
		prepared: make(map[statement]*sql.Stmt, len(statements)),
	}

	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.prepare(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"schema_version", len(migrations),
		"max_open_conns", pool.MaxOpenConns,
		"max_idle_conns", pool.MaxIdleConns)

	return db, nil
}

// SchemaVersion returns the number of migrations applied
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// migrate applies each pending migration in its own transaction
func (db *DB) migrate(ctx context.Context) error {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for version := current; version < len(migrations); version++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		for _, query := range migrations[version] {
			if _, err := tx.ExecContext(ctx, query); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", version+1, err)
			}
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", version+1, err)
		}
		slog.Debug("Applied migration", "version", version+1)
	}

	return nil
}

func (db *DB) prepare() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}

	return nil
}

// stmt returns a prepared statement by name
func (db *DB) stmt(name statement) (*sql.Stmt, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, ok := db.prepared[name]
	if !ok {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return s, nil
}

// GetPoolStats returns connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	stats := db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": db.pool.MaxOpenConns,
		"max_idle_connections": db.pool.MaxIdleConns,
		"max_lifetime_seconds": db.pool.MaxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// Close closes prepared statements and the connection
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, s := range db.prepared {
		if err := s.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[statement]*sql.Stmt)

	return db.DB.Close()
}
