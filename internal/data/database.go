package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

// Database connection pool configuration
const (
	maxOpenConns    = 8
	maxIdleConns    = 2
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 10
	openRetries     = 3
)

const TimeFormat = time.RFC3339

// DB is the sqlite store for notification state and the chat request audit.
type DB struct {
	conn *sql.DB
	path string
}

// =============================================================================
// DATABASE CONNECTION AND SETUP
// =============================================================================

// Open connects to the sqlite file at path, creating it and its directory
// when missing, and makes sure the schema exists.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := openWithRetry(path, openRetries)
	if err != nil {
		return nil, err
	}

	d := &DB{conn: conn, path: path}
	if err := d.createTables(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func openWithRetry(path string, maxRetries int) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			lastErr = err
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
			}
			continue
		}

		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxIdleConns)
		conn.SetConnMaxLifetime(connMaxLifetime)
		conn.SetConnMaxIdleTime(connMaxIdleTime)

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = conn.PingContext(ctx)
		cancel()
		if err != nil {
			lastErr = err
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			conn.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
			}
			continue
		}

		if err := enablePragmas(conn); err != nil {
			logger.LogWarn("Failed to enable some database optimizations: %v", err)
		}

		logger.LogInfo("Database %s ready (attempt %d)", path, attempt)
		return conn, nil
	}
	return nil, fmt.Errorf("open database %s after %d attempts: %w", path, maxRetries, lastErr)
}

func enablePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := conn.ExecContext(ctx, pragma)
		cancel()
		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*2)
	defer cancel()
	if err := d.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection unhealthy: %w", err)
	}
	return nil
}

func (d *DB) Path() string { return d.path }

func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const notificationTableSchema = `
	CREATE TABLE IF NOT EXISTS alert_notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		channel TEXT NOT NULL,
		sent_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_notifications_identity ON alert_notifications(identity, sent_at);`

const chatRequestTableSchema = `
	CREATE TABLE IF NOT EXISTS chat_requests (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		asked_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chat_requests_asked_at ON chat_requests(asked_at);`

func (d *DB) createTables() error {
	tables := []struct {
		name   string
		schema string
	}{
		{"alert_notifications", notificationTableSchema},
		{"chat_requests", chatRequestTableSchema},
	}

	for _, table := range tables {
		if _, err := d.exec(context.Background(), table.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}
	return nil
}

// =============================================================================
// GENERIC DATABASE OPERATIONS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// exec runs a statement with the package query timeout.
func (d *DB) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database exec failed: %v", err)
		return nil, fmt.Errorf("database execution failed: %w", err)
	}
	return result, nil
}

// queryRow scans a single row; scan runs before the timeout context is released.
func (d *DB) queryRow(ctx context.Context, scan func(*sql.Row) error, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scan(d.conn.QueryRowContext(ctx, query, args...))
}
