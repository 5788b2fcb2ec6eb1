package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// DB wraps a connection pool with the dialect it was opened with
type DB struct {
	*sql.DB
	driver string
}

// New opens a database from a URL. postgres:// and postgresql:// use lib/pq;
// sqlite://path, file: URIs and :memory: use the pure Go SQLite driver.
func New(databaseURL string) (*DB, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == driverSQLite {
		// SQLite allows a single writer; one connection keeps writers queued in Go instead of failing with SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn, driver: driver}, nil
}

// Driver returns the database/sql driver name in use
func (db *DB) Driver() string {
	return db.driver
}

func parseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite URL is missing a path")
		}
		return driverSQLite, sqliteDSN(path), nil
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		return driverSQLite, sqliteDSN(databaseURL), nil
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme: %q", databaseURL)
	}
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $n placeholders into SQLite's ?n numbered form
func (db *DB) rebind(query string) string {
	if db.driver != driverSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

// QueryRowContext runs a single-row query with placeholders adapted to the dialect
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.rebind(query), args...)
}

// ExecContext runs a statement with placeholders adapted to the dialect
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.rebind(query), args...)
}
