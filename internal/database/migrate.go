package database

import (
	"context"
	"fmt"
)

var usersSchema = map[string]string{
	driverPostgres: `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			auth0_id VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	driverSQLite: `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			auth0_id TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			name TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
}

// Migrate creates the schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	ddl, ok := usersSchema[db.driver]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.driver)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}
