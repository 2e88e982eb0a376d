package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// GetPostgresClient opens the connection pool and checks it is reachable
// within the configured ping timeout.
func GetPostgresClient(ctx context.Context, config *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if config.Postgres.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.Postgres.MaxOpenConns)
	}
	if config.Postgres.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}
	if config.Postgres.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.Postgres.ConnMaxIdleTime)
	}

	pctx, cancel := context.WithTimeout(ctx, config.Postgres.PingTimeout)
	defer cancel()
	if err = db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("test connection failed: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables and indexes when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}
