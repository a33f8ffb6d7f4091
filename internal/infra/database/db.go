package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver for local runs and tests
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewConnection opens a database handle for driverName and pings it.
func NewConnection(ctx context.Context, driverName, dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if driverName == DriverSQLite {
		// SQLite allows a single writer; an in-memory database lives only as long as its connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetConnMaxLifetime(defaultConnMaxLifetime)
		db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
func NewPostgresConnection(ctx context.Context, dataSourceName string) (*sqlx.DB, error) {
	return NewConnection(ctx, DriverPostgres, dataSourceName)
}

// NewSQLiteConnection opens a SQLite database, ":memory:" included, and migrates it.
func NewSQLiteConnection(ctx context.Context, dataSourceName string) (*sqlx.DB, error) {
	db, err := NewConnection(ctx, DriverSQLite, dataSourceName)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
