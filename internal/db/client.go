// Package db archives terminal research sessions to a SQL database for
// audit. Writes are asynchronous and best effort: the workflow never waits
// on the archive, and a full queue drops the record with a warning.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS research_sessions (
    id                 TEXT PRIMARY KEY,
    status             TEXT NOT NULL,
    research_focus     TEXT NOT NULL,
    competitors        TEXT NOT NULL,
    max_age_days       INTEGER NOT NULL,
    min_sources        INTEGER NOT NULL,
    error_messages     TEXT,
    data_sources_count INTEGER NOT NULL DEFAULT 0,
    report             TEXT,
    created_at         TIMESTAMP NOT NULL,
    completed_at       TIMESTAMP,
    archived_at        TIMESTAMP NOT NULL
)`

// Client owns the archive database connection.
type Client struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// Open connects to the archive database, verifies the connection and
// creates the schema when missing. Supported drivers: postgres, sqlite3.
func Open(cfg config.ArchiveConfig, logger *zap.Logger) (*Client, error) {
	switch cfg.Driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	logger.Info("Archive database ready", zap.String("driver", cfg.Driver))
	return &Client{db: db, driver: cfg.Driver, logger: logger}, nil
}

// NewClient wraps an existing connection. Used by tests with a mock driver.
func NewClient(db *sqlx.DB, driver string, logger *zap.Logger) *Client {
	return &Client{db: db, driver: driver, logger: logger}
}

// DB exposes the underlying connection for health checks.
func (c *Client) DB() *sqlx.DB { return c.db }

// Close closes the database connection.
func (c *Client) Close() error { return c.db.Close() }
