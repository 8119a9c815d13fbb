// Package sqldb opens the session store on PostgreSQL or SQLite.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/quizfunnel/pkg/config"
	"github.com/zatekoja/quizfunnel/pkg/retry"
	_ "modernc.org/sqlite"
)

// goqu dialect names per driver.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Client represents a database client
type Client struct {
	db     *sql.DB
	driver string
}

// NewClient connects using cfg.Driver. PostgreSQL is pinged with
// exponential backoff so the service can start before the database.
func NewClient(ctx context.Context, cfg *config.DatabaseConfig) (*Client, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(cfg.DatabaseDSN())
	case config.DriverPostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("PostgreSQL connection attempt failed")
	}
	err = retry.Do(ctx, "PostgreSQL", retryCfg, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")
	return &Client{db: db, driver: config.DriverPostgres}, nil
}

// OpenSQLite opens an SQLite file, or an in-memory database for ":memory:".
// A single connection is kept so every statement sees the same database
// and the pragmas apply to it.
func OpenSQLite(path string) (*Client, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &Client{db: db, driver: config.DriverSQLite}, nil
}

// NewClientFromDB wraps an existing handle, e.g. a sqlmock connection.
func NewClientFromDB(db *sql.DB, driver string) *Client {
	return &Client{db: db, driver: driver}
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// DBX returns an sqlx handle sharing the same pool.
func (c *Client) DBX() *sqlx.DB {
	return sqlx.NewDb(c.db, c.sqlxDriverName())
}

// Driver returns config.DriverPostgres or config.DriverSQLite.
func (c *Client) Driver() string {
	return c.driver
}

// Dialect returns the goqu dialect matching the driver.
func (c *Client) Dialect() string {
	if c.driver == config.DriverSQLite {
		return DialectSQLite
	}
	return DialectPostgres
}

// sqlx only uses the name to pick a bind variable style.
func (c *Client) sqlxDriverName() string {
	if c.driver == config.DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// BeginTx starts a new transaction
func (c *Client) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// Ping verifies the connection to the database
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
