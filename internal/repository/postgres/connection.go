package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dtroode/identity-server/database"
)

// Connection owns the pgx pool and the database/sql handle built on top of it.
type Connection struct {
	Pool *pgxpool.Pool
	DB   *sql.DB
}

// NewConnection opens a pool, applies migrations and returns the connection.
func NewConnection(ctx context.Context, dsn string, maxConns int32) (*Connection, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		conf.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)

	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Connection{
		Pool: pool,
		DB:   db,
	}, nil
}

func (c *Connection) Close() error {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return nil
}

func (c *Connection) Ping(ctx context.Context) error {
	if c.Pool == nil {
		return fmt.Errorf("connection pool is nil")
	}
	return c.Pool.Ping(ctx)
}
