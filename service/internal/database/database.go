// internal/database/database.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB is the shared pool, nil when the relay runs without Postgres.
var DB *pgxpool.Pool

// ConnectDB opens the shared pool and checks the server answers.
func ConnectDB(ctx context.Context, url string) error {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	DB = pool
	logrus.WithField("host", cfg.ConnConfig.Host).Info("connected to postgres")
	return nil
}

// CloseDB closes the shared pool if one is open.
func CloseDB() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}

// dbtx is the part of pgxpool.Pool the store needs.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          UUID PRIMARY KEY,
	spec        JSONB NOT NULL,
	room_hash   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS game_results (
	session_id  UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	winner      UUID,
	forfeited   BOOLEAN NOT NULL DEFAULT false,
	turns       INTEGER NOT NULL,
	actions     INTEGER NOT NULL,
	placements  JSONB NOT NULL,
	started_at  TIMESTAMPTZ,
	ended_at    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables the store writes to.
func EnsureSchema(ctx context.Context, db dbtx) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
