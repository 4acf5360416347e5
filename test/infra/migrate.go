package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"productmaster/migrations"
)

// ApplyMigrations brings the schema up via the embedded goose migrations and
// returns a pool connected to the migrated database.
func ApplyMigrations(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if err := migrations.Up(ctx, dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	return pool, nil
}
