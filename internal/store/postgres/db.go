package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// MustOpen connects the ledger pool and verifies the database is reachable
// before any service starts. Payments cannot run degraded without the ledger,
// so a failure here exits.
func MustOpen(ctx context.Context, dsn string) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("ledger database config invalid")
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("ledger database unreachable")
	}
	return pool
}
