package postgres

import (
	"context"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Connect opens a pool, verifies it with a ping and exports its connection
// statistics to reg. A nil reg skips metrics.
func Connect(ctx context.Context, url string, reg prometheus.Registerer) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	if reg != nil {
		if err := RegisterPoolMetrics(pool, reg); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// RegisterPoolMetrics exports pgxpool statistics labelled with the database name.
func RegisterPoolMetrics(pool *pgxpool.Pool, reg prometheus.Registerer) error {
	collector := pgxpoolprometheus.NewCollector(pool, map[string]string{"db_name": pool.Config().ConnConfig.Database})
	return eris.Wrap(reg.Register(collector), "postgres: register pool metrics")
}
