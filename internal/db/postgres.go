// Package db persists benchmark observations to PostgreSQL so runs can be
// compared across hosts and over time. The store is optional: the runner
// degrades to log-only operation when no DATABASE_URL is configured.
package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nislab/gensync/internal/bench"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for benchmark observations")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Benchmark observation schema initialized")
	return nil
}

// SaveObservation persists one benchmark observation.
func (s *PostgresStore) SaveObservation(ctx context.Context, o *bench.BenchObserv) error {
	sql := `
		INSERT INTO bench_observations
		(run_id, observed_at, protocol, params, server_stats, client_stats,
		 server_success, client_success, server_error, client_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE
		SET server_stats = EXCLUDED.server_stats,
		    client_stats = EXCLUDED.client_stats,
		    server_success = EXCLUDED.server_success,
		    client_success = EXCLUDED.client_success,
		    server_error = EXCLUDED.server_error,
		    client_error = EXCLUDED.client_error;
	`
	_, err := s.pool.Exec(ctx, sql,
		o.RunID, o.When, o.Protocol, o.Params,
		o.ServerStats, o.ClientStats,
		o.ServerSuccess, o.ClientSuccess,
		o.ServerError, o.ClientError,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bench observation: %v", err)
	}
	return nil
}

// RecentObservations lists the latest observations, newest first.
func (s *PostgresStore) RecentObservations(ctx context.Context, limit int) ([]bench.BenchObserv, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sql := `
		SELECT run_id, observed_at, protocol, params, server_stats, client_stats,
		       server_success, client_success, server_error, client_error
		FROM bench_observations
		ORDER BY observed_at DESC
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bench.BenchObserv
	for rows.Next() {
		var o bench.BenchObserv
		if err := rows.Scan(&o.RunID, &o.When, &o.Protocol, &o.Params,
			&o.ServerStats, &o.ClientStats,
			&o.ServerSuccess, &o.ClientSuccess,
			&o.ServerError, &o.ClientError); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ProtocolSummary aggregates success counts per protocol.
type ProtocolSummary struct {
	Protocol string `json:"protocol"`
	Runs     int    `json:"runs"`
	Failures int    `json:"failures"`
}

// Summaries reports per-protocol run and failure counts.
func (s *PostgresStore) Summaries(ctx context.Context) ([]ProtocolSummary, error) {
	sql := `
		SELECT protocol,
		       COUNT(*) AS runs,
		       COUNT(*) FILTER (WHERE NOT (server_success AND client_success)) AS failures
		FROM bench_observations
		GROUP BY protocol
		ORDER BY protocol;
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProtocolSummary
	for rows.Next() {
		var p ProtocolSummary
		if err := rows.Scan(&p.Protocol, &p.Runs, &p.Failures); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
