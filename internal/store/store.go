// Package store persists refinement runs and their validation reports in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS episode_runs (
	id            uuid PRIMARY KEY,
	request_id    text NOT NULL DEFAULT '',
	title         text NOT NULL,
	state         text NOT NULL,
	iterations    int NOT NULL,
	overall_score double precision NOT NULL,
	passed        boolean NOT NULL,
	budget_tier   text NOT NULL,
	script        jsonb NOT NULL,
	timing        jsonb NOT NULL,
	review_status text NOT NULL DEFAULT 'none',
	review_note   text NOT NULL DEFAULT '',
	reviewed_at   timestamptz,
	created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validation_reports (
	id                    uuid PRIMARY KEY,
	run_id                uuid NOT NULL REFERENCES episode_runs(id) ON DELETE CASCADE,
	iteration             int NOT NULL,
	overall_score         double precision NOT NULL,
	voice_consistency     double precision NOT NULL,
	comedic_distribution  double precision NOT NULL,
	production_complexity double precision NOT NULL,
	plot_coherence        double precision NOT NULL,
	passed                boolean NOT NULL,
	regenerated_scenes    int[] NOT NULL DEFAULT '{}',
	UNIQUE (run_id, iteration)
);

CREATE TABLE IF NOT EXISTS report_issues (
	id           uuid PRIMARY KEY,
	report_id    uuid NOT NULL REFERENCES validation_reports(id) ON DELETE CASCADE,
	rank         int NOT NULL,
	severity     text NOT NULL,
	category     text NOT NULL,
	scene_number int NOT NULL,
	character_id text NOT NULL DEFAULT '',
	message      text NOT NULL
);

CREATE INDEX IF NOT EXISTS episode_runs_review_idx ON episode_runs (review_status, created_at DESC);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
