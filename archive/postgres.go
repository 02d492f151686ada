package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/use-agent/dealscout/models"
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          TEXT PRIMARY KEY,
	tab         TEXT NOT NULL,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	completed   INTEGER NOT NULL DEFAULT 0,
	found       INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	results     JSONB NOT NULL DEFAULT '[]'::jsonb,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_tab_finished ON scrape_runs(tab, finished_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *models.RunRecord) error {
	prepareRun(run)

	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, tab, status, total, completed, found, message, results, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Tab, string(run.Status), run.Total, run.Completed, run.Found, run.Message,
		resultsJSON, run.StartedAt, run.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, tab string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, tab, status, total, completed, found, message, results, started_at, finished_at
		 FROM scrape_runs WHERE tab = $1 ORDER BY finished_at DESC LIMIT $2`,
		tab, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var (
			r           models.RunRecord
			status      string
			resultsJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Tab, &status, &r.Total, &r.Completed, &r.Found,
			&r.Message, &resultsJSON, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = models.Status(status)
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
