package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/use-agent/dealscout/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          TEXT PRIMARY KEY,
	tab         TEXT NOT NULL,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	completed   INTEGER NOT NULL DEFAULT 0,
	found       INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	results     TEXT NOT NULL DEFAULT '[]',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_tab_finished ON scrape_runs(tab, finished_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.RunRecord) error {
	prepareRun(run)

	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, tab, status, total, completed, found, message, results, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Tab, string(run.Status), run.Total, run.Completed, run.Found, run.Message,
		string(resultsJSON), run.StartedAt, run.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, tab string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tab, status, total, completed, found, message, results, started_at, finished_at
		 FROM scrape_runs WHERE tab = ? ORDER BY finished_at DESC LIMIT ?`,
		tab, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		var (
			r           models.RunRecord
			status      string
			resultsJSON string
		)
		if err := rows.Scan(&r.ID, &r.Tab, &status, &r.Total, &r.Completed, &r.Found,
			&r.Message, &resultsJSON, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = models.Status(status)
		if err := json.Unmarshal([]byte(resultsJSON), &r.Results); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal results")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// prepareRun fills the ID, derived counters and normalizes timestamps.
func prepareRun(run *models.RunRecord) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Results == nil {
		run.Results = []models.Result{}
	}
	run.Found = countFound(run.Results)
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
}
