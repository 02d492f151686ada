// Package archive records finished scrape runs.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/use-agent/dealscout/models"
)

// Store persists run records.
type Store interface {
	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// SaveRun inserts run, assigning an ID when it has none.
	SaveRun(ctx context.Context, run *models.RunRecord) error

	// ListRuns returns up to limit runs of tab, newest first.
	ListRuns(ctx context.Context, tab string, limit int) ([]models.RunRecord, error)

	Close() error
}

// defaultListLimit applies when ListRuns is called with limit <= 0.
const defaultListLimit = 20

// Open connects to the store named by dsn and migrates it. A postgres://
// or postgresql:// URL selects Postgres; anything else is a SQLite path.
func Open(ctx context.Context, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	if isPostgres(dsn) {
		st, err = NewPostgres(ctx, dsn)
	} else {
		if dir := filepath.Dir(dsn); dir != "" && dsn != ":memory:" {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, eris.Wrapf(mkErr, "archive: create %s", dir)
			}
		}
		st, err = NewSQLite(dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// countFound returns how many results carry a matched listing.
func countFound(results []models.Result) int {
	n := 0
	for _, r := range results {
		if r.MatchConfidence > 0 {
			n++
		}
	}
	return n
}
