package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoRuns is returned by LatestRun for a producer never imported.
var ErrNoRuns = errors.New("no import run recorded")

// Run is one import, successful or not.
type Run struct {
	ID            uuid.UUID
	ProducerID    string
	ProducerName  string
	DataSourceID  string // empty when the run failed before creating it
	Source        string
	SHA256        string
	RoutesCreated int
	RoutesFound   int
	StopsCreated  int
	StopsFound    int
	StopsUpdated  int
	LinksAdded    int
	LinksExisting int
	LinksSkipped  int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

const columns = `run_id, producer_id, producer_name, data_source_id, source, sha256,
	routes_created, routes_found, stops_created, stops_found, stops_updated,
	links_added, links_existing, links_skipped, error, started_at, finished_at`

func (l *Ledger) ensureSchema(ctx context.Context) error {
	ts := l.dialect.timestampType()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS import_runs (
	run_id TEXT PRIMARY KEY,
	producer_id TEXT NOT NULL,
	producer_name TEXT NOT NULL,
	data_source_id TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	sha256 TEXT NOT NULL DEFAULT '',
	routes_created INTEGER NOT NULL DEFAULT 0,
	routes_found INTEGER NOT NULL DEFAULT 0,
	stops_created INTEGER NOT NULL DEFAULT 0,
	stops_found INTEGER NOT NULL DEFAULT 0,
	stops_updated INTEGER NOT NULL DEFAULT 0,
	links_added INTEGER NOT NULL DEFAULT 0,
	links_existing INTEGER NOT NULL DEFAULT 0,
	links_skipped INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at ` + ts + ` NOT NULL,
	finished_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS import_runs_producer_started ON import_runs (producer_id, started_at)`,
	}
	for _, s := range stmts {
		if _, err := l.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create ledger schema: %w", err)
		}
	}
	return nil
}

// RecordRun stores run, assigning it an id when it has none.
func (l *Ledger) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	q := `INSERT INTO import_runs (` + columns + `) VALUES (` + l.dialect.placeholders(17) + `)`
	_, err := l.db.ExecContext(ctx, q,
		run.ID.String(), run.ProducerID, run.ProducerName, run.DataSourceID, run.Source, run.SHA256,
		run.RoutesCreated, run.RoutesFound, run.StopsCreated, run.StopsFound, run.StopsUpdated,
		run.LinksAdded, run.LinksExisting, run.LinksSkipped, run.Error,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent successful run of a producer.
func (l *Ledger) LatestRun(ctx context.Context, producerID string) (*Run, error) {
	q := `SELECT ` + columns + ` FROM import_runs
WHERE producer_id = ` + l.dialect.placeholders(1) + ` AND error = ''
ORDER BY started_at DESC
LIMIT 1`
	var r Run
	var id string
	err := l.db.QueryRowContext(ctx, q, producerID).Scan(
		&id, &r.ProducerID, &r.ProducerName, &r.DataSourceID, &r.Source, &r.SHA256,
		&r.RoutesCreated, &r.RoutesFound, &r.StopsCreated, &r.StopsFound, &r.StopsUpdated,
		&r.LinksAdded, &r.LinksExisting, &r.LinksSkipped, &r.Error,
		&r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for producer %s", ErrNoRuns, producerID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest import run: %w", err)
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("latest import run: invalid id %q: %w", id, err)
	}
	return &r, nil
}
