package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// ErrRunNotFound signals that the requested run does not exist.
var ErrRunNotFound = errors.New("crawl run not found")

// RunStore records crawl run lifecycles in Postgres.
type RunStore struct {
	pool  Pool
	table string
}

// NewRunStore constructs a store over an existing pool.
func NewRunStore(pool Pool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "crawl_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// StartRun inserts a running row for the run.
func (s *RunStore) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO UPDATE SET started_at = EXCLUDED.started_at, status = EXCLUDED.status`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, string(crawler.RunRunning)); err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the final counters of the run.
func (s *RunStore) FinishRun(ctx context.Context, summary crawler.RunSummary) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	finished_at = $1,
	status = $2,
	records_emitted = $3,
	fragments_buffered = $4,
	fragments_merged = $5,
	fragments_late = $6,
	fragments_orphaned = $7,
	sink_errors = $8,
	error_message = $9
WHERE run_id = $10`, s.table)

	var errMsg *string
	if summary.Error != "" {
		errMsg = &summary.Error
	}
	tag, err := s.pool.Exec(ctx, query,
		summary.FinishedAt,
		string(summary.Status),
		summary.Emitted,
		summary.FragmentsBuffered,
		summary.FragmentsMerged,
		summary.FragmentsLate,
		summary.FragmentsOrphaned,
		summary.SinkErrors,
		errMsg,
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", summary.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", summary.RunID, ErrRunNotFound)
	}
	return nil
}

// GetRun loads a stored run summary.
func (s *RunStore) GetRun(ctx context.Context, runID string) (crawler.RunSummary, error) {
	query := fmt.Sprintf(`
SELECT run_id, status, started_at, finished_at, records_emitted, fragments_buffered,
	fragments_merged, fragments_late, fragments_orphaned, sink_errors, error_message
FROM %s
WHERE run_id = $1`, s.table)

	var (
		run        crawler.RunSummary
		status     string
		finishedAt *time.Time
		errMsg     *string
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.RunID,
		&status,
		&run.StartedAt,
		&finishedAt,
		&run.Emitted,
		&run.FragmentsBuffered,
		&run.FragmentsMerged,
		&run.FragmentsLate,
		&run.FragmentsOrphaned,
		&run.SinkErrors,
		&errMsg,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.RunSummary{}, ErrRunNotFound
		}
		return crawler.RunSummary{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.Status = crawler.RunStatus(status)
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return run, nil
}
