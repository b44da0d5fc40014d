package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

// StartRun records a run as running. Re-starting a known run ID is a no-op.
func (s *Store) StartRun(ctx context.Context, summary crawler.RunSummary) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, status, started_at)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO NOTHING`, s.runsTable)
	if _, err := s.pool.Exec(ctx, query, summary.RunID, string(crawler.RunRunning), summary.StartedAt); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, summary crawler.RunSummary) error {
	var errMsg *string
	if summary.Error != "" {
		errMsg = &summary.Error
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, status, started_at, finished_at, pages, links,
	fetched, fetch_failed, stored, persist_failed, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	finished_at = EXCLUDED.finished_at,
	pages = EXCLUDED.pages,
	links = EXCLUDED.links,
	fetched = EXCLUDED.fetched,
	fetch_failed = EXCLUDED.fetch_failed,
	stored = EXCLUDED.stored,
	persist_failed = EXCLUDED.persist_failed,
	error_message = EXCLUDED.error_message`, s.runsTable)

	_, err := s.pool.Exec(ctx, query,
		summary.RunID,
		string(summary.Status),
		summary.StartedAt,
		summary.FinishedAt,
		summary.Pages,
		summary.Links,
		summary.Fetched,
		summary.FetchFailed,
		summary.Stored,
		summary.PersistFailed,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run or crawler.ErrNotFound.
func (s *Store) LastRun(ctx context.Context) (crawler.RunSummary, error) {
	query := fmt.Sprintf(`
SELECT run_id, status, started_at, finished_at, pages, links,
	fetched, fetch_failed, stored, persist_failed, error_message
FROM %s
ORDER BY started_at DESC
LIMIT 1`, s.runsTable)

	var (
		summary    crawler.RunSummary
		status     string
		finishedAt *time.Time
		errMsg     *string
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&summary.RunID,
		&status,
		&summary.StartedAt,
		&finishedAt,
		&summary.Pages,
		&summary.Links,
		&summary.Fetched,
		&summary.FetchFailed,
		&summary.Stored,
		&summary.PersistFailed,
		&errMsg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.RunSummary{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("last run: %w", err)
	}
	summary.Status = crawler.RunStatus(status)
	if finishedAt != nil {
		summary.FinishedAt = *finishedAt
	}
	if errMsg != nil {
		summary.Error = *errMsg
	}
	return summary, nil
}
