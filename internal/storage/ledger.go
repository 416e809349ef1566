package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

const ledgerWriteTimeout = 5 * time.Second

// Ledger is a StatusLedger that survives restarts. Reads are served from
// memory; status changes are written through to the job_status table.
type Ledger struct {
	store  *SQLiteStorage
	logger *slog.Logger
	last   map[int64]model.ProjectStatus
	mu     sync.Mutex
}

// NewLedger loads the processed statuses stored so far.
func NewLedger(ctx context.Context, store *SQLiteStorage, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	statuses, err := store.JobStatuses(ctx)
	if err != nil {
		return nil, err
	}
	return &Ledger{store: store, logger: logger, last: statuses}, nil
}

// Last implements service.StatusLedger.
func (l *Ledger) Last(jobID int64) (model.ProjectStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.last[jobID]
	return s, ok
}

// Swap implements service.StatusLedger. Only changed statuses are written
// to the job_status table. A failed write is logged; the in-memory entry
// still suppresses duplicates for this run.
func (l *Ledger) Swap(jobID int64, status model.ProjectStatus) (model.ProjectStatus, bool) {
	l.mu.Lock()
	prev, seen := l.last[jobID]
	l.last[jobID] = status
	l.mu.Unlock()

	if !seen || prev != status {
		l.persist(jobID, status)
	}
	return prev, seen
}

func (l *Ledger) persist(jobID int64, status model.ProjectStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
	defer cancel()
	if err := l.store.SaveJobStatus(ctx, jobID, status); err != nil {
		l.logger.Warn("Failed to persist job status", "job_id", jobID, "status", status, "error", err)
	}
}

// JobStatuses returns every stored job status.
func (s *SQLiteStorage) JobStatuses(ctx context.Context) (map[int64]model.ProjectStatus, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, status FROM job_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]model.ProjectStatus)
	for rows.Next() {
		var (
			id     int64
			status string
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan job status: %w", err)
		}
		out[id] = model.ProjectStatus(status)
	}
	return out, rows.Err()
}

// SaveJobStatus upserts the last processed status of a job.
func (s *SQLiteStorage) SaveJobStatus(ctx context.Context, jobID int64, status model.ProjectStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(string(status), "status"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, jobID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save job status: %w", err)
	}
	return nil
}

var _ service.StatusLedger = (*Ledger)(nil)
