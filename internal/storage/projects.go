package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/model"
)

const projectSnapshot = "projects"

// SaveProjects replaces the stored project snapshot.
func (s *SQLiteStorage) SaveProjects(ctx context.Context, projects []model.Project) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProjects(projects); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
		return fmt.Errorf("failed to clear project snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO projects (id, original_file_name, status, uploaded_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range projects {
		var uploaded any
		if !p.UploadedAt.IsZero() {
			uploaded = p.UploadedAt.UTC()
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.OriginalFileName, string(p.Status), uploaded); err != nil {
			return fmt.Errorf("failed to store project %d: %w", p.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (name, refreshed_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET refreshed_at = excluded.refreshed_at
	`, projectSnapshot, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record snapshot time: %w", err)
	}

	return tx.Commit()
}

// GetCachedProjects returns the stored snapshot, newest upload first, and
// when it was taken.
func (s *SQLiteStorage) GetCachedProjects(ctx context.Context) ([]model.Project, time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return nil, time.Time{}, err
	}

	var refreshedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT refreshed_at FROM snapshot_meta WHERE name = ?`, projectSnapshot,
	).Scan(&refreshedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("%w: no project list has been stored yet", common.ErrNotFound)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read snapshot time: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_file_name, status, uploaded_at
		FROM projects
		ORDER BY uploaded_at DESC, id DESC
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := []model.Project{}
	for rows.Next() {
		var (
			p        model.Project
			status   string
			uploaded sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.OriginalFileName, &status, &uploaded); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Status = model.NormalizeStatus(status)
		if uploaded.Valid {
			p.UploadedAt = model.Timestamp{Time: uploaded.Time}
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return projects, refreshedAt, nil
}
