package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/service"
)

// SaveDownload records a finished download.
func (s *SQLiteStorage) SaveDownload(ctx context.Context, record service.DownloadRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDownload(record); err != nil {
		return err
	}
	if record.DownloadedAt.IsZero() {
		record.DownloadedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (project_id, task_id, file_name, path, bytes, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.ProjectID, record.TaskID, record.FileName, record.Path, record.Bytes, record.DownloadedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}
	return nil
}

// GetDownloads returns the downloads of a project, newest first. A project id
// of zero returns every download.
func (s *SQLiteStorage) GetDownloads(ctx context.Context, projectID int64) ([]service.DownloadRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, task_id, file_name, path, bytes, downloaded_at
		FROM downloads
		WHERE ? = 0 OR project_id = ?
		ORDER BY downloaded_at DESC, id DESC
	`, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []service.DownloadRecord
	for rows.Next() {
		var r service.DownloadRecord
		if err := rows.Scan(&r.ProjectID, &r.TaskID, &r.FileName, &r.Path, &r.Bytes, &r.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate downloads: %w", err)
	}
	return records, nil
}

var (
	_ service.DownloadHistory = (*SQLiteStorage)(nil)
	_ service.ProjectCache    = (*SQLiteStorage)(nil)
)
