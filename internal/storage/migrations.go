package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/susa-must-flow/internal/common"
)

// ExpectedSchemaVersion is the schema version this build reads and writes.
// Opening a database that cannot reach it is fatal.
const ExpectedSchemaVersion = 3

// Migration is one step of the schema, tracked through PRAGMA user_version.
type Migration struct {
	Description string
	Statements  []string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Project list snapshot",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id INTEGER PRIMARY KEY,
				original_file_name TEXT NOT NULL,
				status TEXT NOT NULL,
				uploaded_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS snapshot_meta (
				name TEXT PRIMARY KEY,
				refreshed_at DATETIME NOT NULL
			)`,
		},
	},
	{
		Version:     2,
		Description: "Processed job statuses",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS job_status (
				job_id INTEGER PRIMARY KEY,
				status TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
		},
	},
	{
		Version:     3,
		Description: "Download history",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS downloads (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id INTEGER NOT NULL,
				task_id TEXT NOT NULL,
				file_name TEXT NOT NULL,
				path TEXT NOT NULL,
				bytes INTEGER NOT NULL DEFAULT 0,
				downloaded_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_downloads_project ON downloads(project_id)`,
		},
	},
}

// Migrate brings the schema up to ExpectedSchemaVersion. Each step runs in
// its own transaction together with the version bump.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		common.LogInfo("Applied migration", common.Fields{"version": m.Version, "description": m.Description})
	}

	final, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}

func (s *SQLiteStorage) schemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStorage) apply(ctx context.Context, m Migration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.Statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	// PRAGMA does not accept bind parameters.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
