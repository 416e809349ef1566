// Package storage provides the local persistence layer of the SUSA client.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrInvalidProject  = errors.New("invalid project")
	ErrInvalidDownload = errors.New("invalid download record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateProjects checks every project of a snapshot. An empty slice is a
// valid snapshot.
func validateProjects(projects []model.Project) error {
	seen := make(map[int64]bool, len(projects))
	for i, p := range projects {
		if p.ID <= 0 {
			return fmt.Errorf("project at index %d: %w: missing ID", i, ErrInvalidProject)
		}
		if seen[p.ID] {
			return fmt.Errorf("project at index %d: %w: duplicate ID %d", i, ErrInvalidProject, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func validateDownload(r service.DownloadRecord) error {
	if r.ProjectID <= 0 {
		return fmt.Errorf("%w: missing project ID", ErrInvalidDownload)
	}
	if strings.TrimSpace(r.TaskID) == "" {
		return fmt.Errorf("%w: missing task ID", ErrInvalidDownload)
	}
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidDownload)
	}
	return nil
}
