// Package service defines the interfaces shared between the application's components.
package service

import (
	"context"
	"io"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// Gateway is the request/response surface of the SUSA backend.
type Gateway interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	UploadFile(ctx context.Context, fileName string, content io.Reader) (int64, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	PreAnalyze(ctx context.Context, id int64) (*model.PreAnalysisResult, error)
	// Analyze queues an analysis with the given mappings. Empty mappings ask
	// for the cached result of a finished analysis instead.
	Analyze(ctx context.Context, id int64, mappings map[string]string) (*AnalyzeResponse, error)
	RenameProject(ctx context.Context, id int64, newName string) error
	DeleteProject(ctx context.Context, id int64) error
	DownloadResult(ctx context.Context, taskID, fileName string, dst io.Writer) (int64, error)
}

// AnalyzeResponse holds exactly one of a queued acknowledgement (202) or a
// cached result (200).
type AnalyzeResponse struct {
	Queued *model.QueuedJob
	Result *model.AnalysisResult
}

// Notifier receives user-facing messages.
type Notifier interface {
	Notify(kind model.NotificationType, message string)
}

// StatusLedger remembers the last status processed per job so that
// re-delivered push events can be discarded. Swap stores status and returns
// the previous entry in one step, so concurrent deliveries of the same status
// see it as seen exactly once.
type StatusLedger interface {
	Last(jobID int64) (model.ProjectStatus, bool)
	Swap(jobID int64, status model.ProjectStatus) (prev model.ProjectStatus, seen bool)
}

// ProjectCache keeps the last known project list for offline use.
type ProjectCache interface {
	SaveProjects(ctx context.Context, projects []model.Project) error
	GetCachedProjects(ctx context.Context) ([]model.Project, time.Time, error)
}

// DownloadRecord describes a result file written to disk.
type DownloadRecord struct {
	DownloadedAt time.Time
	TaskID       string
	FileName     string
	Path         string
	ProjectID    int64
	Bytes        int64
}

// DownloadHistory records finished downloads.
type DownloadHistory interface {
	SaveDownload(ctx context.Context, record DownloadRecord) error
	GetDownloads(ctx context.Context, projectID int64) ([]DownloadRecord, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
