// Package coordinator owns the client-side project lifecycle: the project
// list, the current selection, and the reaction to job status events.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

// Selection is the active project and what is displayed for it. At most one
// of Analysis and Mapping is set.
type Selection struct {
	Analysis  *model.AnalysisResult
	Mapping   *model.PreAnalysisResult
	Status    model.ProjectStatus
	ProjectID int64
	Active    bool
}

// Snapshot is a read-only copy of the coordinator state.
type Snapshot struct {
	LastRefresh     time.Time
	AuthError       error
	Projects        []model.Project
	Selection       Selection
	Loading         bool
	FetchingResults bool
}

// SelectedProject returns the listed project matching the selection.
func (s Snapshot) SelectedProject() (model.Project, bool) {
	if !s.Selection.Active {
		return model.Project{}, false
	}
	return model.FindProject(s.Projects, s.Selection.ProjectID)
}

// Coordinator reconciles user commands and job events into one consistent
// view. All methods are safe for concurrent use; failures are reported to
// the notifier and signalled by a false return.
type Coordinator struct {
	gateway     service.Gateway
	notifier    service.Notifier
	ledger      service.StatusLedger
	cache       service.ProjectCache
	logger      *slog.Logger
	changes     chan struct{}
	authErr     error
	lastRefresh time.Time
	projects    []model.Project
	selection   Selection
	loading     int
	fetching    atomic.Bool
	mu          sync.RWMutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLedger replaces the in-memory status ledger.
func WithLedger(l service.StatusLedger) Option {
	return func(c *Coordinator) { c.ledger = l }
}

// WithCache stores every refreshed project list.
func WithCache(cache service.ProjectCache) Option {
	return func(c *Coordinator) { c.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a coordinator.
func New(gateway service.Gateway, notifier service.Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway:  gateway,
		notifier: notifier,
		ledger:   NewMemoryLedger(),
		logger:   slog.Default(),
		changes:  make(chan struct{}, 1),
		projects: []model.Project{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Changes signals that the state changed. Bursts coalesce into one signal.
func (c *Coordinator) Changes() <-chan struct{} {
	return c.changes
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	projects := make([]model.Project, len(c.projects))
	copy(projects, c.projects)
	return Snapshot{
		Projects:        projects,
		Selection:       c.selection,
		Loading:         c.loading > 0,
		FetchingResults: c.fetching.Load(),
		AuthError:       c.authErr,
		LastRefresh:     c.lastRefresh,
	}
}

// RefreshProjects replaces the project list with the backend's. Auth failures
// are reported as they are and never retried here.
func (c *Coordinator) RefreshProjects(ctx context.Context) bool {
	c.update(func() { c.loading++ })
	projects, err := c.gateway.ListProjects(ctx)

	if err != nil {
		if !common.IsAuthError(err) {
			err = fmt.Errorf("%w: %w", common.ErrFetchFailed, err)
		}
		c.update(func() {
			c.loading--
			if common.IsAuthError(err) {
				c.authErr = err
			}
		})
		c.fail(err, "Failed to refresh projects")
		return false
	}

	c.update(func() {
		c.loading--
		c.projects = projects
		c.authErr = nil
		c.lastRefresh = time.Now()
	})

	if c.cache != nil {
		if err := c.cache.SaveProjects(ctx, projects); err != nil {
			c.logger.Warn("Failed to cache project list", "error", err)
		}
	}
	return true
}

// CachedProjects returns the last stored project list and when it was stored.
func (c *Coordinator) CachedProjects(ctx context.Context) ([]model.Project, time.Time, error) {
	if c.cache == nil {
		return nil, time.Time{}, fmt.Errorf("%w: no project cache configured", common.ErrNotFound)
	}
	return c.cache.GetCachedProjects(ctx)
}

// UploadFile uploads content as fileName, refreshes the list and selects the
// new project. It returns the new project id.
func (c *Coordinator) UploadFile(ctx context.Context, fileName string, content io.Reader) (int64, bool) {
	c.notify(model.NotificationInfo, fmt.Sprintf("Uploading file %q...", fileName))

	id, err := c.gateway.UploadFile(ctx, fileName, content)
	if err != nil {
		c.fail(err, "Upload failed")
		return 0, false
	}

	c.notify(model.NotificationSuccess, fmt.Sprintf("File %q uploaded successfully!", fileName))
	c.RefreshProjects(ctx)
	c.SelectProject(ctx, id)
	return id, true
}

// SelectProject makes id the active project and loads what its status
// calls for. A project missing from the list triggers one refresh before
// the selection is given up.
func (c *Coordinator) SelectProject(ctx context.Context, id int64) {
	var project model.Project
	var found bool
	c.update(func() {
		c.selection = Selection{ProjectID: id, Active: true}
		project, found = model.FindProject(c.projects, id)
	})

	if !found {
		c.RefreshProjects(ctx)
		if !c.isSelected(id) {
			return
		}
		c.mu.RLock()
		project, found = model.FindProject(c.projects, id)
		c.mu.RUnlock()
		if !found {
			c.notify(model.NotificationError, fmt.Sprintf("Project %d was not found.", id))
			c.update(func() {
				if c.selection.ProjectID == id {
					c.selection = Selection{}
				}
			})
			return
		}
	}

	if !c.setSelectedStatus(id, project.Status) {
		return
	}

	switch {
	case project.Status.NeedsMapping():
		c.PerformPreAnalysis(ctx, id)
	case project.Status == model.StatusAnalysisComplete:
		c.FetchAnalysisResults(ctx, id)
	default:
		c.notify(model.NotificationInfo, fmt.Sprintf("Project %d is currently %s. Please wait.", id, project.Status))
	}
}

// PerformPreAnalysis loads the accounts that still need a category.
func (c *Coordinator) PerformPreAnalysis(ctx context.Context, id int64) bool {
	c.update(func() {
		if c.claimSelection(id) {
			c.selection.Analysis = nil
			c.selection.Mapping = nil
		}
	})
	c.notify(model.NotificationInfo, "Initiating pre-analysis...")

	pre, err := c.gateway.PreAnalyze(ctx, id)
	if err != nil {
		c.notify(model.NotificationError, "Error: "+common.Message(err))
		c.logger.Warn("Pre-analysis failed", "project_id", id, "error", err)
		c.RefreshProjects(ctx)
		return false
	}

	c.update(func() {
		if c.selection.Active && c.selection.ProjectID == id {
			c.selection.Mapping = pre
			c.selection.Analysis = nil
		}
	})
	c.notify(model.NotificationSuccess, "Pre-analysis complete. Ready for mapping.")
	return true
}

// SaveMappingsAndRunAnalysis submits account mappings and expects the
// backend to queue the analysis.
func (c *Coordinator) SaveMappingsAndRunAnalysis(ctx context.Context, id int64, mappings map[string]string) bool {
	c.update(func() {
		if c.selection.Active && c.selection.ProjectID == id {
			c.selection.Mapping = nil
		}
	})
	c.notify(model.NotificationInfo, "Queuing analysis job...")

	resp, err := c.gateway.Analyze(ctx, id, mappings)
	if err == nil && resp.Queued == nil {
		err = common.NewUserError("Failed to queue job", fmt.Errorf("%w: expected a queued job", common.ErrUnexpectedResponse))
	}
	if err != nil {
		c.fail(err, "Failed to queue job")
		c.RefreshProjects(ctx)
		return false
	}

	c.notify(model.NotificationSuccess, fmt.Sprintf("Job %d queued! Status: %s.", resp.Queued.JobID, resp.Queued.Status))
	c.RefreshProjects(ctx)
	return true
}

// FetchAnalysisResults loads the finished analysis. Only one fetch runs at a
// time across the coordinator; a concurrent call returns false at once.
func (c *Coordinator) FetchAnalysisResults(ctx context.Context, id int64) bool {
	if !c.fetching.CompareAndSwap(false, true) {
		c.logger.Debug("Rejected concurrent result fetch", "project_id", id, "error", common.ErrConcurrencyRejected)
		return false
	}
	defer func() {
		c.fetching.Store(false)
		c.signal()
	}()

	c.update(func() {
		if c.claimSelection(id) {
			c.selection.Mapping = nil
		}
	})
	c.notify(model.NotificationInfo, "Loading analysis results...")

	resp, err := c.gateway.Analyze(ctx, id, map[string]string{})
	if err == nil && resp.Result == nil {
		err = common.NewUserError("Analysis results are not available yet.", fmt.Errorf("%w: analysis was queued", common.ErrUnexpectedResponse))
	}
	if err != nil {
		c.update(func() {
			if c.selection.ProjectID == id {
				c.selection.Analysis = nil
			}
		})
		c.fail(err, "Failed to load analysis results")
		return false
	}

	c.update(func() {
		if c.selection.Active && c.selection.ProjectID == id {
			c.selection.Analysis = resp.Result
			c.selection.Mapping = nil
		}
	})
	c.notify(model.NotificationSuccess, "Cached analysis results loaded.")
	return true
}

// DeleteProject deletes the project and drops the selection if it pointed
// at it.
func (c *Coordinator) DeleteProject(ctx context.Context, id int64) bool {
	if err := c.gateway.DeleteProject(ctx, id); err != nil {
		c.fail(err, "Failed to delete project")
		return false
	}

	c.notify(model.NotificationSuccess, "Project deleted successfully.")
	c.RefreshProjects(ctx)
	c.update(func() {
		if c.selection.Active && c.selection.ProjectID == id {
			c.selection = Selection{}
		}
	})
	return true
}

// RenameProject renames the project. The selection is left alone; the new
// name arrives with the refreshed list.
func (c *Coordinator) RenameProject(ctx context.Context, id int64, newName string) bool {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		c.notify(model.NotificationError, "Project name must not be empty.")
		return false
	}

	if err := c.gateway.RenameProject(ctx, id, newName); err != nil {
		c.fail(err, "Failed to rename project")
		return false
	}

	c.notify(model.NotificationSuccess, "Project renamed successfully.")
	c.RefreshProjects(ctx)
	return true
}

// HandleJobUpdate applies a pushed status change. A status equal to the last
// one processed for the job is dropped without side effects.
func (c *Coordinator) HandleJobUpdate(ctx context.Context, ev model.JobUpdate) {
	if prev, seen := c.ledger.Swap(ev.JobID, ev.Status); seen && prev == ev.Status {
		c.logger.Debug("Ignoring duplicate job update", "job_id", ev.JobID, "status", ev.Status)
		return
	}

	c.RefreshProjects(ctx)

	var selected bool
	c.update(func() {
		selected = c.selection.Active && c.selection.ProjectID == ev.JobID
		if !selected {
			return
		}
		c.selection.Status = ev.Status
		c.selection.Analysis = nil
		if !ev.Status.NeedsMapping() {
			c.selection.Mapping = nil
		}
	})
	if !selected {
		return
	}

	c.logger.Info("Job status changed", "job_id", ev.JobID, "status", ev.Status)

	switch {
	case ev.Status == model.StatusAnalysisComplete:
		c.notify(model.NotificationSuccess, fmt.Sprintf("Analysis for project %d completed! Loading results...", ev.JobID))
		c.FetchAnalysisResults(ctx, ev.JobID)
	case ev.Status.IsFailed():
		msg := fmt.Sprintf("Analysis for project %d failed.", ev.JobID)
		if reason := failureReason(ev); reason != "" {
			msg = fmt.Sprintf("Analysis for project %d failed: %s", ev.JobID, reason)
		}
		c.notify(model.NotificationError, msg)
	case ev.Status == model.StatusProcessing:
		c.notify(model.NotificationInfo, fmt.Sprintf("Project %d analysis is now running.", ev.JobID))
	}
}

// Reconcile refreshes the list and replays a status change of the selected
// project that no push event delivered.
func (c *Coordinator) Reconcile(ctx context.Context) bool {
	if !c.RefreshProjects(ctx) {
		return false
	}

	c.mu.RLock()
	sel := c.selection
	project, found := model.FindProject(c.projects, sel.ProjectID)
	c.mu.RUnlock()

	if !sel.Active || !found || sel.Status == "" || project.Status == sel.Status {
		return true
	}

	c.logger.Info("Reconciling missed status change", "project_id", project.ID, "from", sel.Status, "to", project.Status)
	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: project.ID, Status: project.Status})
	return true
}

// ClearSelection drops the active project.
func (c *Coordinator) ClearSelection() {
	c.update(func() { c.selection = Selection{} })
}

func (c *Coordinator) isSelected(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection.Active && c.selection.ProjectID == id
}

func (c *Coordinator) setSelectedStatus(id int64, status model.ProjectStatus) bool {
	var ok bool
	c.update(func() {
		if c.selection.Active && c.selection.ProjectID == id {
			c.selection.Status = status
			ok = true
		}
	})
	return ok
}

// claimSelection reports whether id is, or now becomes, the active project.
// An idle coordinator adopts id; another active project is left alone.
// Callers hold mu.
func (c *Coordinator) claimSelection(id int64) bool {
	if !c.selection.Active {
		c.selection = Selection{ProjectID: id, Active: true}
		return true
	}
	return c.selection.ProjectID == id
}

func (c *Coordinator) update(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Coordinator) notify(kind model.NotificationType, message string) {
	if c.notifier != nil {
		c.notifier.Notify(kind, message)
	}
}

func (c *Coordinator) fail(err error, msg string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Error(msg, "error", err)
	c.notify(model.NotificationError, common.Message(err))
}

func failureReason(ev model.JobUpdate) string {
	if reason := ev.Status.FailureReason(); reason != "" {
		return reason
	}
	return strings.TrimSpace(ev.Error)
}
