package coordinator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/gateway"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/notify"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

func newTestCoordinator(projects ...model.Project) (*Coordinator, *gateway.MockClient, *notify.Recorder) {
	gw := gateway.NewMockClient()
	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		return projects, nil
	}
	rec := &notify.Recorder{}
	return New(gw, rec), gw, rec
}

func sampleResult(title string) *model.AnalysisResult {
	return &model.AnalysisResult{
		ReportTitle: title,
		KpiResults: []model.KpiRow{model.NewKpiRow(
			model.KpiField{Name: model.FieldGroup, Value: model.GroupTotal},
			model.KpiField{Name: model.FieldEBIT, Value: 12.5},
		)},
		ResultFiles: model.ResultFiles{TaskID: "t-" + title},
	}
}

func TestHandleJobUpdate_Idempotency(t *testing.T) {
	ctx := context.Background()
	c, gw, _ := newTestCoordinator(model.Project{ID: 9, Status: model.StatusQueued})

	statuses := []model.ProjectStatus{
		model.StatusQueued, model.StatusQueued,
		model.StatusProcessing, model.StatusProcessing,
		model.StatusQueued,
	}
	for _, s := range statuses {
		c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 9, Status: s})
	}

	assert.Equal(t, 3, gw.ListCount())
	last, ok := c.ledger.Last(9)
	require.True(t, ok)
	assert.Equal(t, model.StatusQueued, last)
}

func TestHandleJobUpdate_DuplicateHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator(model.Project{ID: 4, Status: model.StatusProcessing})
	c.SelectProject(ctx, 4)
	gw.Reset()
	rec.Reset()

	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 4, Status: model.StatusProcessing})
	require.Equal(t, 1, gw.ListCount())
	require.Len(t, rec.All(), 1)

	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 4, Status: model.StatusProcessing})
	assert.Equal(t, 1, gw.ListCount())
	assert.Len(t, rec.All(), 1)
}

// rendezvousLedger holds every Swap caller until n of them have arrived, so
// concurrent deliveries all reach the ledger before any of them is answered.
type rendezvousLedger struct {
	inner   *MemoryLedger
	arrived sync.WaitGroup
}

func newRendezvousLedger(n int) *rendezvousLedger {
	l := &rendezvousLedger{inner: NewMemoryLedger()}
	l.arrived.Add(n)
	return l
}

func (l *rendezvousLedger) Last(jobID int64) (model.ProjectStatus, bool) {
	return l.inner.Last(jobID)
}

func (l *rendezvousLedger) Swap(jobID int64, status model.ProjectStatus) (model.ProjectStatus, bool) {
	l.arrived.Done()
	l.arrived.Wait()
	return l.inner.Swap(jobID, status)
}

func TestHandleJobUpdate_ConcurrentDuplicatesProcessedOnce(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMockClient()
	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		return []model.Project{{ID: 7, Status: model.StatusProcessing}}, nil
	}
	rec := &notify.Recorder{}
	c := New(gw, rec, WithLedger(newRendezvousLedger(2)))

	c.SelectProject(ctx, 7)
	gw.Reset()
	rec.Reset()

	var wg sync.WaitGroup
	for n := 0; n < 2; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 7, Status: model.StatusAnalysisComplete})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, gw.ListCount())
	assert.Equal(t, 1, gw.AnalyzeCount())
	completed := 0
	for _, msg := range rec.Messages(model.NotificationSuccess) {
		if strings.Contains(msg, "completed") {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestHandleJobUpdate_PushAndReconcileBurst(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator(model.Project{ID: 5, Status: model.StatusQueued})
	c.SelectProject(ctx, 5)
	gw.Reset()
	rec.Reset()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 5, Status: model.StatusProcessing})
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, gw.ListCount())
	assert.Equal(t, []string{"Project 5 analysis is now running."}, rec.Messages(model.NotificationInfo))
	assert.Equal(t, model.StatusProcessing, c.Snapshot().Selection.Status)
}

func TestHandleJobUpdate_OtherJobOnlyRefreshes(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator(
		model.Project{ID: 1, Status: model.StatusProcessing},
		model.Project{ID: 2, Status: model.StatusProcessing},
	)
	c.SelectProject(ctx, 1)
	gw.Reset()
	rec.Reset()

	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 2, Status: model.StatusAnalysisComplete})

	assert.Equal(t, 1, gw.ListCount())
	assert.Zero(t, gw.AnalyzeCount())
	assert.Empty(t, rec.All())
	assert.Equal(t, model.StatusProcessing, c.Snapshot().Selection.Status)
}

func TestHandleJobUpdate_FailedNotifiesOnly(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator(model.Project{ID: 3, Status: model.StatusProcessing})
	c.SelectProject(ctx, 3)
	rec.Reset()

	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 3, Status: "Failed: invalid header row"})

	assert.Equal(t, []string{"Analysis for project 3 failed: invalid header row"}, rec.Messages(model.NotificationError))
	assert.Zero(t, gw.AnalyzeCount())
	assert.Zero(t, gw.PreAnalyzeCount())
	assert.True(t, c.Snapshot().Selection.Status.IsFailed())
}

func TestFetchAnalysisResults_SingleFlight(t *testing.T) {
	ctx := context.Background()
	c, gw, _ := newTestCoordinator()

	release := make(chan struct{})
	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		<-release
		return &service.AnalyzeResponse{Result: sampleResult("Q1")}, nil
	}

	var first bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = c.FetchAnalysisResults(ctx, 1)
	}()

	require.Eventually(t, func() bool { return gw.AnalyzeCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, c.Snapshot().FetchingResults)

	assert.False(t, c.FetchAnalysisResults(ctx, 1))
	assert.False(t, c.FetchAnalysisResults(ctx, 2))

	close(release)
	wg.Wait()

	assert.True(t, first)
	assert.Equal(t, 1, gw.AnalyzeCount())
	assert.Empty(t, gw.AnalyzeCalls[0].Mappings)
	assert.False(t, c.Snapshot().FetchingResults)
}

func TestFetchAnalysisResults_FailureClearsAnalysis(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator(model.Project{ID: 1, Status: model.StatusAnalysisComplete})
	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Result: sampleResult("Q1")}, nil
	}
	c.SelectProject(ctx, 1)
	require.NotNil(t, c.Snapshot().Selection.Analysis)

	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return nil, common.NewAPIError(http.StatusInternalServerError, "", "Result store unavailable")
	}
	assert.False(t, c.FetchAnalysisResults(ctx, 1))

	assert.Nil(t, c.Snapshot().Selection.Analysis)
	assert.Contains(t, rec.Messages(model.NotificationError), "Result store unavailable")
}

func TestFetchAnalysisResults_QueuedIsFailure(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator()
	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Queued: &model.QueuedJob{JobID: 1, Status: model.StatusQueued}}, nil
	}

	assert.False(t, c.FetchAnalysisResults(ctx, 1))
	assert.Equal(t, []string{"Analysis results are not available yet."}, rec.Messages(model.NotificationError))
}

func TestSelectProject_ClearsBeforeFetchResolves(t *testing.T) {
	ctx := context.Background()
	c, gw, _ := newTestCoordinator(
		model.Project{ID: 1, Status: model.StatusAnalysisComplete},
		model.Project{ID: 2, Status: model.StatusAnalysisComplete},
	)
	gw.AnalyzeFn = func(_ context.Context, id int64, _ map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Result: sampleResult("first")}, nil
	}
	c.SelectProject(ctx, 1)
	require.NotNil(t, c.Snapshot().Selection.Analysis)

	var during Selection
	gw.AnalyzeFn = func(_ context.Context, id int64, _ map[string]string) (*service.AnalyzeResponse, error) {
		during = c.Snapshot().Selection
		return &service.AnalyzeResponse{Result: sampleResult("second")}, nil
	}
	c.SelectProject(ctx, 2)

	assert.Equal(t, int64(2), during.ProjectID)
	assert.Nil(t, during.Analysis)
	assert.Nil(t, during.Mapping)
	assert.Equal(t, "second", c.Snapshot().Selection.Analysis.ReportTitle)
}

func TestSelectProject_StatusBranching(t *testing.T) {
	tests := []struct {
		name           string
		status         model.ProjectStatus
		wantInfo       string
		wantPreAnalyze int
		wantAnalyze    int
	}{
		{name: "ready for mapping", status: model.StatusReadyForMapping, wantPreAnalyze: 1},
		{name: "mapping in progress", status: model.StatusMappingInProgress, wantPreAnalyze: 1},
		{name: "analysis complete", status: model.StatusAnalysisComplete, wantAnalyze: 1},
		{name: "processing", status: model.StatusProcessing, wantInfo: "Project 3 is currently Processing. Please wait."},
		{name: "queued", status: model.StatusQueued, wantInfo: "Project 3 is currently Queued. Please wait."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c, gw, rec := newTestCoordinator(model.Project{ID: 3, Status: tt.status})
			require.True(t, c.RefreshProjects(ctx))

			c.SelectProject(ctx, 3)

			assert.Equal(t, tt.wantPreAnalyze, gw.PreAnalyzeCount())
			assert.Equal(t, tt.wantAnalyze, gw.AnalyzeCount())
			if tt.wantAnalyze > 0 {
				assert.Empty(t, gw.AnalyzeCalls[0].Mappings)
			}
			if tt.wantInfo != "" {
				assert.Contains(t, rec.Messages(model.NotificationInfo), tt.wantInfo)
			}
			assert.Equal(t, tt.status, c.Snapshot().Selection.Status)
		})
	}
}

func TestSelectProject_MissingProject(t *testing.T) {
	ctx := context.Background()

	t.Run("found after refresh", func(t *testing.T) {
		c, gw, _ := newTestCoordinator(model.Project{ID: 8, Status: model.StatusReadyForMapping})

		c.SelectProject(ctx, 8)

		assert.Equal(t, 1, gw.ListCount())
		assert.Equal(t, 1, gw.PreAnalyzeCount())
		assert.Equal(t, model.StatusReadyForMapping, c.Snapshot().Selection.Status)
	})

	t.Run("still missing", func(t *testing.T) {
		c, gw, rec := newTestCoordinator()

		c.SelectProject(ctx, 8)

		assert.Equal(t, 1, gw.ListCount())
		assert.Equal(t, []string{"Project 8 was not found."}, rec.Messages(model.NotificationError))
		assert.False(t, c.Snapshot().Selection.Active)
	})
}

func TestDeleteProject_Selection(t *testing.T) {
	ctx := context.Background()

	t.Run("selected project", func(t *testing.T) {
		c, _, _ := newTestCoordinator(model.Project{ID: 1, Status: model.StatusAnalysisComplete})
		c.SelectProject(ctx, 1)
		require.NotNil(t, c.Snapshot().Selection.Analysis)

		assert.True(t, c.DeleteProject(ctx, 1))
		assert.Equal(t, Selection{}, c.Snapshot().Selection)
	})

	t.Run("other project", func(t *testing.T) {
		c, gw, _ := newTestCoordinator(
			model.Project{ID: 1, Status: model.StatusAnalysisComplete},
			model.Project{ID: 2, Status: model.StatusQueued},
		)
		c.SelectProject(ctx, 1)
		before := c.Snapshot().Selection

		assert.True(t, c.DeleteProject(ctx, 2))
		assert.Equal(t, before, c.Snapshot().Selection)
		assert.Equal(t, []int64{2}, gw.DeleteCalls)
	})

	t.Run("failure keeps project", func(t *testing.T) {
		c, gw, rec := newTestCoordinator(model.Project{ID: 1, Status: model.StatusQueued})
		require.True(t, c.RefreshProjects(ctx))
		gw.DeleteProjectFn = func(context.Context, int64) error {
			return common.NewAPIError(http.StatusConflict, "", "Project is being processed")
		}
		gw.Reset()

		assert.False(t, c.DeleteProject(ctx, 1))
		assert.Zero(t, gw.ListCount())
		assert.Len(t, c.Snapshot().Projects, 1)
		assert.Equal(t, []string{"Project is being processed"}, rec.Messages(model.NotificationError))
	})
}

func TestRefreshProjects_AuthDistinction(t *testing.T) {
	ctx := context.Background()

	messageFor := func(marker string) (string, int) {
		gw := gateway.NewMockClient()
		gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
			return nil, common.NewAPIError(http.StatusUnauthorized, marker, "Not authenticated")
		}
		rec := &notify.Recorder{}
		c := New(gw, rec)

		assert.False(t, c.RefreshProjects(ctx))
		assert.True(t, common.IsAuthError(c.Snapshot().AuthError))
		msgs := rec.Messages(model.NotificationError)
		require.Len(t, msgs, 1)
		return msgs[0], gw.ListCount()
	}

	missing, missingCalls := messageFor(common.AuthMarkerMissing)
	rejected, rejectedCalls := messageFor("")
	noToken, _ := messageFor(common.AuthMarkerNoToken)

	assert.Equal(t, 1, missingCalls)
	assert.Equal(t, 1, rejectedCalls)
	assert.NotEqual(t, missing, rejected)
	assert.NotEqual(t, missing, noToken)
	assert.NotEqual(t, rejected, noToken)
	assert.Contains(t, rejected, "rejected")
}

func TestRefreshProjects_FetchFailed(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMockClient()
	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		return nil, common.NewAPIError(http.StatusInternalServerError, "", "Database offline")
	}
	rec := &notify.Recorder{}
	c := New(gw, rec)

	assert.False(t, c.RefreshProjects(ctx))
	assert.Equal(t, []string{"Database offline"}, rec.Messages(model.NotificationError))
	assert.Nil(t, c.Snapshot().AuthError)
}

func TestRefreshProjects_ReplacesWholeSet(t *testing.T) {
	ctx := context.Background()
	lists := [][]model.Project{
		{{ID: 1}, {ID: 2}},
		{{ID: 3}},
	}
	gw := gateway.NewMockClient()
	call := 0
	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		out := lists[call]
		call++
		return out, nil
	}
	c := New(gw, &notify.Recorder{})

	require.True(t, c.RefreshProjects(ctx))
	require.True(t, c.RefreshProjects(ctx))

	snap := c.Snapshot()
	assert.Equal(t, []model.Project{{ID: 3}}, snap.Projects)
	assert.False(t, snap.LastRefresh.IsZero())
	assert.False(t, snap.Loading)
}

func TestUploadFile_Failure(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator()
	gw.UploadFileFn = func(context.Context, string, io.Reader) (int64, error) {
		return 0, common.NewAPIError(http.StatusBadRequest, "", "Unsupported file format")
	}

	id, ok := c.UploadFile(ctx, "Q1.pdf", strings.NewReader("x"))

	assert.False(t, ok)
	assert.Zero(t, id)
	assert.Equal(t, []string{`Uploading file "Q1.pdf"...`}, rec.Messages(model.NotificationInfo))
	assert.Equal(t, []string{"Unsupported file format"}, rec.Messages(model.NotificationError))
	assert.Zero(t, gw.ListCount())
}

func TestSaveMappings_NotQueued(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator()
	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Result: sampleResult("cached")}, nil
	}

	assert.False(t, c.SaveMappingsAndRunAnalysis(ctx, 5, map[string]string{"6000": "Overhead-Kosten"}))
	assert.Equal(t, 1, gw.ListCount())
	assert.Equal(t, []string{"Failed to queue job"}, rec.Messages(model.NotificationError))
}

func TestSaveMappings_FailureRefreshes(t *testing.T) {
	ctx := context.Background()
	c, gw, _ := newTestCoordinator()
	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return nil, errors.New("connection reset")
	}

	assert.False(t, c.SaveMappingsAndRunAnalysis(ctx, 5, map[string]string{"6000": "Overhead-Kosten"}))
	assert.Equal(t, 1, gw.ListCount())
}

func TestPerformPreAnalysis_FailureRefreshes(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator()
	gw.PreAnalyzeFn = func(context.Context, int64) (*model.PreAnalysisResult, error) {
		return nil, common.NewAPIError(http.StatusBadRequest, "", "Project already failed")
	}

	assert.False(t, c.PerformPreAnalysis(ctx, 5))
	assert.Equal(t, 1, gw.ListCount())
	assert.Equal(t, []string{"Error: Project already failed"}, rec.Messages(model.NotificationError))
}

func TestRenameProject(t *testing.T) {
	ctx := context.Background()
	c, gw, rec := newTestCoordinator(model.Project{ID: 1, Status: model.StatusProcessing})
	c.SelectProject(ctx, 1)
	before := c.Snapshot().Selection
	gw.Reset()

	assert.True(t, c.RenameProject(ctx, 1, "  Q1 final  "))
	assert.Equal(t, []gateway.RenameCall{{ID: 1, NewName: "Q1 final"}}, gw.RenameCalls)
	assert.Equal(t, 1, gw.ListCount())
	assert.Equal(t, before, c.Snapshot().Selection)

	assert.False(t, c.RenameProject(ctx, 1, "   "))
	assert.Contains(t, rec.Messages(model.NotificationError), "Project name must not be empty.")
}

func TestReconcile_ReplaysMissedStatus(t *testing.T) {
	ctx := context.Background()
	status := model.StatusProcessing
	gw := gateway.NewMockClient()
	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		return []model.Project{{ID: 6, Status: status}}, nil
	}
	gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Result: sampleResult("Q3")}, nil
	}
	c := New(gw, &notify.Recorder{})
	c.SelectProject(ctx, 6)
	require.Zero(t, gw.AnalyzeCount())

	assert.True(t, c.Reconcile(ctx))
	assert.Zero(t, gw.AnalyzeCount())

	status = model.StatusAnalysisComplete
	assert.True(t, c.Reconcile(ctx))

	assert.Equal(t, 1, gw.AnalyzeCount())
	snap := c.Snapshot()
	assert.Equal(t, model.StatusAnalysisComplete, snap.Selection.Status)
	require.NotNil(t, snap.Selection.Analysis)
	assert.Equal(t, "Q3", snap.Selection.Analysis.ReportTitle)

	// A late push of the same status is absorbed by the ledger.
	calls := gw.ListCount()
	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 6, Status: model.StatusAnalysisComplete})
	assert.Equal(t, calls, gw.ListCount())
}

func TestChangesSignal(t *testing.T) {
	c, _, _ := newTestCoordinator(model.Project{ID: 1})
	require.True(t, c.RefreshProjects(context.Background()))

	select {
	case <-c.Changes():
	default:
		t.Fatal("expected a change signal")
	}
}

func TestEndToEndUploadMapAnalyze(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMockClient()
	rec := &notify.Recorder{}
	c := New(gw, rec)

	var mu sync.Mutex
	projects := []model.Project{}
	setStatus := func(s model.ProjectStatus) {
		mu.Lock()
		defer mu.Unlock()
		projects = []model.Project{{ID: 42, OriginalFileName: "Q1.csv", Status: s}}
	}

	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]model.Project(nil), projects...), nil
	}
	gw.UploadFileFn = func(_ context.Context, name string, content io.Reader) (int64, error) {
		data, err := io.ReadAll(content)
		require.NoError(t, err)
		assert.Equal(t, "Q1.csv", name)
		assert.NotEmpty(t, data)
		setStatus(model.StatusReadyForMapping)
		return 42, nil
	}
	gw.PreAnalyzeFn = func(context.Context, int64) (*model.PreAnalysisResult, error) {
		return &model.PreAnalysisResult{
			UnmappedAccounts:    []model.UnmappedAccount{{Konto: "6000", Bezeichnung: "Miete"}},
			AvailableCategories: []string{"Personalkosten", "Overhead-Kosten"},
		}, nil
	}
	gw.AnalyzeFn = func(_ context.Context, id int64, mappings map[string]string) (*service.AnalyzeResponse, error) {
		if len(mappings) > 0 {
			setStatus(model.StatusQueued)
			return &service.AnalyzeResponse{Queued: &model.QueuedJob{JobID: id, Status: model.StatusQueued}}, nil
		}
		return &service.AnalyzeResponse{Result: sampleResult("Q1 2024")}, nil
	}

	id, ok := c.UploadFile(ctx, "Q1.csv", strings.NewReader("Konto;Bezeichnung;Saldo\n6000;Miete;1200\n"))
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	snap := c.Snapshot()
	require.True(t, snap.Selection.Active)
	assert.Equal(t, int64(42), snap.Selection.ProjectID)
	assert.Equal(t, model.StatusReadyForMapping, snap.Selection.Status)
	require.NotNil(t, snap.Selection.Mapping)
	assert.Equal(t, "6000", snap.Selection.Mapping.UnmappedAccounts[0].Konto)

	require.True(t, c.SaveMappingsAndRunAnalysis(ctx, 42, map[string]string{"6000": "Overhead-Kosten"}))
	assert.Nil(t, c.Snapshot().Selection.Mapping)
	assert.Contains(t, rec.Messages(model.NotificationSuccess), "Job 42 queued! Status: Queued.")

	setStatus(model.StatusProcessing)
	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 42, Status: model.StatusProcessing})
	assert.Equal(t, model.StatusProcessing, c.Snapshot().Selection.Status)
	assert.Contains(t, rec.Messages(model.NotificationInfo), "Project 42 analysis is now running.")

	setStatus(model.StatusAnalysisComplete)
	c.HandleJobUpdate(ctx, model.JobUpdate{JobID: 42, Status: model.StatusAnalysisComplete})

	snap = c.Snapshot()
	assert.Equal(t, model.StatusAnalysisComplete, snap.Selection.Status)
	require.NotNil(t, snap.Selection.Analysis)
	assert.Equal(t, "Q1 2024", snap.Selection.Analysis.ReportTitle)
	assert.Nil(t, snap.Selection.Mapping)
	assert.Contains(t, rec.Messages(model.NotificationSuccess), "Analysis for project 42 completed! Loading results...")

	// analyze was called once with the mapping and once with an empty one
	require.Len(t, gw.AnalyzeCalls, 2)
	assert.Equal(t, map[string]string{"6000": "Overhead-Kosten"}, gw.AnalyzeCalls[0].Mappings)
	assert.Empty(t, gw.AnalyzeCalls[1].Mappings)
}
