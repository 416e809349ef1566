package tui

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/susa-must-flow/internal/coordinator"
	"github.com/Veraticus/susa-must-flow/internal/download"
	"github.com/Veraticus/susa-must-flow/internal/gateway"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/notify"
	"github.com/Veraticus/susa-must-flow/internal/push"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

type harness struct {
	gw    *gateway.MockClient
	coord *coordinator.Coordinator
	sink  *notify.Sink
	dir   string
}

func newHarness(t *testing.T, projects ...model.Project) *harness {
	t.Helper()
	gw := gateway.NewMockClient()
	gw.ListProjectsFn = func(context.Context) ([]model.Project, error) {
		return projects, nil
	}
	sink := notify.NewSink(time.Minute)
	t.Cleanup(sink.Close)

	coord := coordinator.New(gw, sink)
	require.True(t, coord.RefreshProjects(context.Background()))
	return &harness{gw: gw, coord: coord, sink: sink, dir: t.TempDir()}
}

func (h *harness) model(opts ...Option) Model {
	opts = append([]Option{
		WithDownloader(download.NewDownloader(download.NewGatewaySource(h.gw)), h.dir),
		WithNotifications(h.sink),
		WithSize(120, 40),
	}, opts...)
	m := NewModel(context.Background(), h.coord, opts...)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	require.True(t, ok)
	return mm, cmd
}

// exec runs an operation command and delivers its result and the resulting
// state change.
func exec(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	m, _ = send(t, m, stateChangedMsg{})
	m, _ = send(t, m, notificationsChangedMsg{})
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_ListsProjects(t *testing.T) {
	h := newHarness(t,
		model.Project{ID: 1, OriginalFileName: "a.xlsx", Status: model.StatusQueued},
		model.Project{ID: 2, OriginalFileName: "b.xlsx", Status: model.StatusFailed + ": bad header"},
	)
	m := h.model()

	view := m.View()
	assert.Contains(t, view, "SUSA KPI")
	assert.Contains(t, view, "2 project(s)")
	assert.Contains(t, view, "a.xlsx")
	assert.Contains(t, view, "Select a project with Enter.")
	assert.Contains(t, view, "disconnected")
}

func TestModel_MappingWarnThenConfirm(t *testing.T) {
	h := newHarness(t, model.Project{ID: 1, OriginalFileName: "a.xlsx", Status: model.StatusReadyForMapping})
	h.gw.PreAnalyzeFn = func(context.Context, int64) (*model.PreAnalysisResult, error) {
		return &model.PreAnalysisResult{
			UnmappedAccounts: []model.UnmappedAccount{
				{Konto: "4200", Bezeichnung: "Raumkosten"},
				{Konto: "4900", Bezeichnung: "Verschiedenes"},
			},
			AvailableCategories: []string{"Raumkosten", "Marketing"},
		}, nil
	}
	h.gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Queued: &model.QueuedJob{JobID: 1, Status: model.StatusQueued}}, nil
	}
	m := h.model()

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = exec(t, m, cmd)
	require.NotNil(t, m.form)
	assert.Equal(t, FocusDetail, m.focus)
	assert.Contains(t, m.View(), "1 of 2 accounts mapped")

	m, cmd = send(t, m, runes("s"))
	assert.Nil(t, cmd)
	assert.Equal(t, StateConfirmMapping, m.state)
	assert.Contains(t, m.View(), "Submit anyway?")
	assert.Contains(t, m.View(), "4900")

	m, cmd = send(t, m, runes("n"))
	assert.Nil(t, cmd)
	assert.Equal(t, StateBrowse, m.state)
	assert.Empty(t, h.gw.AnalyzeCalls)

	m, _ = send(t, m, runes("s"))
	m, cmd = send(t, m, runes("y"))
	m = exec(t, m, cmd)

	require.Len(t, h.gw.AnalyzeCalls, 1)
	assert.Equal(t, map[string]string{"4200": "Raumkosten"}, h.gw.AnalyzeCalls[0].Mappings)
	assert.Nil(t, m.form)
	assert.Equal(t, StateBrowse, m.state)
}

func TestModel_CompleteMappingSubmitsDirectly(t *testing.T) {
	h := newHarness(t, model.Project{ID: 1, OriginalFileName: "a.xlsx", Status: model.StatusReadyForMapping})
	h.gw.PreAnalyzeFn = func(context.Context, int64) (*model.PreAnalysisResult, error) {
		return &model.PreAnalysisResult{
			UnmappedAccounts:    []model.UnmappedAccount{{Konto: "4200", Bezeichnung: "Raumkosten"}},
			AvailableCategories: []string{"Raumkosten"},
		}, nil
	}
	h.gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Queued: &model.QueuedJob{JobID: 1, Status: model.StatusQueued}}, nil
	}
	m := h.model()

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = exec(t, m, cmd)
	m, cmd = send(t, m, runes("s"))
	assert.Equal(t, StateBrowse, m.state)
	_ = exec(t, m, cmd)

	require.Len(t, h.gw.AnalyzeCalls, 1)
	assert.Equal(t, map[string]string{"4200": "Raumkosten"}, h.gw.AnalyzeCalls[0].Mappings)
}

func TestModel_DeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t, model.Project{ID: 1, OriginalFileName: "a.xlsx", Status: model.StatusQueued})
	m := h.model()

	m, cmd := send(t, m, runes("d"))
	assert.Nil(t, cmd)
	assert.Equal(t, StateConfirmDelete, m.state)
	assert.Contains(t, m.View(), "Delete project 1 (a.xlsx)?")

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateBrowse, m.state)
	assert.Empty(t, h.gw.DeleteCalls)

	m, _ = send(t, m, runes("d"))
	m, cmd = send(t, m, runes("y"))
	m = exec(t, m, cmd)

	assert.Equal(t, []int64{1}, h.gw.DeleteCalls)
	assert.Contains(t, m.View(), "Project deleted successfully.")
}

func TestModel_RenameViaInput(t *testing.T) {
	h := newHarness(t, model.Project{ID: 1, OriginalFileName: "a.xlsx", Status: model.StatusQueued})
	m := h.model()

	m, _ = send(t, m, runes("r"))
	require.Equal(t, StateRenameInput, m.state)
	assert.Equal(t, "a.xlsx", m.input.Value())

	m, _ = send(t, m, runes(" v2"))
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, StateBrowse, m.state)
	_ = exec(t, m, cmd)

	require.Len(t, h.gw.RenameCalls, 1)
	assert.Equal(t, gateway.RenameCall{ID: 1, NewName: "a.xlsx v2"}, h.gw.RenameCalls[0])
}

func TestModel_UploadViaInput(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "susa-2024.csv")
	require.NoError(t, os.WriteFile(path, []byte("konto;saldo\n"), 0600))

	var uploaded string
	h.gw.UploadFileFn = func(_ context.Context, _ string, content io.Reader) (int64, error) {
		b, err := io.ReadAll(content)
		uploaded = string(b)
		return 5, err
	}
	m := h.model()

	m, _ = send(t, m, runes("u"))
	require.Equal(t, StateUploadInput, m.state)
	m, _ = send(t, m, runes(path))
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	_ = exec(t, m, cmd)

	assert.Equal(t, []string{"susa-2024.csv"}, h.gw.UploadCalls)
	assert.Equal(t, "konto;saldo\n", uploaded)
}

func TestModel_UploadMissingFile(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	m, _ = send(t, m, runes("u"))
	m, _ = send(t, m, runes(filepath.Join(h.dir, "missing.csv")))
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = exec(t, m, cmd)

	assert.Empty(t, h.gw.UploadCalls)
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "cannot open")
}

func TestModel_ReportExportAndDownload(t *testing.T) {
	h := newHarness(t, model.Project{ID: 4, OriginalFileName: "done.xlsx", Status: model.StatusAnalysisComplete})
	h.gw.AnalyzeFn = func(context.Context, int64, map[string]string) (*service.AnalyzeResponse, error) {
		return &service.AnalyzeResponse{Result: &model.AnalysisResult{
			ReportTitle: "KPI 2024",
			KpiResults: []model.KpiRow{model.NewKpiRow(
				model.KpiField{Name: model.FieldGroup, Value: model.GroupTotal},
				model.KpiField{Name: model.FieldEBIT, Value: 12.5},
			)},
			ResultFiles: model.ResultFiles{TaskID: "task-4", PdfS3Key: "results/task-4/report.pdf"},
		}}, nil
	}
	h.gw.DownloadResultFn = func(_ context.Context, _, _ string, dst io.Writer) (int64, error) {
		n, err := dst.Write([]byte("%PDF"))
		return int64(n), err
	}
	m := h.model()

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = exec(t, m, cmd)
	require.NotNil(t, m.report)
	assert.Contains(t, m.View(), "KPI 2024")

	m, cmd = send(t, m, runes("e"))
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.False(t, m.statusErr, m.status)
	assert.FileExists(t, filepath.Join(h.dir, "susa-4-kpi.xlsx"))

	m, cmd = send(t, m, runes("D"))
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.False(t, m.statusErr, m.status)
	assert.Contains(t, m.status, "Saved 1 report(s)")
	assert.FileExists(t, filepath.Join(h.dir, "report.pdf"))
}

func TestModel_ConnectionIndicator(t *testing.T) {
	h := newHarness(t)
	state := push.StateConnecting
	m := h.model(WithConnection(func() push.State { return state }))

	m, cmd := send(t, m, connectionMsg{state: push.StateConnected})
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "live")
}

func TestModel_Quit(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	m, cmd := send(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestModel_QuitKeyTypedIntoInput(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	m, _ = send(t, m, runes("u"))
	m, _ = send(t, m, runes("q"))
	assert.Equal(t, StateUploadInput, m.state)
	assert.Equal(t, "q", m.input.Value())
}
