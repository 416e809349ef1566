package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/kpi"
	"github.com/Veraticus/susa-must-flow/internal/model"
)

// waitFor turns the next signal on ch into msg. The command is re-issued
// after every delivery, so bursts coalesce into one redraw.
func waitFor(ctx context.Context, ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForState() tea.Cmd {
	return waitFor(m.ctx, m.coord.Changes(), stateChangedMsg{})
}

func (m Model) waitForNotifications() tea.Cmd {
	if m.config.Notifications == nil {
		return nil
	}
	return waitFor(m.ctx, m.config.Notifications.Changes(), notificationsChangedMsg{})
}

func (m Model) pollConnection() tea.Cmd {
	state := m.config.Connection
	if state == nil {
		return nil
	}
	return tea.Tick(m.config.PollEvery, func(time.Time) tea.Msg {
		return connectionMsg{state: state()}
	})
}

func (m Model) refresh() tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return operationMsg{op: "refresh", ok: coord.RefreshProjects(ctx)}
	}
}

func (m Model) selectProject(id int64) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		coord.SelectProject(ctx, id)
		return operationMsg{op: "select", ok: true}
	}
}

func (m Model) uploadFile(path string) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		expanded := filepath.Clean(config.ExpandPath(strings.TrimSpace(path)))
		f, err := os.Open(expanded) // #nosec G304 -- path typed by the user
		if err != nil {
			return operationMsg{op: "upload", err: fmt.Errorf("cannot open %s: %w", path, err)}
		}
		defer func() { _ = f.Close() }()

		_, ok := coord.UploadFile(ctx, filepath.Base(expanded), f)
		return operationMsg{op: "upload", ok: ok}
	}
}

func (m Model) renameProject(id int64, name string) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return operationMsg{op: "rename", ok: coord.RenameProject(ctx, id, name)}
	}
}

func (m Model) deleteProject(id int64) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return operationMsg{op: "delete", ok: coord.DeleteProject(ctx, id)}
	}
}

func (m Model) submitMappings(id int64, mappings map[string]string) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return operationMsg{op: "analyze", ok: coord.SaveMappingsAndRunAnalysis(ctx, id, mappings)}
	}
}

func (m Model) downloadReports(id int64, result *model.AnalysisResult) tea.Cmd {
	d, dir, ctx := m.config.Downloader, m.config.DownloadDir, m.ctx
	if d == nil {
		return nil
	}
	return func() tea.Msg {
		results, err := d.Fetch(ctx, id, result.ResultFiles, nil, dir)
		return downloadMsg{results: results, err: err}
	}
}

func (m Model) exportWorkbook(id int64, result *model.AnalysisResult) tea.Cmd {
	path := filepath.Join(m.config.DownloadDir, fmt.Sprintf("susa-%d-kpi.xlsx", id))
	return func() tea.Msg {
		if len(result.KpiResults) == 0 {
			return exportMsg{err: fmt.Errorf("%w: no KPI rows to export", common.ErrNotFound)}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return exportMsg{err: err}
		}
		f, err := os.Create(path) // #nosec G304 -- path derived from the download directory
		if err != nil {
			return exportMsg{err: err}
		}
		if err := kpi.WriteXLSX(f, result); err != nil {
			_ = f.Close()
			return exportMsg{err: err}
		}
		if err := f.Close(); err != nil {
			return exportMsg{err: err}
		}
		return exportMsg{path: path}
	}
}
