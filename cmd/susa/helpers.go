package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/coordinator"
	"github.com/Veraticus/susa-must-flow/internal/download"
	"github.com/Veraticus/susa-must-flow/internal/gateway"
	"github.com/Veraticus/susa-must-flow/internal/kpi"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/notify"
	"github.com/Veraticus/susa-must-flow/internal/service"
	"github.com/Veraticus/susa-must-flow/internal/session"
	"github.com/Veraticus/susa-must-flow/internal/storage"
)

// app bundles what most commands need: configuration, the backend client,
// the local database and a coordinator wired to both.
type app struct {
	cfg      *config.Config
	sessions session.Provider
	gateway  *gateway.Client
	store    *storage.SQLiteStorage
	coord    *coordinator.Coordinator
	notifier service.Notifier
}

// newApp builds the command environment. Coordinator notifications go to
// notifier; nil prints them to stderr as they arrive.
func newApp(ctx context.Context, notifier service.Notifier) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newAppWithConfig(ctx, cfg, notifier)
}

func newAppWithConfig(ctx context.Context, cfg *config.Config, notifier service.Notifier) (*app, error) {
	sessions, err := cfg.SessionProvider()
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(cfg.API.URL,
		gateway.WithSession(sessions),
		gateway.WithTimeout(cfg.API.Timeout),
		gateway.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, err
	}
	common.LogDebug("Backend gateway ready", common.Fields{"base_url": gw.BaseURL()})

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if notifier == nil {
		notifier = printNotifier(os.Stderr)
	}

	opts := []coordinator.Option{
		coordinator.WithCache(store),
		coordinator.WithLogger(slog.Default()),
	}
	if cfg.Storage.PersistLedger {
		ledger, err := storage.NewLedger(ctx, store, slog.Default())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, coordinator.WithLedger(ledger))
	}

	return &app{
		cfg:      cfg,
		sessions: sessions,
		gateway:  gw,
		store:    store,
		coord:    coordinator.New(gw, notifier, opts...),
		notifier: notifier,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		common.LogError(err, "Failed to close database", common.Fields{"path": a.store.Path()})
	}
}

// initStorage opens the local database and applies migrations.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	common.LogDebug("Opened local database", common.Fields{"path": store.Path()})
	return store, nil
}

// newDownloader reads exports from the object store when one is configured
// and through the backend otherwise. progress may be nil.
func (a *app) newDownloader(progress io.Writer) (*download.Downloader, error) {
	var source download.Source = download.NewGatewaySource(a.gateway)
	if a.cfg.ObjectStoreEnabled() {
		store, err := download.NewObjectStore(a.cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		source = store
	}

	opts := []download.Option{
		download.WithHistory(a.store),
		download.WithNotifier(a.notifier),
		download.WithLogger(slog.Default()),
	}
	if progress != nil {
		opts = append(opts, download.WithProgress(progress))
	}
	return download.NewDownloader(source, opts...), nil
}

// printNotifier echoes coordinator notifications, one per line.
func printNotifier(w io.Writer) *notify.Recorder {
	return &notify.Recorder{
		OnNotify: func(n model.Notification) {
			_, _ = fmt.Fprintln(w, cli.FormatNotification(n))
		},
	}
}

// errOperationFailed is returned after the coordinator already told the user
// what went wrong; main exits without printing it again.
var errOperationFailed = errors.New("operation failed")

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid project id %q", common.ErrInvalidInput, arg)
	}
	return id, nil
}

// selectProject selects id and returns the resulting snapshot. It fails when
// the coordinator dropped the selection, e.g. because the project is gone or
// the session was rejected.
func (a *app) selectProject(ctx context.Context, id int64) (coordinator.Snapshot, model.Project, error) {
	a.coord.SelectProject(ctx, id)
	snap := a.coord.Snapshot()
	project, ok := snap.SelectedProject()
	if !ok || snap.Selection.ProjectID != id {
		return snap, model.Project{}, errOperationFailed
	}
	return snap, project, nil
}

// analysisFor loads the finished analysis of id.
func (a *app) analysisFor(ctx context.Context, id int64) (model.Project, *model.AnalysisResult, error) {
	snap, project, err := a.selectProject(ctx, id)
	if err != nil {
		return project, nil, err
	}
	if snap.Selection.Analysis == nil {
		if project.Status != model.StatusAnalysisComplete {
			return project, nil, fmt.Errorf("project %d has no results yet (status: %s)", id, project.Status)
		}
		return project, nil, errOperationFailed
	}
	return project, snap.Selection.Analysis, nil
}

func renderProjects(projects []model.Project) string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		uploaded := ""
		if !p.UploadedAt.IsZero() {
			uploaded = p.UploadedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.OriginalFileName,
			cli.FormatStatus(p.Status),
			uploaded,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(cli.SubtleStyle).
		Headers("ID", "File", "Status", "Uploaded").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true).Foreground(cli.PrimaryColor)
			}
			if col == 0 {
				return style.Align(lipgloss.Right)
			}
			return style
		}).
		String()
}

func renderKPITable(rows []model.KpiRow) string {
	t := kpi.BuildTable(rows)
	if t.Empty() {
		return cli.SubtleStyle.Render("The analysis returned no KPI rows.")
	}

	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Name
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(cli.SubtleStyle).
		Headers(headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true).Foreground(cli.PrimaryColor)
			}
			if col < len(t.Columns) && t.Columns[col].RightAlign {
				return style.Align(lipgloss.Right)
			}
			return style
		}).
		String()
}

func renderExports(files model.ResultFiles) string {
	var lines []string
	for _, kind := range model.AllExportKinds {
		if key := files.Key(kind); key != "" {
			lines = append(lines, fmt.Sprintf("%-6s %s", strings.ToUpper(string(kind)), download.FileName(key)))
		}
	}
	if len(lines) == 0 {
		return cli.SubtleStyle.Render("No report files were generated.")
	}
	return strings.Join(lines, "\n")
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
