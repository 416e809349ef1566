// Package tui is the interactive project dashboard.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/coordinator"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/push"
	"github.com/Veraticus/susa-must-flow/internal/tui/components"
	"github.com/Veraticus/susa-must-flow/internal/tui/themes"
)

// Coordinator is the part of the project coordinator the dashboard drives.
type Coordinator interface {
	Snapshot() coordinator.Snapshot
	Changes() <-chan struct{}
	RefreshProjects(ctx context.Context) bool
	UploadFile(ctx context.Context, fileName string, content io.Reader) (int64, bool)
	SelectProject(ctx context.Context, id int64)
	SaveMappingsAndRunAnalysis(ctx context.Context, id int64, mappings map[string]string) bool
	DeleteProject(ctx context.Context, id int64) bool
	RenameProject(ctx context.Context, id int64, newName string) bool
	ClearSelection()
}

// State represents the current interaction mode.
type State int

// Interaction modes.
const (
	StateBrowse State = iota
	StateUploadInput
	StateRenameInput
	StateConfirmDelete
	StateConfirmMapping
)

// Focus is the pane receiving navigation keys.
type Focus int

// Panes.
const (
	FocusList Focus = iota
	FocusDetail
)

// Model holds the dashboard state.
type Model struct {
	ctx           context.Context
	coord         Coordinator
	theme         themes.Theme
	form          *components.MappingFormModel
	report        *components.ReportModel
	status        string
	connection    push.State
	snapshot      coordinator.Snapshot
	notifications []model.Notification
	pendingSubmit map[string]string
	config        Config
	keymap        KeyMap
	list          components.ProjectListModel
	input         textinput.Model
	spinner       spinner.Model
	detail        viewport.Model
	help          help.Model
	width         int
	height        int
	target        int64
	state         State
	focus         Focus
	statusErr     bool
	quitting      bool
}

// NewModel creates the dashboard model.
func NewModel(ctx context.Context, coord Coordinator, opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	input := textinput.New()
	input.CharLimit = 255

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cfg.Theme.StatusInfo

	h := help.New()
	h.ShowAll = cfg.ShowHelp

	m := Model{
		ctx:        ctx,
		coord:      coord,
		config:     cfg,
		theme:      cfg.Theme,
		keymap:     DefaultKeyMap(),
		list:       components.NewProjectList(cfg.Theme),
		input:      input,
		spinner:    sp,
		detail:     viewport.New(cfg.Width, cfg.Height),
		help:       h,
		width:      cfg.Width,
		height:     cfg.Height,
		connection: push.StateDisconnected,
	}
	m.sync(coord.Snapshot())
	return m
}

// Init starts listening for changes and loads the project list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refresh(),
		m.waitForState(),
		m.waitForNotifications(),
		m.pollConnection(),
		m.spinner.Tick,
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case stateChangedMsg:
		m.sync(m.coord.Snapshot())
		return m, m.waitForState()

	case notificationsChangedMsg:
		m.notifications = m.config.Notifications.Active()
		return m, m.waitForNotifications()

	case connectionMsg:
		m.connection = msg.state
		return m, m.pollConnection()

	case operationMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		}
		return m, nil

	case downloadMsg:
		if msg.err != nil {
			m.setStatus("Download failed: "+common.Message(msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("Saved %d report(s) to %s", len(msg.results), m.config.DownloadDir), false)
		}
		return m, nil

	case exportMsg:
		if msg.err != nil {
			m.setStatus("Export failed: "+common.Message(msg.err), true)
		} else {
			m.setStatus("Workbook written to "+msg.path, false)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.ForceQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.state {
		case StateUploadInput, StateRenameInput:
			return m.updateInput(msg)
		case StateConfirmDelete, StateConfirmMapping:
			return m.updateConfirm(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil
	case key.Matches(msg, m.keymap.Refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keymap.Focus):
		m.setFocus(1 - m.focus)
		return m, nil
	case key.Matches(msg, m.keymap.Download):
		if m.report == nil {
			return m, nil
		}
		if m.config.Downloader == nil {
			m.setStatus("Downloads are not configured.", true)
			return m, nil
		}
		return m, m.downloadReports(m.snapshot.Selection.ProjectID, m.report.Result())
	case key.Matches(msg, m.keymap.Export):
		if m.report == nil {
			return m, nil
		}
		return m, m.exportWorkbook(m.snapshot.Selection.ProjectID, m.report.Result())
	}

	if m.focus == FocusDetail {
		return m.updateDetail(msg)
	}
	return m.updateList(msg)
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	project, hasProject := m.list.Selected()

	switch {
	case key.Matches(msg, m.keymap.Back):
		m.coord.ClearSelection()
		return m, nil
	case key.Matches(msg, m.keymap.Select):
		if !hasProject {
			return m, nil
		}
		m.clearStatus()
		m.setFocus(FocusDetail)
		return m, m.selectProject(project.ID)
	case key.Matches(msg, m.keymap.Upload):
		return m, m.openInput(StateUploadInput, 0, "Path to SUSA file", "")
	case key.Matches(msg, m.keymap.Rename):
		if !hasProject {
			return m, nil
		}
		return m, m.openInput(StateRenameInput, project.ID, "New project name", project.OriginalFileName)
	case key.Matches(msg, m.keymap.Delete):
		if !hasProject {
			return m, nil
		}
		m.state = StateConfirmDelete
		m.target = project.ID
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.Back) {
		m.setFocus(FocusList)
		return m, nil
	}

	if m.form != nil {
		if key.Matches(msg, m.keymap.Submit) {
			return m.submitForm()
		}
		form, cmd := m.form.Update(msg)
		m.form = &form
		return m, cmd
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// submitForm sends complete mappings right away and asks for confirmation
// when accounts would be left unmapped.
func (m Model) submitForm() (tea.Model, tea.Cmd) {
	report, err := m.form.Validate()
	if err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.target = m.form.ProjectID()
	m.pendingSubmit = report.Mappings
	if !report.Complete() {
		m.state = StateConfirmMapping
		m.setStatus(report.Warning(), true)
		return m, nil
	}
	m.clearStatus()
	return m, m.submitMappings(m.target, report.Mappings)
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Confirm):
		state, target := m.state, m.target
		m.state = StateBrowse
		m.clearStatus()
		if state == StateConfirmDelete {
			return m, m.deleteProject(target)
		}
		mappings := m.pendingSubmit
		m.pendingSubmit = nil
		return m, m.submitMappings(target, mappings)
	case key.Matches(msg, m.keymap.Cancel):
		m.state = StateBrowse
		m.pendingSubmit = nil
		m.clearStatus()
	}
	return m, nil
}

func (m *Model) openInput(state State, target int64, placeholder, value string) tea.Cmd {
	m.state = state
	m.target = target
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.state = StateBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		state, target := m.state, m.target
		m.state = StateBrowse
		m.input.Blur()
		if value == "" {
			return m, nil
		}
		if state == StateUploadInput {
			return m, m.uploadFile(value)
		}
		return m, m.renameProject(target, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sync adopts a coordinator snapshot. The mapping form survives snapshots
// of the same pre-analysis so choices in progress are kept.
func (m *Model) sync(s coordinator.Snapshot) {
	m.snapshot = s
	m.list.SetProjects(s.Projects)

	sel := s.Selection
	switch {
	case sel.Active && sel.Mapping != nil:
		if m.form == nil || m.form.ProjectID() != sel.ProjectID {
			form := components.NewMappingForm(sel.ProjectID, sel.Mapping, m.mappingKeys(), m.theme)
			m.form = &form
		}
	default:
		m.form = nil
		if m.state == StateConfirmMapping {
			m.state = StateBrowse
			m.pendingSubmit = nil
		}
	}

	if sel.Active && sel.Analysis != nil {
		if m.report == nil || m.report.Result() != sel.Analysis {
			report := components.NewReport(sel.Analysis, m.theme)
			m.report = &report
			m.detail.GotoTop()
		}
	} else {
		m.report = nil
	}

	if s.AuthError != nil && common.IsAuthError(s.AuthError) {
		m.setStatus("Not signed in. Run `susa login` and restart the dashboard.", true)
	}
	m.resize()
}

func (m Model) mappingKeys() components.MappingKeys {
	return components.MappingKeys{
		Up:      m.keymap.Up,
		Down:    m.keymap.Down,
		Left:    m.keymap.Left,
		Right:   m.keymap.Right,
		Clear:   m.keymap.Clear,
		Suggest: m.keymap.Suggest,
	}
}

func (m *Model) setFocus(f Focus) {
	m.focus = f
	if f == FocusList {
		m.list.Focus()
	} else {
		m.list.Blur()
	}
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}
