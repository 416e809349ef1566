// Package components holds the panes of the dashboard.
package components

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/tui/themes"
)

// ProjectListModel shows the uploaded projects as a table.
type ProjectListModel struct {
	theme    themes.Theme
	projects []model.Project
	table    table.Model
	width    int
}

// NewProjectList creates an empty project list.
func NewProjectList(theme themes.Theme) ProjectListModel {
	t := table.New(
		table.WithColumns(projectColumns(60)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.Border).
		BorderBottom(true).
		Bold(false)
	s.Selected = theme.Selected
	t.SetStyles(s)

	return ProjectListModel{theme: theme, table: t, width: 60}
}

func projectColumns(width int) []table.Column {
	const id, uploaded, status = 6, 16, 22
	file := width - id - uploaded - status - 8
	if file < 12 {
		file = 12
	}
	return []table.Column{
		{Title: "ID", Width: id},
		{Title: "File", Width: file},
		{Title: "Uploaded", Width: uploaded},
		{Title: "Status", Width: status},
	}
}

// SetProjects replaces the rows and keeps the cursor on the same project.
func (m *ProjectListModel) SetProjects(projects []model.Project) {
	current, hadCurrent := m.Selected()
	m.projects = projects

	rows := make([]table.Row, 0, len(projects))
	for _, p := range projects {
		uploaded := ""
		if !p.UploadedAt.IsZero() {
			uploaded = p.UploadedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, table.Row{
			strconv.FormatInt(p.ID, 10),
			p.OriginalFileName,
			uploaded,
			themes.StatusIcon(p.Status) + " " + p.Status.String(),
		})
	}
	m.table.SetRows(rows)

	cursor := 0
	if hadCurrent {
		for i, p := range projects {
			if p.ID == current.ID {
				cursor = i
				break
			}
		}
	}
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	m.table.SetCursor(cursor)
}

// Selected returns the project under the cursor.
func (m ProjectListModel) Selected() (model.Project, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.projects) {
		return model.Project{}, false
	}
	return m.projects[i], true
}

// Len returns the number of listed projects.
func (m ProjectListModel) Len() int {
	return len(m.projects)
}

// SetSize fits the table into the given area.
func (m *ProjectListModel) SetSize(width, height int) {
	m.width = width
	m.table.SetColumns(projectColumns(width))
	m.table.SetWidth(width)
	if height > 3 {
		m.table.SetHeight(height - 2)
	}
}

// Focus enables keyboard navigation.
func (m *ProjectListModel) Focus() {
	m.table.Focus()
}

// Blur disables keyboard navigation.
func (m *ProjectListModel) Blur() {
	m.table.Blur()
}

// Update handles navigation keys.
func (m ProjectListModel) Update(msg tea.Msg) (ProjectListModel, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the list.
func (m ProjectListModel) View() string {
	if len(m.projects) == 0 {
		return m.theme.Italic.Render("No projects yet. Press u to upload a SUSA file.")
	}
	return m.table.View()
}
