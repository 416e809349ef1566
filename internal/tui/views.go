package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/tui/components"
)

// wideLayout is the width from which list and detail sit side by side.
const wideLayout = 100

// chrome is the height of header, status, notifications and help.
func (m Model) chrome() int {
	helpLines := 1
	if m.help.ShowAll {
		helpLines = 5
	}
	return 2 + components.MaxNotifications + helpLines
}

func (m Model) paneSizes() (listW, listH, detailW, detailH int) {
	body := m.height - m.chrome()
	if body < 6 {
		body = 6
	}
	if m.width >= wideLayout {
		listW = m.width * 2 / 5
		return listW, body, m.width - listW, body
	}
	listH = body / 3
	if listH < 5 {
		listH = 5
	}
	return m.width, listH, m.width, body - listH
}

// resize distributes the terminal among the panes and re-renders the report
// into the detail viewport.
func (m *Model) resize() {
	listW, listH, detailW, detailH := m.paneSizes()
	m.list.SetSize(listW-4, listH-2)

	innerW, innerH := detailW-4, detailH-4
	if innerW < 20 {
		innerW = 20
	}
	if innerH < 3 {
		innerH = 3
	}
	if m.form != nil {
		m.form.SetSize(innerW, innerH)
	}
	m.detail.Width = innerW
	m.detail.Height = innerH
	if m.report != nil {
		m.report.SetWidth(innerW)
		m.detail.SetContent(m.report.View())
	} else {
		m.detail.SetContent("")
	}
	m.help.Width = m.width
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	listW, listH, detailW, detailH := m.paneSizes()
	listBox := m.paneStyle(FocusList).Width(listW - 2).Height(listH - 2).Render(m.list.View())
	detailBox := m.paneStyle(FocusDetail).Width(detailW - 2).Height(detailH - 2).Render(m.renderDetail())

	var body string
	if m.width >= wideLayout {
		body = lipgloss.JoinHorizontal(lipgloss.Top, listBox, detailBox)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, listBox, detailBox)
	}

	parts := []string{m.renderHeader(), body, m.renderStatus()}
	if n := components.RenderNotifications(m.notifications, m.width, m.theme); n != "" {
		parts = append(parts, n)
	}
	parts = append(parts, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) paneStyle(f Focus) lipgloss.Style {
	style := m.theme.RoundedBox
	if m.focus == f {
		style = style.BorderForeground(m.theme.Primary)
	}
	return style
}

func (m Model) renderHeader() string {
	left := m.theme.Title.Render("SUSA KPI") + "  " +
		m.theme.Subtitle.Render(fmt.Sprintf("%d project(s)", m.list.Len()))
	if m.snapshot.Loading || m.snapshot.FetchingResults {
		left += " " + m.spinner.View()
	}

	right := m.theme.Connection(m.connection)
	if !m.snapshot.LastRefresh.IsZero() {
		right = m.theme.Subtitle.Render("updated "+m.snapshot.LastRefresh.Local().Format("15:04:05")) + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderDetail() string {
	project, ok := m.snapshot.SelectedProject()
	if !ok {
		return m.theme.Italic.Render("Select a project with Enter.")
	}

	header := m.theme.Bold.Render(project.OriginalFileName) + "  " + m.theme.StatusBadge(project.Status)
	if reason := project.Status.FailureReason(); reason != "" {
		header += "\n" + m.theme.StatusError.Render(reason)
	}

	var content string
	switch {
	case m.form != nil:
		content = m.form.View()
	case m.report != nil:
		content = m.detail.View()
	case m.snapshot.FetchingResults:
		content = m.spinner.View() + " Loading analysis results..."
	case project.Status.IsInFlight():
		content = m.theme.Italic.Render("The project is being processed. This view updates automatically.")
	case project.Status.IsFailed():
		content = m.theme.Italic.Render("Processing failed. Upload a corrected file to try again.")
	default:
		content = m.theme.Italic.Render("Press Enter to load this project.")
	}
	return header + "\n\n" + content
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return m.theme.StatusWarning.Render(m.status)
	}
	return m.theme.StatusSuccess.Render(m.status)
}

func (m Model) renderFooter() string {
	switch m.state {
	case StateUploadInput:
		return m.theme.Bold.Render("Upload: ") + m.input.View()
	case StateRenameInput:
		return m.theme.Bold.Render("Rename: ") + m.input.View()
	case StateConfirmDelete:
		name := ""
		if p, ok := model.FindProject(m.snapshot.Projects, m.target); ok {
			name = " (" + p.OriginalFileName + ")"
		}
		return m.theme.StatusError.Render(fmt.Sprintf("Delete project %d%s? ", m.target, name)) +
			m.theme.Subtitle.Render("y confirm · n cancel")
	case StateConfirmMapping:
		return m.theme.StatusWarning.Render("Submit anyway? ") +
			m.theme.Subtitle.Render("y confirm · n cancel")
	default:
		return m.help.View(m.keymap)
	}
}
