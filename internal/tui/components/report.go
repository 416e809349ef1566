package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/susa-must-flow/internal/kpi"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/tui/themes"
)

// ReportModel renders an analysis result.
type ReportModel struct {
	theme  themes.Theme
	result *model.AnalysisResult
	width  int
}

// NewReport creates a report view.
func NewReport(result *model.AnalysisResult, theme themes.Theme) ReportModel {
	return ReportModel{theme: theme, result: result, width: 80}
}

// Result returns the rendered analysis.
func (m ReportModel) Result() *model.AnalysisResult {
	return m.result
}

// SetWidth fits the report into width cells.
func (m *ReportModel) SetWidth(width int) {
	m.width = width
}

// View renders the KPI table, the charts and the available exports.
func (m ReportModel) View() string {
	if m.result == nil {
		return ""
	}

	sections := []string{m.theme.Bold.Render(reportTitle(m.result))}

	t := kpi.BuildTable(m.result.KpiResults)
	if t.Empty() {
		sections = append(sections, m.theme.Italic.Render("The analysis returned no KPI rows."))
	} else {
		sections = append(sections, m.renderTable(t))
	}

	if slices, ok := kpi.CostStructure(m.result.KpiResults); ok {
		sections = append(sections, m.renderBars("Kostenstruktur", slices))
	}
	if slices, ok := kpi.FinanceOverview(m.result.KpiResults); ok {
		sections = append(sections, m.renderBars("Finanzübersicht", slices))
	}

	sections = append(sections, m.renderExports())
	return strings.Join(sections, "\n\n")
}

func reportTitle(result *model.AnalysisResult) string {
	if title := strings.TrimSpace(result.ReportTitle); title != "" {
		return title
	}
	return "KPI-Analyse"
}

func (m ReportModel) renderTable(t kpi.Table) string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Name
	}

	header := m.theme.Bold.Padding(0, 1)
	cell := m.theme.Normal.Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(m.theme.Border)).
		Headers(headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cell
			if row == table.HeaderRow {
				style = header
			}
			if col < len(t.Columns) && t.Columns[col].RightAlign {
				return style.Align(lipgloss.Right)
			}
			return style
		}).
		Render()
}

func (m ReportModel) renderBars(title string, slices []kpi.Slice) string {
	labelWidth := 0
	for _, s := range slices {
		if w := lipgloss.Width(s.Label); w > labelWidth {
			labelWidth = w
		}
	}

	barWidth := m.width - labelWidth - 20
	if barWidth < 10 {
		barWidth = 10
	}

	var b strings.Builder
	b.WriteString(m.theme.Subtitle.Render(title))
	for i, n := range kpi.BarLengths(slices, barWidth) {
		s := slices[i]
		style := m.theme.ProgressBar
		if s.Value < 0 {
			style = m.theme.StatusError
		}
		fmt.Fprintf(&b, "\n%-*s %s%s %s",
			labelWidth, s.Label,
			style.Render(strings.Repeat("█", n)),
			m.theme.ProgressEmpty.Render(strings.Repeat("░", barWidth-n)),
			kpi.FormatAmount(s.Value))
	}
	return b.String()
}

func (m ReportModel) renderExports() string {
	var available []string
	for _, kind := range model.AllExportKinds {
		if m.result.ResultFiles.Key(kind) != "" {
			available = append(available, strings.ToUpper(string(kind)))
		}
	}

	line := m.theme.Subtitle.Render("Reports: ")
	if len(available) == 0 {
		line += m.theme.StatusPending.Render("none generated")
	} else {
		line += m.theme.Normal.Render(strings.Join(available, ", ")) +
			m.theme.Subtitle.Render("  D download")
	}
	return line + m.theme.Subtitle.Render("  e export xlsx")
}
