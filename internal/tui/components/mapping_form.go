package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/susa-must-flow/internal/mapping"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/tui/themes"
)

// MappingKeys are the bindings the mapping form reacts to.
type MappingKeys struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Clear   key.Binding
	Suggest key.Binding
}

// MappingFormModel lets the user pick a category for each unmapped account.
// A choice of -1 leaves the account unmapped.
type MappingFormModel struct {
	theme       themes.Theme
	keys        MappingKeys
	pre         *model.PreAnalysisResult
	suggestions map[string]mapping.Suggestion
	choices     []int
	cursor      int
	offset      int
	height      int
	width       int
	projectID   int64
}

// NewMappingForm builds a form for a pre-analysis, pre-filled with the
// suggested categories.
func NewMappingForm(projectID int64, pre *model.PreAnalysisResult, keys MappingKeys, theme themes.Theme) MappingFormModel {
	m := MappingFormModel{
		theme:       theme,
		keys:        keys,
		pre:         pre,
		suggestions: mapping.Suggest(pre),
		choices:     make([]int, len(pre.UnmappedAccounts)),
		height:      12,
		width:       60,
		projectID:   projectID,
	}
	for i := range m.choices {
		m.choices[i] = -1
	}
	m.applySuggestions()
	return m
}

// ProjectID returns the project the form belongs to.
func (m MappingFormModel) ProjectID() int64 {
	return m.projectID
}

func (m *MappingFormModel) applySuggestions() {
	for i, a := range m.pre.UnmappedAccounts {
		if m.choices[i] >= 0 {
			continue
		}
		if s, ok := m.suggestions[a.Konto]; ok {
			m.choices[i] = m.categoryIndex(s.Category)
		}
	}
}

func (m MappingFormModel) categoryIndex(name string) int {
	for i, c := range m.pre.AvailableCategories {
		if c == name {
			return i
		}
	}
	return -1
}

// Assignments returns the chosen category per account. Unmapped accounts
// map to the empty string.
func (m MappingFormModel) Assignments() map[string]string {
	out := make(map[string]string, len(m.choices))
	for i, a := range m.pre.UnmappedAccounts {
		category := ""
		if c := m.choices[i]; c >= 0 {
			category = m.pre.AvailableCategories[c]
		}
		out[a.Konto] = category
	}
	return out
}

// Validate checks the current assignments.
func (m MappingFormModel) Validate() (mapping.Report, error) {
	return mapping.Validate(m.pre, m.Assignments())
}

// SetSize fits the form into the given area.
func (m *MappingFormModel) SetSize(width, height int) {
	m.width = width
	if height > 4 {
		m.height = height - 4
	}
	m.scroll()
}

func (m *MappingFormModel) scroll() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

// Update handles form navigation and category changes.
func (m MappingFormModel) Update(msg tea.Msg) (MappingFormModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || len(m.choices) == 0 {
		return m, nil
	}

	categories := len(m.pre.AvailableCategories)
	switch {
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Right):
		if categories > 0 {
			m.choices[m.cursor] = (m.choices[m.cursor] + 1) % categories
		}
	case key.Matches(keyMsg, m.keys.Left):
		if categories > 0 {
			c := m.choices[m.cursor] - 1
			if c < 0 {
				c = categories - 1
			}
			m.choices[m.cursor] = c
		}
	case key.Matches(keyMsg, m.keys.Clear):
		m.choices[m.cursor] = -1
	case key.Matches(keyMsg, m.keys.Suggest):
		m.applySuggestions()
	}
	m.scroll()
	return m, nil
}

// View renders the account rows.
func (m MappingFormModel) View() string {
	var b strings.Builder

	mapped := 0
	for _, c := range m.choices {
		if c >= 0 {
			mapped++
		}
	}
	b.WriteString(m.theme.Bold.Render("Account mapping"))
	b.WriteString(m.theme.Subtitle.Render(fmt.Sprintf("  %d of %d accounts mapped", mapped, len(m.choices))))
	b.WriteString("\n\n")

	if len(m.choices) == 0 {
		b.WriteString(m.theme.Italic.Render("No accounts need a category. Press s to start the analysis."))
		return b.String()
	}

	labelWidth := m.width - 40
	if labelWidth < 10 {
		labelWidth = 10
	}

	end := m.offset + m.height
	if end > len(m.choices) {
		end = len(m.choices)
	}
	for i := m.offset; i < end; i++ {
		a := m.pre.UnmappedAccounts[i]
		category := m.theme.StatusPending.Render("unmapped")
		if c := m.choices[i]; c >= 0 {
			name := m.pre.AvailableCategories[c]
			category = m.theme.Normal.Render(name)
			if s, ok := m.suggestions[a.Konto]; ok && s.Category == name {
				category += m.theme.Subtitle.Render(fmt.Sprintf(" (suggested %.0f%%)", s.Score*100))
			}
		}

		line := fmt.Sprintf("%-8s %-*s ‹ %s ›", a.Konto, labelWidth, truncate(a.Bezeichnung, labelWidth), category)
		if i == m.cursor {
			line = m.theme.Highlighted.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.choices) > m.height {
		b.WriteString(m.theme.Subtitle.Render(fmt.Sprintf("%d-%d of %d", m.offset+1, end, len(m.choices))))
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
