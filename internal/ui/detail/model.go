package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/earlfranciss/swiftshield/internal/keys"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/theme"
)

// BackMsg signals the parent to navigate back to the dashboard.
type BackMsg struct{}

// Model shows one detection opened from a toast.
type Model struct {
	threat   *model.ThreatEvent
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.threat == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No alert selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.threat == nil {
		return ""
	}

	t := m.threat
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	title := "Phishing detected"
	if t.Subject != "" {
		title = t.Subject
	}
	sections = append(sections, titleStyle.Render(title))

	badges := []string{
		theme.ThreatLabelStyle(string(t.Type)).Render(strings.ToUpper(string(t.Type))),
	}
	if t.Severity != "" {
		badges = append(badges, "  ", theme.SeverityStyle(strings.ToLower(t.Severity)).Render(t.Severity))
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, badges...), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf(
			"%s %s",
			metaStyle.Render(fmt.Sprintf("%-11s", label+":")),
			valStyle.Render(value),
		))
	}

	row("Sender", t.Sender)
	row("Detection", t.DetectionID)
	row("Message-ID", t.MessageID)
	if !t.Timestamp.IsZero() {
		row("Detected", t.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	sections = append(sections, headerStyle.Render("Preview"))

	preview := t.Preview
	if preview == "" {
		preview = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No preview available.")
	}
	sections = append(sections, preview)

	if len(t.Extra) > 0 {
		sections = append(sections, "", separator, "", headerStyle.Render("Backend details"))

		names := make([]string, 0, len(t.Extra))
		for k := range t.Extra {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			row(k, fmt.Sprint(t.Extra[k]))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetThreat updates the detection being displayed and re-renders the
// content.
func (m *Model) SetThreat(t model.ThreatEvent) {
	m.threat = &t
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Threat returns the detection on display, if any.
func (m Model) Threat() (model.ThreatEvent, bool) {
	if m.threat == nil {
		return model.ThreatEvent{}, false
	}
	return *m.threat, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.threat != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
