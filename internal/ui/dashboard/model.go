package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/monitor"
	"github.com/earlfranciss/swiftshield/internal/theme"
)

// channelLabels are the display names of each channel.
var channelLabels = map[model.Channel]string{
	model.ChannelSMS:   "SMS",
	model.ChannelGmail: "Mail",
}

// Model renders the monitoring dashboard: one row per channel with its
// intended state and the outcome of the last listener start.
type Model struct {
	status  model.MonitoringStatus
	results map[model.Channel]monitor.ChannelResult
	loaded  bool
	width   int
	height  int
}

// New creates a new dashboard model.
func New(width, height int) Model {
	return Model{
		results: make(map[model.Channel]monitor.ChannelResult),
		width:   width,
		height:  height,
	}
}

// SetStatus replaces the displayed intent and per-channel results.
func (m *Model) SetStatus(status model.MonitoringStatus, results map[model.Channel]monitor.ChannelResult) {
	m.status = status
	m.results = results
	m.loaded = true
}

// SetSize updates the dashboard dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders the dashboard.
func (m Model) View() string {
	box := lipgloss.NewStyle().Width(m.width).Height(m.height)

	if !m.loaded {
		return box.
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Loading monitoring status...")
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	rows := []string{titleStyle.Render("Channels")}
	for _, ch := range model.Channels {
		rows = append(rows, m.renderChannel(ch))
	}

	summary := "Monitoring is off. Press s or g to turn a channel on."
	if m.status.IsActive {
		summary = "Monitoring is on. New messages are checked as they arrive."
	}
	rows = append(rows, "", theme.HelpStyle.Render(summary))

	return box.Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderChannel(ch model.Channel) string {
	on := m.status.Intent().Enabled(ch)

	state := "OFF"
	if on {
		state = "ON"
	}

	label := lipgloss.NewStyle().Width(6).Bold(true).Render(channelLabels[ch])
	indicator := theme.ChannelStyle(on).Width(6).Render(state)

	outcome, detail := Outcome(on, m.results[ch])
	line := label + indicator + theme.ResultStyle(outcome).Render(outcome)
	if detail != "" {
		line += theme.HelpStyle.Render("  " + detail)
	}
	return line
}

// Outcome summarizes a channel's last start result as a short label and an
// optional detail line.
func Outcome(intended bool, res monitor.ChannelResult) (string, string) {
	if !intended {
		if res.Err != nil {
			return "expired", res.Err.Error()
		}
		return "idle", ""
	}

	switch {
	case res.At.IsZero():
		return "pending", ""
	case res.Started:
		return "running", since(res.At)
	case res.Skipped:
		return "not linked", "link the account, then toggle again"
	case errors.Is(res.Err, monitor.ErrNoService):
		return "unavailable", "not configured on this machine"
	case res.Err != nil:
		return "failed", firstLine(res.Err.Error()) + ", retrying later"
	default:
		return "pending", ""
	}
}

func since(t time.Time) string {
	d := time.Since(t).Round(time.Second)
	if d < time.Second {
		return "started just now"
	}
	return fmt.Sprintf("started %s ago", d)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
