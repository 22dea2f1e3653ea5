package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/earlfranciss/swiftshield/internal/theme"
)

// Layout manages the terminal layout dimensions: a one-line header, an
// optional toast banner, the content area and a one-line status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top bar with the title on the left and the
// monitoring summary on the right.
func (l Layout) RenderHeader(title, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)
	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		l.fill(theme.HeaderStyle, titleRendered, statusRendered),
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.renderBar(theme.StatusBarStyle, hints)
}

// RenderErrorBar renders the bottom bar in its error style.
func (l Layout) RenderErrorBar(message string) string {
	return l.renderBar(theme.ErrorBarStyle, message)
}

// RenderToast renders the alert banner across the full width.
func (l Layout) RenderToast(title, body, hint string) string {
	width := l.Width - 2
	if width < 10 {
		width = 10
	}
	content := lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRed).Render(title),
		body,
		theme.HelpStyle.Render(hint),
	)
	return theme.ToastStyle.Width(width).Render(content)
}

// RenderWithFrame composes a full terminal view by vertically joining the
// header, the optional toast, the content area and the status bar.
func (l Layout) RenderWithFrame(
	header string,
	toast string,
	content string,
	statusBar string,
) string {
	parts := []string{header}
	if toast != "" {
		parts = append(parts, toast)
	}
	parts = append(parts, content, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (l Layout) renderBar(style lipgloss.Style, text string) string {
	rendered := style.Render(text)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, l.fill(style, rendered))
}

// fill pads the remaining width of a bar in the bar's background.
func (l Layout) fill(style lipgloss.Style, rendered ...string) string {
	gap := l.Width
	for _, r := range rendered {
		gap -= lipgloss.Width(r)
	}
	if gap < 0 {
		gap = 0
	}
	return lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
}
