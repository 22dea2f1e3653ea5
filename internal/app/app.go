package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/earlfranciss/swiftshield/internal/keys"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/monitor"
	"github.com/earlfranciss/swiftshield/internal/notify"
	"github.com/earlfranciss/swiftshield/internal/theme"
	"github.com/earlfranciss/swiftshield/internal/ui"
	"github.com/earlfranciss/swiftshield/internal/ui/dashboard"
	"github.com/earlfranciss/swiftshield/internal/ui/detail"
	helpview "github.com/earlfranciss/swiftshield/internal/ui/help"
)

// toggleTimeout bounds a toggle or stop issued from the UI, which may
// include a link check and a backend update.
const toggleTimeout = 30 * time.Second

// Monitor is the orchestrator as seen by the UI.
type Monitor interface {
	Toggle(ctx context.Context, sms, gmail bool) (model.MonitoringStatus, error)
	Stop(ctx context.Context) (model.MonitoringStatus, error)
	Status(ctx context.Context) (model.MonitoringStatus, error)
	LastResult(ch model.Channel) monitor.ChannelResult
	Changes() <-chan struct{}
}

// Alerts tracks whether an alert arrived that the user has not opened.
type Alerts interface {
	Unread() bool
	MarkRead()
}

// statusMsg carries the result of a status load, toggle or stop. fromAction
// marks the result of a toggle or stop, which ends the busy state.
type statusMsg struct {
	status     model.MonitoringStatus
	results    map[model.Channel]monitor.ChannelResult
	err        error
	fromAction bool
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewDashboard ViewState = iota
	ViewDetail
	ViewHelp
)

// Model is the root Bubble Tea model. It routes between the dashboard,
// the alert detail and help views, and owns the toast banner.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	monitor Monitor
	alerts  Alerts
	toasts  *ToastQueue
	focus   *FocusSource
	banner  *notify.Banner

	dashboard dashboard.Model
	detail    detail.Model
	helpView  helpview.Model

	status  model.MonitoringStatus
	busy    bool
	errLine string
	ready   bool
}

// New creates the root model. toasts and focus may be nil when the UI
// runs without a router.
func New(mon Monitor, alerts Alerts, toasts *ToastQueue, focus *FocusSource) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewDashboard,
		keys:        k,
		monitor:     mon,
		alerts:      alerts,
		toasts:      toasts,
		focus:       focus,
		banner:      &notify.Banner{},
		dashboard:   dashboard.New(80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
	}
}

// Init loads the current status and starts listening for toasts and
// orchestrator changes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadStatus(), waitForChange(m.monitor.Changes())}
	if m.toasts != nil {
		cmds = append(cmds, m.toasts.wait())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		return m, nil

	case tea.FocusMsg:
		if m.focus != nil {
			m.focus.Report(notify.Foreground)
		}
		return m, nil

	case tea.BlurMsg:
		if m.focus != nil {
			m.focus.Report(notify.Background)
		}
		return m, nil

	case statusMsg:
		if msg.fromAction {
			m.busy = false
		}
		if msg.err != nil {
			m.errLine = msg.err.Error()
		}
		m.status = msg.status
		m.dashboard.SetStatus(msg.status, msg.results)
		return m, nil

	case changedMsg:
		return m, tea.Batch(m.loadStatus(), waitForChange(m.monitor.Changes()))

	case toastMsg:
		token := m.banner.Show(msg.toast)
		m.resize()
		return m, tea.Batch(
			m.toasts.wait(),
			tea.Tick(notify.ToastTimeout, func(time.Time) tea.Msg {
				return toastExpiredMsg{token: token}
			}),
		)

	case toastExpiredMsg:
		if m.banner.Expire(msg.token) {
			m.resize()
		}
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewDashboard
		return m, nil

	case tea.KeyMsg:
		// The error line is shown until the next key press.
		m.errLine = ""

		switch {
		case msg.String() == "ctrl+c":
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil
		}

		switch m.currentView {
		case ViewHelp:
			if key.Matches(msg, m.keys.Back) {
				m.currentView = m.previousView
			}
			return m, nil
		case ViewDashboard:
			return m.handleDashboardKeys(msg)
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleDashboardKeys processes key input on the dashboard.
func (m Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Select):
		t, ok := m.banner.Interact()
		if !ok {
			return m, nil
		}
		if m.alerts != nil {
			m.alerts.MarkRead()
		}
		m.resize()
		m.detail.SetThreat(t.Threat)
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if _, ok := m.banner.Current(); ok {
			m.banner.Dismiss()
			m.resize()
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadStatus()
	}

	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.ToggleSMS):
		m.busy = true
		return m, m.toggle(!m.status.SMS, m.status.Gmail)

	case key.Matches(msg, m.keys.ToggleMail):
		m.busy = true
		return m, m.toggle(m.status.SMS, !m.status.Gmail)

	case key.Matches(msg, m.keys.StopAll):
		m.busy = true
		return m, m.stopAll()
	}

	return m, nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "SwiftShield"
	if m.alerts != nil && m.alerts.Unread() {
		title += " " + theme.BadgeStyle.Render("new alert")
	}
	header := m.layout.RenderHeader(title, m.statusSummary())

	statusBar := m.layout.RenderStatusBar(m.keyHints())
	if m.errLine != "" {
		statusBar = m.layout.RenderErrorBar(m.errLine)
	}

	return m.layout.RenderWithFrame(header, m.renderToast(), m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return m.dashboard.View()
	}
}

func (m Model) renderToast() string {
	t, ok := m.banner.Current()
	if !ok {
		return ""
	}
	return m.layout.RenderToast(t.Title, t.Body, "enter open | esc dismiss")
}

// statusSummary returns a short string describing the monitoring state.
func (m Model) statusSummary() string {
	if m.busy {
		return "applying..."
	}
	if !m.status.IsActive {
		return "monitoring off"
	}
	var on []string
	if m.status.SMS {
		on = append(on, "SMS")
	}
	if m.status.Gmail {
		on = append(on, "mail")
	}
	summary := "monitoring: " + on[0]
	for _, c := range on[1:] {
		summary += ", " + c
	}
	return summary
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	default:
		return "s sms | g mail | x stop all | r refresh | ? help | q quit"
	}
}

// resize recomputes view sizes, leaving room for the toast when one is up.
func (m *Model) resize() {
	if !m.ready {
		return
	}
	width := m.layout.ContentWidth()
	height := m.layout.ContentHeight()
	if toast := m.renderToast(); toast != "" {
		height -= lipgloss.Height(toast)
	}
	m.dashboard.SetSize(width, height)
	m.detail.SetSize(width, height)
	m.helpView.SetSize(width, height)
}

// loadStatus returns a command that reads the current status.
func (m Model) loadStatus() tea.Cmd {
	mon := m.monitor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), toggleTimeout)
		defer cancel()
		status, err := mon.Status(ctx)
		if err != nil {
			err = fmt.Errorf("loading status: %w", err)
		}
		return statusMsg{status: status, results: collectResults(mon), err: err}
	}
}

// toggle returns a command that applies the requested channel intent.
func (m Model) toggle(sms, gmail bool) tea.Cmd {
	mon := m.monitor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), toggleTimeout)
		defer cancel()
		status, err := mon.Toggle(ctx, sms, gmail)
		if err != nil {
			return failedStatus(ctx, mon, fmt.Errorf("toggling monitoring: %w", err))
		}
		return statusMsg{status: status, results: collectResults(mon), fromAction: true}
	}
}

// stopAll returns a command that turns every channel off.
func (m Model) stopAll() tea.Cmd {
	mon := m.monitor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), toggleTimeout)
		defer cancel()
		status, err := mon.Stop(ctx)
		if err != nil {
			return failedStatus(ctx, mon, fmt.Errorf("stopping monitoring: %w", err))
		}
		return statusMsg{status: status, results: collectResults(mon), fromAction: true}
	}
}

// failedStatus reports a failed toggle or stop alongside whatever status is
// stored now, so the dashboard never shows a state that was not persisted.
func failedStatus(ctx context.Context, mon Monitor, err error) statusMsg {
	status, readErr := mon.Status(ctx)
	if readErr != nil {
		status = model.MonitoringStatus{}
	}
	return statusMsg{status: status, results: collectResults(mon), err: err, fromAction: true}
}

func collectResults(mon Monitor) map[model.Channel]monitor.ChannelResult {
	results := make(map[model.Channel]monitor.ChannelResult, len(model.Channels))
	for _, ch := range model.Channels {
		results[ch] = mon.LastResult(ch)
	}
	return results
}
