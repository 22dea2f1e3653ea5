// Package setup is the first-run configuration form. It writes the config
// file and stores secrets in the keyring; secrets never reach the file.
package setup

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/earlfranciss/swiftshield/internal/credential"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/theme"
)

// SecretSetter stores one secret. credential.Set in production.
type SecretSetter func(key, value string) error

// fields is the form's backing state. It lives on the heap so the huh
// bindings stay valid as the Bubble Tea model is copied.
type fields struct {
	cfg *model.AppConfig

	pollInterval string
	deviceTokens string

	backendToken string
	mailPassword string
	webhookToken string
}

// Model is the Bubble Tea model for the setup form.
type Model struct {
	form      *huh.Form
	state     *fields
	path      string
	setSecret SecretSetter
	width     int

	done  bool
	saved bool
	err   error
}

// New creates a setup form prefilled from cfg, which is updated in place
// and written to path on completion. A nil set uses the system keyring.
func New(path string, cfg *model.AppConfig, set SecretSetter) Model {
	if set == nil {
		set = credential.Set
	}
	state := &fields{
		cfg:          cfg,
		pollInterval: strconv.Itoa(cfg.Mail.PollIntervalSec),
		deviceTokens: strings.Join(cfg.Push.DeviceTokens, ","),
	}
	m := Model{
		state:     state,
		path:      path,
		setSecret: set,
		width:     80,
	}
	m.form = m.buildForm()
	return m
}

func (m Model) buildForm() *huh.Form {
	s := m.state
	cfg := s.cfg

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("SwiftShield setup").
				Description("Secrets are stored in your system keyring.\nLeave a secret blank to keep the stored one."),
			huh.NewInput().
				Title("Backend URL").
				Description("Classification backend root").
				Placeholder("https://api.example.com").
				Value(&cfg.Backend.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Backend token").
				Description("Bearer token for the backend").
				EchoMode(huh.EchoModePassword).
				Value(&s.backendToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("SMS webhook address").
				Description("Where the SMS gateway posts messages; blank disables SMS").
				Placeholder("127.0.0.1:8088").
				Value(&cfg.SMS.ListenAddr).
				Validate(validateOptionalAddr),
			huh.NewConfirm().
				Title("Require webhook token").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.SMS.RequireToken),
			huh.NewInput().
				Title("Webhook token").
				Description("Sent by the gateway in the X-Webhook-Token header").
				EchoMode(huh.EchoModePassword).
				Value(&s.webhookToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Description("Blank disables mail monitoring").
				Placeholder("imap.gmail.com").
				Value(&cfg.Mail.Host),
			huh.NewInput().
				Title("IMAP port").
				Placeholder("993").
				Value(&cfg.Mail.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Placeholder("user@example.com").
				Value(&cfg.Mail.Username),
			huh.NewInput().
				Title("Password").
				Description("Account password or app password").
				EchoMode(huh.EchoModePassword).
				Value(&s.mailPassword),
			huh.NewConfirm().
				Title("Use TLS").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.Mail.TLS),
			huh.NewInput().
				Title("Poll interval (seconds)").
				Value(&s.pollInterval).
				Validate(validatePositive),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("NATS URL").
				Description("Lets a separately started task reach the app; blank keeps delivery in-process").
				Placeholder("nats://127.0.0.1:4222").
				Value(&cfg.Bridge.NATSURL).
				Validate(validateOptionalURL),
			huh.NewConfirm().
				Title("Push notifications").
				Description("Send alerts through Firebase Cloud Messaging while the app is in the background").
				Affirmative("On").
				Negative("Off").
				Value(&cfg.Push.Enabled),
			huh.NewInput().
				Title("Service account file").
				Value(&cfg.Push.CredentialsFile),
			huh.NewInput().
				Title("Device tokens").
				Description("Comma separated").
				Value(&s.deviceTokens),
			huh.NewInput().
				Title("Metrics address").
				Description("Blank disables the Prometheus endpoint").
				Placeholder("127.0.0.1:9108").
				Value(&cfg.Metrics.ListenAddr).
				Validate(validateOptionalAddr),
		),
	).WithWidth(m.formWidth())
}

// Init returns the form's initial command.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the setup form.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.form = m.form.WithWidth(m.formWidth())
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.done = true
		m.err = m.save()
		m.saved = m.err == nil
		return m, tea.Quit
	case huh.StateAborted:
		m.done = true
		return m, tea.Quit
	}

	return m, cmd
}

// View renders the form, or the outcome once it is done.
func (m Model) View() string {
	if m.done {
		switch {
		case m.err != nil:
			return lipgloss.NewStyle().Foreground(theme.ColorRed).Render("Setup failed: "+m.err.Error()) + "\n"
		case m.saved:
			return lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("Configuration saved to "+m.path) + "\n"
		default:
			return theme.HelpStyle.Render("Setup cancelled, nothing was saved.") + "\n"
		}
	}
	return m.form.View()
}

// Saved reports whether the configuration was written.
func (m Model) Saved() bool { return m.saved }

// Err returns the save error, if any.
func (m Model) Err() error { return m.err }

// save writes the config file and every secret that was entered.
func (m Model) save() error {
	s := m.state
	cfg := s.cfg

	interval, err := strconv.Atoi(strings.TrimSpace(s.pollInterval))
	if err != nil {
		return fmt.Errorf("poll interval: %w", err)
	}
	cfg.Mail.PollIntervalSec = interval
	cfg.Push.DeviceTokens = splitList(s.deviceTokens)

	if err := model.SaveConfig(m.path, cfg); err != nil {
		return err
	}

	secrets := []struct{ key, value string }{
		{credential.KeyBackendToken, s.backendToken},
		{credential.KeyMailPassword, s.mailPassword},
		{credential.KeyWebhookToken, s.webhookToken},
	}
	for _, sec := range secrets {
		if sec.value == "" {
			continue
		}
		if err := m.setSecret(sec.key, sec.value); err != nil {
			return fmt.Errorf("saving %s: %w", sec.key, err)
		}
	}
	return nil
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validateOptionalURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validateURL(s)
}

func validateOptionalAddr(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("address must be host:port")
	}
	return nil
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}
