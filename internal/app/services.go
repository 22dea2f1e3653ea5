package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/earlfranciss/swiftshield/internal/backend"
	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/channel/mail"
	"github.com/earlfranciss/swiftshield/internal/channel/sms"
	"github.com/earlfranciss/swiftshield/internal/credential"
	"github.com/earlfranciss/swiftshield/internal/metrics"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/monitor"
	"github.com/earlfranciss/swiftshield/internal/notify"
	"github.com/earlfranciss/swiftshield/internal/store"
	"github.com/earlfranciss/swiftshield/internal/task"
)

// shutdownTimeout bounds Close.
const shutdownTimeout = 10 * time.Second

// Services holds every long-lived component of the running application.
type Services struct {
	Store        *store.SQLiteStore
	Metrics      *metrics.Metrics
	Bridge       bridge.Bridge
	Orchestrator *monitor.Orchestrator
	Router       *notify.Router
	Lifecycle    *notify.Lifecycle
	Toasts       *ToastQueue
	Focus        *FocusSource

	scheduler     *monitor.Scheduler
	metricsServer *metrics.Server
	nats          *bridge.NATS
	logger        *log.Logger
}

// Build wires the application from cfg. Channels whose configuration or
// credentials are missing are left out; the orchestrator reports them as
// unavailable when they are turned on.
func Build(ctx context.Context, cfg *model.AppConfig, logger *log.Logger) (*Services, error) {
	s := &Services{
		Metrics:   metrics.New(),
		Lifecycle: notify.NewLifecycle(),
		Toasts:    NewToastQueue(16),
		Focus:     &FocusSource{},
		logger:    logger,
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	s.Store = st

	if err := s.buildBridge(cfg); err != nil {
		s.Close()
		return nil, err
	}

	token := credential.Lookup(credential.KeyBackendToken)
	timeout := time.Duration(cfg.Backend.TimeoutSec) * time.Second
	api := backend.NewClient(cfg.Backend.BaseURL, token, timeout)

	services := make(map[model.Channel]monitor.ChannelService, len(model.Channels))
	if listener := s.buildSMS(cfg, api); listener != nil {
		services[model.ChannelSMS] = listener
	}
	if poller := s.buildMail(cfg, token, timeout); poller != nil {
		services[model.ChannelGmail] = poller
	}

	s.Orchestrator = monitor.New(monitor.Config{
		Store:    st,
		Services: services,
		Links:    api,
		Sync:     api,
		Metrics:  s.Metrics,
		Logger:   logger,
	})
	if err := s.Orchestrator.Attach(s.Bridge); err != nil {
		s.Close()
		return nil, err
	}

	s.Router = notify.NewRouter(notify.RouterConfig{
		Lifecycle: s.Lifecycle,
		InApp:     s.Toasts,
		System:    s.buildNotifier(ctx, cfg),
		Metrics:   s.Metrics,
		Logger:    logger,
	})
	if err := s.Router.Attach(s.Bridge); err != nil {
		s.Close()
		return nil, err
	}
	s.Lifecycle.Install(s.Focus)

	if spec := cfg.Monitor.ReconcileSchedule; spec != "" {
		sched, err := monitor.NewScheduler(s.Orchestrator, spec, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.scheduler = sched
	}

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		srv, err := metrics.Serve(addr, s.Metrics, logger)
		if err != nil {
			logger.Warn("metrics disabled", "err", err)
		} else {
			s.metricsServer = srv
		}
	}

	return s, nil
}

// buildBridge connects to NATS when configured so that a separately
// launched task can reach this process, and falls back to in-process
// delivery otherwise.
func (s *Services) buildBridge(cfg *model.AppConfig) error {
	if cfg.Bridge.NATSURL == "" {
		s.Bridge = bridge.NewLocal(s.Metrics, s.logger)
		return nil
	}

	hostname, _ := os.Hostname()
	nb, err := bridge.DialNATS(cfg.Bridge.NATSURL, "swiftshield-"+hostname, s.Metrics, s.logger)
	if err != nil {
		return err
	}
	s.nats = nb
	s.Bridge = nb
	return nil
}

// buildSMS creates the webhook listener whose payloads run through the
// background task.
func (s *Services) buildSMS(cfg *model.AppConfig, api *backend.Client) *sms.Listener {
	if cfg.SMS.ListenAddr == "" {
		s.logger.Info("sms channel not configured")
		return nil
	}

	webhookToken := ""
	if cfg.SMS.RequireToken {
		webhookToken = credential.Lookup(credential.KeyWebhookToken)
		if webhookToken == "" {
			s.logger.Warn("sms webhook token required but not stored, sms channel unavailable")
			return nil
		}
	}

	classifyTimeout := time.Duration(cfg.Backend.ClassifyTimeoutSec) * time.Second
	runner := task.NewRunner(api, s.Bridge, classifyTimeout, s.Metrics, s.logger)
	return sms.NewListener(cfg.SMS.ListenAddr, webhookToken, runner, s.logger)
}

// buildMail creates the IMAP poller. Scans get their own rate-limited
// client so that a large mailbox cannot starve SMS classification.
func (s *Services) buildMail(cfg *model.AppConfig, token string, timeout time.Duration) *mail.Poller {
	if cfg.Mail.Host == "" || cfg.Mail.Username == "" {
		s.logger.Info("mail channel not configured")
		return nil
	}
	password := credential.Lookup(credential.KeyMailPassword)
	if password == "" {
		s.logger.Warn("mail password not stored, mail channel unavailable")
		return nil
	}

	scanner := backend.NewClient(cfg.Backend.BaseURL, token, timeout)
	scanner.SetRateLimit(cfg.Backend.RatePerSec)

	return mail.NewPoller(mail.PollerConfig{
		Mailbox:   mail.NewIMAPClient(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, password, cfg.Mail.TLS),
		Scanner:   scanner,
		Cursor:    s.Store,
		Publisher: s.Bridge,
		Interval:  time.Duration(cfg.Mail.PollIntervalSec) * time.Second,
		BatchSize: cfg.Mail.BatchSize,
		Logger:    s.logger,
	})
}

// buildNotifier returns the push notifier, or Nop when push is off or
// cannot be initialized.
func (s *Services) buildNotifier(ctx context.Context, cfg *model.AppConfig) notify.SystemNotifier {
	if !cfg.Push.Enabled {
		return notify.Nop{}
	}
	fcm, err := notify.NewFCM(ctx, cfg.Push.CredentialsFile, cfg.Push.ProjectID, cfg.Push.DeviceTokens, s.logger)
	if err != nil {
		s.logger.Warn("push notifications disabled", "err", err)
		return notify.Nop{}
	}
	return fcm
}

// Launch re-applies the stored intent, so channels that were on when the
// application last ran come back on, and starts the reconcile schedule.
func (s *Services) Launch(ctx context.Context) error {
	status, err := s.Orchestrator.Status(ctx)
	if err != nil {
		return err
	}
	if status.IsActive {
		if _, err := s.Orchestrator.Start(ctx); err != nil {
			return fmt.Errorf("restoring monitoring: %w", err)
		}
	}
	if s.scheduler != nil {
		s.scheduler.Start()
	}
	return nil
}

// Close stops the listeners without touching the stored intent and
// releases every resource.
func (s *Services) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if s.scheduler != nil {
		s.scheduler.Stop(ctx)
	}
	if s.Router != nil {
		s.Router.Detach()
	}
	if s.Orchestrator != nil {
		s.Orchestrator.Shutdown(ctx)
	}
	if s.metricsServer != nil {
		errs = append(errs, s.metricsServer.Shutdown(ctx))
	}
	if s.nats != nil {
		errs = append(errs, s.nats.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}
