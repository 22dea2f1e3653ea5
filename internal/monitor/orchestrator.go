// Package monitor drives the channel listeners from the persisted
// monitoring intent and keeps the backend informed of that intent.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/earlfranciss/swiftshield/internal/backend"
	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/metrics"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/store"
)

// ErrNoService is reported for a channel that has no listener on this
// platform.
var ErrNoService = errors.New("no listener available for channel")

// errNotLinked is recorded for an intended mail channel whose account is
// not linked. It is an expected state, not a failure.
var errNotLinked = errors.New("account not linked")

// ChannelService is the platform listener for one channel. Start on a
// running service and Stop on a stopped one must both succeed.
type ChannelService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
}

// LinkChecker reports whether the mail account is linked.
type LinkChecker interface {
	CheckLinkStatus(ctx context.Context) (backend.LinkStatus, error)
}

// BackendSync is told about every intent change.
type BackendSync interface {
	ToggleMonitoring(ctx context.Context, req backend.ToggleRequest) error
}

// ChannelResult is the outcome of the last start attempt for a channel.
type ChannelResult struct {
	// Attempted is true when the listener's Start was called.
	Attempted bool
	// Started is true when that call succeeded.
	Started bool
	// Skipped is true when the channel was intended but not started
	// because its account is not linked.
	Skipped bool
	Err     error
	At      time.Time
}

// Config holds the orchestrator's collaborators. Services may omit a
// channel. A nil Links reads as not linked and a nil Sync skips backend
// updates.
type Config struct {
	Store    store.IntentStore
	Services map[model.Channel]ChannelService
	Links    LinkChecker
	Sync     BackendSync
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Orchestrator starts and stops channel listeners according to the stored
// intent. Every operation ends by re-reading the store, so callers always
// see the latest persisted intent rather than a snapshot.
type Orchestrator struct {
	store    store.IntentStore
	services map[model.Channel]ChannelService
	links    LinkChecker
	syncer   BackendSync
	metrics  *metrics.Metrics
	logger   *log.Logger

	// opMu serializes operations that start or stop listeners, so a start
	// in progress can never outlive a concurrent Stop.
	opMu sync.Mutex

	mu      sync.Mutex
	results map[model.Channel]ChannelResult
	sub     bridge.Subscription

	changes chan struct{}
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	services := make(map[model.Channel]ChannelService, len(cfg.Services))
	for ch, svc := range cfg.Services {
		if svc != nil {
			services[ch] = svc
		}
	}
	return &Orchestrator{
		store:    cfg.Store,
		services: services,
		links:    cfg.Links,
		syncer:   cfg.Sync,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "monitor"),
		results:  make(map[model.Channel]ChannelResult),
		changes:  make(chan struct{}, 1),
	}
}

// Toggle persists the requested intent and then applies it. A store
// failure is returned before any listener is touched.
func (o *Orchestrator) Toggle(ctx context.Context, sms, gmail bool) (model.MonitoringStatus, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if err := o.store.SetIntent(ctx, sms, gmail); err != nil {
		return model.MonitoringStatus{}, fmt.Errorf("saving monitoring intent: %w", err)
	}
	o.changed()

	if sms || gmail {
		return o.start(ctx)
	}
	return o.stop(ctx)
}

// Start brings the listeners in line with the stored intent and informs
// the backend. Listener failures are recorded per channel and never
// change the intent.
func (o *Orchestrator) Start(ctx context.Context) (model.MonitoringStatus, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.start(ctx)
}

func (o *Orchestrator) start(ctx context.Context) (model.MonitoringStatus, error) {
	status, err := o.store.GetIntent(ctx)
	if err != nil {
		return model.MonitoringStatus{}, fmt.Errorf("reading monitoring intent: %w", err)
	}
	intent := status.Intent()

	for _, ch := range model.Channels {
		if intent.Enabled(ch) {
			o.startChannel(ctx, ch)
			continue
		}
		o.stopIdle(ctx, ch)
	}

	o.syncBackend(ctx, intent)
	return o.readBack(ctx)
}

// Stop stops every listener whatever the intent, then stores all-off and
// informs the backend.
func (o *Orchestrator) Stop(ctx context.Context) (model.MonitoringStatus, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.stop(ctx)
}

func (o *Orchestrator) stop(ctx context.Context) (model.MonitoringStatus, error) {
	for _, ch := range model.Channels {
		svc, ok := o.services[ch]
		if !ok {
			o.logger.Warn("cannot stop channel", "channel", ch, "err", ErrNoService)
			continue
		}
		if err := svc.Stop(ctx); err != nil {
			o.logger.Error("stopping channel", "channel", ch, "err", err)
		}
	}

	if err := o.store.SetIntent(ctx, false, false); err != nil {
		return model.MonitoringStatus{}, fmt.Errorf("saving monitoring intent: %w", err)
	}

	o.mu.Lock()
	o.results = make(map[model.Channel]ChannelResult)
	o.mu.Unlock()
	o.changed()

	o.syncBackend(ctx, model.MonitoringIntent{})
	return o.readBack(ctx)
}

// Shutdown stops every running listener and detaches from the bridge. The
// stored intent is left as is, so the next launch restores it.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	sub := o.sub
	o.sub = nil
	o.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()
	for _, ch := range model.Channels {
		svc, ok := o.services[ch]
		if !ok || !svc.Running() {
			continue
		}
		if err := svc.Stop(ctx); err != nil {
			o.logger.Error("stopping channel at shutdown", "channel", ch, "err", err)
		}
	}
}

// HandleChannelExpired turns ch off after its link became invalid and
// stops its listener.
func (o *Orchestrator) HandleChannelExpired(ctx context.Context, ev model.ChannelExpiryEvent) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.logger.Warn("channel link expired", "channel", ev.Channel, "reason", ev.Reason)

	if err := o.store.SetChannelIntent(ctx, ev.Channel, false); err != nil {
		return fmt.Errorf("disabling %s after expiry: %w", ev.Channel, err)
	}

	if svc, ok := o.services[ev.Channel]; ok {
		if err := svc.Stop(ctx); err != nil {
			o.logger.Error("stopping expired channel", "channel", ev.Channel, "err", err)
		}
	}

	reason := ev.Reason
	if reason == "" {
		reason = "link expired"
	}
	o.setResult(ev.Channel, ChannelResult{Err: errors.New(reason), At: time.Now()})
	o.changed()
	return nil
}

// Reconcile retries the start of every intended channel whose listener is
// not running. It never changes the intent.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	status, err := o.store.GetIntent(ctx)
	if err != nil {
		o.logger.Error("reconcile: reading monitoring intent", "err", err)
		return
	}
	intent := status.Intent()

	for _, ch := range model.Channels {
		if !intent.Enabled(ch) {
			continue
		}
		if svc, ok := o.services[ch]; ok && svc.Running() {
			continue
		}
		o.logger.Info("reconcile: retrying channel start", "channel", ch)
		o.startChannel(ctx, ch)
	}
}

// Attach subscribes HandleChannelExpired to expiry events on b.
func (o *Orchestrator) Attach(b bridge.Bridge) error {
	sub, err := b.Subscribe(bridge.KindChannelExpired, func(ctx context.Context, e bridge.Event) {
		if e.Expiry == nil {
			return
		}
		if err := o.HandleChannelExpired(ctx, *e.Expiry); err != nil {
			o.logger.Error("handling channel expiry", "channel", e.Expiry.Channel, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", bridge.KindChannelExpired, err)
	}

	o.mu.Lock()
	prev := o.sub
	o.sub = sub
	o.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
	return nil
}

// Status re-reads the stored intent.
func (o *Orchestrator) Status(ctx context.Context) (model.MonitoringStatus, error) {
	return o.readBack(ctx)
}

// LastResult returns the outcome of the last start attempt for ch.
func (o *Orchestrator) LastResult(ch model.Channel) ChannelResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results[ch]
}

// Changes delivers a value whenever the intent or a channel result may
// have changed. Bursts are coalesced.
func (o *Orchestrator) Changes() <-chan struct{} {
	return o.changes
}

// startChannel attempts one channel start and records the outcome.
func (o *Orchestrator) startChannel(ctx context.Context, ch model.Channel) {
	res := ChannelResult{At: time.Now()}
	defer func() {
		o.setResult(ch, res)
		o.changed()
	}()

	svc, ok := o.services[ch]
	if !ok {
		res.Err = ErrNoService
		o.logger.Warn("cannot start channel", "channel", ch, "err", ErrNoService)
		o.metrics.ChannelStart(string(ch), "unavailable")
		return
	}

	if ch == model.ChannelGmail {
		linked, err := o.linked(ctx)
		if err != nil {
			o.logger.Warn("checking link status, treating as not linked", "err", err)
		}
		if !linked {
			res.Skipped = true
			res.Err = errNotLinked
			o.logger.Info("mail account not linked, skipping start")
			o.metrics.ChannelStart(string(ch), "skipped")
			return
		}
	}

	res.Attempted = true
	if err := svc.Start(ctx); err != nil {
		res.Err = err
		o.logger.Error("starting channel", "channel", ch, "err", err)
		o.metrics.ChannelStart(string(ch), "failed")
		return
	}

	res.Started = true
	o.logger.Info("channel started", "channel", ch)
	o.metrics.ChannelStart(string(ch), "started")
}

// stopIdle stops the listener of a channel that is no longer intended.
func (o *Orchestrator) stopIdle(ctx context.Context, ch model.Channel) {
	o.setResult(ch, ChannelResult{})

	svc, ok := o.services[ch]
	if !ok || !svc.Running() {
		return
	}
	if err := svc.Stop(ctx); err != nil {
		o.logger.Error("stopping channel", "channel", ch, "err", err)
		return
	}
	o.logger.Info("channel stopped", "channel", ch)
}

func (o *Orchestrator) linked(ctx context.Context) (bool, error) {
	if o.links == nil {
		return false, errors.New("no link checker configured")
	}
	status, err := o.links.CheckLinkStatus(ctx)
	if err != nil {
		return false, err
	}
	return status.Linked, nil
}

// syncBackend sends intent to the backend. Failure is logged only.
func (o *Orchestrator) syncBackend(ctx context.Context, intent model.MonitoringIntent) {
	if o.syncer == nil {
		return
	}
	req := backend.ToggleRequest{
		Enable:       intent.SMSEnabled || intent.GmailEnabled,
		SMSEnabled:   intent.SMSEnabled,
		GmailEnabled: intent.GmailEnabled,
	}
	if err := o.syncer.ToggleMonitoring(ctx, req); err != nil {
		o.logger.Warn("informing backend of monitoring state", "err", err)
	}
}

func (o *Orchestrator) readBack(ctx context.Context) (model.MonitoringStatus, error) {
	status, err := o.store.GetIntent(ctx)
	if err != nil {
		return model.MonitoringStatus{}, fmt.Errorf("reading monitoring intent: %w", err)
	}
	return status, nil
}

func (o *Orchestrator) setResult(ch model.Channel, res ChannelResult) {
	o.mu.Lock()
	o.results[ch] = res
	o.mu.Unlock()
}

func (o *Orchestrator) changed() {
	select {
	case o.changes <- struct{}{}:
	default:
	}
}
