// Package notify decides how a confirmed threat reaches the user: an
// in-app toast while the application is in the foreground, a system
// notification otherwise.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/metrics"
	"github.com/earlfranciss/swiftshield/internal/model"
)

// Router routes threat events. It is safe for concurrent use.
type Router struct {
	lifecycle *Lifecycle
	dedup     DedupState
	inApp     InApp
	system    SystemNotifier
	metrics   *metrics.Metrics
	logger    *log.Logger

	mu     sync.Mutex
	unread bool
	sub    bridge.Subscription
}

// RouterConfig holds the router's collaborators. Lifecycle, Dedup and
// System default to a foreground tracker, a LastIDDedup and Nop.
type RouterConfig struct {
	Lifecycle *Lifecycle
	Dedup     DedupState
	InApp     InApp
	System    SystemNotifier
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = NewLifecycle()
	}
	if cfg.Dedup == nil {
		cfg.Dedup = NewLastIDDedup()
	}
	if cfg.System == nil {
		cfg.System = Nop{}
	}
	if cfg.InApp == nil {
		cfg.InApp = InAppFunc(func(model.Toast) bool { return false })
	}
	return &Router{
		lifecycle: cfg.Lifecycle,
		dedup:     cfg.Dedup,
		inApp:     cfg.InApp,
		system:    cfg.System,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "router"),
	}
}

// Route delivers t once. A detection equal to the last one routed on the
// same stream is suppressed.
func (r *Router) Route(ctx context.Context, t model.ThreatEvent) {
	stream := t.Stream()
	if r.dedup.ShouldSuppress(stream, t.DetectionID) {
		r.logger.Debug("suppressed duplicate", "stream", stream, "detection", t.DetectionID)
		r.metrics.NotificationRouted(metrics.RouteSuppressed)
		return
	}
	r.dedup.Record(stream, t.DetectionID)

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	n := Format(t)

	r.mu.Lock()
	r.unread = true
	r.mu.Unlock()

	if r.lifecycle.Foreground() {
		accepted := r.inApp.ShowToast(model.Toast{
			ID:     uuid.NewString(),
			Title:  n.Title,
			Body:   n.Body,
			Threat: t,
		})
		if accepted {
			r.metrics.NotificationRouted(metrics.RouteToast)
			r.logger.Info("raised toast", "stream", stream, "detection", t.DetectionID)
			return
		}
		r.logger.Warn("toast rejected, falling back to system notification", "stream", stream, "detection", t.DetectionID)
	}

	if err := r.system.Notify(ctx, n); err != nil {
		r.logger.Error("system notification failed", "stream", stream, "detection", t.DetectionID, "err", err)
	}
	r.metrics.NotificationRouted(metrics.RouteSystem)
	r.logger.Info("sent system notification", "stream", stream, "detection", t.DetectionID)
}

// Unread reports whether a threat was routed since the last MarkRead.
func (r *Router) Unread() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

// MarkRead clears the unread flag.
func (r *Router) MarkRead() {
	r.mu.Lock()
	r.unread = false
	r.mu.Unlock()
}

// Attach subscribes Route to threat events on b, replacing an earlier
// attachment.
func (r *Router) Attach(b bridge.Bridge) error {
	sub, err := b.Subscribe(bridge.KindThreatDetected, func(ctx context.Context, e bridge.Event) {
		if e.Threat == nil {
			return
		}
		r.Route(ctx, *e.Threat)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.sub
	r.sub = sub
	r.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	return nil
}

// Detach drops the bridge subscription made by Attach.
func (r *Router) Detach() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
