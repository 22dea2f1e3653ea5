package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/metrics"
	"github.com/earlfranciss/swiftshield/internal/model"
)

// fakeSource lets a test drive lifecycle transitions.
type fakeSource struct {
	watches int
	update  func(State)
}

func (s *fakeSource) Watch(update func(State)) {
	s.watches++
	s.update = update
}

type recordingInApp struct {
	mu     sync.Mutex
	toasts []model.Toast
	reject bool
}

func (r *recordingInApp) ShowToast(t model.Toast) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return false
	}
	r.toasts = append(r.toasts, t)
	return true
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.SystemNotification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n model.SystemNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

type fixture struct {
	router *Router
	source *fakeSource
	inApp  *recordingInApp
	system *recordingNotifier
	m      *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source: &fakeSource{},
		inApp:  &recordingInApp{},
		system: &recordingNotifier{},
		m:      metrics.New(),
	}
	lc := NewLifecycle()
	if !lc.Install(f.source) {
		t.Fatal("first Install must attach")
	}
	f.router = NewRouter(RouterConfig{
		Lifecycle: lc,
		InApp:     f.inApp,
		System:    f.system,
		Metrics:   f.m,
		Logger:    logging.Discard(),
	})
	return f
}

func smsThreat(id string) model.ThreatEvent {
	return model.ThreatEvent{
		Type:        model.ThreatSMS,
		DetectionID: id,
		Sender:      "12345",
		Preview:     "click http://evil...",
	}
}

func TestRouteForegroundRaisesToast(t *testing.T) {
	f := newFixture(t)

	f.router.Route(context.Background(), smsThreat("abc123"))

	if len(f.inApp.toasts) != 1 {
		t.Fatalf("expected 1 toast, got %d", len(f.inApp.toasts))
	}
	if len(f.system.sent) != 0 {
		t.Errorf("expected no system notification, got %d", len(f.system.sent))
	}
	toast := f.inApp.toasts[0]
	if toast.ID == "" {
		t.Error("expected toast id")
	}
	if toast.Threat.DetectionID != "abc123" {
		t.Errorf("expected toast for abc123, got %s", toast.Threat.DetectionID)
	}
	if !f.router.Unread() {
		t.Error("expected unread flag after toast")
	}
}

func TestRouteBackgroundSendsSystemOnly(t *testing.T) {
	f := newFixture(t)
	f.source.update(Background)

	f.router.Route(context.Background(), smsThreat("abc123"))

	if len(f.inApp.toasts) != 0 {
		t.Errorf("expected no toast in background, got %d", len(f.inApp.toasts))
	}
	if !f.router.Unread() {
		t.Error("a system notification must also set the unread flag")
	}
	if len(f.system.sent) != 1 {
		t.Fatalf("expected 1 system notification, got %d", len(f.system.sent))
	}
	n := f.system.sent[0]
	if n.Title != AlertTitle {
		t.Errorf("unexpected title %q", n.Title)
	}
	if n.Data["detectionId"] != "abc123" {
		t.Errorf("expected detectionId in data, got %v", n.Data)
	}
}

func TestRouteSuppressesConsecutiveDuplicate(t *testing.T) {
	f := newFixture(t)

	f.router.Route(context.Background(), smsThreat("abc123"))
	f.router.Route(context.Background(), smsThreat("abc123"))

	if len(f.inApp.toasts) != 1 {
		t.Errorf("expected duplicate to be suppressed, got %d toasts", len(f.inApp.toasts))
	}
}

func TestRouteDedupIsPerStream(t *testing.T) {
	f := newFixture(t)

	f.router.Route(context.Background(), smsThreat("same"))
	mail := smsThreat("same")
	mail.Type = model.ThreatGmail
	f.router.Route(context.Background(), mail)

	if len(f.inApp.toasts) != 2 {
		t.Errorf("expected one toast per stream, got %d", len(f.inApp.toasts))
	}
}

func TestRouteSingleSlotDedupLimitation(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"a", "b", "a"} {
		f.router.Route(context.Background(), smsThreat(id))
	}

	// Only the last id is remembered, so the second "a" is delivered.
	if len(f.inApp.toasts) != 3 {
		t.Errorf("expected 3 toasts, got %d", len(f.inApp.toasts))
	}
}

func TestRouteDedupSpansLifecycleStates(t *testing.T) {
	f := newFixture(t)

	f.router.Route(context.Background(), smsThreat("abc123"))
	f.source.update(Background)
	f.router.Route(context.Background(), smsThreat("abc123"))

	if len(f.system.sent) != 0 {
		t.Errorf("expected repeat in background to be suppressed, got %d", len(f.system.sent))
	}
}

func TestRouteRejectedToastFallsBackToSystem(t *testing.T) {
	f := newFixture(t)
	f.inApp.reject = true

	f.router.Route(context.Background(), smsThreat("abc123"))

	if len(f.system.sent) != 1 {
		t.Fatalf("expected the rejected toast as a system notification, got %d", len(f.system.sent))
	}
	if f.system.sent[0].Data["detectionId"] != "abc123" {
		t.Errorf("unexpected notification data %v", f.system.sent[0].Data)
	}
	if got := routedCount(t, f.m, metrics.RouteToast); got != 0 {
		t.Errorf("a rejected toast must not count as raised, got %v", got)
	}
	if got := routedCount(t, f.m, metrics.RouteSystem); got != 1 {
		t.Errorf("expected one system route, got %v", got)
	}
}

func TestRouteSystemFailureStillRecords(t *testing.T) {
	f := newFixture(t)
	f.system.err = errors.New("fcm unavailable")
	f.source.update(Background)

	f.router.Route(context.Background(), smsThreat("abc123"))
	f.router.Route(context.Background(), smsThreat("abc123"))

	if len(f.system.sent) != 1 {
		t.Errorf("expected one attempt, got %d", len(f.system.sent))
	}
}

func TestRouteMetrics(t *testing.T) {
	f := newFixture(t)

	f.router.Route(context.Background(), smsThreat("a"))
	f.router.Route(context.Background(), smsThreat("a"))
	f.source.update(Background)
	f.router.Route(context.Background(), smsThreat("b"))

	want := map[string]float64{
		metrics.RouteToast:      1,
		metrics.RouteSuppressed: 1,
		metrics.RouteSystem:     1,
	}
	for route, n := range want {
		if got := routedCount(t, f.m, route); got != n {
			t.Errorf("route %s: expected %v, got %v", route, n, got)
		}
	}
}

func routedCount(t *testing.T, m *metrics.Metrics, route string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "swiftshield_notifications_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" && label.GetValue() == route {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	f.router.Route(context.Background(), smsThreat("a"))
	f.router.MarkRead()
	if f.router.Unread() {
		t.Error("expected unread cleared")
	}
}

func TestAttachRoutesBridgeEvents(t *testing.T) {
	f := newFixture(t)
	b := bridge.NewLocal(nil, logging.Discard())

	if err := f.router.Attach(b); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	// Re-attaching must not deliver twice.
	if err := f.router.Attach(b); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := b.Publish(context.Background(), bridge.ThreatDetected(smsThreat("abc123"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(f.inApp.toasts) != 1 {
		t.Errorf("expected 1 toast, got %d", len(f.inApp.toasts))
	}

	f.router.Detach()
	_ = b.Publish(context.Background(), bridge.ThreatDetected(smsThreat("other")))
	if len(f.inApp.toasts) != 1 {
		t.Errorf("expected no delivery after Detach, got %d toasts", len(f.inApp.toasts))
	}
}

func TestLifecycleInstallOnce(t *testing.T) {
	lc := NewLifecycle()
	first, second := &fakeSource{}, &fakeSource{}

	if !lc.Install(first) {
		t.Error("expected first Install to attach")
	}
	if lc.Install(second) {
		t.Error("expected second Install to be a no-op")
	}
	if second.watches != 0 {
		t.Error("second source must not be watched")
	}
	if !lc.Foreground() {
		t.Error("expected initial state foreground")
	}

	first.update(Background)
	if lc.State() != Background {
		t.Errorf("expected background, got %s", lc.State())
	}
}
