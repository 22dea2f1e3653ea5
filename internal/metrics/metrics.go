package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route labels for the notifications counter.
const (
	RouteToast      = "toast"
	RouteSystem     = "system"
	RouteSuppressed = "suppressed"
)

// Metrics holds the collectors shared by the monitoring core. All methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	notifications   *prometheus.CounterVec
	classifications *prometheus.CounterVec
	channelStarts   *prometheus.CounterVec
	bridgeDropped   *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiftshield_notifications_total",
			Help: "Threat notifications by delivery route.",
		}, []string{"route"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiftshield_classifications_total",
			Help: "Background classifications by outcome.",
		}, []string{"result"}),
		channelStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiftshield_channel_starts_total",
			Help: "Channel listener start attempts by channel and result.",
		}, []string{"channel", "result"}),
		bridgeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swiftshield_bridge_dropped_total",
			Help: "Bridge events published with no live subscriber.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.notifications,
		m.classifications,
		m.channelStarts,
		m.bridgeDropped,
		collectors.NewGoCollector(),
	)
	return m
}

// NotificationRouted counts a routing decision.
func (m *Metrics) NotificationRouted(route string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(route).Inc()
}

// Classified counts a background classification outcome.
func (m *Metrics) Classified(result string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(result).Inc()
}

// ChannelStart counts a listener start attempt.
func (m *Metrics) ChannelStart(channel, result string) {
	if m == nil {
		return
	}
	m.channelStarts.WithLabelValues(channel, result).Inc()
}

// BridgeDropped counts an event lost for lack of a subscriber.
func (m *Metrics) BridgeDropped(kind string) {
	if m == nil {
		return
	}
	m.bridgeDropped.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}
