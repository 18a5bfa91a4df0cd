package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zapvoice"

// Metrics holds the Prometheus collectors for one server.
type Metrics struct {
	registry *prometheus.Registry

	Pledges          *prometheus.CounterVec
	SettlementChecks *prometheus.CounterVec
	Alerts           *prometheus.CounterVec
	AlertQueueDepth  prometheus.Gauge
	AnnounceDuration prometheus.Histogram
	RelayQueries     *prometheus.CounterVec
	GoalCurrentSats  *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates collectors on a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Pledges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "pledges_total",
				Help:      "Pledges by final outcome",
			},
			[]string{"outcome"},
		),
		SettlementChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "settlement_checks_total",
				Help:      "Invoice settlement checks by result",
			},
			[]string{"result"},
		),
		Alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "processed_total",
				Help:      "Alerts processed by outcome",
			},
			[]string{"outcome"},
		),
		AlertQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "queue_depth",
				Help:      "Receipts waiting to be announced",
			},
		),
		AnnounceDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "announce_duration_seconds",
				Help:      "Duration of a full announce cycle",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80},
			},
		),
		RelayQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "queries_total",
				Help:      "Relay queries by result",
			},
			[]string{"result"},
		),
		GoalCurrentSats: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "goal",
				Name:      "current_sats",
				Help:      "Last computed goal total in sats",
			},
			[]string{"goal"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Registry returns the private registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PledgeOutcome counts a pledge reaching outcome.
func (m *Metrics) PledgeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Pledges.WithLabelValues(outcome).Inc()
}

// SettlementCheck counts a verify call result.
func (m *Metrics) SettlementCheck(result string) {
	if m == nil {
		return
	}
	m.SettlementChecks.WithLabelValues(result).Inc()
}

// AlertProcessed counts an alert outcome and records how long its cycle took.
func (m *Metrics) AlertProcessed(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(outcome).Inc()
	if took > 0 {
		m.AnnounceDuration.Observe(took.Seconds())
	}
}

// QueueDepth sets the current alert queue length.
func (m *Metrics) QueueDepth(depth int) {
	if m == nil {
		return
	}
	m.AlertQueueDepth.Set(float64(depth))
}

// RelayQuery counts a relay query result ("ok" or an error class).
func (m *Metrics) RelayQuery(result string) {
	if m == nil {
		return
	}
	m.RelayQueries.WithLabelValues(result).Inc()
}

// GoalProgress records the latest total for a goal.
func (m *Metrics) GoalProgress(goalID string, sats int64) {
	if m == nil {
		return
	}
	m.GoalCurrentSats.WithLabelValues(goalID).Set(float64(sats))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(took.Seconds())
}
