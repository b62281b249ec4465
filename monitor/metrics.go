package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the poll loop. A nil *Metrics records nothing.
type Metrics struct {
	ticks            prometheus.Counter
	fetchFailures    *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	subscriptions    prometheus.Gauge
	evaluationErrors prometheus.Counter
	notifications    *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "snwatch_ticks_total",
			Help: "Total number of completed poll ticks",
		}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snwatch_fetch_failures_total",
			Help: "Total number of failed network snapshot fetches",
		}, []string{"network"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "snwatch_tick_duration_seconds",
			Help:    "Duration of poll ticks that fetched successfully",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "snwatch_subscriptions",
			Help: "Number of subscriptions evaluated in the last tick",
		}),
		evaluationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "snwatch_evaluation_errors_total",
			Help: "Total number of subscriptions whose evaluation failed",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snwatch_notifications_total",
			Help: "Notifications attempted, by condition and delivery result",
		}, []string{"axis", "result"}),
	}
}

func (m *Metrics) fetchFailed(network string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(network).Inc()
}

func (m *Metrics) tickDone(started time.Time, subscriptions int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(time.Since(started).Seconds())
	m.subscriptions.Set(float64(subscriptions))
}

func (m *Metrics) evaluationFailed() {
	if m == nil {
		return
	}
	m.evaluationErrors.Inc()
}

func (m *Metrics) notified(axis string, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.notifications.WithLabelValues(axis, result).Inc()
}
