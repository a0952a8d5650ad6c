// Package prommetrics records relay and consumer telemetry in Prometheus.
package prommetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velmie/jobrelay"
)

const namespace = "jobrelay"

// Metrics implements jobrelay.Metrics with Prometheus collectors.
type Metrics struct {
	batchDuration  prometheus.Histogram
	handleDuration prometheus.Histogram
	messages       *prometheus.CounterVec
	errors         prometheus.Counter
	pending        prometheus.Gauge
}

var _ jobrelay.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
// A nil reg skips registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing a fetched batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		handleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handle_duration_seconds",
			Help:      "Time the handler spent on a single message.",
			Buckets:   prometheus.DefBuckets,
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Settled messages by disposition.",
		}, []string{"disposition"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler errors, retried or dead-lettered.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_messages",
			Help:      "Messages waiting to be processed.",
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.batchDuration, m.handleDuration, m.messages, m.errors, m.pending}
}

// ObserveBatchDuration implements jobrelay.Metrics.
func (m *Metrics) ObserveBatchDuration(d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
}

// ObserveHandleDuration implements jobrelay.Metrics.
func (m *Metrics) ObserveHandleDuration(d time.Duration) {
	m.handleDuration.Observe(d.Seconds())
}

// AddAcked implements jobrelay.Metrics.
func (m *Metrics) AddAcked(count int) {
	m.messages.WithLabelValues("acked").Add(float64(count))
}

// AddErrors implements jobrelay.Metrics.
func (m *Metrics) AddErrors(count int) {
	m.errors.Add(float64(count))
}

// AddRetries implements jobrelay.Metrics.
func (m *Metrics) AddRetries(count int) {
	m.messages.WithLabelValues("retry").Add(float64(count))
}

// AddDead implements jobrelay.Metrics.
func (m *Metrics) AddDead(count int) {
	m.messages.WithLabelValues("dead").Add(float64(count))
}

// SetPending implements jobrelay.Metrics.
func (m *Metrics) SetPending(count int) {
	m.pending.Set(float64(count))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
