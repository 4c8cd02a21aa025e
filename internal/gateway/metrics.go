package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the gateway's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Dispatches   *prometheus.CounterVec
	Retries      prometheus.Counter
	Deduplicated prometheus.Counter
	Outcomes     *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
	RetryWait    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "gateway",
			Name:      "dispatches_total",
			Help:      "Requests started by the gateway, by mode",
		}, []string{"mode"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Attempts retried after a rate-limit response",
		}),
		Deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "gateway",
			Name:      "deduplicated_total",
			Help:      "Submissions attached to an in-flight request with the same key",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "gateway",
			Name:      "outcomes_total",
			Help:      "Settled requests, by result",
		}, []string{"result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricebot",
			Subsystem: "gateway",
			Name:      "queue_depth",
			Help:      "Requests waiting in the serialized queue",
		}),
		RetryWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricebot",
			Subsystem: "gateway",
			Name:      "retry_wait_seconds",
			Help:      "Backoff delays inserted before retries",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		}),
	}

	reg.MustRegister(m.Dispatches, m.Retries, m.Deduplicated, m.Outcomes, m.QueueDepth, m.RetryWait)
	return m
}

func (m *Metrics) dispatched(mode string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(mode).Inc()
}

func (m *Metrics) retried(delay time.Duration) {
	if m == nil {
		return
	}
	m.Retries.Inc()
	m.RetryWait.Observe(delay.Seconds())
}

func (m *Metrics) deduplicated() {
	if m == nil {
		return
	}
	m.Deduplicated.Inc()
}

func (m *Metrics) settled(result string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(result).Inc()
}

func (m *Metrics) queueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
