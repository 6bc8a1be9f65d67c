package pubsubsink

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks delivery health of a sink task. A nil *Metrics is a no-op.
type Metrics struct {
	published           prometheus.Counter
	failures            *prometheus.CounterVec
	thresholdExceeded   prometheus.Counter
	consecutiveFailures prometheus.Gauge
	inflight            prometheus.Gauge
	abandoned           prometheus.Counter
}

func newCounter(name, help string, labels prometheus.Labels) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "kafkabridge",
		Subsystem:   "sink",
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newGauge(name, help string, labels prometheus.Labels) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "kafkabridge",
		Subsystem:   "sink",
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

// NewMetrics creates the sink collectors of one task and registers them with registerer.
// Every series carries a task_id label, so tasks sharing a registry keep separate values.
// Collectors already registered for the same task_id are reused.
func NewMetrics(registerer prometheus.Registerer, taskID string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"task_id": taskID}
	m := &Metrics{
		published: newCounter("published_total", "Messages confirmed as published by Pub/Sub", labels),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "kafkabridge",
			Subsystem:   "sink",
			Name:        "publish_failures_total",
			Help:        "Publish failures by stage (convert, submit, async)",
			ConstLabels: labels,
		}, []string{"stage"}),
		thresholdExceeded:   newCounter("threshold_exceeded_total", "Batches aborted because the consecutive failure threshold was exceeded", labels),
		consecutiveFailures: newGauge("consecutive_failures", "Current number of consecutive publish failures", labels),
		inflight:            newGauge("inflight_messages", "Messages submitted and not yet resolved", labels),
		abandoned:           newCounter("abandoned_total", "Submissions still outstanding when the drain timeout elapsed", labels),
	}

	m.published = register(registerer, m.published)
	m.failures = register(registerer, m.failures)
	m.thresholdExceeded = register(registerer, m.thresholdExceeded)
	m.consecutiveFailures = register(registerer, m.consecutiveFailures)
	m.inflight = register(registerer, m.inflight)
	m.abandoned = register(registerer, m.abandoned)
	return m
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) incPublished() {
	if m == nil {
		return
	}
	m.published.Inc()
}

func (m *Metrics) incFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) incThresholdExceeded() {
	if m == nil {
		return
	}
	m.thresholdExceeded.Inc()
}

func (m *Metrics) setConsecutiveFailures(n int64) {
	if m == nil {
		return
	}
	m.consecutiveFailures.Set(float64(n))
}

func (m *Metrics) addInflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}

func (m *Metrics) addAbandoned(n int64) {
	if m == nil {
		return
	}
	m.abandoned.Add(float64(n))
}
