package fluentfwd

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the forwarder's activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	emitted   prometheus.Counter
	failures  *prometheus.CounterVec
	connects  prometheus.Counter
	connected prometheus.Gauge
}

// NewMetrics creates the forwarder metrics and registers them with reg.
// Registering twice on the same registry is an error, so each Forwarder
// sharing a registry needs distinct const labels.
func NewMetrics(reg prometheus.Registerer, constLabels prometheus.Labels) (*Metrics, error) {
	m := &Metrics{
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fluentfwd",
			Name:        "events_emitted_total",
			Help:        "Envelopes written to the collector.",
			ConstLabels: constLabels,
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "fluentfwd",
			Name:        "failures_total",
			Help:        "Failures reported to the error sink, by operation.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "fluentfwd",
			Name:        "connects_total",
			Help:        "Successful connections to the collector.",
			ConstLabels: constLabels,
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "fluentfwd",
			Name:        "connected",
			Help:        "1 while a connection to the collector is live.",
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{m.emitted, m.failures, m.connects, m.connected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) incEmitted() {
	if m != nil {
		m.emitted.Inc()
	}
}

func (m *Metrics) incFailure(op Op) {
	if m != nil {
		m.failures.WithLabelValues(string(op)).Inc()
	}
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connects.Inc()
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
