package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30}

// Metrics groups the posting pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	fetches       *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	tickUsers     prometheus.Gauge
	tickFailures  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baasbot",
			Subsystem: "posting",
			Name:      "cycles_total",
			Help:      "Posting cycles by entry point and outcome",
		}, []string{"trigger", "outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "baasbot",
			Subsystem: "posting",
			Name:      "cycle_duration_seconds",
			Help:      "Latency distribution of a single user cycle",
			Buckets:   histogramBuckets,
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baasbot",
			Subsystem: "content",
			Name:      "fetches_total",
			Help:      "Content source calls by result",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "baasbot",
			Subsystem: "publisher",
			Name:      "publishes_total",
			Help:      "Publish attempts by kind and result",
		}, []string{"kind", "result"}),
		tickUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "baasbot",
			Subsystem: "scheduler",
			Name:      "tick_active_users",
			Help:      "Active users seen by the last scheduler tick",
		}),
		tickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "baasbot",
			Subsystem: "scheduler",
			Name:      "user_failures_total",
			Help:      "Per-user cycle errors and panics isolated by the scheduler",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.cycleDuration, m.fetches, m.publishes, m.tickUsers, m.tickFailures)
	}
	return m
}

func (m *Metrics) ObserveCycle(trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.With(prometheus.Labels{"trigger": trigger, "outcome": outcome}).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(ok bool) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ObservePublish(kind string, ok bool) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(kind, result(ok)).Inc()
}

func (m *Metrics) SetTickUsers(n int) {
	if m == nil {
		return
	}
	m.tickUsers.Set(float64(n))
}

func (m *Metrics) IncTickFailure() {
	if m == nil {
		return
	}
	m.tickFailures.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
