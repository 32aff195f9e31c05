package maph

// metrics.go is a thin abstraction over Prometheus, modeled on
// arena-cache's pkg/metrics.go: a metricsSink interface with a no-op
// default so the hot path never pays for metric updates unless the caller
// opted in via WithMetrics.

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incGet(hit bool)
	incSet()
	incRemove()
	incOptimize(success bool)
	setUsedSlots(v float64)
	setLoadFactor(v float64)
}

type noopMetrics struct{}

func (noopMetrics) incGet(bool)         {}
func (noopMetrics) incSet()             {}
func (noopMetrics) incRemove()          {}
func (noopMetrics) incOptimize(bool)    {}
func (noopMetrics) setUsedSlots(float64)  {}
func (noopMetrics) setLoadFactor(float64) {}

type promMetrics struct {
	gets        *prometheus.CounterVec
	sets        prometheus.Counter
	removes     prometheus.Counter
	optimizes   *prometheus.CounterVec
	usedSlots   prometheus.Gauge
	loadFactor  prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maph",
			Name:      "gets_total",
			Help:      "Number of Get calls, labeled by hit/miss.",
		}, []string{"result"}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maph",
			Name:      "sets_total",
			Help:      "Number of Set calls.",
		}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maph",
			Name:      "removes_total",
			Help:      "Number of Remove calls.",
		}),
		optimizes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maph",
			Name:      "optimizes_total",
			Help:      "Number of optimize() calls, labeled by outcome.",
		}, []string{"outcome"}),
		usedSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maph",
			Name:      "used_slots",
			Help:      "Currently occupied slots.",
		}),
		loadFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maph",
			Name:      "load_factor",
			Help:      "used_slots / total_slots.",
		}),
	}
	reg.MustRegister(pm.gets, pm.sets, pm.removes, pm.optimizes, pm.usedSlots, pm.loadFactor)
	return pm
}

func (m *promMetrics) incGet(hit bool) {
	if hit {
		m.gets.WithLabelValues("hit").Inc()
	} else {
		m.gets.WithLabelValues("miss").Inc()
	}
}

func (m *promMetrics) incSet()    { m.sets.Inc() }
func (m *promMetrics) incRemove() { m.removes.Inc() }

func (m *promMetrics) incOptimize(success bool) {
	if success {
		m.optimizes.WithLabelValues("success").Inc()
	} else {
		m.optimizes.WithLabelValues("failure").Inc()
	}
}

func (m *promMetrics) setUsedSlots(v float64)  { m.usedSlots.Set(v) }
func (m *promMetrics) setLoadFactor(v float64) { m.loadFactor.Set(v) }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
