// Package metrics exposes Prometheus collectors for the analysis worker.
// A nil *Metrics is valid and records nothing, so library consumers that
// do not scrape pay no cost.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	samplesTotal   *prometheus.CounterVec
	engineFailures *prometheus.CounterVec
	duration       prometheus.Histogram
	activeEngines  prometheus.Gauge
}

// New creates the collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer to use the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prpdisasm_samples_total",
			Help: "Samples processed, by final report status.",
		}, []string{"status"}),
		engineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prpdisasm_engine_failures_total",
			Help: "Engine invocations that did not complete, by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prpdisasm_analysis_duration_seconds",
			Help:    "End-to-end duration of a single sample analysis.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		activeEngines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prpdisasm_active_engines",
			Help: "Engine subprocesses currently running.",
		}),
	}
	reg.MustRegister(m.samplesTotal, m.engineFailures, m.duration, m.activeEngines)
	return m
}

// ObserveSample records one finished analysis.
func (m *Metrics) ObserveSample(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues(status).Inc()
	m.duration.Observe(d.Seconds())
}

// ObserveEngineFailure records an engine invocation that did not complete.
func (m *Metrics) ObserveEngineFailure(reason string) {
	if m == nil {
		return
	}
	m.engineFailures.WithLabelValues(reason).Inc()
}

// EngineStarted marks an engine subprocess as in flight.
func (m *Metrics) EngineStarted() {
	if m == nil {
		return
	}
	m.activeEngines.Inc()
}

// EngineFinished marks an engine subprocess as done.
func (m *Metrics) EngineFinished() {
	if m == nil {
		return
	}
	m.activeEngines.Dec()
}
