package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Provider is the minimal metrics contract used internally to report the
// collector's own health (cycles run, endpoint errors, writer batch
// latency) -- distinct from the per-measurement gauges the scrape *writer*
// exposes to downstream consumers (internal/writer.ScrapeWriter). Mirrors
// engine/internal/telemetry/metrics.Provider.
type Provider interface {
	Counter(name, help string, labels ...string) Counter
	Gauge(name, help string, labels ...string) Gauge
	Histogram(name, help string, labels ...string) Histogram
}

type Counter interface{ Inc(labelValues ...string) }
type Gauge interface {
	Set(v float64, labelValues ...string)
}
type Histogram interface {
	Observe(v float64, labelValues ...string)
}

// promProvider backs Provider with a dedicated prometheus.Registry so the
// collector's self-metrics never collide with the per-measurement gauges
// registered by the scrape writer.
type promProvider struct {
	registry *prometheus.Registry
}

// NewPrometheusProvider returns a Provider backed by reg.
func NewPrometheusProvider(reg *prometheus.Registry) Provider {
	return &promProvider{registry: reg}
}

func (p *promProvider) Counter(name, help string, labels ...string) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	p.registry.MustRegister(vec)
	return &counterVec{vec: vec, labels: labels}
}

func (p *promProvider) Gauge(name, help string, labels ...string) Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	p.registry.MustRegister(vec)
	return &gaugeVec{vec: vec, labels: labels}
}

func (p *promProvider) Histogram(name, help string, labels ...string) Histogram {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help}, labels)
	p.registry.MustRegister(vec)
	return &histogramVec{vec: vec, labels: labels}
}

type counterVec struct {
	vec    *prometheus.CounterVec
	labels []string
}

func (c *counterVec) Inc(labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Inc()
}

type gaugeVec struct {
	vec    *prometheus.GaugeVec
	labels []string
}

func (g *gaugeVec) Set(v float64, labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Set(v)
}

type histogramVec struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func (h *histogramVec) Observe(v float64, labelValues ...string) {
	h.vec.WithLabelValues(labelValues...).Observe(v)
}

// noopProvider discards everything; used by default and in unit tests that
// do not care about self-metrics.
type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}

func NewNoopProvider() Provider                                    { return noopProvider{} }
func (noopProvider) Counter(string, string, ...string) Counter     { return noopCounter{} }
func (noopProvider) Gauge(string, string, ...string) Gauge         { return noopGauge{} }
func (noopProvider) Histogram(string, string, ...string) Histogram { return noopHistogram{} }
func (noopCounter) Inc(...string)                                  {}
func (noopGauge) Set(float64, ...string)                           {}
func (noopHistogram) Observe(float64, ...string)                   {}
