package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the caption pipeline collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	inference   *prometheus.HistogramVec
	trimmed     prometheus.Counter
	deletes     *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_generations_total",
			Help: "Generate requests by outcome (ok or error category).",
		}, []string{"outcome"}),
		inference: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caption_inference_duration_seconds",
			Help:    "Latency of the multimodal inference call.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"provider", "result"}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caption_history_trimmed_total",
			Help: "Posts removed by the retention trimmer.",
		}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_history_deletes_total",
			Help: "Explicit history deletes by whether a row was removed.",
		}, []string{"removed"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.generations, m.inference, m.trimmed, m.deletes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Generation records one Generate outcome.
func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

// Inference records the duration of one inference call.
func (m *Metrics) Inference(provider string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.inference.WithLabelValues(provider, result).Observe(d.Seconds())
}

// Trimmed records posts removed by retention.
func (m *Metrics) Trimmed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trimmed.Add(float64(n))
}

// Deleted records one explicit delete.
func (m *Metrics) Deleted(removed bool) {
	if m == nil {
		return
	}
	label := "false"
	if removed {
		label = "true"
	}
	m.deletes.WithLabelValues(label).Inc()
}
