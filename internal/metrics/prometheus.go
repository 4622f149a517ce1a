package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. Each instance owns its
// registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Gateway metrics
	Transcriptions   *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	UploadSize       prometheus.Histogram
	HealthProbes     *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_transcriptions_total",
			Help: "Transcription requests by provider outcome and response label",
		}, []string{"outcome", "provider"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_provider_request_duration_seconds",
			Help:    "Latency of provider transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"outcome"}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_upload_size_bytes",
			Help:    "Size of uploaded files forwarded to the provider",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		HealthProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_health_probes_total",
			Help: "Provider health probes by reported state",
		}, []string{"aws"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) RecordTranscription(outcome, provider string) {
	m.Transcriptions.WithLabelValues(outcome, provider).Inc()
}

// RecordProviderCall observes a completed provider call. Responses served
// without one (rejected, throttled, panicked) are not observed.
func (m *Metrics) RecordProviderCall(outcome string, seconds float64) {
	m.ProviderDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) RecordUpload(size int64) {
	m.UploadSize.Observe(float64(size))
}

func (m *Metrics) RecordHealthProbe(aws string) {
	m.HealthProbes.WithLabelValues(aws).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, seconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
