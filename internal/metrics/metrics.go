// Package metrics owns the gateway's Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "presign_gateway"

// Recorder receives domain events from the upload and download services.
type Recorder interface {
	ObserveBackend(op string, err error, dur time.Duration)
	GrantIssued(op string)
	PartUploaded(bytes int64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveBackend(string, error, time.Duration) {}
func (Nop) GrantIssued(string)                          {}
func (Nop) PartUploaded(int64)                          {}

// Metrics provides a self-contained registry, HTTP metrics and the domain
// collectors behind Recorder.
type Metrics struct {
	reg      *prometheus.Registry
	inflight prometheus.Gauge
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	backendOps     *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	grants         *prometheus.CounterVec
	parts          prometheus.Counter
	partBytes      prometheus.Counter
}

var _ Recorder = (*Metrics)(nil)

// New creates a Metrics instance with a fresh registry and registers collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of inflight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed, partitioned by status code and method.",
		}, []string{"code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of latencies for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
		backendOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "ops_total",
			Help:      "Object-storage calls by operation and result.",
		}, []string{"op", "result"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "op_duration_seconds",
			Help:      "Histogram of object-storage call durations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presign",
			Name:      "grants_total",
			Help:      "Signed URLs issued by operation.",
		}, []string{"op"}),
		parts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "server_parts_total",
			Help:      "Parts uploaded by the server-side whole-file path.",
		}),
		partBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "server_bytes_total",
			Help:      "Bytes uploaded by the server-side whole-file path.",
		}),
	}

	m.reg.MustRegister(
		m.inflight, m.requests, m.latency,
		m.backendOps, m.backendLatency, m.grants, m.parts, m.partBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) ObserveBackend(op string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backendOps.WithLabelValues(op, result).Inc()
	m.backendLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) GrantIssued(op string) {
	m.grants.WithLabelValues(op).Inc()
}

func (m *Metrics) PartUploaded(bytes int64) {
	m.parts.Inc()
	m.partBytes.Add(float64(bytes))
}

// statusRecorder captures the HTTP status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records inflight requests, request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		m.requests.WithLabelValues(code, r.Method).Inc()
		m.latency.WithLabelValues(code, r.Method).Observe(time.Since(start).Seconds())
	})
}
