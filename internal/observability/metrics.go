package observability

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// UnmatchedRoute is the label value used for requests that do not
// match any registered route, ensuring bounded cardinality.
const UnmatchedRoute = "unmatched"

// DefaultNamespace prefixes every metric owned by a Recorder.
const DefaultNamespace = "http"

// DefaultBuckets are the latency buckets used when none are configured.
var DefaultBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// Recorder holds the request telemetry aggregates.
type Recorder struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	inFlight          prometheus.Gauge
	admissionRejected prometheus.Counter
	registry          *prometheus.Registry
	namespace         string
	buckets           []float64
	runtimeCollectors bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) RecorderOption {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithBuckets sets the duration histogram bucket boundaries in seconds.
func WithBuckets(buckets []float64) RecorderOption {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithRuntimeCollectors also exposes Go runtime and process metrics.
func WithRuntimeCollectors() RecorderOption {
	return func(r *Recorder) {
		r.runtimeCollectors = true
	}
}

// NewRecorder creates a Recorder backed by its own registry.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		registry:  prometheus.NewRegistry(),
		namespace: DefaultNamespace,
		buckets:   DefaultBuckets,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	r.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   r.buckets,
		},
		[]string{"method", "route", "status"},
	)

	r.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: r.namespace,
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	r.admissionRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "admission_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	r.registry.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.inFlight,
		r.admissionRejected,
	)

	if r.runtimeCollectors {
		r.registry.MustRegister(collectors.NewGoCollector())
		r.registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return r
}

// Observe records one completed request. The route must be the matched
// route pattern; an empty route is recorded as UnmatchedRoute.
func (r *Recorder) Observe(method, route string, status int, durationSeconds float64) {
	if route == "" {
		route = UnmatchedRoute
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	statusStr := strconv.Itoa(status)

	r.requestsTotal.WithLabelValues(method, route, statusStr).Inc()
	r.requestDuration.WithLabelValues(method, route, statusStr).Observe(durationSeconds)
}

// RequestStarted increments the in-flight gauge.
func (r *Recorder) RequestStarted() {
	r.inFlight.Inc()
}

// RequestFinished decrements the in-flight gauge.
func (r *Recorder) RequestFinished() {
	r.inFlight.Dec()
}

// RecordAdmissionRejected counts a request rejected by the rate limiter.
func (r *Recorder) RecordAdmissionRejected() {
	r.admissionRejected.Inc()
}

// Render serializes all metrics in the Prometheus text exposition format.
func (r *Recorder) Render() ([]byte, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, RenderFormat())
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// RenderFormat is the exposition format produced by Render.
func RenderFormat() expfmt.Format {
	return expfmt.NewFormat(expfmt.TypeTextPlain)
}

// Handler returns an HTTP handler for the scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Buckets returns the configured histogram bucket boundaries.
func (r *Recorder) Buckets() []float64 {
	return append([]float64(nil), r.buckets...)
}
