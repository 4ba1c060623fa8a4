package cbc

import (
	"context"
	"net/http"
	"regexp"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics instruments API calls with Prometheus collectors.
type PrometheusMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers the client collectors. A nil
// registerer uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registerer prometheus.Registerer) (*PrometheusMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	metrics := &PrometheusMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cbc_client_requests_total",
				Help: "Total number of platform API requests",
			},
			[]string{"method", "endpoint", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cbc_client_request_duration_seconds",
				Help:    "Platform API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	for _, collector := range []prometheus.Collector{metrics.requests, metrics.duration} {
		err := registerer.Register(collector)
		if err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

var (
	orgSegment = regexp.MustCompile(`/orgs/[^/]+`)
	idSegment  = regexp.MustCompile(`/(?:[0-9a-fA-F-]{6,}|[0-9]+)(/|$)`)
)

// endpointLabel collapses org keys and ids so label cardinality stays bounded.
func endpointLabel(path string) string {
	path = orgSegment.ReplaceAllString(path, "/orgs/{org_key}")

	return idSegment.ReplaceAllString(path, "/{id}$1")
}

// Interceptors returns the request/response pair that records the metrics.
func (m *PrometheusMetrics) Interceptors() (RequestInterceptor, ResponseInterceptor) {
	return MetricsRequestInterceptor(), func(ctx context.Context, req *Request, resp *Response) error {
		endpoint := endpointLabel(req.Path)

		code := "error"
		if resp.Error == nil && resp.StatusCode > 0 {
			code = strconv.Itoa(resp.StatusCode)
		}

		m.requests.WithLabelValues(req.Method, endpoint, code).Inc()

		if latency := requestLatency(req); latency > 0 {
			m.duration.WithLabelValues(req.Method, endpoint).Observe(latency.Seconds())
		}

		return nil
	}
}

// Register adds the metrics interceptors to chain.
func (m *PrometheusMetrics) Register(chain *InterceptorChain) {
	reqInterceptor, respInterceptor := m.Interceptors()
	chain.AddRequestInterceptor(reqInterceptor)
	chain.AddResponseInterceptor(respInterceptor)
}

// RequestCount returns the counter for a method/endpoint/code triple.
func (m *PrometheusMetrics) RequestCount(method, endpoint string, code int) prometheus.Counter {
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}

	if method == "" {
		method = http.MethodGet
	}

	return m.requests.WithLabelValues(method, endpoint, label)
}
