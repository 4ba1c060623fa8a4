package cbc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// Request is the view of an outgoing platform call seen by interceptors.
// Headers and Body may be rewritten; Metadata carries values from the
// request side of a chain to the response side.
type Request struct {
	Method   string
	Path     string
	Headers  http.Header
	Body     []byte
	Metadata map[string]interface{}
}

// Endpoint is Path with the org key and resource ids replaced by placeholders.
func (r *Request) Endpoint() string {
	return endpointLabel(r.Path)
}

// Response is the outcome of a platform call. Error is set for transport
// failures and for error statuses.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Error      error
}

// transportFailure reports a call that never produced an HTTP status.
func (r *Response) transportFailure() bool {
	return r.StatusCode == 0 && r.Error != nil
}

// RequestInterceptor runs before a call is sent. A non-nil error aborts the call.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor runs after a call completes, including failed ones.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) error

// InterceptorChain holds request and response interceptors in registration order.
type InterceptorChain struct {
	before []RequestInterceptor
	after  []ResponseInterceptor
}

// NewInterceptorChain returns an empty chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// AddRequestInterceptor appends interceptor to the request side.
func (c *InterceptorChain) AddRequestInterceptor(interceptor RequestInterceptor) *InterceptorChain {
	c.before = append(c.before, interceptor)

	return c
}

// AddResponseInterceptor appends interceptor to the response side.
func (c *InterceptorChain) AddResponseInterceptor(interceptor ResponseInterceptor) *InterceptorChain {
	c.after = append(c.after, interceptor)

	return c
}

// ExecuteRequestInterceptors runs the request side, stopping at the first error.
func (c *InterceptorChain) ExecuteRequestInterceptors(ctx context.Context, req *Request) error {
	for i, interceptor := range c.before {
		err := interceptor(ctx, req)
		if err != nil {
			return fmt.Errorf("request interceptor %d on %s %s: %w", i, req.Method, req.Endpoint(), err)
		}
	}

	return nil
}

// ExecuteResponseInterceptors runs the response side, stopping at the first error.
func (c *InterceptorChain) ExecuteResponseInterceptors(ctx context.Context, req *Request, resp *Response) error {
	for i, interceptor := range c.after {
		err := interceptor(ctx, req, resp)
		if err != nil {
			return fmt.Errorf("response interceptor %d on %s %s: %w", i, req.Method, req.Endpoint(), err)
		}
	}

	return nil
}

// LoggingInterceptor logs each outgoing call at debug level.
func LoggingInterceptor(logger Logger) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		logger.Debug("Platform request", map[string]interface{}{
			"method":   req.Method,
			"endpoint": req.Endpoint(),
			"size":     len(req.Body),
		})

		return nil
	}
}

// LoggingResponseInterceptor logs completed calls. Error statuses and
// transport failures are logged at error level.
func LoggingResponseInterceptor(logger Logger) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		fields := map[string]interface{}{
			"method":   req.Method,
			"endpoint": req.Endpoint(),
			"status":   resp.StatusCode,
		}

		if latency := requestLatency(req); latency > 0 {
			fields["latency"] = latency.String()
		}

		if resp.Error == nil && resp.StatusCode < http.StatusBadRequest {
			logger.Debug("Platform response", fields)

			return nil
		}

		if resp.Error != nil {
			fields["error"] = resp.Error.Error()
		}

		logger.Error("Platform request failed", fields)

		return nil
	}
}

// RateLimitInterceptor lets through at most requestsPerSecond calls,
// with bursts up to the same size. The refill goroutine exits when ctx ends.
func RateLimitInterceptor(ctx context.Context, requestsPerSecond int) RequestInterceptor {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	tokens := make(chan struct{}, requestsPerSecond)
	for range requestsPerSecond {
		tokens <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(requestsPerSecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case tokens <- struct{}{}:
				default:
				}
			}
		}
	}()

	return func(reqCtx context.Context, req *Request) error {
		select {
		case <-tokens:
			return nil
		case <-reqCtx.Done():
			return reqCtx.Err()
		}
	}
}

// HeaderInterceptor sets fixed headers on every call.
func HeaderInterceptor(headers map[string]string) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		if req.Headers == nil {
			req.Headers = make(http.Header, len(headers))
		}

		for name, value := range headers {
			req.Headers.Set(name, value)
		}

		return nil
	}
}

// readOnlySuffixes are POST endpoints that only query data.
var readOnlySuffixes = []string{"/_search", "/_facet", "/search_jobs", "/facet_jobs", "/search_validation"}

// ReadOnlyInterceptor refuses calls that could change platform state. GET
// requests and POSTs to search, facet and search job endpoints pass.
func ReadOnlyInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		switch req.Method {
		case http.MethodGet, http.MethodHead, "":
			return nil
		case http.MethodPost:
			for _, suffix := range readOnlySuffixes {
				if strings.HasSuffix(req.Path, suffix) {
					return nil
				}
			}
		}

		return fmt.Errorf("%w: %s %s", ErrReadOnly, req.Method, req.Endpoint())
	}
}

// Metrics are the in-process statistics of one endpoint.
type Metrics struct {
	TotalRequests   int64
	TotalErrors     int64
	TotalLatency    time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time
}

// MetricsCollector aggregates call statistics per method and endpoint
// template, e.g. "POST /appservices/v6/orgs/{org_key}/devices/_search".
type MetricsCollector struct {
	mutex     sync.Mutex
	endpoints map[string]*Metrics
	onChange  func(endpoint string, metrics Metrics)
}

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{endpoints: make(map[string]*Metrics)}
}

// SetOnChange registers fn to receive a snapshot after every recorded call.
func (m *MetricsCollector) SetOnChange(fn func(endpoint string, metrics Metrics)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.onChange = fn
}

// GetMetrics returns a snapshot for one "METHOD endpoint" key.
func (m *MetricsCollector) GetMetrics(endpoint string) (Metrics, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	metrics, ok := m.endpoints[endpoint]
	if !ok {
		return Metrics{}, false
	}

	return *metrics, true
}

// Endpoints lists the keys seen so far.
func (m *MetricsCollector) Endpoints() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	keys := make([]string, 0, len(m.endpoints))
	for key := range m.endpoints {
		keys = append(keys, key)
	}

	return keys
}

func (m *MetricsCollector) record(endpoint string, latency time.Duration, failed bool) {
	m.mutex.Lock()

	metrics := m.endpoints[endpoint]
	if metrics == nil {
		metrics = &Metrics{}
		m.endpoints[endpoint] = metrics
	}

	metrics.TotalRequests++
	metrics.LastRequestTime = time.Now()
	metrics.TotalLatency += latency
	metrics.AverageLatency = metrics.TotalLatency / time.Duration(metrics.TotalRequests)

	if failed {
		metrics.TotalErrors++
	}

	snapshot, notify := *metrics, m.onChange
	m.mutex.Unlock()

	if notify != nil {
		notify(endpoint, snapshot)
	}
}

const startedAtKey = "started_at"

// MetricsRequestInterceptor stamps the request start time into Metadata.
func MetricsRequestInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		if req.Metadata == nil {
			req.Metadata = make(map[string]interface{}, 1)
		}

		req.Metadata[startedAtKey] = time.Now()

		return nil
	}
}

// MetricsResponseInterceptor records the call in collector. Error statuses count as errors.
func MetricsResponseInterceptor(collector *MetricsCollector) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		failed := resp.Error != nil || resp.StatusCode >= http.StatusBadRequest
		collector.record(req.Method+" "+req.Endpoint(), requestLatency(req), failed)

		return nil
	}
}

func requestLatency(req *Request) time.Duration {
	started, ok := req.Metadata[startedAtKey].(time.Time)
	if !ok {
		return 0
	}

	return time.Since(started)
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive server failures that opens the circuit.
	Threshold int
	// Timeout is how long the circuit stays open before one probe is let through.
	Timeout time.Duration
	// SuccessThreshold is the number of successful probes that closes it again.
	SuccessThreshold int
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker stops calls after repeated 5xx responses or transport
// failures. Client errors such as 404 never trip it.
type CircuitBreaker struct {
	mutex     sync.Mutex
	config    CircuitBreakerConfig
	state     circuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker. A nil config uses the defaults.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	breaker := &CircuitBreaker{config: CircuitBreakerConfig{
		Threshold:        constants.CircuitBreakerThreshold,
		Timeout:          constants.CircuitBreakerTimeout,
		SuccessThreshold: constants.CircuitBreakerSuccessThreshold,
	}}

	if config != nil {
		breaker.config = *config
	}

	return breaker
}

// Open reports whether calls are currently refused.
func (b *CircuitBreaker) Open() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.state == circuitOpen
}

func (b *CircuitBreaker) allow() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state != circuitOpen {
		return nil
	}

	if time.Since(b.openedAt) <= b.config.Timeout {
		return ErrCircuitBreakerOpen
	}

	b.state = circuitHalfOpen
	b.successes = 0

	return nil
}

func (b *CircuitBreaker) observe(resp *Response) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if resp.transportFailure() || resp.StatusCode >= http.StatusInternalServerError {
		b.failures++

		if b.state == circuitHalfOpen || b.failures >= b.config.Threshold {
			b.state = circuitOpen
			b.openedAt = time.Now()
		}

		return
	}

	if b.state != circuitHalfOpen {
		b.failures = 0

		return
	}

	b.successes++
	if b.successes >= b.config.SuccessThreshold {
		b.state = circuitClosed
		b.failures = 0
	}
}

// CircuitBreakerRequestInterceptor refuses calls with ErrCircuitBreakerOpen while open.
func CircuitBreakerRequestInterceptor(breaker *CircuitBreaker) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		return breaker.allow()
	}
}

// CircuitBreakerResponseInterceptor feeds call outcomes to breaker.
func CircuitBreakerResponseInterceptor(breaker *CircuitBreaker) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		breaker.observe(resp)

		return nil
	}
}
