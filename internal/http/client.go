package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/auth"
	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultUserAgent is sent when no WithUserAgent option is given.
const DefaultUserAgent = "cbc-client-go/1.0"

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Request describes one API call. Path is relative to the base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Client is the HTTP client every platform call goes through.
type Client struct {
	baseURL      string
	httpClient   *retryablehttp.Client
	tokenManager auth.TokenManager
	logger       Logger
	debug        bool
	userAgent    string
	interceptors *cbc.InterceptorChain
	cache        *cbc.CacheManager
	cachePolicy  *cbc.CachingPolicy

	sslVerify         bool
	proxy             *url.URL
	ignoreSystemProxy bool
	timeout           time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug logs every request and response.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig tunes retries for connection errors, 429 and 5xx.
func WithRetryConfig(retryMax int, retryWaitMin, retryWaitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = retryWaitMin
		c.httpClient.RetryWaitMax = retryWaitMax
	}
}

// WithInterceptors runs chain around every request.
func WithInterceptors(chain *cbc.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// WithCache serves cacheable GETs from manager according to policy.
func WithCache(manager *cbc.CacheManager, policy *cbc.CachingPolicy) Option {
	return func(c *Client) {
		c.cache = manager
		c.cachePolicy = policy
	}
}

// WithSSLVerify toggles server certificate verification.
func WithSSLVerify(verify bool) Option {
	return func(c *Client) {
		c.sslVerify = verify
	}
}

// WithProxy routes requests through proxy.
func WithProxy(proxy *url.URL) Option {
	return func(c *Client) {
		c.proxy = proxy
	}
}

// WithIgnoreSystemProxy ignores HTTP_PROXY and friends.
func WithIgnoreSystemProxy(ignore bool) Option {
	return func(c *Client) {
		c.ignoreSystemProxy = ignore
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a client for baseURL. tokenManager may be nil for
// unauthenticated calls.
func NewClient(baseURL string, tokenManager auth.TokenManager, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   retryClient,
		tokenManager: tokenManager,
		userAgent:    DefaultUserAgent,
		sslVerify:    true,
		timeout:      constants.DefaultHTTPTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.configureTransport()

	if client.logger != nil {
		retryClient.Logger = &leveledLogger{logger: client.logger}
	}

	return client
}

func (c *Client) configureTransport() {
	c.httpClient.HTTPClient.Timeout = c.timeout

	transport, ok := c.httpClient.HTTPClient.Transport.(*http.Transport)
	if !ok {
		return
	}

	if !c.sslVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // explicitly requested via ssl_verify=false
	}

	switch {
	case c.proxy != nil:
		transport.Proxy = http.ProxyURL(c.proxy)
	case c.ignoreSystemProxy:
		transport.Proxy = nil
	}
}

// checkRetry retries connection errors, 429 and 5xx other than 501.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}

	if resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
		return true, nil
	}

	return false, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req. Non-2xx responses are returned together with a
// classified error from cbc.ParseErrorResponse.
//
//nolint:funlen,cyclop // the request pipeline is easier to follow in one place
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	cacheKey, cacheable := c.cacheKey(req)
	if cacheable {
		data, cacheErr := c.cache.Get(ctx, cacheKey)
		if cacheErr == nil {
			c.debugLog("HTTP Cache Hit", map[string]interface{}{"method": req.Method, "url": fullURL})

			return &Response{StatusCode: http.StatusOK, Body: data, Headers: http.Header{}}, nil
		}
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", c.userAgent)

	if body != nil {
		headers.Set("Content-Type", "application/json")
	}

	if c.tokenManager != nil {
		token, tokenErr := c.tokenManager.GetToken(ctx)
		if tokenErr != nil {
			return nil, fmt.Errorf("getting auth token: %w", tokenErr)
		}

		headers.Set("X-Auth-Token", token)
	}

	for key, value := range req.Headers {
		headers.Set(key, value)
	}

	intercepted := &cbc.Request{Method: req.Method, Path: req.Path, Headers: headers, Body: body}
	if c.interceptors != nil {
		err = c.interceptors.ExecuteRequestInterceptors(ctx, intercepted)
		if err != nil {
			return nil, err
		}
	}

	var rawBody interface{}
	if len(intercepted.Body) > 0 {
		rawBody = intercepted.Body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header = intercepted.Headers

	c.debugLog("HTTP Request", map[string]interface{}{
		"method": req.Method,
		"url":    fullURL,
	})

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.afterResponse(ctx, intercepted, &cbc.Response{Error: err})

		return nil, fmt.Errorf("executing request: %w", err)
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	c.debugLog("HTTP Response", map[string]interface{}{
		"status": httpResp.StatusCode,
		"size":   len(respBody),
	})

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
	}

	var apiErr error
	if httpResp.StatusCode >= http.StatusBadRequest {
		apiErr = cbc.ParseErrorResponse(httpResp.StatusCode, req.Path, respBody)
	}

	c.afterResponse(ctx, intercepted, &cbc.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       respBody,
		Error:      apiErr,
	})

	if apiErr != nil {
		return resp, apiErr
	}

	c.updateCache(ctx, req, cacheKey, cacheable, resp)

	return resp, nil
}

func (c *Client) afterResponse(ctx context.Context, req *cbc.Request, resp *cbc.Response) {
	if c.interceptors == nil {
		return
	}

	err := c.interceptors.ExecuteResponseInterceptors(ctx, req, resp)
	if err != nil && c.logger != nil {
		c.logger.Warn("response interceptor failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *Client) cacheKey(req *Request) (string, bool) {
	if c.cache == nil || c.cachePolicy == nil {
		return "", false
	}

	params := make(map[string]string, len(req.Query))
	for key, values := range req.Query {
		params[key] = strings.Join(values, ",")
	}

	key := c.cache.GetCacheKey(req.Method, req.Path, params)

	return key, c.cachePolicy.ShouldCache(req.Method, req.Path, http.StatusOK)
}

// updateCache stores cacheable responses and drops the cached GET of a
// resource after it is modified.
func (c *Client) updateCache(ctx context.Context, req *Request, key string, cacheable bool, resp *Response) {
	if c.cache == nil {
		return
	}

	if cacheable && c.cachePolicy.ShouldCache(req.Method, req.Path, resp.StatusCode) {
		_ = c.cache.SetWithETag(ctx, key, resp.Body, resp.Headers.Get("ETag"), c.cachePolicy.TTL)

		return
	}

	if req.Method != http.MethodGet {
		_ = c.cache.Invalidate(ctx, c.cache.GetCacheKey(http.MethodGet, req.Path, nil))
	}
}

func (c *Client) debugLog(msg string, fields map[string]interface{}) {
	if c.debug && c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}

		return data, nil
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// leveledLogger forwards retryablehttp warnings and errors.
type leveledLogger struct {
	logger Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, toFields(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, toFields(keysAndValues))
}

func (l *leveledLogger) Info(string, ...interface{}) {}

func (l *leveledLogger) Debug(string, ...interface{}) {}

func toFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}

		fields[key] = keysAndValues[i+1]
	}

	return fields
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)
