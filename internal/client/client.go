package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/auth"
	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/internal/http"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// Static errors for err113 compliance.
var (
	ErrAPIURLRequired = cbc.ErrURLRequired
)

// Client implements cbc.Transport over the retrying HTTP client.
type Client struct {
	httpClient   *http.Client
	tokenManager *auth.APIKeyTokenManager
	baseURL      string
	orgKey       string
	logger       cbc.Logger
	cache        *cbc.CacheManager
}

var (
	_ cbc.Transport      = (*Client)(nil)
	_ cbc.LoggerProvider = (*Client)(nil)
)

// createHTTPClientOptions maps Config onto HTTP client options.
func createHTTPClientOptions(config *cbc.Config) ([]http.Option, error) {
	var httpOpts []http.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(&loggerAdapter{logger: config.Logger}))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.ExtendedRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	if config.SSLVerify != nil {
		httpOpts = append(httpOpts, http.WithSSLVerify(*config.SSLVerify))
	}

	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL: %w", err)
		}

		httpOpts = append(httpOpts, http.WithProxy(proxyURL))
	}

	if config.IgnoreSystemProxy {
		httpOpts = append(httpOpts, http.WithIgnoreSystemProxy(true))
	}

	chain := config.Interceptors
	if config.Metrics != nil {
		if chain == nil {
			chain = cbc.NewInterceptorChain()
		}

		config.Metrics.Register(chain)
	}

	if chain != nil {
		httpOpts = append(httpOpts, http.WithInterceptors(chain))
	}

	return httpOpts, nil
}

// New creates a transport from a resolved configuration.
func New(ctx context.Context, config *cbc.Config) (*Client, error) {
	if config.URL == "" {
		return nil, ErrAPIURLRequired
	}

	if config.OrgKey == "" {
		return nil, &cbc.CredentialError{Source: "config", Field: "org_key", Err: cbc.ErrOrgKeyRequired}
	}

	if config.APIID == "" || config.APISecretKey == "" {
		return nil, &cbc.CredentialError{Source: "config", Field: "token"}
	}

	tokenManager := auth.NewAPIKeyTokenManager(config.APISecretKey, config.APIID)

	httpOpts, err := createHTTPClientOptions(config)
	if err != nil {
		return nil, err
	}

	cache, policy, err := cbc.NewCacheManagerFromConfig(config.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	if cache != nil {
		httpOpts = append(httpOpts, http.WithCache(cache, policy))
	}

	logger := config.Logger
	if logger == nil {
		logger = cbc.NopLogger{}
	}

	client := &Client{
		httpClient:   http.NewClient(config.URL, tokenManager, httpOpts...),
		tokenManager: tokenManager,
		baseURL:      config.URL,
		orgKey:       config.OrgKey,
		logger:       logger,
		cache:        cache,
	}

	logger.Debug("platform client created", map[string]interface{}{
		"url":     config.URL,
		"org_key": config.OrgKey,
		"api_id":  config.APIID,
	})

	return client, nil
}

// OrgKey returns the organization key.
func (c *Client) OrgKey() string {
	return c.orgKey
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Logger returns the configured logger.
func (c *Client) Logger() cbc.Logger {
	return c.logger
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// UpdateCredentials swaps the API key, e.g. after the credentials file changes.
func (c *Client) UpdateCredentials(apiSecretKey, apiID string) {
	c.tokenManager.SetToken(apiSecretKey+"/"+apiID, time.Time{})
	c.logger.Info("API credentials updated", map[string]interface{}{"api_id": apiID})
}

// TokenManager returns the API key holder.
func (c *Client) TokenManager() *auth.APIKeyTokenManager {
	return c.tokenManager
}

// GetObject performs a GET and returns the JSON body.
func (c *Client) GetObject(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	resp, err := c.httpClient.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

// PostObject performs a POST and returns the JSON body.
func (c *Client) PostObject(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.httpClient.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

// PutObject performs a PUT and returns the JSON body.
func (c *Client) PutObject(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.httpClient.Put(ctx, path, body)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

// PatchObject performs a PATCH and returns the JSON body.
func (c *Client) PatchObject(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.httpClient.Patch(ctx, path, body)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

// DeleteObject performs a DELETE.
func (c *Client) DeleteObject(ctx context.Context, path string) error {
	_, err := c.httpClient.Delete(ctx, path)

	return err
}

// GetRawData performs a GET and returns the raw body, e.g. file content.
func (c *Client) GetRawData(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.httpClient.Do(ctx, &http.Request{
		Method:  "GET",
		Path:    path,
		Query:   query,
		Headers: map[string]string{"Accept": "*/*"},
	})
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Close releases the cache backend, if any.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}

	return c.cache.Close()
}

// loggerAdapter adapts cbc.Logger to http.Logger.
type loggerAdapter struct {
	logger cbc.Logger
}

func (l *loggerAdapter) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, fields)
}

func (l *loggerAdapter) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, fields)
}

func (l *loggerAdapter) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, fields)
}

func (l *loggerAdapter) Error(msg string, fields map[string]interface{}) {
	l.logger.Error(msg, fields)
}
