package cbc

import "time"

// Config represents client configuration for building a platform API handle.
//
// # Credential resolution
//
// cbcclient.New fills empty URL, OrgKey, APIID and APISecretKey fields from,
// in order: the values set here, the CBC_* environment variables, and the
// Profile section of the credentials file. A field still missing after that
// fails construction with a *CredentialError.
//
// # Timeouts, retries, and TLS
//
// Per-request timeouts should generally be controlled via the context passed
// to each call. Retry behavior for connection errors, 429 and 5xx responses
// is tuned with RetryMax/RetryWaitMin/RetryWaitMax; the query framework
// itself never retries.
type Config struct {
	// URL: base URL of the platform API (e.g., "https://defense.example.com").
	// cbcclient.New trims a trailing slash and adds "https://" if no scheme is present.
	URL string
	// OrgKey: organization key substituted into every {org_key} URL placeholder.
	OrgKey string
	// APIID: the API key id.
	APIID string
	// APISecretKey: the API key secret.
	APISecretKey string

	// Profile: credentials file section to read when fields are missing. Defaults to "default".
	Profile string
	// CredentialFile: overrides the credentials file location.
	CredentialFile string
	// WatchCredentials: reload the credentials file when it changes on disk.
	WatchCredentials bool

	// SSLVerify: verify the server certificate. Defaults to true via cbcclient.New.
	SSLVerify *bool
	// Proxy: optional HTTP(S) proxy URL.
	Proxy string
	// IgnoreSystemProxy: ignore HTTP_PROXY/HTTPS_PROXY from the environment.
	IgnoreSystemProxy bool

	// HTTPTimeout: per-attempt HTTP timeout. Zero uses the default.
	HTTPTimeout time.Duration
	// RetryMax: maximum number of retries for transient failures. Zero uses the default.
	RetryMax int
	// RetryWaitMin: minimum backoff between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration

	// Debug: enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger used by the HTTP layer and the query framework.
	Logger Logger
	// UserAgent: overrides the default User-Agent header.
	UserAgent string

	// Cache: optional response cache for GET requests. Nil disables caching.
	Cache *CacheConfig
	// Interceptors: optional request/response interceptor chain.
	Interceptors *InterceptorChain
	// Metrics: optional Prometheus instrumentation.
	Metrics *PrometheusMetrics
}
