package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration and credential files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as best-effort job cancellation.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 5

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax is used for operations that need longer waits.
	ExtendedRetryWaitMax = 30 * time.Second
)

// Concurrency and buffering limits.
const (
	// DefaultConcurrencyLimit is the default worker pool size.
	DefaultConcurrencyLimit = 3

	// BufferSize is the default buffer size for channels.
	BufferSize = 100

	// SmallBufferSize is used for smaller buffers.
	SmallBufferSize = 10
)

// Polling intervals.
const (
	// DefaultPollInterval is used by generic polling helpers.
	DefaultPollInterval = 2 * time.Second

	// DefaultJobPollInterval is the first delay between search job status polls.
	DefaultJobPollInterval = 500 * time.Millisecond

	// MaxJobPollInterval caps the search job polling backoff.
	MaxJobPollInterval = 5 * time.Second

	// DefaultJobPollTimeout bounds platform job polling.
	DefaultJobPollTimeout = 5 * time.Minute

	// LiveResponsePollTimeout bounds live response session and command polling.
	LiveResponsePollTimeout = 2 * time.Minute
)

// Pagination limits.
const (
	// DefaultPageSize is the number of rows requested per search page.
	DefaultPageSize = 100

	// MaxPageSize is the largest page the search endpoints accept.
	MaxPageSize = 10000

	// DefaultFacetRows is the default number of buckets per term facet.
	DefaultFacetRows = 20
)

// Cache settings.
const (
	// DefaultCacheSize is the default memory cache capacity.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default cache entry lifetime.
	DefaultCacheTTL = 5 * time.Minute
)

// Circuit breaker settings.
const (
	CircuitBreakerThreshold        = 5
	CircuitBreakerTimeout          = 30 * time.Second
	CircuitBreakerSuccessThreshold = 2
)

// Job states reported by the platform jobs service.
const (
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
	JobStatusInProgress = "IN_PROGRESS"
	JobStatusCreated    = "CREATED"
)

// Output formats.
const (
	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"
)

// Credential environment variables.
const (
	EnvURL       = "CBC_URL"
	EnvToken     = "CBC_TOKEN"
	EnvOrgKey    = "CBC_ORG_KEY"
	EnvSSLVerify = "CBC_SSL_VERIFY"
	EnvProfile   = "CBC_PROFILE"
)

// DefaultCredentialFile is the credentials file relative to the home directory.
const DefaultCredentialFile = ".carbonblack/credentials.cbc"

// DefaultProfile is the credentials file section used when none is given.
const DefaultProfile = "default"
