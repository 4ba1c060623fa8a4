package cbc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents a failed call against the platform API.
type APIError struct {
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Message    string `json:"message,omitempty"     yaml:"message,omitempty"`
	Path       string `json:"path,omitempty"        yaml:"path,omitempty"`
	Reason     string `json:"reason,omitempty"      yaml:"reason,omitempty"`
	Err        error  `json:"-"                     yaml:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var parts []string

	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	msg := e.Message
	if e.Reason != "" {
		if msg == "" {
			msg = e.Reason
		} else {
			msg = fmt.Sprintf("%s (reason: %s)", msg, e.Reason)
		}
	}

	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if msg == "" {
		msg = "unknown error"
	}

	if len(parts) == 0 {
		return "api error: " + msg
	}

	return fmt.Sprintf("api error (%s): %s", strings.Join(parts, " "), msg)
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a resource or job does not exist.
type NotFoundError struct {
	APIError
}

// ObjectNotFoundError is the name used by query materializers for an empty result.
type ObjectNotFoundError = NotFoundError

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.StatusCode == 0 && e.Path == "" {
		if e.Message == "" {
			return "object not found"
		}

		return "object not found: " + e.Message
	}

	return "not found: " + e.APIError.Error()
}

// As lets errors.As match *APIError against a *NotFoundError.
func (e *NotFoundError) As(target interface{}) bool {
	if t, ok := target.(**APIError); ok {
		*t = &e.APIError

		return true
	}

	return false
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Unwrap returns the underlying cause, if any.
func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// MoreThanOneResultError is returned by One when a query matches several rows.
type MoreThanOneResultError struct {
	Count int
}

// Error implements the error interface.
func (e *MoreThanOneResultError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("expected exactly one result, found %d", e.Count)
	}

	return "expected exactly one result, found more"
}

// Is reports whether target is ErrMoreThanOneResult.
func (e *MoreThanOneResultError) Is(target error) bool {
	return target == ErrMoreThanOneResult
}

// TimeoutError is returned when a page fetch or job poll exceeds its bound.
type TimeoutError struct {
	Operation string
	JobID     string
	Err       error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	msg := "timed out"
	if e.Operation != "" {
		msg = e.Operation + " timed out"
	}

	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying context error.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CredentialError is returned when credentials cannot be resolved at construction.
type CredentialError struct {
	Source string
	Field  string
	Err    error
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	var b strings.Builder

	b.WriteString("credential error")

	if e.Source != "" {
		b.WriteString(" (" + e.Source + ")")
	}

	if e.Field != "" {
		b.WriteString(": missing " + e.Field)
	}

	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// InvalidQueryError is returned when a query cannot be sent as configured.
type InvalidQueryError struct {
	Message string
}

// Error implements the error interface.
func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Message
}

// Static errors for err113 compliance.
var (
	ErrNotFound            = errors.New("not found")
	ErrMoreThanOneResult   = errors.New("more than one result")
	ErrTimeout             = errors.New("timeout")
	ErrJobAlreadyOpen      = errors.New("a job is already open for this query")
	ErrJobNotSubmitted     = errors.New("job has not been submitted")
	ErrJobFailed           = errors.New("job failed")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrNotMutable          = errors.New("resource is not mutable")
	ErrNoSearchEndpoint    = errors.New("resource has no search endpoint")
	ErrNoDetailEndpoint    = errors.New("resource has no detail endpoint")
	ErrNoListEndpoint      = errors.New("resource has no list endpoint")
	ErrNoFacetEndpoint     = errors.New("resource has no facet endpoint")
	ErrNoCreateEndpoint    = errors.New("resource has no create endpoint")
	ErrMissingID           = errors.New("resource has no identifier")
	ErrConfigRequired      = errors.New("config is required")
	ErrURLRequired         = errors.New("API URL is required")
	ErrOrgKeyRequired      = errors.New("org key is required")
	ErrNATSConfigRequired  = errors.New("NATS configuration required for NATS cache")
	ErrRedisConfigRequired = errors.New("redis configuration required for redis cache")
	ErrUnsupportedCache    = errors.New("unsupported cache type")
	ErrCacheDisabled       = errors.New("cache disabled")
	ErrCacheKeyNotFound    = errors.New("key not found")
	ErrCacheEntryExpired   = errors.New("entry expired")
	ErrKeyNotInAnyCache    = errors.New("key not found in any cache")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker is open")
	ErrReadOnly            = errors.New("call refused by read-only client")
	ErrNoMoreItems         = errors.New("no more items")
	ErrExecutorClosed      = errors.New("executor is closed")
)

// errorBody covers the error envelopes the platform returns.
type errorBody struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"error_message"`
	Error        string `json:"error"`
	Reason       string `json:"reason"`
	ErrorCode    string `json:"error_code"`
	Success      *bool  `json:"success"`
}

// ParseErrorResponse converts a non-2xx response into a classified error.
func ParseErrorResponse(statusCode int, path string, body []byte) error {
	apiErr := APIError{StatusCode: statusCode, Path: path}

	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		case parsed.ErrorMessage != "":
			apiErr.Message = parsed.ErrorMessage
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		}

		apiErr.Reason = parsed.Reason
		if apiErr.Reason == "" {
			apiErr.Reason = parsed.ErrorCode
		}
	} else if len(body) > 0 {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}

	if statusCode == http.StatusNotFound {
		return &NotFoundError{APIError: apiErr}
	}

	return &apiErr
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout reports whether err is a timeout, including context deadlines.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsUnauthorized reports whether err carries a 401 status.
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// IsForbidden reports whether err carries a 403 status.
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

func statusOf(err error) int {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}
