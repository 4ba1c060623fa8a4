package cbc_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *cbc.APIError
		want string
	}{
		{name: "empty", err: &cbc.APIError{}, want: "api error: unknown error"},
		{name: "message only", err: &cbc.APIError{Message: "boom"}, want: "api error: boom"},
		{
			name: "status and path",
			err:  &cbc.APIError{StatusCode: 500, Path: "/x", Message: "boom"},
			want: "api error (status 500 /x): boom",
		},
		{
			name: "reason",
			err:  &cbc.APIError{StatusCode: 400, Message: "bad", Reason: "INVALID"},
			want: "api error (status 400): bad (reason: INVALID)",
		},
		{name: "reason only", err: &cbc.APIError{Reason: "FAILED"}, want: "api error: FAILED"},
		{name: "cause", err: &cbc.APIError{Err: cbc.ErrJobFailed}, want: "api error: job failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestParseErrorResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantReason  string
		notFound    bool
	}{
		{name: "message", status: 400, body: `{"message":"bad query","error_code":"INVALID_QUERY"}`, wantMessage: "bad query", wantReason: "INVALID_QUERY"},
		{name: "error_message", status: 500, body: `{"error_message":"boom","reason":"internal"}`, wantMessage: "boom", wantReason: "internal"},
		{name: "error", status: 403, body: `{"error":"forbidden"}`, wantMessage: "forbidden"},
		{name: "plain text", status: 502, body: "upstream unavailable\n", wantMessage: "upstream unavailable"},
		{name: "empty body", status: 401, body: "", wantMessage: "Unauthorized"},
		{name: "not found", status: 404, body: `{"message":"no such device"}`, wantMessage: "no such device", notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := cbc.ParseErrorResponse(tt.status, "/api/x", []byte(tt.body))
			require.Error(t, err)

			var apiErr *cbc.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "/api/x", apiErr.Path)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantReason, apiErr.Reason)
			assert.Equal(t, tt.notFound, cbc.IsNotFound(err))
		})
	}
}

func TestNotFoundError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("getting device: %w", &cbc.NotFoundError{APIError: cbc.APIError{StatusCode: http.StatusNotFound, Path: "/d/1"}})

	assert.True(t, cbc.IsNotFound(err))
	require.ErrorIs(t, err, cbc.ErrNotFound)

	var apiErr *cbc.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "/d/1", apiErr.Path)

	assert.Equal(t, "object not found", (&cbc.ObjectNotFoundError{}).Error())
	assert.Equal(t, "object not found: nothing matched", (&cbc.ObjectNotFoundError{APIError: cbc.APIError{Message: "nothing matched"}}).Error())
}

func TestMoreThanOneResultError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", &cbc.MoreThanOneResultError{Count: 3})
	require.ErrorIs(t, err, cbc.ErrMoreThanOneResult)
	assert.Contains(t, err.Error(), "found 3")
	assert.Equal(t, "expected exactly one result, found more", (&cbc.MoreThanOneResultError{}).Error())
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()

	err := &cbc.TimeoutError{Operation: "process job", JobID: "J1", Err: context.DeadlineExceeded}

	assert.Equal(t, "process job timed out (job J1): context deadline exceeded", err.Error())
	require.ErrorIs(t, err, cbc.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cbc.IsTimeout(err))
	assert.True(t, cbc.IsTimeout(fmt.Errorf("page: %w", context.DeadlineExceeded)))
	assert.False(t, cbc.IsTimeout(context.Canceled))
}

func TestCredentialError(t *testing.T) {
	t.Parallel()

	err := &cbc.CredentialError{Source: "file", Field: "org_key", Err: cbc.ErrOrgKeyRequired}

	assert.Equal(t, "credential error (file): missing org_key: org key is required", err.Error())
	require.ErrorIs(t, err, cbc.ErrOrgKeyRequired)
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	unauthorized := fmt.Errorf("call: %w", &cbc.APIError{StatusCode: http.StatusUnauthorized})
	forbidden := cbc.ParseErrorResponse(http.StatusForbidden, "/x", nil)

	assert.True(t, cbc.IsUnauthorized(unauthorized))
	assert.False(t, cbc.IsForbidden(unauthorized))
	assert.True(t, cbc.IsForbidden(forbidden))
	assert.False(t, cbc.IsUnauthorized(errors.New("plain")))
}
