package cbc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

func TestNextJobState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current cbc.JobState
		status  *cbc.JobStatus
		want    cbc.JobState
	}{
		{name: "unsubmitted stays", current: cbc.JobUnsubmitted, status: &cbc.JobStatus{Contacted: 1, Completed: 1}, want: cbc.JobUnsubmitted},
		{name: "nil status", current: cbc.JobSubmitted, status: nil, want: cbc.JobSubmitted},
		{name: "nothing contacted", current: cbc.JobSubmitted, status: &cbc.JobStatus{}, want: cbc.JobQuerying},
		{name: "partial", current: cbc.JobSubmitted, status: &cbc.JobStatus{Contacted: 4, Completed: 2}, want: cbc.JobQuerying},
		{name: "all completed", current: cbc.JobQuerying, status: &cbc.JobStatus{Contacted: 4, Completed: 4}, want: cbc.JobCompleted},
		{name: "in progress flag wins", current: cbc.JobQuerying, status: &cbc.JobStatus{Contacted: 4, Completed: 4, InProgress: true}, want: cbc.JobQuerying},
		{name: "failed", current: cbc.JobQuerying, status: &cbc.JobStatus{Status: "FAILED"}, want: cbc.JobFailed},
		{name: "error status", current: cbc.JobSubmitted, status: &cbc.JobStatus{Status: "error"}, want: cbc.JobFailed},
		{name: "cancelled", current: cbc.JobQuerying, status: &cbc.JobStatus{Status: "CANCELLED"}, want: cbc.JobCancelled},
		{name: "completed by status", current: cbc.JobSubmitted, status: &cbc.JobStatus{Status: "COMPLETED"}, want: cbc.JobCompleted},
		{name: "completed is terminal", current: cbc.JobCompleted, status: &cbc.JobStatus{Status: "FAILED"}, want: cbc.JobCompleted},
		{name: "failed is terminal", current: cbc.JobFailed, status: &cbc.JobStatus{Contacted: 1, Completed: 1}, want: cbc.JobFailed},
		{name: "cancelled is terminal", current: cbc.JobCancelled, status: &cbc.JobStatus{Contacted: 1, Completed: 1}, want: cbc.JobCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, cbc.NextJobState(tt.current, tt.status))
		})
	}
}

func TestJobState_Predicates(t *testing.T) {
	t.Parallel()

	assert.True(t, cbc.JobSubmitted.Open())
	assert.True(t, cbc.JobQuerying.Open())
	assert.False(t, cbc.JobUnsubmitted.Open())
	assert.False(t, cbc.JobCompleted.Open())

	for _, state := range []cbc.JobState{cbc.JobCompleted, cbc.JobFailed, cbc.JobCancelled} {
		assert.True(t, state.Terminal(), state.String())
	}

	assert.False(t, cbc.JobQuerying.Terminal())
	assert.Equal(t, "QUERYING", cbc.JobQuerying.String())
	assert.Equal(t, "UNKNOWN(42)", cbc.JobState(42).String())
}

func TestParseJobStatus(t *testing.T) {
	t.Parallel()

	status, err := cbc.ParseJobStatus(json.RawMessage(`{"contacted":3,"completed":1,"num_found":10,"failure_reason":"shard lost","error_message":"boom"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, status.Contacted)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 10, status.NumFound)
	assert.Equal(t, "shard lost", status.Reason)
	assert.Equal(t, "boom", status.Message)

	_, err = cbc.ParseJobStatus(json.RawMessage(`not json`))
	require.Error(t, err)
}

func newWidgetJob(transport cbc.Transport) *cbc.AsyncQuery[*cbc.Model] {
	return cbc.NewAsyncQuery(transport, widgetInfo, widgetJobs, asModel).
		SetPollInterval(time.Millisecond).
		SetMaxPollInterval(2 * time.Millisecond)
}

func TestAsyncQuery_BuildersIssueNoRequests(t *testing.T) {
	t.Parallel()

	transport := newStubTransport()

	query := newWidgetJob(transport).Where("name:gear").AddCriteria("colour", "red").SortBy("name", cbc.SortAsc).SetRows(10)

	body := query.Body()
	assert.Equal(t, "name:gear", body["query"])
	assert.NotContains(t, body, "start")
	assert.NotContains(t, body, "rows")
	assert.Equal(t, cbc.JobUnsubmitted, query.State())
	assert.Empty(t, query.JobID())

	transport.requireNoCalls(t)
}

func TestAsyncQuery_Execute(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetStatusPath,
			`{"contacted":2,"completed":1}`,
			`{"contacted":2,"completed":2,"num_found":3}`).
		reply(http.MethodGet, widgetResultsPath, `{"results":[`+widgetRows("W1", "W2", "W3")+`],"num_found":3}`)

	query := newWidgetJob(transport).Where("name:gear")

	widgets, err := query.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, widgets, 3)
	assert.Equal(t, "W1", widgets[0].ID())
	assert.Equal(t, cbc.JobCompleted, query.State())
	assert.Equal(t, "J1", query.JobID())

	submits := transport.callsTo(http.MethodPost, widgetSubmitPath)
	require.Len(t, submits, 1)
	assert.Equal(t, "name:gear", submits[0].Body["query"])

	assert.Len(t, transport.callsTo(http.MethodGet, widgetStatusPath), 2)

	results := transport.callsTo(http.MethodGet, widgetResultsPath)
	require.Len(t, results, 1)
	assert.Equal(t, "0", results[0].Query.Get("start"))
}

func TestAsyncQuery_PollWithoutStatusEndpoint(t *testing.T) {
	t.Parallel()

	endpoints := widgetJobs
	endpoints.StatusURL = ""

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetResultsPath, `{"contacted":1,"completed":1,"num_found":0,"results":[]}`)

	query := cbc.NewAsyncQuery(transport, widgetInfo, endpoints, asModel)
	ctx := context.Background()

	require.NoError(t, query.Submit(ctx))

	state, status, err := query.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, cbc.JobCompleted, state)
	assert.Equal(t, 1, status.Completed)

	calls := transport.callsTo(http.MethodGet, widgetResultsPath)
	require.Len(t, calls, 1)
	assert.Equal(t, "0", calls[0].Query.Get("rows"))
}

func TestAsyncQuery_OneJobAtATime(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`)
	query := newWidgetJob(transport)
	ctx := context.Background()

	require.NoError(t, query.Submit(ctx))

	err := query.Submit(ctx)
	require.ErrorIs(t, err, cbc.ErrJobAlreadyOpen)
	assert.Len(t, transport.callsTo(http.MethodPost, widgetSubmitPath), 1)
}

func TestAsyncQuery_NewJobAfterTerminalState(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetStatusPath, `{"contacted":1,"completed":1,"num_found":1}`).
		reply(http.MethodGet, widgetResultsPath, `{"results":[`+widgetRows("W1")+`],"num_found":1}`)

	query := newWidgetJob(transport)
	ctx := context.Background()

	for range 2 {
		_, err := query.Execute(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, transport.callsTo(http.MethodPost, widgetSubmitPath), 2)
}

func TestAsyncQuery_Failure(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetStatusPath, `{"status":"FAILED","failure_reason":"shard lost"}`)

	query := newWidgetJob(transport)
	ctx := context.Background()

	_, err := query.Execute(ctx)
	require.ErrorIs(t, err, cbc.ErrJobFailed)

	var apiErr *cbc.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "shard lost", apiErr.Reason)
	assert.Equal(t, cbc.JobFailed, query.State())

	state, _, err := query.Poll(ctx)
	require.ErrorIs(t, err, cbc.ErrJobFailed)
	assert.Equal(t, cbc.JobFailed, state)
	assert.Len(t, transport.callsTo(http.MethodGet, widgetStatusPath), 1)
	assert.Empty(t, transport.callsTo(http.MethodGet, widgetResultsPath))
}

func TestAsyncQuery_Cancel(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodDelete, widgetStatusPath, `{}`)

	query := newWidgetJob(transport)
	ctx := context.Background()

	require.NoError(t, query.Cancel(ctx))
	assert.Empty(t, transport.callsTo(http.MethodDelete, widgetStatusPath))

	require.NoError(t, query.Submit(ctx))
	require.NoError(t, query.Cancel(ctx))
	assert.Equal(t, cbc.JobCancelled, query.State())

	require.NoError(t, query.Cancel(ctx))
	assert.Len(t, transport.callsTo(http.MethodDelete, widgetStatusPath), 1)

	_, _, err := query.Poll(ctx)
	require.ErrorIs(t, err, cbc.ErrJobCancelled)
}

func TestAsyncQuery_Timeout(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetStatusPath, `{"contacted":2,"completed":1}`).
		reply(http.MethodDelete, widgetStatusPath, `{}`)

	query := newWidgetJob(transport).SetTimeout(20 * time.Millisecond)

	_, err := query.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, cbc.IsTimeout(err))

	var timeoutErr *cbc.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "J1", timeoutErr.JobID)

	assert.Equal(t, cbc.JobFailed, query.State())
	assert.Len(t, transport.callsTo(http.MethodDelete, widgetStatusPath), 1)
}

func TestAsyncQuery_CallerCancellation(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetStatusPath, `{"contacted":2,"completed":1}`).
		reply(http.MethodDelete, widgetStatusPath, `{}`)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	query := newWidgetJob(transport)

	_, err := query.Execute(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var timeoutErr *cbc.TimeoutError
	assert.NotErrorAs(t, err, &timeoutErr)
	assert.Equal(t, cbc.JobCancelled, query.State())
	assert.Len(t, transport.callsTo(http.MethodDelete, widgetStatusPath), 1)
}

func TestAsyncQuery_PollBeforeSubmit(t *testing.T) {
	t.Parallel()

	query := newWidgetJob(newStubTransport())

	_, _, err := query.Poll(context.Background())
	require.ErrorIs(t, err, cbc.ErrJobNotSubmitted)

	_, err = query.FetchPage(context.Background(), 0, 10)
	require.ErrorIs(t, err, cbc.ErrJobNotSubmitted)
}

func TestAsyncQuery_CountAndOne(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodPost, widgetSubmitPath, `{"job_id":"J1"}`).
		reply(http.MethodGet, widgetStatusPath, `{"contacted":1,"completed":1,"num_found":2}`).
		reply(http.MethodGet, widgetResultsPath, `{"results":[`+widgetRows("W1", "W2")+`],"num_found":2}`)

	query := newWidgetJob(transport)
	ctx := context.Background()

	count, err := query.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Empty(t, transport.callsTo(http.MethodGet, widgetResultsPath))

	_, err = query.One(ctx)
	require.ErrorIs(t, err, cbc.ErrMoreThanOneResult)
}

func TestAsyncQuery_SubmitWithoutJobID(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().reply(http.MethodPost, widgetSubmitPath, `{"status":"ok"}`)

	err := newWidgetJob(transport).Submit(context.Background())
	require.Error(t, err)

	var apiErr *cbc.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "job_id")
}
