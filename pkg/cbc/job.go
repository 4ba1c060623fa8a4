package cbc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// JobState is the lifecycle state of a server-side search job.
type JobState int

// Job states.
const (
	JobUnsubmitted JobState = iota
	JobSubmitted
	JobQuerying
	JobCompleted
	JobFailed
	JobCancelled
)

// String implements fmt.Stringer.
func (s JobState) String() string {
	switch s {
	case JobUnsubmitted:
		return "UNSUBMITTED"
	case JobSubmitted:
		return "SUBMITTED"
	case JobQuerying:
		return "QUERYING"
	case JobCompleted:
		return "COMPLETED"
	case JobFailed:
		return "FAILED"
	case JobCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Open reports whether a job id is outstanding.
func (s JobState) Open() bool {
	return s == JobSubmitted || s == JobQuerying
}

// JobStatus is one poll response of a job-status endpoint.
type JobStatus struct {
	Contacted    int    `json:"contacted"     yaml:"contacted"`
	Completed    int    `json:"completed"     yaml:"completed"`
	NumFound     int    `json:"num_found"     yaml:"num_found"`
	NumAvailable int    `json:"num_available" yaml:"num_available"`
	Status       string `json:"status"        yaml:"status"`
	Reason       string `json:"reason"        yaml:"reason"`
	Message      string `json:"message"       yaml:"message"`
	InProgress   bool   `json:"in_progress"   yaml:"in_progress"`
}

// ParseJobStatus decodes a poll response.
func ParseJobStatus(raw json.RawMessage) (*JobStatus, error) {
	var status JobStatus

	err := json.Unmarshal(raw, &status)
	if err != nil {
		return nil, fmt.Errorf("parsing job status: %w", err)
	}

	if status.Reason == "" {
		var extra struct {
			FailureReason string `json:"failure_reason"`
			ErrorMessage  string `json:"error_message"`
		}

		if json.Unmarshal(raw, &extra) == nil {
			status.Reason = extra.FailureReason
			if status.Message == "" {
				status.Message = extra.ErrorMessage
			}
		}
	}

	return &status, nil
}

// NextJobState computes the state that follows current after a poll.
// It performs no I/O.
func NextJobState(current JobState, status *JobStatus) JobState {
	if current.Terminal() || current == JobUnsubmitted || status == nil {
		return current
	}

	switch strings.ToUpper(status.Status) {
	case "FAILED", "ERROR":
		return JobFailed
	case "CANCELLED", "CANCELED":
		return JobCancelled
	}

	if status.InProgress {
		return JobQuerying
	}

	if status.Contacted > 0 {
		if status.Completed >= status.Contacted {
			return JobCompleted
		}

		return JobQuerying
	}

	switch strings.ToUpper(status.Status) {
	case "COMPLETED", "COMPLETE", "SUCCESS", "FINISHED":
		return JobCompleted
	default:
		return JobQuerying
	}
}

// JobEndpoints locates the submit, status, results and cancel URLs of a job API.
// Templates may use {org_key} and {job_id}.
type JobEndpoints struct {
	SubmitURL string
	// StatusURL is polled for progress. When empty, ResultsURL is polled with rows=0.
	StatusURL  string
	ResultsURL string
	CancelURL  string
	// JobIDKey is the submit response key carrying the job id. Defaults to "job_id".
	JobIDKey string
}

// jobRunner drives the submit/poll/cancel lifecycle shared by async queries.
type jobRunner struct {
	api       Transport
	endpoints JobEndpoints
	name      string

	mutex           sync.Mutex
	state           JobState
	jobID           string
	lastStatus      *JobStatus
	pollInterval    time.Duration
	maxPollInterval time.Duration
	timeout         time.Duration
}

func newJobRunner(api Transport, endpoints JobEndpoints, name string) jobRunner {
	return jobRunner{
		api:             api,
		endpoints:       endpoints,
		name:            name,
		pollInterval:    constants.DefaultJobPollInterval,
		maxPollInterval: constants.MaxJobPollInterval,
	}
}

// State returns the current job state.
func (r *jobRunner) State() JobState {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.state
}

// JobID returns the current job id, empty before submission.
func (r *jobRunner) JobID() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.jobID
}

// LastStatus returns the most recent poll response.
func (r *jobRunner) LastStatus() *JobStatus {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.lastStatus
}

func (r *jobRunner) jobPath(template string) string {
	return FormatPath(template, r.api.OrgKey(), map[string]string{"job_id": r.jobID})
}

func (r *jobRunner) submit(ctx context.Context, body map[string]any) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state.Open() {
		return fmt.Errorf("submitting %s job %s: %w", r.name, r.jobID, ErrJobAlreadyOpen)
	}

	r.state = JobUnsubmitted
	r.jobID = ""
	r.lastStatus = nil

	path := FormatPath(r.endpoints.SubmitURL, r.api.OrgKey(), nil)

	raw, err := r.api.PostObject(ctx, path, body)
	if err != nil {
		return fmt.Errorf("submitting %s job: %w", r.name, err)
	}

	key := r.endpoints.JobIDKey
	if key == "" {
		key = "job_id"
	}

	doc, err := decodeFields(raw)
	if err != nil {
		return &APIError{Path: path, Message: "malformed job submit response", Err: err}
	}

	jobID := doc.Get(key).String()
	if jobID == "" {
		jobID = doc.Get("id").String()
	}

	if jobID == "" {
		return &APIError{Path: path, Message: "job submit response has no " + key}
	}

	r.jobID = jobID
	r.state = JobSubmitted

	loggerFor(r.api).Debug("Submitted job", map[string]interface{}{
		"resource": r.name,
		"job_id":   jobID,
	})

	return nil
}

// Poll fetches the job status once and applies the transition.
// Polling never changes remote state. A terminal job is not polled again.
func (r *jobRunner) Poll(ctx context.Context) (JobState, *JobStatus, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.jobID == "" {
		return r.state, nil, fmt.Errorf("polling %s job: %w", r.name, ErrJobNotSubmitted)
	}

	if r.state.Terminal() {
		return r.state, r.lastStatus, r.terminalError()
	}

	var (
		raw json.RawMessage
		err error
	)

	if r.endpoints.StatusURL != "" {
		raw, err = r.api.GetObject(ctx, r.jobPath(r.endpoints.StatusURL), nil)
	} else {
		raw, err = r.api.GetObject(ctx, r.jobPath(r.endpoints.ResultsURL), url.Values{
			"start": []string{"0"},
			"rows":  []string{"0"},
		})
	}

	if err != nil {
		return r.state, r.lastStatus, fmt.Errorf("polling %s job %s: %w", r.name, r.jobID, err)
	}

	status, err := ParseJobStatus(raw)
	if err != nil {
		return r.state, r.lastStatus, &APIError{Path: r.endpoints.StatusURL, Message: "malformed job status", Err: err}
	}

	r.lastStatus = status
	r.state = NextJobState(r.state, status)

	loggerFor(r.api).Debug("Polled job", map[string]interface{}{
		"resource":  r.name,
		"job_id":    r.jobID,
		"state":     r.state.String(),
		"contacted": status.Contacted,
		"completed": status.Completed,
	})

	return r.state, status, r.terminalError()
}

func (r *jobRunner) terminalError() error {
	switch r.state {
	case JobFailed:
		apiErr := &APIError{
			Path:    r.jobPath(r.endpoints.SubmitURL),
			Message: fmt.Sprintf("%s job %s failed", r.name, r.jobID),
			Err:     ErrJobFailed,
		}

		if r.lastStatus != nil {
			apiErr.Reason = r.lastStatus.Reason
			if apiErr.Reason == "" {
				apiErr.Reason = r.lastStatus.Message
			}
		}

		return apiErr
	case JobCancelled:
		return fmt.Errorf("%s job %s: %w", r.name, r.jobID, ErrJobCancelled)
	default:
		return nil
	}
}

// Cancel asks the server to stop the job. The local state becomes
// JobCancelled whether or not the request succeeds.
func (r *jobRunner) Cancel(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.state.Open() {
		return nil
	}

	r.state = JobCancelled

	return r.cancelRemote(ctx)
}

func (r *jobRunner) cancelRemote(ctx context.Context) error {
	if r.endpoints.CancelURL == "" {
		return nil
	}

	err := r.api.DeleteObject(ctx, r.jobPath(r.endpoints.CancelURL))
	if err != nil {
		loggerFor(r.api).Warn("Job cancellation failed", map[string]interface{}{
			"resource": r.name,
			"job_id":   r.jobID,
			"error":    err.Error(),
		})

		return fmt.Errorf("cancelling %s job %s: %w", r.name, r.jobID, err)
	}

	return nil
}

// wait polls with bounded backoff until the job is completed.
func (r *jobRunner) wait(ctx context.Context) error {
	return r.waitUntil(ctx, func(_ context.Context, state JobState) (bool, error) {
		return state == JobCompleted, nil
	})
}

// waitUntil polls with bounded backoff until ready reports true. ready runs
// after every poll under the job timeout.
func (r *jobRunner) waitUntil(ctx context.Context, ready func(context.Context, JobState) (bool, error)) error {
	waitCtx := ctx

	if r.timeout > 0 {
		var cancel context.CancelFunc

		waitCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	interval := r.pollInterval

	for {
		state, _, err := r.Poll(waitCtx)
		if err == nil {
			var done bool

			done, err = ready(waitCtx, state)
			if err == nil && done {
				return nil
			}
		}

		if err != nil {
			if waitCtx.Err() != nil {
				return r.abandon(ctx, err)
			}

			return err
		}

		timer := time.NewTimer(interval)

		select {
		case <-waitCtx.Done():
			timer.Stop()

			return r.abandon(ctx, waitCtx.Err())
		case <-timer.C:
		}

		interval = nextPollInterval(interval, r.maxPollInterval)
	}
}

// abandon cancels an open job after the caller's context ended or the job
// timeout elapsed.
func (r *jobRunner) abandon(parent context.Context, cause error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	jobID := r.jobID

	if r.state.Open() {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), constants.ShortHTTPTimeout)
		_ = r.cancelRemote(cancelCtx)

		cancel()

		if parent.Err() != nil {
			r.state = JobCancelled
		} else {
			r.state = JobFailed
		}
	}

	if parent.Err() != nil {
		return fmt.Errorf("waiting for %s job %s: %w", r.name, jobID, parent.Err())
	}

	if !errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %w", cause, context.DeadlineExceeded)
	}

	return &TimeoutError{Operation: r.name + " job", JobID: jobID, Err: cause}
}

func nextPollInterval(current, maxInterval time.Duration) time.Duration {
	next := current * 3 / 2
	if maxInterval > 0 && next > maxInterval {
		return maxInterval
	}

	return next
}
