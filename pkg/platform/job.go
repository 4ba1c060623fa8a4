package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// JobInfo describes the platform jobs service.
var JobInfo = &cbc.ResourceInfo{
	Name:        "job",
	URLTemplate: "/jobs/v1/orgs/{org_key}/jobs/{id}",
	ListURL:     "/jobs/v1/orgs/{org_key}/jobs",
}

const jobProgressURL = "/jobs/v1/orgs/{org_key}/jobs/{id}/progress"

// Job is a long-running server-side operation such as an alert workflow update.
type Job struct {
	*cbc.Model

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// JobProgress reports how far a job has got.
type JobProgress struct {
	NumTotal     int    `json:"num_total"     yaml:"num_total"`
	NumCompleted int    `json:"num_completed" yaml:"num_completed"`
	Message      string `json:"message"       yaml:"message"`
}

func (a *API) jobConstructor() func(*cbc.Model) *Job {
	return func(m *cbc.Model) *Job {
		return &Job{Model: m, pollInterval: a.jobPollInterval, pollTimeout: a.jobPollTimeout}
	}
}

// Status returns the last known job status, e.g. IN_PROGRESS.
func (j *Job) Status() string { return j.Peek("status").String() }

// JobType returns the job type.
func (j *Job) JobType() string { return j.Peek("job_type").String() }

// ErrorMessage returns the failure message of a failed job.
func (j *Job) ErrorMessage() string { return j.Peek("error_message").String() }

// State maps the job document onto the search-job state machine.
func (j *Job) State() cbc.JobState {
	status := &cbc.JobStatus{Status: j.Status()}
	if status.Status == "" {
		return cbc.JobSubmitted
	}

	return cbc.NextJobState(cbc.JobSubmitted, status)
}

// Progress fetches the progress counters.
func (j *Job) Progress(ctx context.Context) (*JobProgress, error) {
	path := cbc.FormatPath(jobProgressURL, j.API().OrgKey(), map[string]string{"id": j.ID()})

	raw, err := j.API().GetObject(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting job progress: %w", err)
	}

	var progress JobProgress

	err = json.Unmarshal(raw, &progress)
	if err != nil {
		return nil, fmt.Errorf("parsing job progress: %w", err)
	}

	return &progress, nil
}

// PollUntilComplete refreshes the job until it reaches a terminal state.
// A failed job returns cbc.ErrJobFailed wrapped in a *cbc.APIError.
func (j *Job) PollUntilComplete(ctx context.Context) error {
	err := pollUntil(ctx, "job", j.ID(), j.pollInterval, j.pollTimeout, func(ctx context.Context) (bool, error) {
		err := j.Refresh(ctx)
		if err != nil {
			return false, fmt.Errorf("getting job status: %w", err)
		}

		return j.State().Terminal(), nil
	})
	if err != nil {
		return err
	}

	switch j.State() {
	case cbc.JobFailed:
		return &cbc.APIError{
			Path:    j.Path(),
			Message: formatJobError(j),
			Reason:  strings.ToUpper(j.Status()),
			Err:     cbc.ErrJobFailed,
		}
	case cbc.JobCancelled:
		return fmt.Errorf("job %s: %w", j.ID(), cbc.ErrJobCancelled)
	default:
		return nil
	}
}

func formatJobError(j *Job) string {
	if msg := j.ErrorMessage(); msg != "" {
		return msg
	}

	return "no error details available"
}

// GetJob fetches one job.
func (a *API) GetJob(ctx context.Context, id string) (*Job, error) {
	return cbc.Get(ctx, a.transport, JobInfo, a.jobConstructor(), id)
}

// Jobs lists recent jobs.
func (a *API) Jobs(ctx context.Context) ([]*Job, error) {
	return cbc.List(ctx, a.transport, JobInfo, a.jobConstructor(), nil)
}

// NewJob wraps a job id without fetching it.
func (a *API) NewJob(id string) *Job {
	return a.jobConstructor()(cbc.NewModel(a.transport, JobInfo, id))
}
