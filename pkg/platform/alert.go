package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// Alert workflow determinations.
const (
	DeterminationTruePositive  = "TRUE_POSITIVE"
	DeterminationFalsePositive = "FALSE_POSITIVE"
	DeterminationNone          = "NONE"
)

// Alert workflow statuses.
const (
	AlertStatusOpen       = "OPEN"
	AlertStatusInProgress = "IN_PROGRESS"
	AlertStatusClosed     = "CLOSED"
)

const alertWorkflowURL = "/api/alerts/v7/orgs/{org_key}/alerts/workflow"

// AlertInfo describes the alert resource.
var AlertInfo = &cbc.ResourceInfo{
	Name:                 "alert",
	URLTemplate:          "/api/alerts/v7/orgs/{org_key}/alerts/{id}",
	SearchURL:            "/api/alerts/v7/orgs/{org_key}/alerts/_search",
	FacetURL:             "/api/alerts/v7/orgs/{org_key}/alerts/_facet",
	FullDocumentInSearch: true,
}

// Alert is a detection raised by the platform.
type Alert struct {
	*cbc.Model

	platform *API
}

func (a *API) alertConstructor() func(*cbc.Model) *Alert {
	return func(m *cbc.Model) *Alert {
		return &Alert{Model: m, platform: a}
	}
}

// Type returns the alert type, e.g. CB_ANALYTICS.
func (a *Alert) Type() string { return a.Peek("type").String() }

// Severity returns the severity from 1 to 10.
func (a *Alert) Severity() int { return a.Peek("severity").Int() }

// Reason returns the human readable detection reason.
func (a *Alert) Reason() string { return a.Peek("reason").String() }

// DeviceID returns the device the alert fired on.
func (a *Alert) DeviceID() string { return a.Peek("device_id").String() }

// DeviceName returns the device name.
func (a *Alert) DeviceName() string { return a.Peek("device_name").String() }

// WorkflowStatus returns OPEN, IN_PROGRESS or CLOSED.
func (a *Alert) WorkflowStatus() string { return a.Peek("workflow.status").String() }

// BackendTimestamp returns when the platform recorded the alert.
func (a *Alert) BackendTimestamp() time.Time { return a.Peek("backend_timestamp").Time() }

// WorkflowUpdate is a bulk alert status change.
type WorkflowUpdate struct {
	Status        string
	Determination string
	ClosureReason string
	Note          string
}

func (u WorkflowUpdate) body() map[string]any {
	body := map[string]any{"status": u.Status}

	if u.Determination != "" {
		body["determination"] = u.Determination
	}

	if u.ClosureReason != "" {
		body["closure_reason"] = u.ClosureReason
	}

	if u.Note != "" {
		body["note"] = u.Note
	}

	return body
}

// UpdateWorkflow changes the workflow of this alert and returns the
// tracking job. The job is not waited on.
func (a *Alert) UpdateWorkflow(ctx context.Context, update WorkflowUpdate) (*Job, error) {
	if a.ID() == "" {
		return nil, cbc.ErrMissingID
	}

	body := update.body()
	body["criteria"] = map[string]any{"id": []string{a.ID()}}

	return a.platform.submitWorkflow(ctx, body)
}

// Dismiss closes this alert and waits for the workflow job to finish.
func (a *Alert) Dismiss(ctx context.Context, reason, note string) error {
	job, err := a.UpdateWorkflow(ctx, WorkflowUpdate{
		Status:        AlertStatusClosed,
		Determination: DeterminationNone,
		ClosureReason: reason,
		Note:          note,
	})
	if err != nil {
		return err
	}

	err = job.PollUntilComplete(ctx)
	if err != nil {
		return err
	}

	a.MergeFields(map[string]any{"workflow": map[string]any{
		"status":         AlertStatusClosed,
		"closure_reason": reason,
		"note":           note,
	}})

	return nil
}

// Alerts starts an alert search.
func (a *API) Alerts() *cbc.Query[*Alert] {
	return cbc.NewQuery(a.transport, AlertInfo, a.alertConstructor())
}

// GetAlert fetches one alert.
func (a *API) GetAlert(ctx context.Context, id string) (*Alert, error) {
	return cbc.Get(ctx, a.transport, AlertInfo, a.alertConstructor(), id)
}

// UpdateAlertsWorkflow changes the workflow of every alert matched by query
// and returns the tracking job.
func (a *API) UpdateAlertsWorkflow(ctx context.Context, query *cbc.Query[*Alert], update WorkflowUpdate) (*Job, error) {
	body := update.body()
	for key, value := range query.FilterBody() {
		body[key] = value
	}

	return a.submitWorkflow(ctx, body)
}

// DismissAlerts closes every alert matched by query and waits for completion.
func (a *API) DismissAlerts(ctx context.Context, query *cbc.Query[*Alert], reason, note string) (*Job, error) {
	job, err := a.UpdateAlertsWorkflow(ctx, query, WorkflowUpdate{
		Status:        AlertStatusClosed,
		Determination: DeterminationNone,
		ClosureReason: reason,
		Note:          note,
	})
	if err != nil {
		return nil, err
	}

	return job, job.PollUntilComplete(ctx)
}

func (a *API) submitWorkflow(ctx context.Context, body map[string]any) (*Job, error) {
	path := cbc.FormatPath(alertWorkflowURL, a.transport.OrgKey(), nil)

	raw, err := a.transport.PostObject(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("updating alert workflow: %w", err)
	}

	response, err := cbc.DecodeFields(raw)
	if err != nil {
		return nil, &cbc.APIError{Path: path, Message: "malformed workflow response", Err: err}
	}

	requestID := response.Get("request_id").String()
	if requestID == "" {
		return nil, &cbc.APIError{Path: path, Message: "workflow response has no request_id"}
	}

	return a.NewJob(requestID), nil
}
