package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// ProcessInfo describes process search results.
var ProcessInfo = &cbc.ResourceInfo{
	Name:                 "process",
	PrimaryKey:           "process_guid",
	FullDocumentInSearch: true,
}

// ProcessSearchEndpoints is the process search job API.
var ProcessSearchEndpoints = cbc.JobEndpoints{
	SubmitURL:  "/api/investigate/v2/orgs/{org_key}/processes/search_jobs",
	ResultsURL: "/api/investigate/v2/orgs/{org_key}/processes/search_jobs/{job_id}/results",
	CancelURL:  "/api/investigate/v2/orgs/{org_key}/processes/search_jobs/{job_id}",
}

// ProcessFacetEndpoints is the process facet job API.
var ProcessFacetEndpoints = cbc.JobEndpoints{
	SubmitURL:  "/api/investigate/v2/orgs/{org_key}/processes/facet_jobs",
	ResultsURL: "/api/investigate/v2/orgs/{org_key}/processes/facet_jobs/{job_id}/results",
	CancelURL:  "/api/investigate/v2/orgs/{org_key}/processes/facet_jobs/{job_id}",
}

const processEventsURL = "/api/investigate/v2/orgs/{org_key}/events/{process_guid}/_search"

// Process is one process execution found by a search job. Processes have
// no detail endpoint; a row is everything the client knows.
type Process struct {
	*cbc.Model
}

func newProcess(m *cbc.Model) *Process {
	return &Process{Model: m}
}

// GUID returns the process GUID.
func (p *Process) GUID() string { return p.ID() }

// Name returns the executable path.
func (p *Process) Name() string { return p.Peek("process_name").String() }

// PID returns the process id.
func (p *Process) PID() int64 {
	pids := p.Peek("process_pid").Slice()
	if len(pids) > 0 {
		return cbc.ValueOf(pids[0]).Int64()
	}

	return p.Peek("process_pid").Int64()
}

// DeviceName returns the host the process ran on.
func (p *Process) DeviceName() string { return p.Peek("device_name").String() }

// Username returns the account the process ran as.
func (p *Process) Username() string {
	users := p.Peek("process_username").Strings()
	if len(users) > 0 {
		return users[0]
	}

	return ""
}

// ParentGUID returns the parent process GUID.
func (p *Process) ParentGUID() string { return p.Peek("parent_guid").String() }

// StartTime returns the process start time.
func (p *Process) StartTime() time.Time { return p.Peek("process_start_time").Time() }

// Events searches the events recorded for this process.
func (p *Process) Events(ctx context.Context, query string, rows int) ([]cbc.Fields, error) {
	path := cbc.FormatPath(processEventsURL, p.API().OrgKey(), map[string]string{"process_guid": p.GUID()})

	body := map[string]any{"rows": rows}
	if query != "" {
		body["query"] = query
	}

	raw, err := p.API().PostObject(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("searching events of %s: %w", p.GUID(), err)
	}

	doc, err := cbc.DecodeFields(raw)
	if err != nil {
		return nil, &cbc.APIError{Path: path, Message: "malformed event response", Err: err}
	}

	results := doc.Get("results").Slice()

	events := make([]cbc.Fields, 0, len(results))
	for _, result := range results {
		if event, ok := result.(map[string]any); ok {
			events = append(events, cbc.Fields(event))
		}
	}

	return events, nil
}

// Processes starts a process search job query.
func (a *API) Processes() *cbc.AsyncQuery[*Process] {
	return cbc.NewAsyncQuery(a.transport, ProcessInfo, ProcessSearchEndpoints, newProcess)
}

// ProcessFacets starts a process facet job query.
func (a *API) ProcessFacets() *cbc.FacetQuery {
	return cbc.NewFacetQuery(a.transport, "process", ProcessFacetEndpoints)
}
