package cbc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

const testOrgKey = "ORG1"

type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
}

type cannedResponse struct {
	body string
	err  error
}

// stubTransport answers from queued responses per "METHOD path" and records
// every call. The last queued response for a route repeats.
type stubTransport struct {
	mutex     sync.Mutex
	responses map[string][]cannedResponse
	calls     []recordedCall
}

func newStubTransport() *stubTransport {
	return &stubTransport{responses: make(map[string][]cannedResponse)}
}

func (s *stubTransport) reply(method, path string, bodies ...string) *stubTransport {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, body := range bodies {
		s.responses[method+" "+path] = append(s.responses[method+" "+path], cannedResponse{body: body})
	}

	return s
}

func (s *stubTransport) replyError(method, path string, err error) *stubTransport {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.responses[method+" "+path] = append(s.responses[method+" "+path], cannedResponse{err: err})

	return s
}

func (s *stubTransport) handle(method, path string, query url.Values, body any) (json.RawMessage, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	call := recordedCall{Method: method, Path: path, Query: query}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		_ = json.Unmarshal(data, &call.Body)
	}

	s.calls = append(s.calls, call)

	key := method + " " + path

	queue := s.responses[key]
	if len(queue) == 0 {
		return nil, &cbc.NotFoundError{APIError: cbc.APIError{StatusCode: http.StatusNotFound, Path: path}}
	}

	if len(queue) > 1 {
		s.responses[key] = queue[1:]
	}

	if queue[0].err != nil {
		return nil, queue[0].err
	}

	return json.RawMessage(queue[0].body), nil
}

func (s *stubTransport) callsTo(method, path string) []recordedCall {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []recordedCall

	for _, call := range s.calls {
		if call.Method == method && call.Path == path {
			out = append(out, call)
		}
	}

	return out
}

func (s *stubTransport) requireNoCalls(t *testing.T) {
	t.Helper()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	assert.Empty(t, s.calls)
}

func (s *stubTransport) OrgKey() string { return testOrgKey }

func (s *stubTransport) GetObject(_ context.Context, path string, query url.Values) (json.RawMessage, error) {
	return s.handle(http.MethodGet, path, query, nil)
}

func (s *stubTransport) PostObject(_ context.Context, path string, body any) (json.RawMessage, error) {
	return s.handle(http.MethodPost, path, nil, body)
}

func (s *stubTransport) PutObject(_ context.Context, path string, body any) (json.RawMessage, error) {
	return s.handle(http.MethodPut, path, nil, body)
}

func (s *stubTransport) PatchObject(_ context.Context, path string, body any) (json.RawMessage, error) {
	return s.handle(http.MethodPatch, path, nil, body)
}

func (s *stubTransport) DeleteObject(_ context.Context, path string) error {
	_, err := s.handle(http.MethodDelete, path, nil, nil)

	return err
}

func (s *stubTransport) GetRawData(_ context.Context, path string, query url.Values) ([]byte, error) {
	return s.handle(http.MethodGet, path, query, nil)
}

// Test resources.
var (
	widgetInfo = &cbc.ResourceInfo{
		Name:        "widget",
		URLTemplate: "/widgets/v1/orgs/{org_key}/widgets/{id}",
		CreateURL:   "/widgets/v1/orgs/{org_key}/widgets",
		SearchURL:   "/widgets/v1/orgs/{org_key}/widgets/_search",
		FacetURL:    "/widgets/v1/orgs/{org_key}/widgets/_facet",
		ListURL:     "/widgets/v1/orgs/{org_key}/widgets",
	}

	widgetJobs = cbc.JobEndpoints{
		SubmitURL:  "/widgets/v1/orgs/{org_key}/search_jobs",
		StatusURL:  "/widgets/v1/orgs/{org_key}/search_jobs/{job_id}",
		ResultsURL: "/widgets/v1/orgs/{org_key}/search_jobs/{job_id}/results",
		CancelURL:  "/widgets/v1/orgs/{org_key}/search_jobs/{job_id}",
	}
)

const (
	widgetPath        = "/widgets/v1/orgs/ORG1/widgets/W1"
	widgetsPath       = "/widgets/v1/orgs/ORG1/widgets"
	widgetSearchPath  = "/widgets/v1/orgs/ORG1/widgets/_search"
	widgetFacetPath   = "/widgets/v1/orgs/ORG1/widgets/_facet"
	widgetSubmitPath  = "/widgets/v1/orgs/ORG1/search_jobs"
	widgetStatusPath  = "/widgets/v1/orgs/ORG1/search_jobs/J1"
	widgetResultsPath = "/widgets/v1/orgs/ORG1/search_jobs/J1/results"
)

func asModel(m *cbc.Model) *cbc.Model { return m }
