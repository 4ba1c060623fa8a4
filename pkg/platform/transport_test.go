package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

const testOrgKey = "ORG1"

type fakeResponse struct {
	body string
	err  error
}

type fakeCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
}

// fakeTransport replays canned responses per "METHOD path". The last
// response queued for a route is repeated.
type fakeTransport struct {
	mutex  sync.Mutex
	routes map[string][]fakeResponse
	calls  []fakeCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: make(map[string][]fakeResponse)}
}

func (f *fakeTransport) on(method, path string, bodies ...string) *fakeTransport {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for _, body := range bodies {
		f.routes[method+" "+path] = append(f.routes[method+" "+path], fakeResponse{body: body})
	}

	return f
}

func (f *fakeTransport) fail(method, path string, err error) *fakeTransport {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.routes[method+" "+path] = append(f.routes[method+" "+path], fakeResponse{err: err})

	return f
}

func (f *fakeTransport) respond(method, path string, query url.Values, body any) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	call := fakeCall{Method: method, Path: path, Query: query}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		err = json.Unmarshal(data, &call.Body)
		if err != nil {
			return nil, err
		}
	}

	f.calls = append(f.calls, call)

	key := method + " " + path

	queue := f.routes[key]
	if len(queue) == 0 {
		return nil, &cbc.NotFoundError{APIError: cbc.APIError{StatusCode: http.StatusNotFound, Path: path, Message: "no route"}}
	}

	if len(queue) > 1 {
		f.routes[key] = queue[1:]
	}

	if queue[0].err != nil {
		return nil, queue[0].err
	}

	return []byte(queue[0].body), nil
}

func (f *fakeTransport) callsTo(method, path string) []fakeCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var out []fakeCall

	for _, call := range f.calls {
		if call.Method == method && call.Path == path {
			out = append(out, call)
		}
	}

	return out
}

func (f *fakeTransport) callCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.calls)
}

func (f *fakeTransport) OrgKey() string { return testOrgKey }

func (f *fakeTransport) GetObject(_ context.Context, path string, query url.Values) (json.RawMessage, error) {
	return f.respond(http.MethodGet, path, query, nil)
}

func (f *fakeTransport) PostObject(_ context.Context, path string, body any) (json.RawMessage, error) {
	return f.respond(http.MethodPost, path, nil, body)
}

func (f *fakeTransport) PutObject(_ context.Context, path string, body any) (json.RawMessage, error) {
	return f.respond(http.MethodPut, path, nil, body)
}

func (f *fakeTransport) PatchObject(_ context.Context, path string, body any) (json.RawMessage, error) {
	return f.respond(http.MethodPatch, path, nil, body)
}

func (f *fakeTransport) DeleteObject(_ context.Context, path string) error {
	_, err := f.respond(http.MethodDelete, path, nil, nil)

	return err
}

func (f *fakeTransport) GetRawData(_ context.Context, path string, query url.Values) ([]byte, error) {
	return f.respond(http.MethodGet, path, query, nil)
}
