package cbc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ResourceInfo describes where a resource lives on the API and how it is saved.
//
// URL templates may contain {org_key} and {id}; the org key comes from the
// Transport and the id from the model.
type ResourceInfo struct {
	// Name is a short human readable resource name used in errors and logs.
	Name string
	// PrimaryKey is the document field carrying the identity key. Defaults to "id".
	PrimaryKey string
	// URLTemplate addresses a single instance.
	URLTemplate string
	// CreateURL is the collection endpoint new instances are POSTed to.
	CreateURL string
	// SearchURL is the POST search endpoint used by Query.
	SearchURL string
	// FacetURL is the synchronous POST facet endpoint used by Query.Facet.
	FacetURL string
	// ListURL is the GET collection endpoint used by List.
	ListURL string
	// ListKey is the response key that holds rows. Defaults to "results".
	ListKey string
	// DocumentKey unwraps single-instance GET responses, e.g. "feedinfo".
	DocumentKey string
	// FullDocumentInSearch marks search rows as complete documents.
	FullDocumentInSearch bool
	// SaveFullDocument makes Save send the whole document instead of dirty fields.
	SaveFullDocument bool
	// UpdateMethod is http.MethodPut (default) or http.MethodPatch.
	UpdateMethod string
	// Validate runs before Save sends anything.
	Validate func(Fields) error
}

func (r *ResourceInfo) primaryKey() string {
	if r.PrimaryKey == "" {
		return "id"
	}

	return r.PrimaryKey
}

func (r *ResourceInfo) listKey() string {
	if r.ListKey == "" {
		return "results"
	}

	return r.ListKey
}

func (r *ResourceInfo) name() string {
	if r.Name == "" {
		return "object"
	}

	return r.Name
}

// Model is one remote resource instance with lazily loaded fields.
type Model struct {
	api         Transport
	info        *ResourceInfo
	id          string
	fields      Fields
	fullyLoaded bool
}

// NewModel creates an unloaded model for id. No I/O is performed.
func NewModel(api Transport, info *ResourceInfo, id string) *Model {
	return &Model{
		api:    api,
		info:   info,
		id:     id,
		fields: Fields{},
	}
}

// NewModelFromDocument creates a model from an already decoded document.
func NewModelFromDocument(api Transport, info *ResourceInfo, doc map[string]any, full bool) *Model {
	fields := Fields(doc)
	if fields == nil {
		fields = Fields{}
	}

	model := &Model{
		api:         api,
		info:        info,
		fields:      fields,
		fullyLoaded: full,
	}
	model.id = fields.Get(info.primaryKey()).String()

	return model
}

// Get fetches a single resource by id and wraps it with ctor.
func Get[T any](ctx context.Context, api Transport, info *ResourceInfo, ctor func(*Model) T, id string) (T, error) {
	var zero T

	model := NewModel(api, info, id)

	err := model.Refresh(ctx)
	if err != nil {
		return zero, err
	}

	return ctor(model), nil
}

// ID returns the identity key.
func (m *Model) ID() string {
	return m.id
}

// API returns the transport the model was built with.
func (m *Model) API() Transport {
	return m.api
}

// Info returns the resource description.
func (m *Model) Info() *ResourceInfo {
	return m.info
}

// FullyLoaded reports whether the field set is known to be complete.
func (m *Model) FullyLoaded() bool {
	return m.fullyLoaded
}

// Fields returns a copy of the cached document.
func (m *Model) Fields() Fields {
	return m.fields.Clone()
}

// MergeFields overlays doc onto the cached document. It is used when an
// action's effect on the document is known without a refresh.
func (m *Model) MergeFields(doc map[string]any) {
	m.fields.Merge(doc)
}

// Peek reads a cached field without any I/O.
func (m *Model) Peek(name string) Value {
	return m.fields.Get(name)
}

// Field reads a field, loading the full document once if it is not cached.
//
// A field still absent after the load returns Missing with a nil error. A
// failed load returns a *NotFoundError and is not retried on later reads.
func (m *Model) Field(ctx context.Context, name string) (Value, error) {
	if v := m.fields.Get(name); !v.IsMissing() {
		return v, nil
	}

	if m.fullyLoaded {
		return Missing, nil
	}

	m.fullyLoaded = true

	err := m.load(ctx)
	if err != nil {
		return Missing, m.notFound(err)
	}

	return m.fields.Get(name), nil
}

// Refresh re-fetches the full document and merges it into the cache.
func (m *Model) Refresh(ctx context.Context) error {
	err := m.load(ctx)
	if err != nil {
		return err
	}

	m.fullyLoaded = true

	return nil
}

// Path returns the singular URL of this instance.
func (m *Model) Path() string {
	return FormatPath(m.info.URLTemplate, m.api.OrgKey(), map[string]string{"id": m.id})
}

// Delete removes the remote resource.
func (m *Model) Delete(ctx context.Context) error {
	if m.id == "" {
		return fmt.Errorf("deleting %s: %w", m.info.name(), ErrMissingID)
	}

	err := m.api.DeleteObject(ctx, m.Path())
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", m.info.name(), m.id, err)
	}

	return nil
}

// Decode copies the cached document into dst.
func (m *Model) Decode(dst any) error {
	data, err := json.Marshal(m.fields)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.info.name(), err)
	}

	err = json.Unmarshal(data, dst)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", m.info.name(), err)
	}

	return nil
}

// MarshalJSON encodes the cached document.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.fields)
}

func (m *Model) load(ctx context.Context) error {
	doc, err := m.fetch(ctx)
	if err != nil {
		return err
	}

	m.fields.Merge(doc)

	if id := m.fields.Get(m.info.primaryKey()).String(); id != "" {
		m.id = id
	}

	return nil
}

func (m *Model) fetch(ctx context.Context) (Fields, error) {
	if m.info.URLTemplate == "" {
		return nil, fmt.Errorf("loading %s: %w", m.info.name(), ErrNoDetailEndpoint)
	}

	if m.id == "" {
		return nil, fmt.Errorf("loading %s: %w", m.info.name(), ErrMissingID)
	}

	loggerFor(m.api).Debug("Loading resource", map[string]interface{}{
		"resource": m.info.name(),
		"id":       m.id,
	})

	raw, err := m.api.GetObject(ctx, m.Path(), nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", m.info.name(), m.id, err)
	}

	doc, err := decodeFields(raw)
	if err != nil {
		return nil, &APIError{Path: m.Path(), Message: "malformed response", Err: err}
	}

	if m.info.DocumentKey != "" {
		inner, ok := doc[m.info.DocumentKey].(map[string]any)
		if !ok {
			return nil, &APIError{Path: m.Path(), Message: "response has no " + m.info.DocumentKey}
		}

		doc = Fields(inner)
	}

	return doc, nil
}

func (m *Model) notFound(err error) error {
	nf := &NotFoundError{}
	if errors.As(err, &nf) {
		return err
	}

	out := &NotFoundError{APIError: APIError{
		StatusCode: http.StatusNotFound,
		Path:       m.Path(),
		Message:    fmt.Sprintf("could not load %s %s", m.info.name(), m.id),
		Err:        err,
	}}

	apiErr := &APIError{}
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		out.StatusCode = apiErr.StatusCode
	}

	return out
}
