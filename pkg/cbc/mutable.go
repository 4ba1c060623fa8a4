package cbc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
)

// MutableModel is a Model that tracks local changes and saves them back.
type MutableModel struct {
	*Model

	dirty     map[string]struct{}
	originals map[string]Value
}

// NewMutableModel creates an unloaded mutable model. An empty id creates a
// new, not yet persisted, instance that is saved with a POST.
func NewMutableModel(api Transport, info *ResourceInfo, id string) *MutableModel {
	model := NewModel(api, info, id)
	if id == "" {
		model.fullyLoaded = true
	}

	return AsMutable(model)
}

// AsMutable wraps an existing model with change tracking.
func AsMutable(model *Model) *MutableModel {
	return &MutableModel{
		Model:     model,
		dirty:     make(map[string]struct{}),
		originals: make(map[string]Value),
	}
}

// Set records a local change. Setting a field to its current value is a no-op.
func (m *MutableModel) Set(name string, value any) {
	current := m.fields.Get(name)
	if !current.IsMissing() && sameJSON(current.Raw(), value) {
		return
	}

	if _, ok := m.dirty[name]; !ok {
		m.originals[name] = current
	}

	m.fields[name] = value
	m.dirty[name] = struct{}{}
}

// sameJSON reports whether a and b encode to the same JSON value, so an int
// matches the float64 it decodes to.
func sameJSON(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	normalA, okA := normalizeJSON(a)
	normalB, okB := normalizeJSON(b)

	return okA && okB && reflect.DeepEqual(normalA, normalB)
}

func normalizeJSON(value any) (any, bool) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}

	var normal any

	err = json.Unmarshal(data, &normal)
	if err != nil {
		return nil, false
	}

	return normal, true
}

// IsDirty reports whether there are unsaved changes.
func (m *MutableModel) IsDirty() bool {
	return len(m.dirty) > 0
}

// DirtyFields returns the names of unsaved fields in sorted order.
func (m *MutableModel) DirtyFields() []string {
	names := make([]string, 0, len(m.dirty))
	for name := range m.dirty {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Reset discards unsaved changes.
func (m *MutableModel) Reset() {
	for name, original := range m.originals {
		if original.IsMissing() {
			delete(m.fields, name)
		} else {
			m.fields[name] = original.Raw()
		}
	}

	m.clearDirty()
}

// Save persists unsaved changes. It issues no request when nothing changed.
func (m *MutableModel) Save(ctx context.Context) error {
	if !m.IsDirty() {
		return nil
	}

	if m.info.Validate != nil {
		err := m.info.Validate(m.fields)
		if err != nil {
			return fmt.Errorf("validating %s: %w", m.info.name(), err)
		}
	}

	var (
		raw json.RawMessage
		err error
	)

	if m.id == "" {
		raw, err = m.create(ctx)
	} else {
		raw, err = m.update(ctx)
	}

	if err != nil {
		return err
	}

	doc, err := decodeFields(raw)
	if err == nil {
		if m.info.DocumentKey != "" {
			if inner, ok := doc[m.info.DocumentKey].(map[string]any); ok {
				doc = Fields(inner)
			}
		}

		m.fields.Merge(doc)
	}

	if id := m.fields.Get(m.info.primaryKey()).String(); id != "" {
		m.id = id
	}

	m.clearDirty()

	return nil
}

func (m *MutableModel) create(ctx context.Context) (json.RawMessage, error) {
	if m.info.CreateURL == "" {
		return nil, fmt.Errorf("creating %s: %w", m.info.name(), ErrNoCreateEndpoint)
	}

	path := FormatPath(m.info.CreateURL, m.api.OrgKey(), nil)

	raw, err := m.api.PostObject(ctx, path, map[string]any(m.fields))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", m.info.name(), err)
	}

	return raw, nil
}

func (m *MutableModel) update(ctx context.Context) (json.RawMessage, error) {
	if m.info.URLTemplate == "" {
		return nil, fmt.Errorf("updating %s %s: %w", m.info.name(), m.id, ErrNotMutable)
	}

	body := make(map[string]any, len(m.dirty))

	if m.info.SaveFullDocument {
		if !m.fullyLoaded {
			server, err := m.fetch(ctx)
			if err != nil {
				return nil, fmt.Errorf("updating %s %s: %w", m.info.name(), m.id, err)
			}

			for k, v := range server {
				if _, dirty := m.dirty[k]; !dirty {
					m.fields[k] = v
				}
			}

			m.fullyLoaded = true
		}

		for k, v := range m.fields {
			body[k] = v
		}
	} else {
		for name := range m.dirty {
			body[name] = m.fields[name]
		}
	}

	var (
		raw json.RawMessage
		err error
	)

	if m.info.UpdateMethod == http.MethodPatch {
		raw, err = m.api.PatchObject(ctx, m.Path(), body)
	} else {
		raw, err = m.api.PutObject(ctx, m.Path(), body)
	}

	if err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", m.info.name(), m.id, err)
	}

	return raw, nil
}

func (m *MutableModel) clearDirty() {
	m.dirty = make(map[string]struct{})
	m.originals = make(map[string]Value)
}
