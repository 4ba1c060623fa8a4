package cbc_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

func TestNewModel_NoIO(t *testing.T) {
	t.Parallel()

	transport := newStubTransport()
	model := cbc.NewModel(transport, widgetInfo, "W1")

	assert.Equal(t, "W1", model.ID())
	assert.Equal(t, widgetPath, model.Path())
	assert.False(t, model.FullyLoaded())
	assert.True(t, model.Peek("name").IsMissing())
	transport.requireNoCalls(t)
}

func TestModel_FieldLoadsOnce(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().reply(http.MethodGet, widgetPath, `{"id":"W1","name":"gear","size":3}`)
	model := cbc.NewModel(transport, widgetInfo, "W1")
	ctx := context.Background()

	for range 3 {
		name, err := model.Field(ctx, "name")
		require.NoError(t, err)
		assert.Equal(t, "gear", name.String())
	}

	size, err := model.Field(ctx, "size")
	require.NoError(t, err)
	assert.Equal(t, 3, size.Int())

	missing, err := model.Field(ctx, "colour")
	require.NoError(t, err)
	assert.True(t, missing.IsMissing())

	assert.Len(t, transport.callsTo(http.MethodGet, widgetPath), 1)
	assert.True(t, model.FullyLoaded())
}

func TestModel_PartialDocument(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().reply(http.MethodGet, widgetPath, `{"id":"W1","name":"gear","size":3}`)
	model := cbc.NewModelFromDocument(transport, widgetInfo, map[string]any{"id": "W1", "name": "cached"}, false)
	ctx := context.Background()

	// Cached fields never trigger a load
	name, err := model.Field(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "cached", name.String())
	transport.requireNoCalls(t)

	size, err := model.Field(ctx, "size")
	require.NoError(t, err)
	assert.Equal(t, 3, size.Int())
	assert.Equal(t, "gear", model.Peek("name").String())
	assert.Len(t, transport.callsTo(http.MethodGet, widgetPath), 1)
}

func TestModel_FullDocumentNeverLoads(t *testing.T) {
	t.Parallel()

	transport := newStubTransport()
	model := cbc.NewModelFromDocument(transport, widgetInfo, map[string]any{"id": "W1"}, true)

	value, err := model.Field(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, value.IsMissing())
	transport.requireNoCalls(t)
}

func TestModel_FailedLoadIsNotRetried(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().replyError(http.MethodGet, widgetPath,
		&cbc.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"})
	model := cbc.NewModel(transport, widgetInfo, "W1")
	ctx := context.Background()

	_, err := model.Field(ctx, "name")
	require.Error(t, err)
	assert.True(t, cbc.IsNotFound(err))

	var apiErr *cbc.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	value, err := model.Field(ctx, "name")
	require.NoError(t, err)
	assert.True(t, value.IsMissing())
	assert.Len(t, transport.callsTo(http.MethodGet, widgetPath), 1)
}

func TestModel_RefreshAlwaysFetches(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().reply(http.MethodGet, widgetPath,
		`{"id":"W1","name":"gear"}`,
		`{"id":"W1","name":"cog"}`)
	model := cbc.NewModel(transport, widgetInfo, "W1")
	ctx := context.Background()

	require.NoError(t, model.Refresh(ctx))
	assert.Equal(t, "gear", model.Peek("name").String())

	require.NoError(t, model.Refresh(ctx))
	assert.Equal(t, "cog", model.Peek("name").String())
	assert.Len(t, transport.callsTo(http.MethodGet, widgetPath), 2)
}

func TestModel_MissingID(t *testing.T) {
	t.Parallel()

	transport := newStubTransport()
	model := cbc.NewModel(transport, widgetInfo, "")

	err := model.Refresh(context.Background())
	require.ErrorIs(t, err, cbc.ErrMissingID)

	err = model.Delete(context.Background())
	require.ErrorIs(t, err, cbc.ErrMissingID)
	transport.requireNoCalls(t)
}

func TestModel_FieldsIsACopy(t *testing.T) {
	t.Parallel()

	model := cbc.NewModelFromDocument(newStubTransport(), widgetInfo, map[string]any{"id": "W1", "name": "gear"}, true)

	fields := model.Fields()
	fields["name"] = "changed"

	assert.Equal(t, "gear", model.Peek("name").String())

	model.MergeFields(map[string]any{"name": "merged"})
	assert.Equal(t, "merged", model.Peek("name").String())
}

func TestModel_DecodeAndMarshal(t *testing.T) {
	t.Parallel()

	model := cbc.NewModelFromDocument(newStubTransport(), widgetInfo,
		map[string]any{"id": "W1", "name": "gear", "size": float64(3)}, true)

	var widget struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Size int    `json:"size"`
	}

	require.NoError(t, model.Decode(&widget))
	assert.Equal(t, "gear", widget.Name)
	assert.Equal(t, 3, widget.Size)

	data, err := model.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"W1","name":"gear","size":3}`, string(data))
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()

	_, err := cbc.Get(context.Background(), newStubTransport(), widgetInfo, asModel, "W1")
	require.Error(t, err)
	assert.True(t, cbc.IsNotFound(err))

	var nf *cbc.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, widgetPath, nf.Path)
}

func TestList(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().reply(http.MethodGet, widgetsPath,
		`{"results":[{"id":"W1","name":"gear"},{"id":"W2","name":"cog"}]}`)

	widgets, err := cbc.List(context.Background(), transport, widgetInfo, asModel, nil)
	require.NoError(t, err)
	require.Len(t, widgets, 2)
	assert.Equal(t, "W2", widgets[1].ID())
	assert.False(t, widgets[1].FullyLoaded())

	_, err = cbc.List(context.Background(), transport, &cbc.ResourceInfo{Name: "bare"}, asModel, nil)
	require.ErrorIs(t, err, cbc.ErrNoListEndpoint)
}

func TestModel_Delete(t *testing.T) {
	t.Parallel()

	transport := newStubTransport().
		reply(http.MethodDelete, widgetPath, ``).
		replyError(http.MethodDelete, "/widgets/v1/orgs/ORG1/widgets/W2", errors.New("connection reset"))
	ctx := context.Background()

	require.NoError(t, cbc.NewModel(transport, widgetInfo, "W1").Delete(ctx))

	err := cbc.NewModel(transport, widgetInfo, "W2").Delete(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
