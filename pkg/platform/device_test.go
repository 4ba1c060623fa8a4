package platform_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
)

const (
	devicePath        = "/appservices/v6/orgs/ORG1/devices/101"
	deviceSearchPath  = "/appservices/v6/orgs/ORG1/devices/_search"
	deviceActionsPath = "/appservices/v6/orgs/ORG1/device_actions"
)

func TestGetDevice(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport().on(http.MethodGet, devicePath,
		`{"id":101,"name":"WIN-01","os":"WINDOWS","status":"REGISTERED","policy_id":6525,"quarantined":false,"last_contact_time":"2026-01-02T03:04:05Z"}`)
	api := platform.New(transport)

	device, err := api.GetDevice(context.Background(), "101")
	require.NoError(t, err)

	assert.Equal(t, "101", device.ID())
	assert.Equal(t, "WIN-01", device.Name())
	assert.Equal(t, "WINDOWS", device.OS())
	assert.Equal(t, int64(6525), device.PolicyID())
	assert.False(t, device.Quarantined())
	assert.Equal(t, 2026, device.LastContactTime().Year())
	assert.True(t, device.FullyLoaded())
}

func TestGetDevice_NotFound(t *testing.T) {
	t.Parallel()

	api := platform.New(newFakeTransport())

	_, err := api.GetDevice(context.Background(), "404")
	require.Error(t, err)
	assert.True(t, cbc.IsNotFound(err))
}

func TestDevices_Search(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport().on(http.MethodPost, deviceSearchPath,
		`{"results":[{"id":1,"name":"a"},{"id":2,"name":"b"}],"num_found":3}`,
		`{"results":[{"id":3,"name":"c"}],"num_found":3}`)
	api := platform.New(transport)

	query := api.Devices().Where("os:WINDOWS").AddCriteria("status", "REGISTERED").SetBatchSize(2)
	assert.Zero(t, transport.callCount(), "building a query must not issue requests")

	devices, err := query.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "c", devices[2].Name())

	calls := transport.callsTo(http.MethodPost, deviceSearchPath)
	require.Len(t, calls, 2)
	assert.Equal(t, "os:WINDOWS", calls[0].Body["query"])
	assert.Equal(t, map[string]any{"status": []any{"REGISTERED"}}, calls[0].Body["criteria"])
	assert.InDelta(t, 0, calls[0].Body["start"], 0)
	assert.InDelta(t, 2, calls[1].Body["start"], 0)
}

func TestDevice_Actions(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport().
		on(http.MethodGet, devicePath, `{"id":101,"name":"WIN-01","quarantined":false,"policy_id":1}`).
		on(http.MethodPost, deviceActionsPath, ``)
	api := platform.New(transport)
	ctx := context.Background()

	device, err := api.GetDevice(ctx, "101")
	require.NoError(t, err)

	require.NoError(t, device.Quarantine(ctx, true))
	assert.True(t, device.Quarantined())

	require.NoError(t, device.UpdatePolicy(ctx, 42))
	assert.Equal(t, int64(42), device.PolicyID())

	require.NoError(t, device.BackgroundScan(ctx, false))

	calls := transport.callsTo(http.MethodPost, deviceActionsPath)
	require.Len(t, calls, 3)
	assert.Equal(t, platform.DeviceActionQuarantine, calls[0].Body["action_type"])
	assert.Equal(t, []any{"101"}, calls[0].Body["device_id"])
	assert.Equal(t, map[string]any{"toggle": "ON"}, calls[0].Body["options"])
	assert.Equal(t, map[string]any{"policy_id": float64(42)}, calls[1].Body["options"])
	assert.Equal(t, map[string]any{"toggle": "OFF"}, calls[2].Body["options"])
}

func TestDevice_ActionFailureKeepsState(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport().
		on(http.MethodGet, devicePath, `{"id":101,"quarantined":false}`).
		fail(http.MethodPost, deviceActionsPath, &cbc.APIError{StatusCode: http.StatusForbidden, Message: "denied"})
	api := platform.New(transport)
	ctx := context.Background()

	device, err := api.GetDevice(ctx, "101")
	require.NoError(t, err)

	err = device.Quarantine(ctx, true)
	require.Error(t, err)
	assert.True(t, cbc.IsForbidden(err))
	assert.False(t, device.Quarantined())
}

func TestQuarantineDevices_BySearch(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport().on(http.MethodPost, deviceActionsPath, ``)
	api := platform.New(transport)

	query := api.Devices().Where("name:WIN*").AddCriteria("os", "WINDOWS").SetRows(5)

	err := api.QuarantineDevices(context.Background(), query, true)
	require.NoError(t, err)

	calls := transport.callsTo(http.MethodPost, deviceActionsPath)
	require.Len(t, calls, 1)

	search, ok := calls[0].Body["search"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "name:WIN*", search["query"])
	assert.Equal(t, map[string]any{"os": []any{"WINDOWS"}}, search["criteria"])
	assert.NotContains(t, search, "rows")
	assert.NotContains(t, calls[0].Body, "device_id")
}

func TestQuarantineDeviceIDs(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport().on(http.MethodPost, deviceActionsPath, ``)
	api := platform.New(transport)

	err := api.QuarantineDeviceIDs(context.Background(), []string{"1", "2"}, false)
	require.NoError(t, err)

	calls := transport.callsTo(http.MethodPost, deviceActionsPath)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"1", "2"}, calls[0].Body["device_id"])
	assert.Equal(t, map[string]any{"toggle": "OFF"}, calls[0].Body["options"])
}
