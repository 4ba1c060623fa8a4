package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// Device action types accepted by the device_actions endpoint.
const (
	DeviceActionQuarantine     = "QUARANTINE"
	DeviceActionUpdatePolicy   = "UPDATE_POLICY"
	DeviceActionBackgroundScan = "BACKGROUND_SCAN"
	DeviceActionBypass         = "BYPASS"
)

const deviceActionsURL = "/appservices/v6/orgs/{org_key}/device_actions"

// DeviceInfo describes the device resource.
var DeviceInfo = &cbc.ResourceInfo{
	Name:                 "device",
	URLTemplate:          "/appservices/v6/orgs/{org_key}/devices/{id}",
	SearchURL:            "/appservices/v6/orgs/{org_key}/devices/_search",
	FacetURL:             "/appservices/v6/orgs/{org_key}/devices/_facet",
	FullDocumentInSearch: true,
}

// Device is an endpoint with a sensor installed.
type Device struct {
	*cbc.Model
}

func newDevice(m *cbc.Model) *Device {
	return &Device{Model: m}
}

// Name returns the device name.
func (d *Device) Name() string { return d.Peek("name").String() }

// Status returns the registration status, e.g. REGISTERED.
func (d *Device) Status() string { return d.Peek("status").String() }

// OS returns the operating system family.
func (d *Device) OS() string { return d.Peek("os").String() }

// PolicyID returns the assigned policy id.
func (d *Device) PolicyID() int64 { return d.Peek("policy_id").Int64() }

// PolicyName returns the assigned policy name.
func (d *Device) PolicyName() string { return d.Peek("policy_name").String() }

// Quarantined reports whether the device is quarantined.
func (d *Device) Quarantined() bool { return d.Peek("quarantined").Bool() }

// LastContactTime returns the last check-in time.
func (d *Device) LastContactTime() time.Time { return d.Peek("last_contact_time").Time() }

// Quarantine toggles network quarantine for this device.
func (d *Device) Quarantine(ctx context.Context, enable bool) error {
	return d.action(ctx, DeviceActionQuarantine, toggleOptions(enable))
}

// BackgroundScan toggles the background scan for this device.
func (d *Device) BackgroundScan(ctx context.Context, enable bool) error {
	return d.action(ctx, DeviceActionBackgroundScan, toggleOptions(enable))
}

// Bypass toggles sensor bypass for this device.
func (d *Device) Bypass(ctx context.Context, enable bool) error {
	return d.action(ctx, DeviceActionBypass, toggleOptions(enable))
}

// UpdatePolicy moves this device to policyID.
func (d *Device) UpdatePolicy(ctx context.Context, policyID int64) error {
	return d.action(ctx, DeviceActionUpdatePolicy, map[string]any{"policy_id": policyID})
}

func (d *Device) action(ctx context.Context, actionType string, options map[string]any) error {
	if d.ID() == "" {
		return cbc.ErrMissingID
	}

	err := sendDeviceAction(ctx, d.API(), map[string]any{
		"action_type": actionType,
		"device_id":   []string{d.ID()},
		"options":     options,
	})
	if err != nil {
		return err
	}

	d.MergeFields(localEffect(actionType, options))

	return nil
}

// localEffect is the part of the document an action is known to change.
func localEffect(actionType string, options map[string]any) map[string]any {
	switch actionType {
	case DeviceActionQuarantine:
		return map[string]any{"quarantined": options["toggle"] == "ON"}
	case DeviceActionUpdatePolicy:
		return map[string]any{"policy_id": options["policy_id"]}
	default:
		return nil
	}
}

func toggleOptions(enable bool) map[string]any {
	if enable {
		return map[string]any{"toggle": "ON"}
	}

	return map[string]any{"toggle": "OFF"}
}

func sendDeviceAction(ctx context.Context, api cbc.Transport, body map[string]any) error {
	path := cbc.FormatPath(deviceActionsURL, api.OrgKey(), nil)

	_, err := api.PostObject(ctx, path, body)
	if err != nil {
		return fmt.Errorf("device action %v: %w", body["action_type"], err)
	}

	return nil
}

// Devices starts a device search.
func (a *API) Devices() *cbc.Query[*Device] {
	return cbc.NewQuery(a.transport, DeviceInfo, newDevice)
}

// GetDevice fetches one device.
func (a *API) GetDevice(ctx context.Context, id string) (*Device, error) {
	return cbc.Get(ctx, a.transport, DeviceInfo, newDevice, id)
}

// DeviceAction applies actionType to every device matched by query in one request.
func (a *API) DeviceAction(ctx context.Context, query *cbc.Query[*Device], actionType string, options map[string]any) error {
	return sendDeviceAction(ctx, a.transport, map[string]any{
		"action_type": actionType,
		"search":      query.FilterBody(),
		"options":     options,
	})
}

// QuarantineDevices toggles quarantine for every device matched by query.
func (a *API) QuarantineDevices(ctx context.Context, query *cbc.Query[*Device], enable bool) error {
	return a.DeviceAction(ctx, query, DeviceActionQuarantine, toggleOptions(enable))
}

// UpdateDevicesPolicy moves every device matched by query to policyID.
func (a *API) UpdateDevicesPolicy(ctx context.Context, query *cbc.Query[*Device], policyID int64) error {
	return a.DeviceAction(ctx, query, DeviceActionUpdatePolicy, map[string]any{"policy_id": policyID})
}

// QuarantineDeviceIDs toggles quarantine for the listed devices.
func (a *API) QuarantineDeviceIDs(ctx context.Context, ids []string, enable bool) error {
	return sendDeviceAction(ctx, a.transport, map[string]any{
		"action_type": DeviceActionQuarantine,
		"device_id":   ids,
		"options":     toggleOptions(enable),
	})
}
