package platform

import (
	"context"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// ComputeResourceInfo describes cloud and VM workloads.
var ComputeResourceInfo = &cbc.ResourceInfo{
	Name:                 "compute resource",
	URLTemplate:          "/lcm/view/v1/orgs/{org_key}/compute_resources/{id}",
	SearchURL:            "/lcm/view/v1/orgs/{org_key}/compute_resources/_search",
	FacetURL:             "/lcm/view/v1/orgs/{org_key}/compute_resources/_facet",
	FullDocumentInSearch: true,
}

// ComputeResource is a workload known to the inventory service.
type ComputeResource struct {
	*cbc.Model
}

func newComputeResource(m *cbc.Model) *ComputeResource {
	return &ComputeResource{Model: m}
}

// Name returns the workload name.
func (c *ComputeResource) Name() string { return c.Peek("name").String() }

// OSType returns the guest operating system family.
func (c *ComputeResource) OSType() string { return c.Peek("os_type").String() }

// EligibilityStatus reports whether a sensor can be installed.
func (c *ComputeResource) EligibilityStatus() string { return c.Peek("eligibility").String() }

// InstallationStatus returns the sensor installation status.
func (c *ComputeResource) InstallationStatus() string { return c.Peek("installation_status").String() }

// ComputeResources starts a compute resource search.
func (a *API) ComputeResources() *cbc.Query[*ComputeResource] {
	return cbc.NewQuery(a.transport, ComputeResourceInfo, newComputeResource)
}

// GetComputeResource fetches one compute resource.
func (a *API) GetComputeResource(ctx context.Context, id string) (*ComputeResource, error) {
	return cbc.Get(ctx, a.transport, ComputeResourceInfo, newComputeResource, id)
}
