package platform

import (
	"context"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// PolicyInfo describes prevention policies. Policies are saved as whole
// documents.
var PolicyInfo = &cbc.ResourceInfo{
	Name:             "policy",
	URLTemplate:      "/policyservice/v1/orgs/{org_key}/policies/{id}",
	CreateURL:        "/policyservice/v1/orgs/{org_key}/policies",
	ListURL:          "/policyservice/v1/orgs/{org_key}/policies/summary",
	ListKey:          "policies",
	SaveFullDocument: true,
	Validate:         validatePolicy,
}

func validatePolicy(fields cbc.Fields) error {
	if fields.Get("name").String() == "" {
		return &cbc.InvalidQueryError{Message: "policy name is required"}
	}

	return nil
}

// Policy is a prevention policy.
type Policy struct {
	*cbc.MutableModel
}

func newPolicy(m *cbc.Model) *Policy {
	return &Policy{MutableModel: cbc.AsMutable(m)}
}

// Name returns the policy name.
func (p *Policy) Name() string { return p.Peek("name").String() }

// Description returns the policy description.
func (p *Policy) Description() string { return p.Peek("description").String() }

// Priority returns the policy priority level, e.g. MEDIUM.
func (p *Policy) Priority() string { return p.Peek("priority_level").String() }

// NumDevices returns how many devices use the policy. Only set on summaries.
func (p *Policy) NumDevices() int { return p.Peek("num_devices").Int() }

// SetName renames the policy.
func (p *Policy) SetName(name string) { p.Set("name", name) }

// SetDescription changes the description.
func (p *Policy) SetDescription(description string) { p.Set("description", description) }

// SetPriority changes the priority level.
func (p *Policy) SetPriority(priority string) { p.Set("priority_level", priority) }

// GetPolicy fetches one policy.
func (a *API) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	return cbc.Get(ctx, a.transport, PolicyInfo, newPolicy, id)
}

// NewPolicy creates an unsaved policy; Save POSTs it.
func (a *API) NewPolicy() *Policy {
	return &Policy{MutableModel: cbc.NewMutableModel(a.transport, PolicyInfo, "")}
}

// Policies lists policy summaries. Summaries load the full policy on first
// access to a field they do not carry.
func (a *API) Policies(ctx context.Context) ([]*Policy, error) {
	return cbc.List(ctx, a.transport, PolicyInfo, newPolicy, nil)
}
