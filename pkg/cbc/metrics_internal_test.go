package cbc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{path: "/appservices/v6/orgs/ABC123/devices/_search", want: "/appservices/v6/orgs/{org_key}/devices/_search"},
		{path: "/appservices/v6/orgs/ABC123/devices/98765", want: "/appservices/v6/orgs/{org_key}/devices/{id}"},
		{
			path: "/api/investigate/v2/orgs/ABC123/processes/search_jobs/4f6a2c1e-77d0-4b7e-a1de-0c2f1b7a9e11/results",
			want: "/api/investigate/v2/orgs/{org_key}/processes/search_jobs/{id}/results",
		},
		{path: "/jobs/v1/orgs/ABC123/jobs", want: "/jobs/v1/orgs/{org_key}/jobs"},
		{path: "/jobs/v1/orgs/ABC123/jobs/123456/progress", want: "/jobs/v1/orgs/{org_key}/jobs/{id}/progress"},
		{path: "/threathunter/feedmgr/v2/orgs/ABC123/feeds/decade99x", want: "/threathunter/feedmgr/v2/orgs/{org_key}/feeds/decade99x"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, endpointLabel(tt.path))
		})
	}
}
