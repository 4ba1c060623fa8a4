package cbc_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

func TestPrometheusMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	metrics, err := cbc.NewPrometheusMetrics(registry)
	require.NoError(t, err)

	chain := cbc.NewInterceptorChain()
	metrics.Register(chain)

	ctx := context.Background()

	for _, status := range []int{http.StatusOK, http.StatusOK, http.StatusNotFound} {
		req := &cbc.Request{Method: http.MethodGet, Path: "/appservices/v6/orgs/ORG1/devices/12345"}

		require.NoError(t, chain.ExecuteRequestInterceptors(ctx, req))
		require.NoError(t, chain.ExecuteResponseInterceptors(ctx, req, &cbc.Response{StatusCode: status}))
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}

	for _, family := range families {
		if family.GetName() != "cbc_client_requests_total" {
			continue
		}

		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}

			assert.Equal(t, "/appservices/v6/orgs/{org_key}/devices/{id}", labels["endpoint"])
			counts[labels["code"]] = metric.GetCounter().GetValue()
		}
	}

	assert.Equal(t, map[string]float64{"200": 2, "404": 1}, counts)
}

func TestPrometheusMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	_, err := cbc.NewPrometheusMetrics(registry)
	require.NoError(t, err)

	_, err = cbc.NewPrometheusMetrics(registry)
	require.Error(t, err)
}
