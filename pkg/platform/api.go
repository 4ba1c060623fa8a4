// Package platform exposes the platform resources (devices, alerts, process
// searches, policies and so on) on top of the cbc model and query framework.
package platform

import (
	"sync"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// API is the entry point to every platform resource.
type API struct {
	transport cbc.Transport

	execOnce sync.Once
	pool     *cbc.WorkerPool

	jobPollInterval time.Duration
	jobPollTimeout  time.Duration
	lrPollInterval  time.Duration
	lrPollTimeout   time.Duration
}

// Option configures an API.
type Option func(*API)

// WithJobPolling tunes platform job polling.
func WithJobPolling(interval, timeout time.Duration) Option {
	return func(a *API) {
		a.jobPollInterval = interval
		a.jobPollTimeout = timeout
	}
}

// WithLiveResponsePolling tunes live response session and command polling.
func WithLiveResponsePolling(interval, timeout time.Duration) Option {
	return func(a *API) {
		a.lrPollInterval = interval
		a.lrPollTimeout = timeout
	}
}

// WithExecutorPool sets the worker pool returned by Executor.
func WithExecutorPool(pool *cbc.WorkerPool) Option {
	return func(a *API) {
		a.pool = pool
		a.execOnce.Do(func() {})
	}
}

// New wraps transport.
func New(transport cbc.Transport, opts ...Option) *API {
	api := &API{
		transport:       transport,
		jobPollInterval: constants.DefaultPollInterval,
		jobPollTimeout:  constants.DefaultJobPollTimeout,
		lrPollInterval:  constants.DefaultPollInterval,
		lrPollTimeout:   constants.LiveResponsePollTimeout,
	}

	for _, opt := range opts {
		opt(api)
	}

	return api
}

// Transport returns the underlying transport.
func (a *API) Transport() cbc.Transport {
	return a.transport
}

// OrgKey returns the organization key.
func (a *API) OrgKey() string {
	return a.transport.OrgKey()
}

// Executor returns the shared worker pool used by ExecuteAsync.
func (a *API) Executor() cbc.Executor {
	a.execOnce.Do(func() {
		a.pool = cbc.NewWorkerPool(constants.DefaultConcurrencyLimit)
	})

	return a.pool
}

// Close stops the worker pool and releases the transport.
func (a *API) Close() error {
	a.execOnce.Do(func() {})

	if a.pool != nil {
		a.pool.Close()
	}

	if closer, ok := a.transport.(interface{ Close() error }); ok {
		return closer.Close()
	}

	return nil
}
