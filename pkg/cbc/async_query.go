package cbc

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// AsyncQuery is a Query backed by a submit-then-poll search job.
//
// Materializing submits a job (a new one after any terminal state), polls
// until contacted == completed, then pages the results endpoint. Only one
// job is open per instance at a time.
type AsyncQuery[T any] struct {
	jobRunner

	info      *ResourceInfo
	ctor      func(*Model) T
	filter    searchFilter
	batchSize int
}

// NewAsyncQuery creates a job-backed query.
func NewAsyncQuery[T any](api Transport, info *ResourceInfo, endpoints JobEndpoints, ctor func(*Model) T) *AsyncQuery[T] {
	return &AsyncQuery[T]{
		jobRunner: newJobRunner(api, endpoints, info.name()),
		info:      info,
		ctor:      ctor,
		filter:    newSearchFilter(),
		batchSize: constants.DefaultPageSize,
	}
}

// Where adds a raw query-language clause.
func (q *AsyncQuery[T]) Where(query string) *AsyncQuery[T] {
	q.filter.addClause(opAnd, query)

	return q
}

// And is an alias for Where.
func (q *AsyncQuery[T]) And(query string) *AsyncQuery[T] {
	q.filter.addClause(opAnd, query)

	return q
}

// Or adds a raw clause ORed with the clauses before it.
func (q *AsyncQuery[T]) Or(query string) *AsyncQuery[T] {
	q.filter.addClause(opOr, query)

	return q
}

// Not adds a negated raw clause.
func (q *AsyncQuery[T]) Not(query string) *AsyncQuery[T] {
	q.filter.addClause(opNot, query)

	return q
}

// WhereField adds an escaped field:value clause.
func (q *AsyncQuery[T]) WhereField(field, value string) *AsyncQuery[T] {
	q.filter.addClause(opAnd, FieldTerm(field, value))

	return q
}

// AddCriteria appends allowed values for field.
func (q *AsyncQuery[T]) AddCriteria(field string, values ...any) *AsyncQuery[T] {
	appendCriteria(q.filter.criteria, field, values)

	return q
}

// AddExclusions appends values for field that must not match.
func (q *AsyncQuery[T]) AddExclusions(field string, values ...any) *AsyncQuery[T] {
	appendCriteria(q.filter.exclusions, field, values)

	return q
}

// SetRows limits the total number of rows returned.
func (q *AsyncQuery[T]) SetRows(rows int) *AsyncQuery[T] {
	q.filter.rows = rows

	return q
}

// SetBatchSize sets the results page size.
func (q *AsyncQuery[T]) SetBatchSize(size int) *AsyncQuery[T] {
	if size > constants.MaxPageSize {
		size = constants.MaxPageSize
	}

	if size > 0 {
		q.batchSize = size
	}

	return q
}

// SortBy sets the sort order.
func (q *AsyncQuery[T]) SortBy(field string, direction SortDirection) *AsyncQuery[T] {
	if direction == "" {
		direction = SortAsc
	}

	q.filter.sort = []SortSpec{{Field: field, Order: direction}}

	return q
}

// SetFields limits the fields returned for each row.
func (q *AsyncQuery[T]) SetFields(fields ...string) *AsyncQuery[T] {
	q.filter.fields = append([]string(nil), fields...)

	return q
}

// SetTimeRange restricts the search window.
func (q *AsyncQuery[T]) SetTimeRange(timeRange TimeRange) *AsyncQuery[T] {
	q.filter.timeRange = &timeRange

	return q
}

// SetParam sets an additional top-level job request key.
func (q *AsyncQuery[T]) SetParam(key string, value any) *AsyncQuery[T] {
	q.filter.params[key] = value

	return q
}

// SetTimeout bounds how long a job may run before it is cancelled.
func (q *AsyncQuery[T]) SetTimeout(timeout time.Duration) *AsyncQuery[T] {
	q.timeout = timeout

	return q
}

// SetPollInterval sets the first delay between status polls.
func (q *AsyncQuery[T]) SetPollInterval(interval time.Duration) *AsyncQuery[T] {
	if interval > 0 {
		q.pollInterval = interval
	}

	return q
}

// SetMaxPollInterval caps the backoff between status polls.
func (q *AsyncQuery[T]) SetMaxPollInterval(interval time.Duration) *AsyncQuery[T] {
	if interval > 0 {
		q.maxPollInterval = interval
	}

	return q
}

// Clone returns an independent, unsubmitted copy of the query.
func (q *AsyncQuery[T]) Clone() *AsyncQuery[T] {
	clone := NewAsyncQuery(q.api, q.info, q.endpoints, q.ctor)
	clone.filter = q.filter.clone()
	clone.batchSize = q.batchSize
	clone.timeout = q.timeout
	clone.pollInterval = q.pollInterval
	clone.maxPollInterval = q.maxPollInterval

	return clone
}

// Body returns the job request body. It performs no I/O.
func (q *AsyncQuery[T]) Body() map[string]any {
	body := q.filter.filterBody()

	if len(q.filter.sort) > 0 {
		body["sort"] = q.filter.sort
	}

	if len(q.filter.fields) > 0 {
		body["fields"] = q.filter.fields
	}

	return body
}

// Submit starts a search job.
func (q *AsyncQuery[T]) Submit(ctx context.Context) error {
	return q.submit(ctx, q.Body())
}

// Wait polls until the job completes, fails, is cancelled, or times out.
func (q *AsyncQuery[T]) Wait(ctx context.Context) error {
	return q.wait(ctx)
}

// FetchPage implements PageFetcher over the job's results endpoint.
func (q *AsyncQuery[T]) FetchPage(ctx context.Context, start, rows int) (*Page[T], error) {
	jobID := q.JobID()
	if jobID == "" {
		return nil, fmt.Errorf("fetching %s results: %w", q.info.name(), ErrJobNotSubmitted)
	}

	path := FormatPath(q.endpoints.ResultsURL, q.api.OrgKey(), map[string]string{"job_id": jobID})

	raw, err := q.api.GetObject(ctx, path, url.Values{
		"start": []string{strconv.Itoa(start)},
		"rows":  []string{strconv.Itoa(rows)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s results: %w", q.info.name(), err)
	}

	return decodePage(q.api, q.info, q.ctor, raw, start, len(q.filter.fields) == 0 && q.info.FullDocumentInSearch)
}

// run submits a fresh job and waits for it to complete.
func (q *AsyncQuery[T]) run(ctx context.Context) error {
	err := q.Submit(ctx)
	if err != nil {
		return err
	}

	return q.Wait(ctx)
}

func (q *AsyncQuery[T]) iterator(ctx context.Context, rows int) *PaginationIterator[T] {
	size := q.batchSize
	if rows > 0 && rows < size {
		size = rows
	}

	return NewPaginationIterator[T](ctx, q, &PaginationOptions{PageSize: size, MaxItems: rows})
}

// All runs the job and lazily pages through its results.
func (q *AsyncQuery[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		err := q.run(ctx)
		if err != nil {
			var zero T

			yield(zero, err)

			return
		}

		for item, err := range q.iterator(ctx, q.filter.rows).Seq() {
			if !yield(item, err) || err != nil {
				return
			}
		}
	}
}

// Execute runs the job and returns every result row.
func (q *AsyncQuery[T]) Execute(ctx context.Context) ([]T, error) {
	err := q.run(ctx)
	if err != nil {
		return nil, err
	}

	return q.iterator(ctx, q.filter.rows).All()
}

// First runs the job and returns its first row, or the zero T.
func (q *AsyncQuery[T]) First(ctx context.Context) (T, error) {
	var zero T

	err := q.run(ctx)
	if err != nil {
		return zero, err
	}

	it := q.iterator(ctx, 1)
	if !it.HasNext() {
		return zero, nil
	}

	return it.Next()
}

// One runs the job and requires exactly one result row.
func (q *AsyncQuery[T]) One(ctx context.Context) (T, error) {
	var zero T

	err := q.run(ctx)
	if err != nil {
		return zero, err
	}

	return one(q.info, q.iterator(ctx, 2))
}

// Count runs the job and returns the number of matches.
func (q *AsyncQuery[T]) Count(ctx context.Context) (int, error) {
	err := q.run(ctx)
	if err != nil {
		return 0, err
	}

	if status := q.LastStatus(); status != nil && status.NumFound > 0 {
		return status.NumFound, nil
	}

	page, err := q.FetchPage(ctx, 0, 0)
	if err != nil {
		return 0, err
	}

	return page.NumFound, nil
}

// ExecuteAsync runs Execute on exec against an independent copy of the query.
func (q *AsyncQuery[T]) ExecuteAsync(ctx context.Context, exec Executor) *Future[[]T] {
	clone := q.Clone()

	return Submit(exec, func() ([]T, error) {
		return clone.Execute(ctx)
	})
}
