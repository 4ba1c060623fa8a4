package cbc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FacetValue is one bucket of a term facet.
type FacetValue struct {
	ID    string `json:"id"    yaml:"id"`
	Name  string `json:"name"  yaml:"name"`
	Total int64  `json:"total" yaml:"total"`
}

// FacetTerm groups counts by the values of one field.
type FacetTerm struct {
	Field  string       `json:"field"  yaml:"field"`
	Values []FacetValue `json:"values" yaml:"values"`
}

// Range requests a bucketed range facet.
type Range struct {
	Field      string `json:"field"       yaml:"field"`
	BucketSize any    `json:"bucket_size" yaml:"bucket_size"`
	Start      any    `json:"start"       yaml:"start"`
	End        any    `json:"end"         yaml:"end"`
}

// FacetRange is the result of a range facet.
type FacetRange struct {
	Field      string       `json:"field"       yaml:"field"`
	BucketSize any          `json:"bucket_size" yaml:"bucket_size"`
	Start      any          `json:"start"       yaml:"start"`
	End        any          `json:"end"         yaml:"end"`
	Values     []FacetValue `json:"values"      yaml:"values"`
}

// FacetResult is the terminal result of a facet job.
type FacetResult struct {
	Terms     []FacetTerm  `json:"terms"     yaml:"terms"`
	Ranges    []FacetRange `json:"ranges"    yaml:"ranges"`
	Contacted int          `json:"contacted" yaml:"contacted"`
	Completed int          `json:"completed" yaml:"completed"`
	NumFound  int          `json:"num_found" yaml:"num_found"`
}

func (r *FacetResult) complete() bool {
	return r.Contacted == 0 || r.Completed >= r.Contacted
}

// Term returns the counts of one field's facet keyed by bucket id.
func (r *FacetResult) Term(field string) map[string]int64 {
	for _, term := range r.Terms {
		if term.Field != field {
			continue
		}

		out := make(map[string]int64, len(term.Values))
		for _, v := range term.Values {
			key := v.ID
			if key == "" {
				key = v.Name
			}

			out[key] = v.Total
		}

		return out
	}

	return nil
}

// FacetQuery is a job-backed aggregation. Results are only returned once
// every contacted shard has completed.
type FacetQuery struct {
	jobRunner

	filter    searchFilter
	fields    []string
	ranges    []Range
	facetRows int
}

// NewFacetQuery creates a facet job query. name is used in errors and logs.
func NewFacetQuery(api Transport, name string, endpoints JobEndpoints) *FacetQuery {
	return &FacetQuery{
		jobRunner: newJobRunner(api, endpoints, name+" facet"),
		filter:    newSearchFilter(),
	}
}

// Where adds a raw query-language clause.
func (q *FacetQuery) Where(query string) *FacetQuery {
	q.filter.addClause(opAnd, query)

	return q
}

// Or adds a raw clause ORed with the clauses before it.
func (q *FacetQuery) Or(query string) *FacetQuery {
	q.filter.addClause(opOr, query)

	return q
}

// Not adds a negated raw clause.
func (q *FacetQuery) Not(query string) *FacetQuery {
	q.filter.addClause(opNot, query)

	return q
}

// AddCriteria appends allowed values for field.
func (q *FacetQuery) AddCriteria(field string, values ...any) *FacetQuery {
	appendCriteria(q.filter.criteria, field, values)

	return q
}

// AddExclusions appends values for field that must not match.
func (q *FacetQuery) AddExclusions(field string, values ...any) *FacetQuery {
	appendCriteria(q.filter.exclusions, field, values)

	return q
}

// SetTimeRange restricts the search window.
func (q *FacetQuery) SetTimeRange(timeRange TimeRange) *FacetQuery {
	q.filter.timeRange = &timeRange

	return q
}

// AddFacetField adds fields to group counts by.
func (q *FacetQuery) AddFacetField(fields ...string) *FacetQuery {
	q.fields = append(q.fields, fields...)

	return q
}

// AddRange adds a bucketed range facet.
func (q *FacetQuery) AddRange(r Range) *FacetQuery {
	q.ranges = append(q.ranges, r)

	return q
}

// SetFacetRows sets how many buckets each term facet returns.
func (q *FacetQuery) SetFacetRows(rows int) *FacetQuery {
	q.facetRows = rows

	return q
}

// SetTimeout bounds how long the job may run before it is cancelled.
func (q *FacetQuery) SetTimeout(timeout time.Duration) *FacetQuery {
	q.timeout = timeout

	return q
}

// SetPollInterval sets the first delay between status polls.
func (q *FacetQuery) SetPollInterval(interval time.Duration) *FacetQuery {
	if interval > 0 {
		q.pollInterval = interval
	}

	return q
}

// SetMaxPollInterval caps the backoff between status polls.
func (q *FacetQuery) SetMaxPollInterval(interval time.Duration) *FacetQuery {
	if interval > 0 {
		q.maxPollInterval = interval
	}

	return q
}

// Body returns the facet job request body. It performs no I/O.
func (q *FacetQuery) Body() map[string]any {
	body := q.filter.filterBody()

	if len(q.fields) > 0 {
		terms := map[string]any{"fields": append([]string(nil), q.fields...)}
		if q.facetRows > 0 {
			terms["rows"] = q.facetRows
		}

		body["terms"] = terms
	}

	if len(q.ranges) > 0 {
		body["ranges"] = append([]Range(nil), q.ranges...)
	}

	return body
}

// Submit starts the facet job.
func (q *FacetQuery) Submit(ctx context.Context) error {
	return q.submit(ctx, q.Body())
}

// Results submits a job, waits for it to complete and returns the facets.
// Results documents that still report pending shards are fetched again
// until every contacted shard has completed or the job timeout elapses.
func (q *FacetQuery) Results(ctx context.Context) (*FacetResult, error) {
	err := q.Submit(ctx)
	if err != nil {
		return nil, err
	}

	var result *FacetResult

	err = q.waitUntil(ctx, func(ctx context.Context, state JobState) (bool, error) {
		if state != JobCompleted {
			return false, nil
		}

		fetched, err := q.fetchResults(ctx)
		if err != nil {
			return false, err
		}

		if !fetched.complete() {
			loggerFor(q.api).Debug("Facet results still partial", map[string]interface{}{
				"resource":  q.name,
				"job_id":    q.JobID(),
				"contacted": fetched.Contacted,
				"completed": fetched.Completed,
			})

			return false, nil
		}

		result = fetched

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ResultsAsync runs Results on exec.
func (q *FacetQuery) ResultsAsync(ctx context.Context, exec Executor) *Future[*FacetResult] {
	return Submit(exec, func() (*FacetResult, error) {
		return q.Results(ctx)
	})
}

func (q *FacetQuery) fetchResults(ctx context.Context) (*FacetResult, error) {
	jobID := q.JobID()
	path := FormatPath(q.endpoints.ResultsURL, q.api.OrgKey(), map[string]string{"job_id": jobID})

	raw, err := q.api.GetObject(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s results: %w", q.name, err)
	}

	var result FacetResult

	err = json.Unmarshal(raw, &result)
	if err != nil {
		return nil, &APIError{Path: path, Message: "malformed facet response", Err: err}
	}

	return &result, nil
}
