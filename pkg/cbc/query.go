package cbc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// Query is a deferred search against a resource's search endpoint.
//
// Builder methods only record state and return the same query. Network
// calls happen in All, Execute, First, One, Count, Facet and ExecuteAsync,
// and every materialization issues fresh requests.
type Query[T any] struct {
	api       Transport
	info      *ResourceInfo
	ctor      func(*Model) T
	filter    searchFilter
	batchSize int
	timeout   time.Duration
}

// NewQuery creates a query for info's search endpoint.
func NewQuery[T any](api Transport, info *ResourceInfo, ctor func(*Model) T) *Query[T] {
	return &Query[T]{
		api:       api,
		info:      info,
		ctor:      ctor,
		filter:    newSearchFilter(),
		batchSize: constants.DefaultPageSize,
	}
}

// Where adds a raw query-language clause, ANDed with earlier clauses.
func (q *Query[T]) Where(query string) *Query[T] {
	q.filter.addClause(opAnd, query)

	return q
}

// And is an alias for Where.
func (q *Query[T]) And(query string) *Query[T] {
	q.filter.addClause(opAnd, query)

	return q
}

// Or adds a raw clause ORed with the clauses before it.
func (q *Query[T]) Or(query string) *Query[T] {
	q.filter.addClause(opOr, query)

	return q
}

// Not adds a negated raw clause.
func (q *Query[T]) Not(query string) *Query[T] {
	q.filter.addClause(opNot, query)

	return q
}

// WhereField adds an escaped field:value clause.
func (q *Query[T]) WhereField(field, value string) *Query[T] {
	q.filter.addClause(opAnd, FieldTerm(field, value))

	return q
}

// AddCriteria appends allowed values for field. Values within a field are
// ORed, separate fields are ANDed.
func (q *Query[T]) AddCriteria(field string, values ...any) *Query[T] {
	appendCriteria(q.filter.criteria, field, values)

	return q
}

// SetCriteria replaces the allowed values for field.
func (q *Query[T]) SetCriteria(field string, values ...any) *Query[T] {
	q.filter.criteria[field] = append([]any(nil), values...)

	return q
}

// SetCriteriaObject sets a non-list criterion such as a range object.
func (q *Query[T]) SetCriteriaObject(field string, value any) *Query[T] {
	q.filter.criteria[field] = value

	return q
}

// AddExclusions appends values for field that must not match.
func (q *Query[T]) AddExclusions(field string, values ...any) *Query[T] {
	appendCriteria(q.filter.exclusions, field, values)

	return q
}

// SetRows limits the total number of rows returned (0 = no limit).
func (q *Query[T]) SetRows(rows int) *Query[T] {
	q.filter.rows = rows

	return q
}

// SetBatchSize sets how many rows each page request asks for.
func (q *Query[T]) SetBatchSize(size int) *Query[T] {
	if size > constants.MaxPageSize {
		size = constants.MaxPageSize
	}

	if size > 0 {
		q.batchSize = size
	}

	return q
}

// SortBy sets the sort order.
func (q *Query[T]) SortBy(field string, direction SortDirection) *Query[T] {
	if direction == "" {
		direction = SortAsc
	}

	q.filter.sort = []SortSpec{{Field: field, Order: direction}}

	return q
}

// SetFields limits the fields returned for each row.
func (q *Query[T]) SetFields(fields ...string) *Query[T] {
	q.filter.fields = append([]string(nil), fields...)

	return q
}

// SetTimeRange restricts the search window.
func (q *Query[T]) SetTimeRange(timeRange TimeRange) *Query[T] {
	q.filter.timeRange = &timeRange

	return q
}

// SetParam sets an additional top-level request body key.
func (q *Query[T]) SetParam(key string, value any) *Query[T] {
	q.filter.params[key] = value

	return q
}

// SetTimeout bounds each page request.
func (q *Query[T]) SetTimeout(timeout time.Duration) *Query[T] {
	q.timeout = timeout

	return q
}

// Clone returns an independent copy of the query.
func (q *Query[T]) Clone() *Query[T] {
	return &Query[T]{
		api:       q.api,
		info:      q.info,
		ctor:      q.ctor,
		filter:    q.filter.clone(),
		batchSize: q.batchSize,
		timeout:   q.timeout,
	}
}

// Body returns the request body of the first page. It performs no I/O.
func (q *Query[T]) Body() map[string]any {
	return q.filter.searchBody(0, q.pageSize())
}

// FilterBody returns the query, criteria and exclusions without paging or
// sort keys, as used by bulk actions addressed by search.
func (q *Query[T]) FilterBody() map[string]any {
	return q.filter.filterBody()
}

// FetchPage implements PageFetcher.
func (q *Query[T]) FetchPage(ctx context.Context, start, rows int) (*Page[T], error) {
	if q.info.SearchURL == "" {
		return nil, fmt.Errorf("searching %s: %w", q.info.name(), ErrNoSearchEndpoint)
	}

	path := FormatPath(q.info.SearchURL, q.api.OrgKey(), nil)

	loggerFor(q.api).Debug("Fetching search page", map[string]interface{}{
		"resource": q.info.name(),
		"start":    start,
		"rows":     rows,
	})

	pageCtx := ctx

	if q.timeout > 0 {
		var cancel context.CancelFunc

		pageCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	raw, err := q.api.PostObject(pageCtx, path, q.filter.searchBody(start, rows))
	if err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Operation: "search " + q.info.name(), Err: err}
		}

		return nil, fmt.Errorf("searching %s: %w", q.info.name(), err)
	}

	return decodePage(q.api, q.info, q.ctor, raw, start, len(q.filter.fields) == 0 && q.info.FullDocumentInSearch)
}

// Iterator returns a pull-style cursor over the results.
func (q *Query[T]) Iterator(ctx context.Context) *PaginationIterator[T] {
	return NewPaginationIterator[T](ctx, q.Clone(), &PaginationOptions{
		PageSize: q.pageSize(),
		MaxItems: q.filter.rows,
	})
}

// All lazily pages through the results in server order. A failing page is
// yielded as an error after the rows already delivered.
func (q *Query[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return q.Iterator(ctx).Seq()
}

// Execute returns every matching row.
func (q *Query[T]) Execute(ctx context.Context) ([]T, error) {
	return q.Iterator(ctx).All()
}

// First returns the first row, or the zero T when nothing matches.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	var zero T

	it := q.Clone().SetRows(1).Iterator(ctx)
	if !it.HasNext() {
		return zero, nil
	}

	return it.Next()
}

// One returns the only matching row. It fails with *ObjectNotFoundError when
// nothing matches and *MoreThanOneResultError when several rows match.
func (q *Query[T]) One(ctx context.Context) (T, error) {
	it := q.Clone().SetRows(2).SetBatchSize(2).Iterator(ctx)

	return one(q.info, it)
}

// Count returns the number of matching rows reported by the server. It asks
// for rows=0 so no documents are transferred.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	page, err := q.FetchPage(ctx, 0, 0)
	if err != nil {
		return 0, err
	}

	if page.NumFound > 0 {
		return page.NumFound, nil
	}

	return len(page.Items), nil
}

// ExecuteAsync runs Execute on exec and returns a handle to the result.
func (q *Query[T]) ExecuteAsync(ctx context.Context, exec Executor) *Future[[]T] {
	clone := q.Clone()

	return Submit(exec, func() ([]T, error) {
		return clone.Execute(ctx)
	})
}

// Facet runs a synchronous term facet over the query's filters.
func (q *Query[T]) Facet(ctx context.Context, rows int, fields ...string) ([]FacetTerm, error) {
	if q.info.FacetURL == "" {
		return nil, fmt.Errorf("faceting %s: %w", q.info.name(), ErrNoFacetEndpoint)
	}

	body := q.filter.filterBody()
	terms := map[string]any{"fields": fields}

	if rows > 0 {
		terms["rows"] = rows
	}

	body["terms"] = terms

	raw, err := q.api.PostObject(ctx, FormatPath(q.info.FacetURL, q.api.OrgKey(), nil), body)
	if err != nil {
		return nil, fmt.Errorf("faceting %s: %w", q.info.name(), err)
	}

	var resp struct {
		Results []FacetTerm `json:"results"`
	}

	err = json.Unmarshal(raw, &resp)
	if err != nil {
		return nil, &APIError{Path: q.info.FacetURL, Message: "malformed facet response", Err: err}
	}

	return resp.Results, nil
}

func (q *Query[T]) pageSize() int {
	size := q.batchSize
	if q.filter.rows > 0 && q.filter.rows < size {
		size = q.filter.rows
	}

	return size
}

func one[T any](info *ResourceInfo, it *PaginationIterator[T]) (T, error) {
	var zero T

	items, err := it.All()
	if err != nil {
		return zero, err
	}

	switch len(items) {
	case 0:
		return zero, &ObjectNotFoundError{APIError: APIError{Message: "no " + info.name() + " matched the query"}}
	case 1:
		return items[0], nil
	default:
		count := it.NumFound()
		if count < len(items) {
			count = len(items)
		}

		return zero, &MoreThanOneResultError{Count: count}
	}
}

type resultEnvelope struct {
	NumFound     int `json:"num_found"`
	NumAvailable int `json:"num_available"`
}

func decodePage[T any](api Transport, info *ResourceInfo, ctor func(*Model) T, raw json.RawMessage, start int, full bool) (*Page[T], error) {
	rows, env, err := decodeRows(raw, info.listKey())
	if err != nil {
		return nil, &APIError{Path: info.SearchURL, Message: "malformed search response", Err: err}
	}

	page := &Page[T]{
		Items:        make([]T, 0, len(rows)),
		Start:        start,
		NumFound:     env.NumFound,
		NumAvailable: env.NumAvailable,
	}

	for _, row := range rows {
		page.Items = append(page.Items, ctor(NewModelFromDocument(api, info, row, full)))
	}

	return page, nil
}

// decodeRows reads the row list under key, or a bare JSON array.
func decodeRows(raw json.RawMessage, key string) ([]map[string]any, resultEnvelope, error) {
	var env resultEnvelope

	if len(raw) > 0 && raw[0] == '[' {
		var rows []map[string]any

		err := json.Unmarshal(raw, &rows)

		return rows, env, err
	}

	var doc map[string]json.RawMessage

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, env, err
	}

	err = json.Unmarshal(raw, &env)
	if err != nil {
		return nil, env, err
	}

	var rows []map[string]any

	if data, ok := doc[key]; ok && string(data) != "null" {
		err = json.Unmarshal(data, &rows)
		if err != nil {
			return nil, env, err
		}
	}

	return rows, env, nil
}
