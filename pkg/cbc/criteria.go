package cbc

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// SortDirection is the order of a sort field.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// SortSpec is one sort clause of a search request.
type SortSpec struct {
	Field string        `json:"field"`
	Order SortDirection `json:"order"`
}

// TimeRange restricts a search to a time window. Set either Start/End or
// Window (e.g. "-2w"); Range is the alert-style equivalent of Window.
type TimeRange struct {
	Start  string `json:"start,omitempty"  yaml:"start,omitempty"`
	End    string `json:"end,omitempty"    yaml:"end,omitempty"`
	Window string `json:"window,omitempty" yaml:"window,omitempty"`
	Range  string `json:"range,omitempty"  yaml:"range,omitempty"`
}

// TimeRangeBetween builds an absolute time range.
func TimeRangeBetween(start, end time.Time) TimeRange {
	return TimeRange{
		Start: start.UTC().Format(time.RFC3339),
		End:   end.UTC().Format(time.RFC3339),
	}
}

// TimeRangeWindow builds a relative time range such as "-3h".
func TimeRangeWindow(window string) TimeRange {
	return TimeRange{Window: window}
}

type clauseOp int

const (
	opAnd clauseOp = iota
	opOr
	opNot
)

type queryClause struct {
	op   clauseOp
	text string
}

// searchFilter is the builder state shared by every query flavour.
type searchFilter struct {
	clauses    []queryClause
	criteria   map[string]any
	exclusions map[string]any
	rows       int
	sort       []SortSpec
	fields     []string
	timeRange  *TimeRange
	params     map[string]any
}

func newSearchFilter() searchFilter {
	return searchFilter{
		criteria:   make(map[string]any),
		exclusions: make(map[string]any),
		params:     make(map[string]any),
	}
}

func (s *searchFilter) clone() searchFilter {
	out := searchFilter{
		clauses:    slices.Clone(s.clauses),
		criteria:   cloneCriteria(s.criteria),
		exclusions: cloneCriteria(s.exclusions),
		rows:       s.rows,
		sort:       slices.Clone(s.sort),
		fields:     slices.Clone(s.fields),
		params:     maps.Clone(s.params),
	}

	if s.timeRange != nil {
		tr := *s.timeRange
		out.timeRange = &tr
	}

	return out
}

func cloneCriteria(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if list, ok := v.([]any); ok {
			out[k] = slices.Clone(list)
		} else {
			out[k] = v
		}
	}

	return out
}

func (s *searchFilter) addClause(op clauseOp, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.clauses = append(s.clauses, queryClause{op: op, text: text})
}

func appendCriteria(target map[string]any, field string, values []any) {
	existing, _ := target[field].([]any)
	target[field] = append(existing, values...)
}

// queryString collapses the raw clauses in call order.
func (s *searchFilter) queryString() string {
	if len(s.clauses) == 0 {
		return ""
	}

	if len(s.clauses) == 1 {
		c := s.clauses[0]
		if c.op == opNot {
			return "NOT (" + c.text + ")"
		}

		return c.text
	}

	var b strings.Builder

	for i, c := range s.clauses {
		switch {
		case i == 0 && c.op == opNot:
			b.WriteString("NOT ")
		case i == 0:
		case c.op == opOr:
			b.WriteString(" OR ")
		case c.op == opNot:
			b.WriteString(" AND NOT ")
		default:
			b.WriteString(" AND ")
		}

		b.WriteString("(" + c.text + ")")
	}

	return b.String()
}

// filterBody holds the keys common to search, job and facet requests.
func (s *searchFilter) filterBody() map[string]any {
	body := make(map[string]any)

	if q := s.queryString(); q != "" {
		body["query"] = q
	}

	if len(s.criteria) > 0 {
		body["criteria"] = cloneCriteria(s.criteria)
	}

	if len(s.exclusions) > 0 {
		body["exclusions"] = cloneCriteria(s.exclusions)
	}

	if s.timeRange != nil {
		body["time_range"] = *s.timeRange
	}

	for k, v := range s.params {
		body[k] = v
	}

	return body
}

// searchBody is the body of one search page request.
func (s *searchFilter) searchBody(start, rows int) map[string]any {
	body := s.filterBody()
	body["start"] = start
	body["rows"] = rows

	if len(s.sort) > 0 {
		body["sort"] = slices.Clone(s.sort)
	}

	if len(s.fields) > 0 {
		body["fields"] = slices.Clone(s.fields)
	}

	return body
}

const queryEscapeChars = `+-&|!(){}[]^"~*?:\/ `

// EscapeQueryValue escapes query-language metacharacters in a term value.
func EscapeQueryValue(value string) string {
	var b strings.Builder

	for _, r := range value {
		if strings.ContainsRune(queryEscapeChars, r) {
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// FieldTerm builds an escaped field:value query term.
func FieldTerm(field, value string) string {
	return field + ":" + EscapeQueryValue(value)
}
