package pipeline

import "time"

// Operator compares a field with a value in a filter.
type Operator string

const (
	// OpNone passes the field expression through as written.
	OpNone Operator = ""
	OpEq   Operator = "eq"
	OpNeq  Operator = "neq"
	OpLike Operator = "like"
	OpGt   Operator = "gt"
	OpGte  Operator = "gte"
	OpLt   Operator = "lt"
	OpLte  Operator = "lte"
)

// Filter restricts the primary resource. Filters are ANDed in order.
type Filter struct {
	Field    string
	Operator Operator
	Value    string
}

// Direction of a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders the primary resource.
type Sort struct {
	Field     string
	Direction Direction
}

// FetchRequest describes what to fetch.
type FetchRequest struct {
	Filters []Filter
	Sorts   []Sort
	// Start and End bound the last update time. Zero means unbounded.
	Start time.Time
	End   time.Time
	// Limit caps the number of pages delivered; zero means no cap.
	Limit int
	// PageSize is the number of records per page. Zero leaves the choice to
	// the page fetcher.
	PageSize int
	Tenant   string
}

// Query is the normalized form of a FetchRequest handed to the page fetcher
// with the first request.
type Query struct {
	Filters  []Filter
	Sorts    []Sort
	Start    time.Time
	End      time.Time
	PageSize int
}

// BuildQuery normalizes req. Filters and sorts without a field are dropped.
// When End is before Start the end bound is dropped and the range stays
// open ended.
func BuildQuery(req *FetchRequest) Query {
	var q Query
	if req == nil {
		return q
	}
	if req.PageSize > 0 {
		q.PageSize = req.PageSize
	}
	for _, f := range req.Filters {
		if f.Field != "" {
			q.Filters = append(q.Filters, f)
		}
	}
	for _, s := range req.Sorts {
		if s.Field == "" {
			continue
		}
		if s.Direction == "" {
			s.Direction = Asc
		}
		q.Sorts = append(q.Sorts, s)
	}
	q.Start, q.End = req.Start, req.End
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		q.End = time.Time{}
	}
	return q
}
