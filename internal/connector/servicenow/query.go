package servicenow

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nucleus/itsm-core/internal/pipeline"
)

// updatedField is the field date ranges apply to.
const updatedField = "sys_updated_on"

var operators = map[pipeline.Operator]string{
	pipeline.OpNone: "",
	pipeline.OpEq:   "=",
	pipeline.OpNeq:  "!=",
	pipeline.OpLike: "like",
	pipeline.OpGt:   ">",
	pipeline.OpGte:  ">=",
	pipeline.OpLt:   "<",
	pipeline.OpLte:  "<=",
}

// EncodeQuery renders q as table API parameters: sysparm_limit and, when
// anything restricts the result, an encoded sysparm_query. Filters come
// first, then the date range, then the sort clauses. Date bounds are shifted
// by offset and rendered in UTC.
func EncodeQuery(q *pipeline.Query, offset time.Duration) url.Values {
	params := url.Values{}
	size := DefaultPageSize
	if q != nil && q.PageSize > 0 {
		size = q.PageSize
	}
	params.Set(paramLimit, strconv.Itoa(size))
	if q == nil {
		return params
	}

	var clauses []string
	for _, f := range q.Filters {
		clauses = append(clauses, f.Field+operators[f.Operator]+f.Value)
	}
	if r := dateRange(q.Start, q.End, offset); r != "" {
		clauses = append(clauses, r)
	}
	for _, s := range q.Sorts {
		if s.Direction == pipeline.Desc {
			clauses = append(clauses, "ORDERBYDESC"+s.Field)
		} else {
			clauses = append(clauses, "ORDERBY"+s.Field)
		}
	}
	if len(clauses) > 0 {
		params.Set(paramQuery, strings.Join(clauses, "^"))
	}
	return params
}

func dateRange(start, end time.Time, offset time.Duration) string {
	switch {
	case !start.IsZero() && !end.IsZero():
		return updatedField + "BETWEEN" + dateGenerate(start, offset) + "@" + dateGenerate(end, offset)
	case !start.IsZero():
		return updatedField + ">=" + dateGenerate(start, offset)
	case !end.IsZero():
		return updatedField + "<=" + dateGenerate(end, offset)
	}
	return ""
}

func dateGenerate(t time.Time, offset time.Duration) string {
	t = t.Add(offset).UTC()
	return fmt.Sprintf("javascript:gs.dateGenerate('%s','%s')", t.Format("2006-01-02"), t.Format("15:04:05"))
}

// appendClause adds clause to an encoded query.
func appendClause(query, clause string) string {
	if query == "" {
		return clause
	}
	return query + "^" + clause
}
