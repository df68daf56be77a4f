package servicenow

import (
	"net/url"

	"github.com/nucleus/itsm-core/internal/connector/http"
	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/join"
	"github.com/nucleus/itsm-core/internal/pipeline"
)

// planner lists the join passes of a content type. Passes are applied in
// the order listed.
type planner struct {
	exec     http.Executor
	baseURL  string
	pageSize int
}

var _ pipeline.JoinPlanner = (*planner)(nil)

func (p *planner) Plan(ct *contenttype.ContentType) []join.Spec {
	var specs []join.Spec
	if ct.HasAncestor(contenttype.Incident) {
		specs = append(specs, join.Spec{
			Name:              "comments",
			PrimaryKeyField:   fieldSysID,
			SecondaryKeyField: "element_id",
			AppendKey:         AppendComments,
			Fetcher:           p.fetcher(tableJournal, url.Values{"element": {"comments"}}),
		})
	}
	if ct.HasAncestor(contenttype.Ticket) {
		specs = append(specs,
			p.lookup("cmdb_ci", "cmdb_ci", tableCmdbCI, AppendCmdbCI),
			p.lookup("assignment_group", "assignment_group", tableUserGroup, AppendAssignmentGroup),
			p.lookup("assigned_to", "assigned_to", tableUser, AppendAssignedTo),
			p.lookup("caller_id", "caller_id", tableUser, AppendReporter),
		)
	}
	if ct.HasAncestor(contenttype.Request) {
		specs = append(specs, join.Spec{
			Name:              "request_items",
			PrimaryKeyField:   fieldSysID,
			SecondaryKeyField: "request",
			AppendKey:         AppendItems,
			Fetcher:           p.fetcher(tableRequestItem, nil),
		})
	}
	return specs
}

// lookup joins a reference field of the primary to the sys_id of table.
func (p *planner) lookup(name, field, table, appendKey string) join.Spec {
	return join.Spec{
		Name:              name,
		PrimaryKeyField:   field,
		SecondaryKeyField: fieldSysID,
		AppendKey:         appendKey,
		Fetcher:           p.fetcher(table, nil),
	}
}

func (p *planner) fetcher(table string, extra url.Values) join.RelatedFetcher {
	return &relatedFetcher{exec: p.exec, baseURL: p.baseURL, table: table, pageSize: p.pageSize, extra: extra}
}
