package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/join"
)

// pagedFetcher serves pages keyed by the cursor they are requested with.
type pagedFetcher struct {
	mu       sync.Mutex
	pages    map[string]*Page
	err      error
	requests []PageRequest
}

func (f *pagedFetcher) FetchPage(_ context.Context, req PageRequest) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[req.Cursor]; ok {
		return p, nil
	}
	return &Page{}, nil
}

type collector struct {
	pages []*EnrichedPage
}

func (c *collector) AcceptPage(_ context.Context, p *EnrichedPage) error {
	c.pages = append(c.pages, p)
	return nil
}

func newPipeline(t *testing.T, f PageFetcher, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(contenttype.Default(), f, opts...)
}

func TestFetchEntities_FollowsCursorsUntilEmpty(t *testing.T) {
	f := &pagedFetcher{pages: map[string]*Page{
		"":   {Documents: []core.Document{{"number": "INC1"}}, NextCursor: "p1"},
		"p1": {Documents: []core.Document{{"number": "INC2"}, {"number": "INC3"}}},
	}}
	sink := &collector{}
	status := newPipeline(t, f).FetchEntities(context.Background(), "Incident", &FetchRequest{
		Filters: []Filter{{Field: "active", Operator: OpEq, Value: "true"}},
	}, sink)

	require.Equal(t, StateDone, status.State, status.Message)
	assert.Equal(t, 2, status.Pages)
	assert.Equal(t, 3, status.Records)
	assert.NotEmpty(t, status.OperationID)

	require.Len(t, sink.pages, 2)
	assert.Equal(t, 1, sink.pages[0].Number)
	assert.Equal(t, 2, sink.pages[1].Number)

	require.Len(t, f.requests, 2)
	require.NotNil(t, f.requests[0].Query, "first request carries the query")
	assert.Equal(t, "incident", f.requests[0].Resource)
	assert.Zero(t, f.requests[0].Query.PageSize, "unset page size is left to the fetcher")
	assert.Nil(t, f.requests[1].Query, "later requests carry only the cursor")
	assert.Equal(t, "p1", f.requests[1].Cursor)
}

func TestFetchEntities_LimitBoundsPages(t *testing.T) {
	f := &pagedFetcher{pages: map[string]*Page{
		"":   {Documents: []core.Document{{"n": "1"}}, NextCursor: "p1"},
		"p1": {Documents: []core.Document{{"n": "2"}}, NextCursor: "p2"},
		"p2": {Documents: []core.Document{{"n": "3"}}},
	}}
	sink := &collector{}
	status := newPipeline(t, f).FetchEntities(context.Background(), "Incident", &FetchRequest{Limit: 1}, sink)

	assert.Equal(t, StateDone, status.State)
	assert.Len(t, sink.pages, 1)
	assert.Len(t, f.requests, 1)

	sink = &collector{}
	status = newPipeline(t, f).FetchEntities(context.Background(), "Incident", nil, sink)
	assert.Equal(t, 3, status.Pages)
}

func TestFetchEntities_UnsupportedContentType(t *testing.T) {
	f := &pagedFetcher{}
	for _, name := range []string{"Spaceship", "Ticket"} {
		status := newPipeline(t, f).FetchEntities(context.Background(), name, nil, &collector{})
		assert.Equal(t, StateFailed, status.State, name)
		assert.Equal(t, core.KindConfiguration, core.KindOf(status.Err), name)
	}
	assert.Empty(t, f.requests)
}

func TestFetchEntities_PrimaryTransportErrorIsFatal(t *testing.T) {
	f := &pagedFetcher{err: &core.TransportError{Op: "GET incident", StatusCode: 401, Body: `{"error":"User Not Authenticated"}`}}
	sink := &collector{}
	status := newPipeline(t, f).FetchEntities(context.Background(), "Incident", nil, sink)

	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 401, status.StatusCode)
	assert.Contains(t, status.Body, "User Not Authenticated")
	assert.Empty(t, sink.pages)
}

func TestFetchEntities_JoinFailureIsNotFatal(t *testing.T) {
	f := &pagedFetcher{pages: map[string]*Page{
		"": {Documents: []core.Document{{"sys_id": "I1", "cmdb_ci": "C1"}}},
	}}
	planner := PlannerFunc(func(ct *contenttype.ContentType) []join.Spec {
		return []join.Spec{
			{Name: "comments", PrimaryKeyField: "sys_id", SecondaryKeyField: "element_id", AppendKey: "_comments",
				Fetcher: join.FetcherFunc(func(context.Context, join.Query) (*join.Page, error) {
					return nil, &core.TransportError{Op: "GET sys_journal_field", StatusCode: 503}
				})},
			{Name: "cmdb_ci", PrimaryKeyField: "cmdb_ci", SecondaryKeyField: "sys_id", AppendKey: "_cmdb_ci",
				Fetcher: join.FetcherFunc(func(context.Context, join.Query) (*join.Page, error) {
					return &join.Page{Documents: []core.Document{{"sys_id": "C1", "name": "db01"}}}, nil
				})},
		}
	})
	sink := &collector{}
	status := newPipeline(t, f, WithJoinPlanner(planner)).FetchEntities(context.Background(), "Incident", nil, sink)

	require.Equal(t, StateDone, status.State)
	require.Len(t, status.JoinFailures, 1)
	assert.Equal(t, "comments", status.JoinFailures[0].Join)

	require.Len(t, sink.pages, 1)
	doc := sink.pages[0].Documents[0]
	assert.NotContains(t, doc, "_comments")
	assert.Contains(t, doc, "_cmdb_ci")
	assert.False(t, sink.pages[0].Partial)
}

func TestFetchEntities_JoinsAppliedInPlanOrder(t *testing.T) {
	f := &pagedFetcher{pages: map[string]*Page{
		"": {Documents: []core.Document{{"assigned_to": "U1", "caller_id": "U2"}}},
	}}
	users := join.FetcherFunc(func(_ context.Context, q join.Query) (*join.Page, error) {
		var docs []core.Document
		for _, k := range q.Keys {
			docs = append(docs, core.Document{"sys_id": k})
		}
		return &join.Page{Documents: docs}, nil
	})
	planner := PlannerFunc(func(*contenttype.ContentType) []join.Spec {
		return []join.Spec{
			{Name: "assignee", PrimaryKeyField: "assigned_to", SecondaryKeyField: "sys_id", AppendKey: "_user_assigned_to", Fetcher: users},
			{Name: "reporter", PrimaryKeyField: "caller_id", SecondaryKeyField: "sys_id", AppendKey: "_user_reporter", Fetcher: users},
		}
	})
	sink := &collector{}
	status := newPipeline(t, f, WithJoinPlanner(planner), WithJoinConcurrency(2)).
		FetchEntities(context.Background(), "Problem", nil, sink)
	require.Equal(t, StateDone, status.State)

	doc := sink.pages[0].Documents[0]
	assert.Equal(t, []any{core.Document{"sys_id": "U1"}}, doc["_user_assigned_to"])
	assert.Equal(t, []any{core.Document{"sys_id": "U2"}}, doc["_user_reporter"])
}

func TestFetchEntities_CancelledDuringEnrichment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &pagedFetcher{pages: map[string]*Page{
		"":   {Documents: []core.Document{{"sys_id": "I1"}}, NextCursor: "p1"},
		"p1": {Documents: []core.Document{{"sys_id": "I2"}}},
	}}
	planner := PlannerFunc(func(*contenttype.ContentType) []join.Spec {
		return []join.Spec{{Name: "comments", PrimaryKeyField: "sys_id", SecondaryKeyField: "element_id", AppendKey: "_comments",
			Fetcher: join.FetcherFunc(func(ctx context.Context, _ join.Query) (*join.Page, error) {
				cancel()
				return nil, ctx.Err()
			})}}
	})
	sink := &collector{}
	status := newPipeline(t, f, WithJoinPlanner(planner), WithJoinConcurrency(1)).FetchEntities(ctx, "Incident", nil, sink)

	assert.Equal(t, StateCancelled, status.State)
	assert.True(t, errors.Is(status.Err, context.Canceled))
	require.Len(t, sink.pages, 1, "the partially enriched page is still delivered")
	assert.True(t, sink.pages[0].Partial)
	assert.Len(t, f.requests, 1)
}

func TestFetchEntities_SinkErrorFails(t *testing.T) {
	f := &pagedFetcher{pages: map[string]*Page{"": {Documents: []core.Document{{"n": "1"}}, NextCursor: "p1"}}}
	sink := SinkFunc(func(context.Context, *EnrichedPage) error { return errors.New("disk full") })
	status := newPipeline(t, f).FetchEntities(context.Background(), "Incident", nil, sink)

	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Message, "disk full")
	assert.Len(t, f.requests, 1)
}

func TestBuildQuery(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	q := BuildQuery(&FetchRequest{
		Filters:  []Filter{{Field: "priority", Operator: OpLte, Value: "2"}, {Operator: OpEq, Value: "x"}},
		Sorts:    []Sort{{Field: "number"}, {Field: ""}},
		Start:    start,
		End:      end,
		PageSize: 50,
	})
	assert.Len(t, q.Filters, 1)
	assert.Equal(t, []Sort{{Field: "number", Direction: Asc}}, q.Sorts)
	assert.Equal(t, start, q.Start)
	assert.True(t, q.End.IsZero(), "end before start is dropped")
	assert.Equal(t, 50, q.PageSize)

	q = BuildQuery(&FetchRequest{Start: start, End: start.Add(time.Hour)})
	assert.False(t, q.End.IsZero())
	assert.Zero(t, BuildQuery(nil).PageSize)
	assert.Zero(t, BuildQuery(&FetchRequest{PageSize: -1}).PageSize)
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateEnriching.Terminal())
}
