// Package pipeline drives a paginated fetch of one content type: it pulls
// pages of primary records one after another, enriches each page with the
// join passes planned for the content type and hands the enriched page to a
// sink before asking for the next one.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/join"
)

// PageRequest asks the fetcher for one page. Query is set on the first
// request only; later requests carry just the cursor of the previous page.
type PageRequest struct {
	ContentType *contenttype.ContentType
	Resource    string
	Query       *Query
	Cursor      string
}

// Page is one page of primary documents.
type Page struct {
	Documents []core.Document
	// NextCursor is empty on the last page.
	NextCursor string
}

// PageFetcher reads pages of a primary resource.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// JoinPlanner lists the join passes of a content type in application order.
type JoinPlanner interface {
	Plan(ct *contenttype.ContentType) []join.Spec
}

// PlannerFunc adapts a function to JoinPlanner.
type PlannerFunc func(ct *contenttype.ContentType) []join.Spec

func (f PlannerFunc) Plan(ct *contenttype.ContentType) []join.Spec { return f(ct) }

// EnrichedPage is what the sink receives.
type EnrichedPage struct {
	OperationID string
	ContentType string
	// Number counts pages from 1.
	Number    int
	Documents []core.Document
	// Partial is set when enrichment was cut short by cancellation.
	Partial      bool
	JoinFailures []JoinFailure
}

// PageSink consumes enriched pages. Returning an error fails the operation.
type PageSink interface {
	AcceptPage(ctx context.Context, page *EnrichedPage) error
}

// SinkFunc adapts a function to PageSink.
type SinkFunc func(ctx context.Context, page *EnrichedPage) error

func (f SinkFunc) AcceptPage(ctx context.Context, page *EnrichedPage) error { return f(ctx, page) }

// DefaultJoinConcurrency bounds the join passes run at once for a page.
const DefaultJoinConcurrency = 4

// Pipeline runs fetch operations. It holds no per-operation state and may be
// shared by concurrent operations.
type Pipeline struct {
	registry    *contenttype.Registry
	fetcher     PageFetcher
	planner     JoinPlanner
	logger      *zap.Logger
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithJoinPlanner sets the planner. Without one, pages are not enriched.
func WithJoinPlanner(p JoinPlanner) Option {
	return func(pl *Pipeline) { pl.planner = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// WithJoinConcurrency bounds concurrent join passes; 1 runs them in order.
func WithJoinConcurrency(n int) Option {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.concurrency = n
		}
	}
}

// New returns a pipeline reading from fetcher.
func New(reg *contenttype.Registry, fetcher PageFetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:    reg,
		fetcher:     fetcher,
		logger:      zap.NewNop(),
		concurrency: DefaultJoinConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchEntities fetches every page of contentTypeName matching req and
// delivers each enriched page to sink, in order. The returned status is
// terminal: Done, Failed or Cancelled.
func (p *Pipeline) FetchEntities(ctx context.Context, contentTypeName string, req *FetchRequest, sink PageSink) *FinalStatus {
	status := &FinalStatus{
		OperationID: uuid.NewString(),
		ContentType: contentTypeName,
		State:       StateStarted,
	}
	log := p.logger.With(zap.String("operation_id", status.OperationID), zap.String("content_type", contentTypeName))

	ct, err := p.registry.Resolve(contentTypeName)
	if err != nil {
		return status.fail(core.UnsupportedContentType(contentTypeName, err))
	}
	if ct.ExternalResourceName == "" {
		return status.fail(core.UnsupportedContentType(contentTypeName, fmt.Errorf("no external resource")))
	}
	if req == nil {
		req = &FetchRequest{}
	}

	query := BuildQuery(req)
	var plan []join.Spec
	if p.planner != nil {
		plan = p.planner.Plan(ct)
	}
	log.Debug("fetch started", zap.String("resource", ct.ExternalResourceName), zap.Int("joins", len(plan)))

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			log.Info("fetch cancelled", zap.Int("pages", status.Pages))
			return status.cancel(err)
		}

		status.State = StateFetchingPage
		preq := PageRequest{ContentType: ct, Resource: ct.ExternalResourceName, Cursor: cursor}
		if status.Pages == 0 {
			preq.Query = &query
		}
		page, err := p.fetcher.FetchPage(ctx, preq)
		if err != nil {
			if ctx.Err() != nil {
				return status.cancel(ctx.Err())
			}
			log.Warn("page fetch failed", zap.Int("page", status.Pages+1), zap.Error(err))
			return status.fail(fmt.Errorf("fetch page %d of %s: %w", status.Pages+1, ct.ExternalResourceName, err))
		}

		status.State = StateEnriching
		number := status.Pages + 1
		docs, failures, cancelled := p.enrich(ctx, log, number, page.Documents, plan)
		status.JoinFailures = append(status.JoinFailures, failures...)

		err = sink.AcceptPage(ctx, &EnrichedPage{
			OperationID:  status.OperationID,
			ContentType:  ct.Name,
			Number:       number,
			Documents:    docs,
			Partial:      cancelled,
			JoinFailures: failures,
		})
		if err != nil {
			return status.fail(fmt.Errorf("page sink: %w", err))
		}
		status.Pages = number
		status.Records += len(docs)
		log.Debug("page delivered", zap.Int("page", number), zap.Int("records", len(docs)))

		if cancelled {
			return status.cancel(ctx.Err())
		}
		if page.NextCursor == "" || (req.Limit > 0 && status.Pages >= req.Limit) {
			status.State = StateDone
			log.Info("fetch done", zap.Int("pages", status.Pages), zap.Int("records", status.Records),
				zap.Int("join_failures", len(status.JoinFailures)))
			return status
		}
		cursor = page.NextCursor
	}
}

// enrich runs the planned join passes over docs. Passes run concurrently
// against the same primaries and are applied in plan order.
func (p *Pipeline) enrich(ctx context.Context, log *zap.Logger, number int, docs []core.Document, plan []join.Spec) ([]core.Document, []JoinFailure, bool) {
	if len(plan) == 0 || len(docs) == 0 {
		return docs, nil, false
	}
	results := make([]*join.Result, len(plan))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, spec := range plan {
		i, spec := i, spec
		g.Go(func() error {
			results[i] = join.Run(ctx, docs, spec)
			return nil
		})
	}
	_ = g.Wait()

	var failures []JoinFailure
	cancelled := false
	out := docs
	for _, res := range results {
		out = res.Apply(out)
		if res.Err == nil {
			continue
		}
		if res.Cancelled {
			cancelled = true
		}
		log.Warn("join failed", zap.String("join", res.Spec.Name), zap.Int("page", number),
			zap.Bool("cancelled", res.Cancelled), zap.Error(res.Err))
		failures = append(failures, JoinFailure{Join: res.Spec.Name, Page: number, Err: res.Err})
	}
	if ctx.Err() != nil {
		cancelled = true
	}
	return out, failures, cancelled
}
