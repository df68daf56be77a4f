package servicenow

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/nucleus/itsm-core/internal/connector/http"
	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/core/cdm"
	"github.com/nucleus/itsm-core/internal/diagnostic"
	"github.com/nucleus/itsm-core/internal/join"
	"github.com/nucleus/itsm-core/internal/mapping"
	"github.com/nucleus/itsm-core/internal/pipeline"
)

// =============================================================================
// SERVICENOW ADAPTER
// =============================================================================

// Adapter reads and writes ITSM records of one ServiceNow instance. It is
// safe for concurrent use.
type Adapter struct {
	config   *Config
	exec     http.Executor
	baseURL  string
	catalog  *mapping.Catalog
	planner  *planner
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

type options struct {
	logger   *zap.Logger
	registry *contenttype.Registry
	mappings []mapping.FieldMapping
	exec     http.Executor
}

// Option configures an Adapter.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry replaces the default content type hierarchy.
func WithRegistry(r *contenttype.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithMappings replaces the default field mapping table.
func WithMappings(table []mapping.FieldMapping) Option {
	return func(o *options) { o.mappings = table }
}

// WithExecutor replaces the HTTP client built from the configuration.
func WithExecutor(e http.Executor) Option {
	return func(o *options) { o.exec = e }
}

// New validates config and builds an adapter.
func New(config *Config, opts ...Option) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = contenttype.Default()
	}
	if o.mappings == nil {
		table, err := DefaultMappings()
		if err != nil {
			return nil, err
		}
		o.mappings = table
	}
	catalog, err := mapping.NewCatalog(o.registry, o.mappings, mapping.DefaultCacheSize)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: "invalid field mappings", Err: err}
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if o.exec == nil {
		auth, err := http.SelectAuth(config.AccessToken, config.Username, config.Password)
		if err != nil {
			return nil, err
		}
		httpConfig := http.DefaultClientConfig()
		httpConfig.BaseURL = baseURL
		httpConfig.Auth = auth
		httpConfig.Logger = o.logger
		if config.Timeout > 0 {
			httpConfig.Timeout = config.Timeout
		}
		if config.RateLimit > 0 {
			httpConfig.RateLimit = config.RateLimit
		}
		if config.MaxRetries != 0 {
			httpConfig.MaxRetries = config.MaxRetries
		}
		o.exec = http.NewClient(httpConfig)
	}

	a := &Adapter{
		config:   config,
		exec:     o.exec,
		baseURL:  baseURL,
		catalog:  catalog,
		planner:  &planner{exec: o.exec, baseURL: baseURL, pageSize: config.RelatedPageSize},
		logger:   o.logger,
	}
	fetcher := &pageFetcher{exec: o.exec, config: config, baseURL: baseURL, logger: o.logger}
	a.pipeline = pipeline.New(o.registry, fetcher,
		pipeline.WithJoinPlanner(a.planner),
		pipeline.WithLogger(o.logger),
		pipeline.WithJoinConcurrency(config.JoinConcurrency),
	)
	return a, nil
}

// =============================================================================
// READS
// =============================================================================

// FetchEntities streams enriched table documents of contentType to sink.
func (a *Adapter) FetchEntities(ctx context.Context, contentType string, req *pipeline.FetchRequest, sink pipeline.PageSink) *pipeline.FinalStatus {
	return a.pipeline.FetchEntities(ctx, contentType, req, sink)
}

// Record is a canonical record with the diagnostics of its conversion.
type Record struct {
	// ID is the global record identifier.
	ID          string
	Data        *cdm.Record
	Diagnostics diagnostic.Diagnostics
}

// RecordPage is one page of converted records.
type RecordPage struct {
	OperationID  string
	ContentType  string
	Number       int
	Partial      bool
	Records      []Record
	JoinFailures []pipeline.JoinFailure
}

// RecordSink consumes pages of canonical records.
type RecordSink interface {
	AcceptRecords(ctx context.Context, page *RecordPage) error
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func(ctx context.Context, page *RecordPage) error

func (f RecordSinkFunc) AcceptRecords(ctx context.Context, page *RecordPage) error { return f(ctx, page) }

// FetchRecords is FetchEntities with every document converted to a
// canonical record. Conversion problems are reported per record and never
// stop the fetch.
func (a *Adapter) FetchRecords(ctx context.Context, contentType string, req *pipeline.FetchRequest, sink RecordSink) *pipeline.FinalStatus {
	tenant := a.tenant(req)
	var diags diagnostic.Diagnostics
	status := a.pipeline.FetchEntities(ctx, contentType, req, pipeline.SinkFunc(func(ctx context.Context, page *pipeline.EnrichedPage) error {
		sm, err := a.catalog.SchemaFor(page.ContentType, tenant)
		if err != nil {
			return err
		}
		out := &RecordPage{
			OperationID:  page.OperationID,
			ContentType:  page.ContentType,
			Number:       page.Number,
			Partial:      page.Partial,
			Records:      make([]Record, 0, len(page.Documents)),
			JoinFailures: page.JoinFailures,
		}
		for _, doc := range page.Documents {
			rec := a.convert(doc, page.ContentType, sm)
			diags.Merge(rec.Diagnostics)
			out.Records = append(out.Records, rec)
		}
		return sink.AcceptRecords(ctx, out)
	}))
	status.Diagnostics = diags
	return status
}

// FetchEntry reads one record by its sys_id and enriches it like a fetched
// page. A missing record is a *core.NotFoundError.
func (a *Adapter) FetchEntry(ctx context.Context, contentType, id string) (*Record, error) {
	ct, err := a.resolve(contentType)
	if err != nil {
		return nil, err
	}
	var path string
	switch ct.ExternalResourceName {
	case resourceCatalogs, resourceCategories, resourceItems:
		path = catalogPath + ct.ExternalResourceName + "/" + url.PathEscape(id)
	default:
		path = tablePath + ct.ExternalResourceName + "/" + url.PathEscape(id)
	}

	resp, err := http.Get(ctx, a.exec, path, nil)
	if http.IsNotFound(err) {
		return nil, &core.NotFoundError{What: ct.Name, Name: id}
	}
	if err != nil {
		return nil, err
	}
	docs, err := decodeResult(resp)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 || len(docs[0]) == 0 {
		return nil, &core.NotFoundError{What: ct.Name, Name: id}
	}
	docs = docs[:1]

	for _, spec := range a.planner.Plan(ct) {
		var res *join.Result
		docs, res = join.FetchAndJoin(ctx, docs, spec)
		if res.Err != nil {
			a.logger.Warn("join failed", zap.String("join", spec.Name), zap.String("id", id), zap.Error(res.Err))
		}
	}

	sm, err := a.catalog.SchemaFor(ct.Name, a.config.Tenant)
	if err != nil {
		return nil, err
	}
	rec := a.convert(docs[0], ct.Name, sm)
	return &rec, nil
}

func (a *Adapter) convert(doc core.Document, contentType string, sm *mapping.SchemaMapping) Record {
	externalID := core.String(doc, fieldSysID)
	id := cdm.RecordID(SourceSystem, contentType, externalID)
	data, diags := mapping.ToCanonical(doc, sm)
	return Record{ID: id, Data: data, Diagnostics: diags.WithRecordID(id)}
}

// =============================================================================
// WRITES
// =============================================================================

// WriteResult is the outcome of a create or update.
type WriteResult struct {
	// ExternalID is the sys_id of the written record.
	ExternalID string
	Record
}

type writeOptions struct {
	tenant string
	schema *mapping.SchemaMapping
}

// WriteOption configures one create or update.
type WriteOption func(*writeOptions)

// WithTenant converts the record with the mappings of tenant instead of the
// configured tenant.
func WithTenant(tenant string) WriteOption {
	return func(o *writeOptions) { o.tenant = tenant }
}

// WithSchemaMapping converts the record with sm instead of the mapping the
// catalog resolves for the content type.
func WithSchemaMapping(sm *mapping.SchemaMapping) WriteOption {
	return func(o *writeOptions) { o.schema = sm }
}

// CreateEntry creates rec as a new record of contentType and returns the
// record as stored by the instance.
func (a *Adapter) CreateEntry(ctx context.Context, contentType string, rec *cdm.Record, opts ...WriteOption) (*WriteResult, error) {
	ct, err := a.resolve(contentType)
	if err != nil {
		return nil, err
	}
	if !ct.Creatable {
		return nil, &core.PolicyError{ContentType: ct.Name, Operation: "create"}
	}
	sm, err := a.writeSchema(ct, opts)
	if err != nil {
		return nil, err
	}
	doc, diags := mapping.ToExternal(rec, sm)
	path := tablePath + ct.ExternalResourceName
	resp, err := http.Post(ctx, a.exec, path, doc)
	if err != nil {
		return nil, err
	}
	res, err := a.writeResult(resp, ct, sm, diags)
	if err != nil {
		return nil, err
	}
	a.logger.Info("record created", zap.String("content_type", ct.Name), zap.String("id", res.ExternalID))

	if ct.Is(contenttype.Request) && a.config.LinkRequestItems && res.ExternalID != "" {
		a.linkRequestItem(ctx, res.ExternalID, doc)
	}
	return res, nil
}

// UpdateEntry writes rec over the record named by its canonical id.
func (a *Adapter) UpdateEntry(ctx context.Context, contentType string, rec *cdm.Record, opts ...WriteOption) (*WriteResult, error) {
	ct, err := a.resolve(contentType)
	if err != nil {
		return nil, err
	}
	if !ct.Modifiable {
		return nil, &core.PolicyError{ContentType: ct.Name, Operation: "update"}
	}
	id := rec.GetString(cdm.FieldID)
	if id == "" {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("update %s: record has no %q", ct.Name, cdm.FieldID)}
	}
	sm, err := a.writeSchema(ct, opts)
	if err != nil {
		return nil, err
	}
	doc, diags := mapping.ToExternal(rec, sm)
	resp, err := http.Put(ctx, a.exec, tablePath+ct.ExternalResourceName+"/"+url.PathEscape(id), doc)
	if err != nil {
		return nil, err
	}
	res, err := a.writeResult(resp, ct, sm, diags)
	if err != nil {
		return nil, err
	}
	if res.ExternalID == "" {
		res.ExternalID = id
	}
	a.logger.Info("record updated", zap.String("content_type", ct.Name), zap.String("id", id))
	return res, nil
}

func (a *Adapter) writeSchema(ct *contenttype.ContentType, opts []WriteOption) (*mapping.SchemaMapping, error) {
	o := &writeOptions{tenant: a.config.Tenant}
	for _, opt := range opts {
		opt(o)
	}
	if o.schema != nil {
		return o.schema, nil
	}
	return a.catalog.SchemaFor(ct.Name, o.tenant)
}

// writeResult converts the record echoed by the instance. Diagnostics of the
// outgoing conversion come first.
func (a *Adapter) writeResult(resp *http.Response, ct *contenttype.ContentType, sm *mapping.SchemaMapping, diags diagnostic.Diagnostics) (*WriteResult, error) {
	results, err := decodeResult(resp)
	if err != nil {
		return nil, err
	}
	res := &WriteResult{}
	if len(results) == 0 {
		res.Record = Record{Data: cdm.NewRecord(), Diagnostics: diags}
		return res, nil
	}
	res.ExternalID = core.String(results[0], fieldSysID)
	res.Record = a.convert(results[0], ct.Name, sm)
	diags.Merge(res.Diagnostics)
	res.Diagnostics = diags
	return res, nil
}

// linkRequestItem creates a request item under a new request from the
// payload the request was created with. Failures are logged; the request
// itself was created.
func (a *Adapter) linkRequestItem(ctx context.Context, requestID string, payload core.Document) {
	item := make(core.Document, len(payload)+2)
	for k, v := range payload {
		item[k] = v
	}
	item["request"] = requestID
	if catItem, err := a.lookupCatalogItem(ctx); err != nil {
		a.logger.Warn("catalog item lookup failed", zap.String("name", a.config.GenericCatalogItem), zap.Error(err))
	} else if catItem != "" {
		item["cat_item"] = catItem
	}
	if _, err := http.Post(ctx, a.exec, tablePath+tableRequestItem, item); err != nil {
		a.logger.Warn("request item creation failed", zap.String("request", requestID), zap.Error(err))
		return
	}
	a.logger.Debug("request item created", zap.String("request", requestID))
}

func (a *Adapter) lookupCatalogItem(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set(paramQuery, "name="+a.config.GenericCatalogItem)
	resp, err := http.Get(ctx, a.exec, tablePath+tableCatalogItem, params)
	if err != nil {
		return "", err
	}
	docs, err := decodeResult(resp)
	if err != nil || len(docs) == 0 {
		return "", err
	}
	return core.String(docs[0], fieldSysID), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (a *Adapter) resolve(contentType string) (*contenttype.ContentType, error) {
	ct, err := a.catalog.Registry().Resolve(contentType)
	if err != nil {
		return nil, core.UnsupportedContentType(contentType, err)
	}
	if ct.ExternalResourceName == "" {
		return nil, core.UnsupportedContentType(contentType, fmt.Errorf("no external resource"))
	}
	return ct, nil
}

func (a *Adapter) tenant(req *pipeline.FetchRequest) string {
	if req != nil && req.Tenant != "" {
		return req.Tenant
	}
	return a.config.Tenant
}
