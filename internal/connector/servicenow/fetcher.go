package servicenow

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nucleus/itsm-core/internal/connector/http"
	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/join"
	"github.com/nucleus/itsm-core/internal/pipeline"
)

// =============================================================================
// PRIMARY PAGES
// =============================================================================

// pageFetcher reads primary resources from the table and service catalog
// APIs. It implements pipeline.PageFetcher.
type pageFetcher struct {
	exec    http.Executor
	config  *Config
	baseURL string
	logger  *zap.Logger
}

var _ pipeline.PageFetcher = (*pageFetcher)(nil)

func (f *pageFetcher) FetchPage(ctx context.Context, req pipeline.PageRequest) (*pipeline.Page, error) {
	pager := http.NewLinkPaginator(f.baseURL, "", nil)
	if req.Cursor == "" {
		path, params, ok := f.firstPage(req)
		if !ok {
			return &pipeline.Page{}, nil
		}
		pager.Path, pager.Query = path, params
	}
	docs, next, err := fetchDocuments(ctx, f.exec, pager, req.Cursor)
	if err != nil {
		return nil, err
	}
	return &pipeline.Page{Documents: docs, NextCursor: next}, nil
}

// firstPage builds the path and parameters of the first request. It reports
// false when the resource cannot be listed with the current configuration.
func (f *pageFetcher) firstPage(req pipeline.PageRequest) (string, url.Values, bool) {
	query := req.Query
	if query == nil || query.PageSize <= 0 {
		q := pipeline.Query{}
		if query != nil {
			q = *query
		}
		q.PageSize = f.config.PageSize
		query = &q
	}
	params := EncodeQuery(query, f.config.DateOffset)

	var path string
	switch req.Resource {
	case resourceCatalogs:
		path = catalogPath + resourceCatalogs
	case resourceCategories:
		if f.config.CatalogID == "" {
			f.logger.Debug("no catalog configured, skipping categories")
			return "", nil, false
		}
		path = catalogPath + resourceCatalogs + "/" + url.PathEscape(f.config.CatalogID) + "/" + resourceCategories
	case resourceItems:
		path = catalogPath + resourceItems
		switch {
		case f.config.ItemID != "":
			path += "/" + url.PathEscape(f.config.ItemID)
		case f.config.CategoryID != "":
			params.Set(paramCategory, f.config.CategoryID)
		}
	default:
		path = tablePath + req.Resource
		if req.ContentType != nil && req.ContentType.Is(contenttype.RequestItem) {
			// Items already attached to a request are delivered with it.
			params.Set(paramQuery, appendClause(params.Get(paramQuery), "requestISEMPTY"))
		}
	}
	return path, params, true
}

// fetchDocuments reads one page of a listing and returns the documents of
// the result envelope with the cursor of the next page.
func fetchDocuments(ctx context.Context, exec http.Executor, pager http.Paginator, cursor string) ([]core.Document, string, error) {
	resp, next, err := http.FetchPage(ctx, exec, pager, cursor)
	if err != nil {
		return nil, "", err
	}
	docs, err := decodeResult(resp)
	if err != nil {
		return nil, "", err
	}
	return docs, next, nil
}

// decodeResult unwraps the result envelope of a response.
func decodeResult(resp *http.Response) ([]core.Document, error) {
	body, err := resp.Document()
	if err != nil {
		return nil, &core.TransportError{Op: "decode result", StatusCode: resp.StatusCode, Body: string(resp.Body), Err: err}
	}
	return core.UnwrapResult(body), nil
}

// =============================================================================
// RELATED RECORDS
// =============================================================================

// relatedFetcher reads the records of one table whose key field is in a key
// set. It implements join.RelatedFetcher.
type relatedFetcher struct {
	exec     http.Executor
	baseURL  string
	table    string
	pageSize int
	// extra are additional equality filters passed as URL parameters.
	extra url.Values
}

var _ join.RelatedFetcher = (*relatedFetcher)(nil)

func (f *relatedFetcher) FetchRelated(ctx context.Context, q join.Query) (*join.Page, error) {
	pager := http.NewLinkPaginator(f.baseURL, tablePath+f.table, nil)
	if q.Cursor == "" {
		params := url.Values{}
		for k, vs := range f.extra {
			params[k] = append([]string(nil), vs...)
		}
		params.Set(paramLimit, strconv.Itoa(f.pageSize))
		params.Set(paramQuery, q.Field+"IN"+strings.Join(q.Keys, ","))
		pager.Query = params
	}
	docs, next, err := fetchDocuments(ctx, f.exec, pager, q.Cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.table, err)
	}
	return &join.Page{Documents: docs, NextCursor: next}, nil
}
