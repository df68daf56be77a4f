package http

import (
	"context"
	"net/url"
)

// =============================================================================
// PAGINATION STRATEGIES
// =============================================================================

// Paginator handles API pagination. Pages after the first are addressed by
// an opaque cursor so a listing can be resumed by a later call.
type Paginator interface {
	// FirstPage fetches the first page.
	FirstPage(ctx context.Context, exec Executor) (*Response, error)
	// NextPage fetches the page a cursor points at.
	NextPage(ctx context.Context, exec Executor, cursor string) (*Response, error)
	// Cursor returns the cursor of the page after resp, or "" when done.
	Cursor(resp *Response) string
}

// =============================================================================
// LINK HEADER PAGINATION
// =============================================================================

// LinkPaginator follows rel="next" Link headers. The cursor is the absolute
// URL of the next page.
type LinkPaginator struct {
	BaseURL string
	Path    string
	Query   url.Values
}

// NewLinkPaginator creates a paginator for the listing at path.
func NewLinkPaginator(baseURL, path string, query url.Values) *LinkPaginator {
	return &LinkPaginator{BaseURL: baseURL, Path: path, Query: query}
}

// FirstPage returns the first page.
func (p *LinkPaginator) FirstPage(ctx context.Context, exec Executor) (*Response, error) {
	return Get(ctx, exec, p.Path, p.Query)
}

// NextPage follows cursor. Relative cursors are resolved against the base URL.
func (p *LinkPaginator) NextPage(ctx context.Context, exec Executor, cursor string) (*Response, error) {
	return GetURL(ctx, exec, ResolveCursor(p.BaseURL, cursor))
}

// Cursor returns the resolved next link of resp.
func (p *LinkPaginator) Cursor(resp *Response) string {
	return ResolveCursor(p.BaseURL, NextCursor(resp.Headers))
}

// FetchPage fetches the page at cursor, or the first page when cursor is
// empty, and returns it with the cursor of the page after it.
func FetchPage(ctx context.Context, exec Executor, p Paginator, cursor string) (*Response, string, error) {
	var (
		resp *Response
		err  error
	)
	if cursor == "" {
		resp, err = p.FirstPage(ctx, exec)
	} else {
		resp, err = p.NextPage(ctx, exec, cursor)
	}
	if err != nil {
		return nil, "", err
	}
	return resp, p.Cursor(resp), nil
}
