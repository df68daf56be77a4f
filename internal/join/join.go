// Package join enriches primary documents with related documents fetched
// from a secondary resource, using a hash join on a key field.
//
// A pass collects the distinct join keys of a page of primaries, fetches
// every matching secondary with one IN filter (following the secondary's
// own pagination), groups them by key and attaches the matches to each
// primary under an append key. Primaries are never mutated; Apply builds
// new documents.
package join

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nucleus/itsm-core/internal/core"
)

// KeyKind tells how a join key was stored in the document.
type KeyKind int

const (
	// Scalar keys are plain strings.
	Scalar KeyKind = iota
	// Reference keys come from a {"link": ..., "value": ...} wrapper.
	Reference
)

// Key is a join key extracted from a document. Missing or unusable keys
// have an empty value and never match.
type Key struct {
	Kind  KeyKind
	Value string
}

// ExtractKey reads the join key stored at field.
func ExtractKey(doc core.Document, field string) Key {
	switch v := doc[field].(type) {
	case string:
		return Key{Kind: Scalar, Value: v}
	case map[string]any:
		if id, ok := v["value"].(string); ok {
			return Key{Kind: Reference, Value: id}
		}
		return Key{Kind: Reference}
	}
	return Key{}
}

// Query is one request for related documents.
type Query struct {
	// Field is the secondary field filtered on.
	Field string
	// Keys are the distinct, non-empty keys, sorted.
	Keys []string
	// Cursor is empty on the first request.
	Cursor string
}

// Page is one page of related documents.
type Page struct {
	Documents  []core.Document
	NextCursor string
}

// RelatedFetcher fetches secondary documents matching a key set.
type RelatedFetcher interface {
	FetchRelated(ctx context.Context, q Query) (*Page, error)
}

// FetcherFunc adapts a function to RelatedFetcher.
type FetcherFunc func(ctx context.Context, q Query) (*Page, error)

func (f FetcherFunc) FetchRelated(ctx context.Context, q Query) (*Page, error) { return f(ctx, q) }

// Spec describes one join pass.
type Spec struct {
	Name              string
	PrimaryKeyField   string
	SecondaryKeyField string
	AppendKey         string
	Fetcher           RelatedFetcher
}

// Result is the outcome of one pass.
type Result struct {
	Spec Spec
	// Matches holds the related documents per primary position.
	Matches map[int][]core.Document
	Keys    int
	Fetched int
	Pages   int
	// Err is set when a fetch failed; Matches then holds what was fetched
	// before the failure.
	Err       error
	Cancelled bool
}

// Partial reports whether the pass stopped before all secondaries were read.
func (r *Result) Partial() bool { return r.Err != nil }

// Run performs a join pass without touching primaries.
func Run(ctx context.Context, primaries []core.Document, spec Spec) *Result {
	res := &Result{Spec: spec, Matches: map[int][]core.Document{}}

	keys := make([]Key, len(primaries))
	distinct := map[string]struct{}{}
	for i, doc := range primaries {
		keys[i] = ExtractKey(doc, spec.PrimaryKeyField)
		if keys[i].Value != "" {
			distinct[keys[i].Value] = struct{}{}
		}
	}
	if len(distinct) == 0 {
		return res
	}
	keySet := make([]string, 0, len(distinct))
	for k := range distinct {
		keySet = append(keySet, k)
	}
	sort.Strings(keySet)
	res.Keys = len(keySet)

	bucket := map[string][]core.Document{}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Cancelled = true
			break
		}
		page, err := spec.Fetcher.FetchRelated(ctx, Query{Field: spec.SecondaryKeyField, Keys: keySet, Cursor: cursor})
		if err != nil {
			res.Err = fmt.Errorf("join %s: %w", spec.Name, err)
			res.Cancelled = errors.Is(err, context.Canceled) || ctx.Err() != nil
			break
		}
		res.Pages++
		for _, doc := range page.Documents {
			k := ExtractKey(doc, spec.SecondaryKeyField)
			if k.Value == "" {
				continue
			}
			bucket[k.Value] = append(bucket[k.Value], doc)
			res.Fetched++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	for i, k := range keys {
		if k.Value == "" {
			continue
		}
		if matches := bucket[k.Value]; len(matches) > 0 {
			res.Matches[i] = matches
		}
	}
	return res
}

// Apply returns copies of docs with the matches attached under the append
// key. Primaries without a match get no append key.
func (r *Result) Apply(docs []core.Document) []core.Document {
	out := make([]core.Document, len(docs))
	for i, doc := range docs {
		matches, ok := r.Matches[i]
		if !ok {
			out[i] = doc
			continue
		}
		enriched := core.Clone(doc)
		list := make([]any, len(matches))
		for j, m := range matches {
			list[j] = m
		}
		enriched[r.Spec.AppendKey] = list
		out[i] = enriched
	}
	return out
}

// FetchAndJoin runs a pass and applies it.
func FetchAndJoin(ctx context.Context, primaries []core.Document, spec Spec) ([]core.Document, *Result) {
	res := Run(ctx, primaries, spec)
	return res.Apply(primaries), res
}
