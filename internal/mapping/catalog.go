package mapping

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nucleus/itsm-core/internal/contenttype"
)

// DefaultCacheSize bounds the number of resolved schema mappings kept.
const DefaultCacheSize = 256

type cacheKey struct {
	contentType string
	tenant      string
}

// Catalog resolves schema mappings from a mapping table and caches them per
// content type and tenant. It is safe for concurrent use.
type Catalog struct {
	registry *contenttype.Registry
	table    []FieldMapping
	cache    *lru.Cache[cacheKey, *SchemaMapping]
}

// NewCatalog validates every mapping of table and returns a catalog.
func NewCatalog(reg *contenttype.Registry, table []FieldMapping, cacheSize int) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	for i, f := range table {
		if _, err := reg.Resolve(f.ContentType); err != nil {
			return nil, fmt.Errorf("mapping %d (%s): %w", i, f.CanonicalPath, err)
		}
		if _, err := compile(f); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
	}
	cache, err := lru.New[cacheKey, *SchemaMapping](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create mapping cache: %w", err)
	}
	return &Catalog{registry: reg, table: table, cache: cache}, nil
}

// Registry returns the content type registry the catalog resolves against.
func (c *Catalog) Registry() *contenttype.Registry { return c.registry }

// SchemaFor returns the schema mapping of a content type for a tenant.
func (c *Catalog) SchemaFor(contentType, tenant string) (*SchemaMapping, error) {
	key := cacheKey{contentType: strings.ToLower(contentType), tenant: strings.ToLower(tenant)}
	if sm, ok := c.cache.Get(key); ok {
		return sm, nil
	}
	sm, err := Resolve(c.registry, c.table, contentType, tenant)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, sm)
	return sm, nil
}
