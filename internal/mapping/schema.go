package mapping

import (
	"fmt"
	"strings"

	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core/cdm"
)

// SchemaMapping is the ordered set of field mappings that applies to one
// content type for one tenant. It is immutable once built.
type SchemaMapping struct {
	ContentType string
	Tenant      string
	fields      []compiledField
}

type compiledField struct {
	FieldMapping
	canon  cdm.Path
	ext    ExternalPath
	hasExt bool
	date   dateFormat
	// shared is set on a scalar external field that feeds one element of a
	// list also fed by other fields.
	shared bool
}

// NewSchemaMapping validates and compiles fields in the given order.
func NewSchemaMapping(contentType, tenant string, fields []FieldMapping) (*SchemaMapping, error) {
	sm := &SchemaMapping{ContentType: contentType, Tenant: tenant}
	for _, f := range fields {
		cf, err := compile(f)
		if err != nil {
			return nil, err
		}
		sm.fields = append(sm.fields, cf)
	}
	contributors := map[string]int{}
	for _, f := range sm.fields {
		if f.scalarIntoList() {
			contributors[f.CanonicalPath]++
		}
	}
	for i := range sm.fields {
		f := &sm.fields[i]
		f.shared = f.scalarIntoList() && contributors[f.CanonicalPath] > 1
	}
	return sm, nil
}

// scalarIntoList reports whether a single external value feeds a list of
// scalars.
func (f compiledField) scalarIntoList() bool {
	return f.hasExt && !f.ext.Multi() && f.canon.IsRepeated() && f.canon.RepeatedIndex() == len(f.canon)-1
}

func compile(f FieldMapping) (compiledField, error) {
	cf := compiledField{FieldMapping: f}
	if cf.CanonicalType == "" {
		cf.CanonicalType = TypeString
	}
	if !cf.CanonicalType.valid() {
		return cf, fmt.Errorf("mapping %s: unknown type %q", f.CanonicalPath, f.CanonicalType)
	}
	if cf.ExternalType != "" && !cf.ExternalType.valid() {
		return cf, fmt.Errorf("mapping %s: unknown external type %q", f.CanonicalPath, f.ExternalType)
	}
	var err error
	if cf.canon, err = cdm.ParsePath(f.CanonicalPath); err != nil {
		return cf, fmt.Errorf("mapping %s: %w", f.CanonicalPath, err)
	}
	if f.FixedValue != nil && cf.canon.IsRepeated() {
		return cf, fmt.Errorf("mapping %s: fixed value cannot target a repeated field", f.CanonicalPath)
	}
	if f.FixedValue == nil {
		if f.ExternalPath == "" {
			return cf, fmt.Errorf("mapping %s: external path or fixed value required", f.CanonicalPath)
		}
		if cf.ext, err = ParseExternalPath(f.ExternalPath); err != nil {
			return cf, fmt.Errorf("mapping %s: %w", f.CanonicalPath, err)
		}
		cf.hasExt = true
	}
	if cf.date, err = compileDateFormat(f.DateFormat); err != nil {
		return cf, fmt.Errorf("mapping %s: %w", f.CanonicalPath, err)
	}
	return cf, nil
}

// Fields returns the mappings in application order.
func (sm *SchemaMapping) Fields() []FieldMapping {
	out := make([]FieldMapping, len(sm.fields))
	for i, f := range sm.fields {
		out[i] = f.FieldMapping
	}
	return out
}

// Field returns the first mapping for a canonical path.
func (sm *SchemaMapping) Field(canonicalPath string) (FieldMapping, bool) {
	for _, f := range sm.fields {
		if f.CanonicalPath == canonicalPath {
			return f.FieldMapping, true
		}
	}
	return FieldMapping{}, false
}

// ExternalPathFor returns the external path mapped to a canonical path.
func (sm *SchemaMapping) ExternalPathFor(canonicalPath string) (string, bool) {
	for _, f := range sm.fields {
		if f.CanonicalPath == canonicalPath && f.hasExt {
			return f.ExternalPath, true
		}
	}
	return "", false
}

// Resolve builds the schema mapping of contentTypeName for tenant out of a
// mapping table. Mappings declared for ancestors come first, root first,
// each group in declaration order. A tenant mapping for a canonical path
// replaces every default mapping for that path.
func Resolve(reg *contenttype.Registry, table []FieldMapping, contentTypeName, tenant string) (*SchemaMapping, error) {
	ct, err := reg.Resolve(contentTypeName)
	if err != nil {
		return nil, err
	}
	var defaults, overrides []FieldMapping
	for _, anc := range ct.Ancestors() {
		for _, f := range table {
			if !anc.Is(f.ContentType) {
				continue
			}
			switch {
			case f.Tenant == "":
				defaults = append(defaults, f)
			case tenant != "" && strings.EqualFold(f.Tenant, tenant):
				overrides = append(overrides, f)
			}
		}
	}

	overridden := map[string]bool{}
	for _, f := range overrides {
		overridden[f.CanonicalPath] = true
	}
	placed := map[string]bool{}
	merged := make([]FieldMapping, 0, len(defaults)+len(overrides))
	for _, f := range defaults {
		if !overridden[f.CanonicalPath] {
			merged = append(merged, f)
			continue
		}
		if placed[f.CanonicalPath] {
			continue
		}
		placed[f.CanonicalPath] = true
		for _, o := range overrides {
			if o.CanonicalPath == f.CanonicalPath {
				merged = append(merged, o)
			}
		}
	}
	for _, o := range overrides {
		if !placed[o.CanonicalPath] {
			merged = append(merged, o)
		}
	}
	return NewSchemaMapping(ct.Name, tenant, merged)
}
