package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
)

const sampleYAML = `
version: "1"
mappings:
  - contentType: Ticket
    fields:
      - canonical: displayId
        external: number
      - canonical: priority
        type: enum
        external: priority
        values: "Blocker:1, PHigh:2, Normal:3"
  - contentType: Ticket
    canonicalPrefix: "cmdbCis[]."
    externalPrefix: "$._cmdb_ci[*]."
    fields:
      - canonical: entity.externalId
        external: sys_id
      - canonical: entity.name
        external: name
  - contentType: Ticket
    tenant: acme
    fields:
      - canonical: priority
        type: enum
        external: u_priority
        values:
          - canonical: Blocker
            external: "P0"
          - "Normal:P2"
`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, table, 5)
	assert.Equal(t, "cmdbCis[].entity.name", table[3].CanonicalPath)
	assert.Equal(t, "$._cmdb_ci[*].name", table[3].ExternalPath)
	assert.Equal(t, "acme", table[4].Tenant)
	assert.Equal(t, ValueTable{{"Blocker", "P0"}, {"Normal", "P2"}}, table[4].Values)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("mappings: [\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("mappings:\n  - fields:\n      - canonical: a\n        external: b\n"))
	assert.Error(t, err, "content type is required")

	_, err = Parse([]byte("mappings:\n  - contentType: Ticket\n    fields:\n      - canonical: a\n        values: 12\n        external: b\n        type: enum\n"))
	assert.Error(t, err, "value pair without ':'")

	_, err = Parse([]byte("mappings:\n  - contentType: Ticket\n    canonicalPrefix: \"cis[].\"\n    fields:\n      - canonical: kind\n        fixed: CmdbCi\n"))
	assert.Error(t, err, "fixed value on a repeated field")
}

func TestCatalog_NestedEntitiesAndCache(t *testing.T) {
	table, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	cat, err := NewCatalog(contenttype.Default(), table, 8)
	require.NoError(t, err)

	sm, err := cat.SchemaFor("incident", "")
	require.NoError(t, err)
	again, err := cat.SchemaFor("Incident", "")
	require.NoError(t, err)
	assert.Same(t, sm, again)

	doc := core.Document{
		"number": "INC1",
		"_cmdb_ci": []any{
			map[string]any{"sys_id": "c1", "name": "db01"},
			map[string]any{"sys_id": "c2"},
		},
	}
	rec, diags := ToCanonical(doc, sm)
	require.Empty(t, diags)
	vals := rec.Values(mustPath("cmdbCis[].entity.name"))
	require.Len(t, vals, 2)
	assert.Equal(t, "db01", vals[0].GetStringValue())
	assert.Nil(t, vals[1])

	ext, _ := ToExternal(rec, sm)
	cis := ext["_cmdb_ci"].([]any)
	require.Len(t, cis, 2)
	assert.Equal(t, map[string]any{"sys_id": "c2"}, cis[1])

	acme, err := cat.SchemaFor("Incident", "ACME")
	require.NoError(t, err)
	fm, _ := acme.Field("priority")
	assert.Equal(t, "u_priority", fm.ExternalPath)

	_, err = cat.SchemaFor("Spaceship", "")
	assert.Error(t, err)
}

func TestNewCatalog_UnknownContentType(t *testing.T) {
	_, err := NewCatalog(contenttype.Default(), []FieldMapping{{ContentType: "Nope", CanonicalPath: "a", ExternalPath: "b"}}, 0)
	assert.Error(t, err)
}
