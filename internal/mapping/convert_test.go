package mapping

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/itsm-core/internal/contenttype"
	"github.com/nucleus/itsm-core/internal/core"
)

func ticketTable() []FieldMapping {
	return []FieldMapping{
		{ContentType: "Ticket", CanonicalPath: "displayId", ExternalPath: "number"},
		{ContentType: "Ticket", CanonicalPath: "id", ExternalPath: "sys_id"},
		{ContentType: "Ticket", CanonicalPath: "title.text.text", ExternalPath: "short_description"},
		{ContentType: "Ticket", CanonicalPath: "description.text.textFormat", CanonicalType: TypeEnum, FixedValue: Fixed("HTML")},
		{ContentType: "Ticket", CanonicalPath: "status.statusCode", CanonicalType: TypeEnum, ExternalPath: "state",
			Values: MustParseValueTable("New:1, InProgress:2, Pending:3, Closed:7, Closed:4, Closed:6")},
		{ContentType: "Ticket", CanonicalPath: "lastUpdatedDate", CanonicalType: TypeDate, ExternalPath: "sys_updated_on",
			DateFormat: "yyyy-MM-dd HH:mm:ss"},
		{ContentType: "Ticket", CanonicalPath: "madeSLA", CanonicalType: TypeBoolean, ExternalPath: "made_sla", ExternalType: TypeString},
		{ContentType: "Ticket", CanonicalPath: "assignee.externalId", ExternalPath: "$.assigned_to.value"},
		{ContentType: "Incident", CanonicalPath: "incidentContent.comments[].comment.text.text", ExternalPath: "$._comments[*].value"},
		{ContentType: "Ticket", Tenant: "acme", CanonicalPath: "status.statusCode", CanonicalType: TypeEnum, ExternalPath: "u_state",
			Values: MustParseValueTable("Open:Acknowledged, Closed:Resolved")},
	}
}

func resolve(t *testing.T, contentType, tenant string) *SchemaMapping {
	t.Helper()
	sm, err := Resolve(contenttype.Default(), ticketTable(), contentType, tenant)
	require.NoError(t, err)
	return sm
}

func TestToCanonical_AncestorMappingApplies(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, diags := ToCanonical(core.Document{"number": "INC001"}, sm)
	assert.Empty(t, diags)
	assert.Equal(t, "INC001", rec.GetString("displayId"))
}

func TestToCanonical_FixedValueAlwaysWritten(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, _ := ToCanonical(core.Document{}, sm)
	assert.Equal(t, "HTML", rec.GetString("description.text.textFormat"))

	doc, _ := ToExternal(rec, sm)
	assert.Empty(t, doc, "fixed values are never written back")
}

func TestToCanonical_MissingFieldsStayUnset(t *testing.T) {
	sm := resolve(t, "Problem", "")
	rec, diags := ToCanonical(core.Document{"number": "PRB1", "short_description": nil}, sm)
	assert.Empty(t, diags)
	_, ok := rec.Get("title.text.text")
	assert.False(t, ok)
}

func TestToCanonical_TenantOverride(t *testing.T) {
	sm := resolve(t, "Incident", "acme")
	fm, ok := sm.Field("status.statusCode")
	require.True(t, ok)
	assert.Equal(t, "u_state", fm.ExternalPath)

	count := 0
	for _, f := range sm.Fields() {
		if f.CanonicalPath == "status.statusCode" {
			count++
		}
	}
	assert.Equal(t, 1, count, "tenant mapping replaces the default")

	rec, diags := ToCanonical(core.Document{"state": "1", "u_state": "Resolved"}, sm)
	assert.Empty(t, diags)
	assert.Equal(t, "Closed", rec.GetString("status.statusCode"))

	// Other tenants still get the default.
	other := resolve(t, "Incident", "globex")
	fm, _ = other.Field("status.statusCode")
	assert.Equal(t, "state", fm.ExternalPath)
}

func TestToCanonical_DateCoercionFailure(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, diags := ToCanonical(core.Document{"number": "INC1", "sys_updated_on": "not-a-date"}, sm)

	require.Len(t, diags, 1)
	var ce *FieldCoercionError
	require.True(t, errors.As(diags[0].Err, &ce))
	assert.Equal(t, core.KindFieldCoercion, diags[0].Code)
	assert.Equal(t, "lastUpdatedDate", diags[0].FieldPath)

	_, ok := rec.Get("lastUpdatedDate")
	assert.False(t, ok)
	assert.Equal(t, "INC1", rec.GetString("displayId"))
}

func TestToCanonical_Date(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, diags := ToCanonical(core.Document{"sys_updated_on": "2018-08-29 08:51:05"}, sm)
	require.Empty(t, diags)
	v, ok := rec.Get("lastUpdatedDate")
	require.True(t, ok)
	want := time.Date(2018, 8, 29, 8, 51, 5, 0, time.UTC).UnixMilli()
	assert.Equal(t, float64(want), v.GetNumberValue())
}

func TestToCanonical_UnmappedEnum(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, diags := ToCanonical(core.Document{"state": "99", "number": "INC2"}, sm)

	require.Len(t, diags, 1)
	var ue *UnmappedEnumError
	require.True(t, errors.As(diags[0].Err, &ue))
	assert.Equal(t, "99", ue.Value)
	assert.False(t, core.IsFatal(diags[0].Err))

	_, ok := rec.Get("status.statusCode")
	assert.False(t, ok)
	assert.Equal(t, "INC2", rec.GetString("displayId"))
}

func TestEnum_ManyToOne(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, _ := ToCanonical(core.Document{"state": "4"}, sm)
	assert.Equal(t, "Closed", rec.GetString("status.statusCode"))

	doc, diags := ToExternal(rec, sm)
	assert.Empty(t, diags)
	assert.Equal(t, "7", doc["state"], "first pair wins on the way out")
}

func TestToCanonical_ReferenceWrapper(t *testing.T) {
	sm := resolve(t, "Incident", "")
	wrapped, _ := ToCanonical(core.Document{"assigned_to": map[string]any{"link": "https://x", "value": "u1"}}, sm)
	plain, _ := ToCanonical(core.Document{"assigned_to": "u1"}, sm)
	assert.Equal(t, "u1", wrapped.GetString("assignee.externalId"))
	assert.Equal(t, "u1", plain.GetString("assignee.externalId"))
}

func TestToCanonical_WildcardProjection(t *testing.T) {
	sm := resolve(t, "Incident", "")
	doc := core.Document{"_comments": []any{
		map[string]any{"value": "first"},
		map[string]any{"value": "second"},
	}}
	rec, diags := ToCanonical(doc, sm)
	require.Empty(t, diags)

	want := []any{
		map[string]any{"comment": map[string]any{"text": map[string]any{"text": "first"}}},
		map[string]any{"comment": map[string]any{"text": map[string]any{"text": "second"}}},
	}
	got := rec.AsMap()["incidentContent"].(map[string]any)["comments"]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}

	// Problems do not inherit the incident comment mapping.
	rec, _ = ToCanonical(doc, resolve(t, "Problem", ""))
	_, ok := rec.Get("incidentContent")
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	sm := resolve(t, "Incident", "")
	doc := core.Document{
		"number":            "INC9",
		"sys_id":            "abc",
		"short_description": "printer on fire",
		"state":             "6",
		"sys_updated_on":    "2020-01-02 03:04:05",
		"made_sla":          "true",
		"assigned_to":       map[string]any{"link": "https://x", "value": "u1"},
		"_comments":         []any{map[string]any{"value": "a"}, map[string]any{"value": "b"}},
	}
	rec, diags := ToCanonical(doc, sm)
	require.Empty(t, diags)

	ext, diags := ToExternal(rec, sm)
	require.Empty(t, diags)
	assert.Equal(t, "u1", ext["assigned_to"])
	assert.Equal(t, "true", ext["made_sla"])
	assert.Equal(t, "2020-01-02 03:04:05", ext["sys_updated_on"])

	again, diags := ToCanonical(ext, sm)
	require.Empty(t, diags)
	if diff := cmp.Diff(rec.AsMap(), again.AsMap()); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestToExternal_UnmappedEnum(t *testing.T) {
	sm := resolve(t, "Incident", "")
	rec, _ := ToCanonical(core.Document{"number": "INC3"}, sm)
	require.NoError(t, rec.Set(mustPath("status.statusCode"), strValue("Escalated")))

	doc, diags := ToExternal(rec, sm)
	require.Len(t, diags, 1)
	assert.Equal(t, core.KindUnmappedEnum, diags[0].Code)
	_, ok := doc["state"]
	assert.False(t, ok)
	assert.Equal(t, "INC3", doc["number"])
}

func TestToCanonical_BooleanAndNumber(t *testing.T) {
	sm, err := NewSchemaMapping("Ticket", "", []FieldMapping{
		{CanonicalPath: "madeSLA", CanonicalType: TypeBoolean, ExternalPath: "made_sla"},
		{CanonicalPath: "reassignments", CanonicalType: TypeNumber, ExternalPath: "reassignment_count", ExternalType: TypeString},
		{CanonicalPath: "category.hierarchy[]", CanonicalType: TypeRepeated, ExternalPath: "subcategory"},
	})
	require.NoError(t, err)

	rec, diags := ToCanonical(core.Document{"made_sla": "maybe", "reassignment_count": "3", "subcategory": "printer"}, sm)
	require.Len(t, diags, 1)
	assert.Equal(t, "madeSLA", diags[0].FieldPath)

	want := map[string]any{
		"reassignments": float64(3),
		"category":      map[string]any{"hierarchy": []any{"printer"}},
	}
	if diff := cmp.Diff(want, rec.AsMap()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	doc, _ := ToExternal(rec, sm)
	assert.Equal(t, "3", doc["reassignment_count"])
	assert.Equal(t, "printer", doc["subcategory"])
}

func TestRoundTrip_ListFedByScalarFields(t *testing.T) {
	sm, err := NewSchemaMapping("Ticket", "", []FieldMapping{
		{CanonicalPath: "tags[]", CanonicalType: TypeRepeated, ExternalPath: "primary_tag"},
		{CanonicalPath: "tags[]", CanonicalType: TypeRepeated, ExternalPath: "secondary_tag"},
	})
	require.NoError(t, err)

	rec, diags := ToCanonical(core.Document{"primary_tag": "a", "secondary_tag": "b"}, sm)
	require.Empty(t, diags)
	assert.Equal(t, map[string]any{"tags": []any{"a", "b"}}, rec.AsMap())

	doc, diags := ToExternal(rec, sm)
	require.Empty(t, diags)
	assert.Equal(t, core.Document{"primary_tag": "a", "secondary_tag": "b"}, doc)

	// A shorter list leaves the trailing fields unset.
	rec, _ = ToCanonical(core.Document{"primary_tag": "a"}, sm)
	doc, _ = ToExternal(rec, sm)
	assert.Equal(t, core.Document{"primary_tag": "a"}, doc)
}

func TestNewSchemaMapping_Invalid(t *testing.T) {
	_, err := NewSchemaMapping("Ticket", "", []FieldMapping{{CanonicalPath: "a"}})
	assert.Error(t, err, "needs an external path or a fixed value")

	_, err = NewSchemaMapping("Ticket", "", []FieldMapping{{CanonicalPath: "a", ExternalPath: "$.x[*].y[*]"}})
	assert.Error(t, err)

	_, err = NewSchemaMapping("Ticket", "", []FieldMapping{{CanonicalPath: "a", ExternalPath: "x", CanonicalType: "uuid"}})
	assert.Error(t, err)
}
