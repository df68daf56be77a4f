package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/itsm-core/internal/pipeline"
)

func TestFilterList(t *testing.T) {
	var l filterList
	require.NoError(t, l.Set("state:eq:1"))
	require.NoError(t, l.Set("short_description:like:a:b"))
	require.NoError(t, l.Set("active=true"))
	assert.Error(t, l.Set("state:between:1"))
	assert.Error(t, l.Set("state:eq"))

	assert.Equal(t, filterList{
		{Field: "state", Operator: pipeline.OpEq, Value: "1"},
		{Field: "short_description", Operator: pipeline.OpLike, Value: "a:b"},
		{Field: "active=true"},
	}, l)
}

func TestSortList(t *testing.T) {
	var l sortList
	require.NoError(t, l.Set("-number"))
	require.NoError(t, l.Set("sys_id"))
	assert.Equal(t, "-number,sys_id", l.String())
}

func TestRun_Fetch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/now/table/incident" {
			query = r.URL.Query().Get("sysparm_query")
			_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{
				map[string]any{"sys_id": "a", "number": "INC1"},
			}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{}})
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-base-url", srv.URL, "-access-token", "tok", "-log-level", "error",
		"fetch", "-type", "Incident", "-filter", "state:eq:1", "-sort", "-number",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "state=1^ORDERBYDESCnumber", query)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "cdm:itsm:incident:servicenow:a", got["id"])
	assert.Equal(t, "INC1", got["record"].(map[string]any)["displayId"])
}

func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("ITSM_BASE_URL", "")
	err := run(context.Background(), []string{"get", "-id", "x"}, &bytes.Buffer{})
	assert.Error(t, err)
}
