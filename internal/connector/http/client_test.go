package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nucleus/itsm-core/internal/core"
)

func newTestClient(t *testing.T, srv *httptest.Server, auth AuthConfig) *Client {
	t.Helper()
	return NewClient(&ClientConfig{
		BaseURL:   srv.URL + "/",
		Auth:      auth,
		RateLimit: 1000,
		RateBurst: 100,
		Logger:    zaptest.NewLogger(t),
	})
}

func TestClient_GetSetsHeadersAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/now/table/incident", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("sysparm_limit"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Link", `<https://x/api/now/table/incident?sysparm_offset=5>;rel="next"`)
		_, _ = io.WriteString(w, `{"result":[{"sys_id":"1"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, BearerToken{Token: "tok"})
	resp, err := Get(context.Background(), c, "/api/now/table/incident", map[string][]string{"sysparm_limit": {"5"}})
	require.NoError(t, err)

	doc, err := resp.Document()
	require.NoError(t, err)
	assert.Len(t, core.UnwrapResult(doc), 1)
	assert.Equal(t, "https://x/api/now/table/incident?sysparm_offset=5", NextCursor(resp.Headers))
}

func TestClient_NonSuccessIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"message":"ACL"}}`)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), newTestClient(t, srv, NoAuth{}), "/api/now/table/incident", nil)
	var te *core.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
	assert.Contains(t, te.Body, "ACL")
	assert.Equal(t, core.KindTransport, core.KindOf(err))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"result":{}}`)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), newTestClient(t, srv, NoAuth{}), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), newTestClient(t, srv, NoAuth{}), "/x", nil)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_PostSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"short_description":"help"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":{"sys_id":"new"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, BasicAuth{Username: "admin", Password: "secret"})
	resp, err := Post(context.Background(), c, "/api/now/table/incident", map[string]any{"short_description": "help"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSelectAuth(t *testing.T) {
	a, err := SelectAuth("tok", "u", "p")
	require.NoError(t, err)
	assert.Equal(t, BearerToken{Token: "tok"}, a)

	a, err = SelectAuth("", "u", "p")
	require.NoError(t, err)
	assert.Equal(t, BasicAuth{Username: "u", Password: "p"}, a)

	_, err = SelectAuth("", "u", "")
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestNextCursor(t *testing.T) {
	h := http.Header{}
	h.Add("Link", `<https://i/api?sysparm_offset=0>;rel="first",<https://i/api?sysparm_offset=10>;rel="next",<https://i/api?sysparm_offset=90>;rel="last"`)
	assert.Equal(t, "https://i/api?sysparm_offset=10", NextCursor(h))

	h = http.Header{}
	h.Add("Link", `<https://i/api?sysparm_offset=0>;rel="first"`)
	assert.Equal(t, "", NextCursor(h))
	assert.Equal(t, "", NextCursor(http.Header{}))
}

func TestResolveCursor(t *testing.T) {
	assert.Equal(t, "https://i.example/api/now/table/x?o=1", ResolveCursor("https://i.example/", "/api/now/table/x?o=1"))
	assert.Equal(t, "https://other/api", ResolveCursor("https://i.example", "https://other/api"))
	assert.Equal(t, "", ResolveCursor("https://i.example", ""))
}
