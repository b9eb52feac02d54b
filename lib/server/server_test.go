package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a server in front of a fresh store
func newTestServer(t *testing.T, configure func(*common.ServerConfig)) *httptest.Server {
	t.Helper()

	conf := common.ServerConfig{Store: common.DefaultStoreConfig(filepath.Join(t.TempDir(), "server.db"))}
	if configure != nil {
		configure(&conf)
	}

	s, err := sqlstore.Open(context.Background(), conf.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ts := httptest.NewServer(NewServer(conf, s).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, contentType string, body []byte) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func doJSON(t *testing.T, ts *httptest.Server, path string, req, resp any) int {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)
	r, data := do(t, ts, http.MethodPost, path, contentTypeJSON, body)
	if resp != nil {
		require.NoError(t, json.Unmarshal(data, resp), string(data))
	}
	return r.StatusCode
}

func TestValueShapes(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		name        string
		contentType string
		body        []byte
		wantType    string
	}{
		{"text", "text/plain", []byte("hello äöü"), contentTypeText},
		{"bytes", "application/octet-stream", []byte{0x00, 0xff, 0x10}, contentTypeBytes},
		{"no content type", "", []byte{0x01}, contentTypeBytes},
		{"json", "application/json; charset=utf-8", []byte(`{"a":[1,"two"]}`), contentTypeJSON},
		{"large text", "text/plain", []byte(strings.Repeat("compress me ", 500)), contentTypeText},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := "/v1/namespaces/shapes/keys/" + strings.ReplaceAll(tc.name, " ", "-")

			resp, _ := do(t, ts, http.MethodPut, path, tc.contentType, tc.body)
			require.Equal(t, http.StatusNoContent, resp.StatusCode)

			resp, data := do(t, ts, http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.wantType, resp.Header.Get("Content-Type"))
			if tc.wantType == contentTypeJSON {
				assert.JSONEq(t, string(tc.body), string(data))
			} else {
				assert.Equal(t, tc.body, data)
			}
		})
	}
}

func TestLargeIntegers(t *testing.T) {
	ts := newTestServer(t, nil)
	const big = "1152921504606846977" // 2^60 + 1

	resp, _ := do(t, ts, http.MethodPut, "/v1/namespaces/ints/keys/single", contentTypeJSON, []byte(`{"id":`+big+`}`))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, data := do(t, ts, http.MethodGet, "/v1/namespaces/ints/keys/single", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"id":`+big)

	resp, data = do(t, ts, http.MethodPost, "/v1/namespaces/ints/set", contentTypeJSON, []byte(`{"values":{"batch":[`+big+`,0.5]}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	resp, data = do(t, ts, http.MethodPost, "/v1/namespaces/ints/get", contentTypeJSON, []byte(`{"keys":["batch"]}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `[`+big+`,0.5]`)
}

func TestSingleKeyLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	path := "/v1/namespaces/users/keys/dir/with/slashes"

	resp, data := do(t, ts, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(data, &errResp))
	assert.Equal(t, "NotFound", errResp.Code)

	resp, _ = do(t, ts, http.MethodHead, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPut, path, "text/plain", []byte("v"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodHead, path, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = do(t, ts, http.MethodGet, "/v1/namespaces/users/keys", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["dir/with/slashes"]`, string(data))

	resp, data = do(t, ts, http.MethodDelete, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":1}`, string(data))

	resp, data = do(t, ts, http.MethodDelete, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":0}`, string(data))
}

func TestEnumeration(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, data := do(t, ts, http.MethodGet, "/v1/namespaces", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	resp, data = do(t, ts, http.MethodGet, "/v1/namespaces/missing/keys", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	var count countResponse
	status := doJSON(t, ts, "/v1/namespaces/a/set", setManyRequest{Values: map[string]any{
		"user:1": "x", "user:2": "y", "group:1": "z",
	}}, &count)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, count.Count)

	resp, data = do(t, ts, http.MethodGet, "/v1/namespaces", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["a"]`, string(data))

	resp, data = do(t, ts, http.MethodGet, "/v1/namespaces/a/keys?like=user%3A%25", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["user:1","user:2"]`, string(data))
}

func TestBatch(t *testing.T) {
	ts := newTestServer(t, nil)

	var count countResponse
	status := doJSON(t, ts, "/v1/namespaces/b/set", setManyRequest{
		Values: map[string]any{"k1": "v1", "k2": map[string]any{"n": 2}, "k3": []any{"x"}},
		TTL:    "1h",
	}, &count)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, count.Count)

	var got struct {
		Values map[string]any `json:"values"`
	}
	status = doJSON(t, ts, "/v1/namespaces/b/get", keysRequest{Keys: []string{"k1", "k2", "nope"}}, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"k1": "v1", "k2": map[string]any{"n": float64(2)}}, got.Values)

	var has keysRequest
	status = doJSON(t, ts, "/v1/namespaces/b/has", keysRequest{Keys: []string{"k3", "k1", "nope"}}, &has)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"k1", "k3"}, has.Keys)

	status = doJSON(t, ts, "/v1/namespaces/b/delete", keysRequest{Keys: []string{"k1", "k2", "nope"}}, &count)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, count.Count)

	var after struct {
		Values map[string]any `json:"values"`
	}
	status = doJSON(t, ts, "/v1/namespaces/b/get", keysRequest{Keys: []string{"k1"}}, &after)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, after.Values)
}

func TestRename(t *testing.T) {
	ts := newTestServer(t, nil)

	var count countResponse
	require.Equal(t, http.StatusOK, doJSON(t, ts, "/v1/namespaces/r/set", setManyRequest{
		Values: map[string]any{"a": "A", "b": "B"},
	}, &count))

	var errResp errorResponse
	status := doJSON(t, ts, "/v1/namespaces/r/rename", renameRequest{Renames: map[string]string{"a": "b"}}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Conflict", errResp.Code)

	status = doJSON(t, ts, "/v1/namespaces/r/rename", renameRequest{Renames: map[string]string{"x": "y"}}, &errResp)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, ts, "/v1/namespaces/r/rename", renameRequest{Renames: map[string]string{"a": "b", "b": "a"}}, &count)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, count.Count)

	_, data := do(t, ts, http.MethodGet, "/v1/namespaces/r/keys/a", "", nil)
	assert.Equal(t, "B", string(data))

	status = doJSON(t, ts, "/v1/namespaces/r/rename", renameRequest{
		Renames:      map[string]string{"a": "b", "x": "y"},
		Overwrite:    true,
		AllowMissing: true,
	}, &count)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, count.Count)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t, func(c *common.ServerConfig) { c.MaxBodyBytes = 16 })

	cases := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"invalid ttl", http.MethodPut, "/v1/namespaces/n/keys/k?ttl=soon", "text/plain", "v", http.StatusBadRequest},
		{"invalid json value", http.MethodPut, "/v1/namespaces/n/keys/k", contentTypeJSON, "{", http.StatusBadRequest},
		{"invalid utf8 text", http.MethodPut, "/v1/namespaces/n/keys/k", "text/plain", "\xff", http.StatusBadRequest},
		{"invalid content type", http.MethodPut, "/v1/namespaces/n/keys/k", "=invalid", "v", http.StatusBadRequest},
		{"body too large", http.MethodPut, "/v1/namespaces/n/keys/k", "text/plain", strings.Repeat("x", 17), http.StatusBadRequest},
		{"invalid batch body", http.MethodPost, "/v1/namespaces/n/get", contentTypeJSON, "[", http.StatusBadRequest},
		{"invalid utf8 namespace", http.MethodPut, "/v1/namespaces/%ff/keys/k", "text/plain", "v", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/v2/whatever", "", "", http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/v1/namespaces/n/keys/k", "", "", http.StatusMethodNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := do(t, ts, tc.method, tc.path, tc.contentType, []byte(tc.body))
			assert.Equal(t, tc.want, resp.StatusCode, string(data))
		})
	}
}

func TestGobNotAllowed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gob.db")

	// write a structured value with gob enabled
	writerConf := common.DefaultStoreConfig(path)
	writerConf.AllowGob = true
	w, err := sqlstore.Open(context.Background(), writerConf)
	require.NoError(t, err)
	require.NoError(t, w.Set(context.Background(), "g", "k", map[string]any{"a": "b"}))
	require.NoError(t, w.Close())

	ts := newTestServer(t, func(c *common.ServerConfig) { c.Store.Path = path })
	resp, _ := do(t, ts, http.MethodGet, "/v1/namespaces/g/keys/k", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInfoAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := do(t, ts, http.MethodPut, "/v1/namespaces/m/keys/k", "text/plain", []byte("v"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data := do(t, ts, http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info struct {
		Namespaces []struct {
			Name    string `json:"name"`
			Records int64  `json:"records"`
		} `json:"namespaces"`
	}
	require.NoError(t, json.Unmarshal(data, &info))
	require.Len(t, info.Namespaces, 1)
	assert.Equal(t, "m", info.Namespaces[0].Name)
	assert.Equal(t, int64(1), info.Namespaces[0].Records)

	resp, data = do(t, ts, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `sqkv_http_requests_total{method="PUT",status="204"} 1`)
	assert.Contains(t, string(data), `sqkv_operations_total{op="set"}`)
}

func TestServeShutdown(t *testing.T) {
	s, err := sqlstore.Open(context.Background(), common.DefaultStoreConfig(filepath.Join(t.TempDir(), "serve.db")))
	require.NoError(t, err)
	defer s.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(common.ServerConfig{ShutdownTimeout: time.Second}, s)

	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/namespaces")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeInvalidEndpoint(t *testing.T) {
	srv := NewServer(common.ServerConfig{Endpoint: "not an address"}, nil)
	err := srv.Serve(context.Background())
	require.Error(t, err)
}
