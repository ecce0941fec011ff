package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padron/internal/metrics"
	"padron/internal/search"
	"padron/internal/storage"
	logx "padron/pkg/logx"
)

type fakeStore struct {
	rows  []storage.Person
	err   error
	calls int
	got   storage.Criteria
}

func (f *fakeStore) Search(_ context.Context, c storage.Criteria) ([]storage.Person, error) {
	f.calls++
	f.got = c
	return f.rows, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func ptr(s string) *string { return &s }

type testEnv struct {
	srv   *Server
	store *fakeStore
	reg   *prometheus.Registry
	m     *metrics.Metrics
}

func newTestEnv(t *testing.T, imageRoot string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := &fakeStore{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := search.New(st, imageRoot, m, logx.Nop())
	srv := New(Options{
		Searcher:    svc,
		Pinger:      fakePinger{},
		ImageRoot:   imageRoot,
		CORSOrigins: []string{"https://padron.example"},
		Metrics:     m,
		Gatherer:    reg,
		Logger:      logx.Nop(),
	})
	return &testEnv{srv: srv, store: st, reg: reg, m: m}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestSearchEmptyObjectReturnsEmptyArray(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(http.MethodPost, "/search", "{}")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	assert.Equal(t, storage.Criteria{}, e.store.got)
}

func TestSearchRejectsBadBodies(t *testing.T) {
	e := newTestEnv(t, "")
	cases := map[string]string{
		"":         msgEmptyBody,
		"   ":      msgEmptyBody,
		"null":     msgEmptyBody,
		"[1,2]":    msgEmptyBody,
		`"dui"`:    msgEmptyBody,
		"{nope":    msgInvalidJSON,
		"not json": msgInvalidJSON,
	}
	for body, want := range cases {
		w := e.do(http.MethodPost, "/search", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, want, errorOf(t, w), body)
	}
	assert.Zero(t, e.store.calls)
}

func TestSearchKeepsTrimmedStrings(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(http.MethodPost, "/search", `{"nombres":"  maria ","dui":"","edad":30,"placa":null,"ciudad":"   ","x":"y"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, storage.Criteria{"nombres": "maria", "x": "y"}, e.store.got)
}

func TestSearchStoreErrorIsGeneric(t *testing.T) {
	e := newTestEnv(t, "")
	e.store.err = errors.New("login failed for user sa")

	w := e.do(http.MethodPost, "/search", `{"dui":"1"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, msgInternal, errorOf(t, w))
	assert.NotContains(t, w.Body.String(), "login failed")
}

func TestSearchEnrichment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "012345678.png"), []byte("png"), 0o644))

	e := newTestEnv(t, dir)
	e.store.rows = []storage.Person{
		{Dui: ptr("012345678"), NombreCompleto: ptr("Maria Lopez"), Sexo: ptr("F")},
		{Dui: ptr("999"), NombreCompleto: ptr("Pedro Ruiz")},
	}

	w := e.do(http.MethodPost, "/search", `{"nombres":"ruiz"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "/dui-images/012345678.png", got[0]["imagen_url"])
	assert.Equal(t, "Femenino", got[0]["Sexo"])
	assert.NotContains(t, got[1], "imagen_url")
	assert.Equal(t, "masculino", got[1]["Sexo"])
	assert.Contains(t, got[1], "Placa")
	assert.Nil(t, got[1]["Placa"])
}

func TestImageServing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "012345678.jpg"), []byte("jpeg-bytes"), 0o644))
	e := newTestEnv(t, dir)

	w := e.do(http.MethodGet, "/dui-images/012345678.jpg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())

	w = e.do(http.MethodGet, "/dui-images/missing.jpg", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, p := range []string{"/dui-images/..%2Fsecret.jpg", "/dui-images/a/b.jpg", "/dui-images/.hidden.jpg", "/dui-images/"} {
		w = e.do(http.MethodGet, p, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, p)
		assert.Equal(t, msgBadFilename, w.Body.String(), p)
	}
}

func TestImageRootUnset(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(http.MethodGet, "/dui-images/012345678.jpg", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, msgImagesUnset, w.Body.String())
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	e.srv.pinger = fakePinger{err: errors.New("down")}
	w = e.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDAndMetrics(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(http.MethodPost, "/search", "{}")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.m.HTTPRequests.WithLabelValues(http.MethodPost, "/search", "200")))

	w = e.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "padron_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://padron.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "https://padron.example", w.Header().Get("Access-Control-Allow-Origin"))
}
