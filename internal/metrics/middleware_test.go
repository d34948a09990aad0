package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCountsStatus(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	goneBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "410"))

	for _, p := range []string{"/healthz", "/post/2024/01/02/hello"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.InDelta(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")), 0)
	assert.InDelta(t, goneBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "410")), 0)
	assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestStatusWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = sw.Write([]byte("body"))
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, sw.status)
}

func TestArea(t *testing.T) {
	cases := map[string]string{
		"/xmlrpc/default":      "xmlrpc",
		"/media/default/a.png": "media",
		"/admin/api/modules":   "admin",
		"/pf/editor/style.css": "plugin_files",
		"/category/news":       "public",
		"/":                    "public",
	}
	for in, want := range cases {
		assert.Equal(t, want, Area(in), in)
	}
}
