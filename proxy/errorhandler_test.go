package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandlerDefault(t *testing.T) {
	h := newErrorHandler("", "", nil)
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req, http.StatusNotFound, errNoRouteMatched)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404")
}

func TestErrorHandlerFromPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte("<h1>not here</h1>"), 0o644))

	h := newErrorHandler("", dir, nil)
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req, http.StatusNotFound, errNoRouteMatched)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not here")
}

func TestErrorHandlerFromPathFallsBackToGenericPage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "error.html"), []byte("<h1>oops</h1>"), 0o644))

	h := newErrorHandler("", dir, nil)
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req, http.StatusBadGateway, errNoRouteMatched)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "oops")
}

func TestErrorHandlerFromTarget(t *testing.T) {
	var gotPath, gotURLParam string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotURLParam = r.URL.Query().Get("url")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("custom error body"))
	}))
	defer target.Close()

	h := newErrorHandler(target.URL, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/some/original/path", nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req, http.StatusServiceUnavailable, errNoRouteMatched)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "custom error body", rec.Body.String())
	assert.Equal(t, "/503", gotPath)
	assert.Equal(t, "/some/original/path", gotURLParam)
}

func TestErrorHandlerFromTargetFallsBackOnFailure(t *testing.T) {
	h := newErrorHandler("http://127.0.0.1:1", "", nil)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	h.serve(rec, req, http.StatusBadGateway, errNoRouteMatched)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "502")
}
