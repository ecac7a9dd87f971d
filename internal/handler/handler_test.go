package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubforge/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	h := New(nil, dir)

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/version", h.Version)
	r.POST("/upload", h.Upload)
	r.GET("/download/:name", h.Download)
	return r, dir
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestVersion(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "version")
}

func TestUploadMissingFile(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file is required")
}

func TestDownload(t *testing.T) {
	r, dir := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip-audio.wav"), []byte("wav"), 0644))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/clip-audio.wav", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wav", w.Body.String())
}

func TestDownloadNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/absent.mp4", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadStripsTraversal(t *testing.T) {
	r, dir := newTestRouter(t)

	// A secret outside the upload dir must not be reachable, but a file of
	// the same basename inside it is.
	outside := filepath.Join(filepath.Dir(dir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("public"), 0644))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/..%2Fsecret.txt", nil))

	if w.Code == http.StatusOK {
		assert.Equal(t, "public", w.Body.String())
	} else {
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy("true"))
	assert.True(t, truthy("TRUE"))
	assert.True(t, truthy("True"))
	assert.False(t, truthy("false"))
	assert.False(t, truthy("1"))
	assert.False(t, truthy(""))
	assert.False(t, truthy("yes"))
}
