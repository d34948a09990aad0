package memory

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := New("http://blog.example/media/")
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "default/a.txt", "text/plain", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://default/a.txt", uri)
	assert.Equal(t, "http://blog.example/media/default/a.txt", store.PublicURL("default/a.txt"))

	payload[0] = 'C'
	stored, _, ok := store.Get("default/a.txt")
	require.True(t, ok)
	assert.Equal(t, "content", string(stored))

	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestStoreServeHTTP(t *testing.T) {
	t.Parallel()

	store := New("/media")
	_, err := store.PutObject(context.Background(), "b/pic.png", "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	handler := http.StripPrefix("/media", store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/b/pic.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
