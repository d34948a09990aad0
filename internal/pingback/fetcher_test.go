package pingback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_CollectsLinks(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Pingback", "http://example.com/xmlrpc")
		fmt.Fprint(w, `<html><head><title> My   page </title>
<link rel="pingback" href="/rpc"></head>
<body><p>I read <a href="http://blog.test/post/1">this post</a> today.</p>
<a href="/local">local</a></body></html>`)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "My page", page.Title)
	assert.Equal(t, "http://example.com/xmlrpc", page.Header.Get("X-Pingback"))
	assert.Equal(t, srv.URL+"/rpc", page.PingbackLink)
	require.Len(t, page.Links, 2)
	assert.Equal(t, "http://blog.test/post/1", page.Links[0].Href)
	assert.Equal(t, "this post", page.Links[0].Text)
	assert.Equal(t, "I read this post today.", page.Links[0].Context)
	assert.Equal(t, srv.URL+"/local", page.Links[1].Href)
}

func TestFetcher_StatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(FetcherConfig{})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusInternalServerError))
}

func TestFetcher_ContextCanceled(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
