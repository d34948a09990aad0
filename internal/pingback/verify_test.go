package pingback

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	page Page
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	s.urls = append(s.urls, rawURL)
	return s.page, s.err
}

func TestVerifier(t *testing.T) {
	t.Parallel()
	target := "http://blog.test/post/2024/01/02/hello"
	tests := []struct {
		name    string
		fetcher *stubFetcher
		wantErr error
		want    Source
	}{
		{
			name: "link found",
			fetcher: &stubFetcher{page: Page{
				Title: "Remote",
				Links: []Link{{Href: "HTTP://Blog.test:80/post/2024/01/02/hello/#c3", Text: "hello", Context: "see hello there"}},
			}},
			want: Source{URL: "http://src.test/", Title: "Remote", Excerpt: "see hello there"},
		},
		{
			name:    "title falls back to url",
			fetcher: &stubFetcher{page: Page{Links: []Link{{Href: target}}}},
			want:    Source{URL: "http://src.test/", Title: "http://src.test/"},
		},
		{
			name:    "no link",
			fetcher: &stubFetcher{page: Page{Links: []Link{{Href: "http://elsewhere.test/"}}}},
			wantErr: ErrNoLink,
		},
		{
			name:    "missing source",
			fetcher: &stubFetcher{err: &StatusError{Code: http.StatusNotFound}},
			wantErr: ErrSourceNotFound,
		},
		{
			name:    "upstream failure",
			fetcher: &stubFetcher{err: &StatusError{Code: http.StatusBadGateway}},
			wantErr: ErrUpstream,
		},
		{
			name:    "network failure",
			fetcher: &stubFetcher{err: errors.New("dial tcp: no such host")},
			wantErr: ErrSourceNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewVerifier(tc.fetcher).Verify(context.Background(), "http://src.test/", target)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSameURL(t *testing.T) {
	t.Parallel()
	assert.True(t, SameURL("https://a.test/x/", "https://A.test:443/x#frag"))
	assert.False(t, SameURL("https://a.test/x", "http://a.test/x"))
	assert.False(t, SameURL("https://a.test/x?p=1", "https://a.test/x?p=2"))
}

func TestExcerpt(t *testing.T) {
	t.Parallel()
	long := "aaaaaaaaaa bbbbbbbbbb cccccccccc LINK dddddddddd eeeeeeeeee ffffffffff"
	assert.Equal(t, "[...] cccccccccc LINK dddddddddd [...]", Excerpt(long, "LINK", 11))
	assert.Equal(t, "short", Excerpt("  short ", "missing", 50))
	assert.Equal(t, "", Excerpt("   ", "x", 10))
	assert.Equal(t, "abcd [...]", Excerpt("abcdefgh", "", 2))
}

func TestExternalLinks(t *testing.T) {
	t.Parallel()
	content := `<p><a href="http://other.test/a#x">a</a> <a href="/local">l</a>
<a href="https://blog.test/post/2">self</a> <a href="mailto:x@y.z">m</a>
<a href="http://other.test/a">dup</a> <a href="//third.test/b">b</a></p>`
	got := ExternalLinks(content, "https://blog.test/post/1")
	assert.Equal(t, []string{"http://other.test/a", "https://third.test/b"}, got)
	assert.Nil(t, ExternalLinks("", "https://blog.test/"))
}
