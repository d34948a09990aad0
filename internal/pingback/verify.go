package pingback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Inbound verification errors. The XML-RPC layer maps them to the
// pingback fault codes.
var (
	ErrSourceNotFound = errors.New("source URL does not exist")
	ErrNoLink         = errors.New("source does not link to target")
	ErrUpstream       = errors.New("source server error")
)

// Source describes a verified pingback source.
type Source struct {
	URL     string
	Title   string
	Excerpt string
}

// PageFetcher loads a remote page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Verifier checks inbound pingbacks.
type Verifier struct {
	fetcher PageFetcher
}

// NewVerifier returns a Verifier that loads sources with fetcher.
func NewVerifier(fetcher PageFetcher) *Verifier {
	return &Verifier{fetcher: fetcher}
}

// Verify fetches source and looks for a link to target. The returned title
// falls back to the source URL and the excerpt is roughly 100 characters of
// text around the link.
func (v *Verifier) Verify(ctx context.Context, source, target string) (Source, error) {
	page, err := v.fetcher.Fetch(ctx, source)
	switch {
	case IsStatus(err, http.StatusNotFound, http.StatusGone):
		return Source{}, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	case IsStatus(err):
		var se *StatusError
		errors.As(err, &se)
		if se.Code >= 500 {
			return Source{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return Source{}, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Source{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return Source{}, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}

	for _, l := range page.Links {
		if !SameURL(l.Href, target) {
			continue
		}
		title := page.Title
		if title == "" {
			title = source
		}
		return Source{
			URL:     source,
			Title:   title,
			Excerpt: Excerpt(l.Context, l.Text, contextRadius),
		}, nil
	}
	return Source{}, ErrNoLink
}

// SameURL compares two URLs ignoring fragments, default ports, host case
// and a trailing slash.
func SameURL(a, b string) bool {
	return canonical(a) == canonical(b)
}

func canonical(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Scheme = strings.ToLower(u.Scheme)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// Excerpt returns up to radius characters on each side of anchor within
// text, marking cut ends with "[...]". When anchor is not found the start of
// text is used.
func Excerpt(text, anchor string, radius int) string {
	text = collapse(text)
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}
	start, end := 0, min(len(runes), 2*radius)
	if i := strings.Index(text, anchor); anchor != "" && i >= 0 {
		pos := utf8.RuneCountInString(text[:i])
		start = max(pos-radius, 0)
		end = min(pos+utf8.RuneCountInString(anchor)+radius, len(runes))
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = contextEllipsis + " " + out
	}
	if end < len(runes) {
		out += " " + contextEllipsis
	}
	return out
}
