// Package pingback verifies inbound pingbacks and sends outbound ones.
//
// Inbound: a Verifier fetches the source page and checks that it links to
// the target. Outbound: a Sink turns published posts into Jobs, and Workers
// discover each target's endpoint and call pingback.ping with retries.
package pingback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxBody  = 2 << 20
	defaultAgent    = "inkpress-pingback"
	contextRadius   = 50
	contextEllipsis = "[...]"
)

// FetcherConfig controls remote page fetches.
type FetcherConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Link is an anchor found on a fetched page.
type Link struct {
	// Href is the absolute link target.
	Href string
	// Text is the anchor text.
	Text string
	// Context is the text of the element surrounding the anchor.
	Context string
}

// Page is the part of a fetched document the pingback code needs.
type Page struct {
	URL          string
	StatusCode   int
	Header       http.Header
	Title        string
	Links        []Link
	PingbackLink string
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Fetcher loads remote pages with a Colly collector.
type Fetcher struct {
	cfg  FetcherConfig
	base *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBody
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultAgent
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.MaxBodySize = cfg.MaxBodySize
	c.UserAgent = cfg.UserAgent
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(cfg.Transport)
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch downloads rawURL and collects its title, links and pingback
// declarations. Non-2xx responses yield a *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)
	collector := f.base.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.MaxBodySize = f.cfg.MaxBodySize
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.cfg.Transport)
	configureHooks(collector, &page, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if page.StatusCode != 0 && (page.StatusCode < 200 || page.StatusCode > 299) {
			return page, &StatusError{URL: rawURL, Code: page.StatusCode}
		}
		if fetchErr != nil {
			return page, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		if err != nil {
			return page, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		return page, nil
	}
}

func configureHooks(hooks collectorHooks, page *Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		page.URL = r.Request.URL.String()
		page.StatusCode = r.StatusCode
		if r.Headers != nil {
			page.Header = r.Headers.Clone()
		}
	})
	hooks.OnHTML("title", func(e *colly.HTMLElement) {
		if page.Title == "" {
			page.Title = collapse(e.Text)
		}
	})
	hooks.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if href == "" {
			return
		}
		page.Links = append(page.Links, Link{
			Href:    href,
			Text:    collapse(e.Text),
			Context: collapse(e.DOM.Parent().Text()),
		})
	})
	hooks.OnHTML(`link[rel="pingback"]`, func(e *colly.HTMLElement) {
		if page.PingbackLink == "" {
			page.PingbackLink = e.Request.AbsoluteURL(e.Attr("href"))
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			page.StatusCode = r.StatusCode
			if r.Headers != nil {
				page.Header = r.Headers.Clone()
			}
		}
		*fetchErr = err
	})
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsStatus reports whether err is a *StatusError with one of codes. With no
// codes any status error matches.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
