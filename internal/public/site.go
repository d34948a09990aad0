// Package public serves the public side of a blog: it maps request URLs to
// typed handlers through a Registry, loads data from blog.Service and renders
// template documents with HTTP caching.
package public

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/logging"
)

// URL scan modes.
const (
	ScanPathInfo    = "path_info"
	ScanQueryString = "query_string"
)

const (
	defaultPostsPerPage = 10
	feedEntries         = 20
)

// Renderer executes template documents.
type Renderer interface {
	Render(w io.Writer, doc string, data any) error
	ModTime(doc string) (time.Time, error)
}

// Hasher computes entity tags and cookie digests.
type Hasher interface {
	Hash(data []byte) string
	ETag(body []byte) string
	Equal(a, b string) bool
}

// Observer is told the URL type and status of every response.
type Observer func(typ string, status int)

// Config controls URL layout and caching.
type Config struct {
	// BaseURL is the absolute URL of the blog root.
	BaseURL string
	// URLScan is path_info (default) or query_string.
	URLScan      string
	PostsPerPage int
	CacheControl string
	// PreviewKey signs preview links; previews are disabled when empty.
	PreviewKey string
}

// Site is the public http.Handler of one blog.
type Site struct {
	cfg      Config
	blogID   string
	basePath string
	svc      *blog.Service
	rend     Renderer
	reg      *Registry
	hasher   Hasher
	xmlrpc   func(blogID string) http.Handler
	files    fs.FS
	observe  Observer
	throttle Throttle
	policy   *bluemonday.Policy
	logger   *zap.Logger
}

// Throttle limits comment and trackback submissions per client address.
type Throttle interface {
	Allow(key string) bool
}

// Option customizes a Site.
type Option func(*Site)

// WithXMLRPC serves xmlrpc/<blog_id> with the handler built by fn.
func WithXMLRPC(fn func(blogID string) http.Handler) Option {
	return func(s *Site) { s.xmlrpc = fn }
}

// WithPublicFiles serves pf/<path> from files.
func WithPublicFiles(files fs.FS) Option {
	return func(s *Site) { s.files = files }
}

// WithObserver reports every response.
func WithObserver(o Observer) Option {
	return func(s *Site) { s.observe = o }
}

// WithThrottle rejects comment and trackback floods with 429.
func WithThrottle(t Throttle) Option {
	return func(s *Site) { s.throttle = t }
}

// New builds the site of blogID and registers the built-in URL types.
func New(cfg Config, blogID string, svc *blog.Service, rend Renderer, hasher Hasher, logger *zap.Logger, opts ...Option) (*Site, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URLScan == "" {
		cfg.URLScan = ScanPathInfo
	}
	if cfg.URLScan != ScanPathInfo && cfg.URLScan != ScanQueryString {
		return nil, errors.New("public: url scan must be path_info or query_string")
	}
	if cfg.PostsPerPage <= 0 {
		cfg.PostsPerPage = defaultPostsPerPage
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, errors.New("public: base url must be absolute")
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	s := &Site{
		cfg:      cfg,
		blogID:   blogID,
		basePath: strings.TrimSuffix(base.Path, "/") + "/",
		svc:      svc,
		rend:     rend,
		reg:      NewRegistry(),
		hasher:   hasher,
		observe:  func(string, int) {},
		policy:   bluemonday.UGCPolicy(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.registerDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry exposes the URL registry so plugins can add types.
func (s *Site) Registry() *Registry {
	return s.reg
}

// BlogID returns the blog this site serves.
func (s *Site) BlogID() string {
	return s.blogID
}

func (s *Site) registerDefaults() error {
	defaults := []struct {
		typ, repr string
		h         HandlerFunc
	}{
		{"lang", "lang", s.lang},
		{"posts", "posts", s.posts},
		{"post", "post", s.post},
		{"preview", "preview", s.preview},
		{"pages", "pages", s.page},
		{"category", "category", s.category},
		{"archive", "archive", s.archive},
		{"feed/tag", "feed/tag", s.tagFeed},
		{"feed", "feed", s.feed},
		{"tag", "tag", s.tag},
		{"tags", "tags", s.tags},
		{"trackback", "trackback", s.trackback},
		{"rsd", "rsd", s.rsd},
		{"xmlrpc", "xmlrpc", s.xmlrpcEndpoint},
		{"pf", "pf", s.publicFile},
	}
	for _, d := range defaults {
		if err := s.reg.Register(d.typ, d.repr, d.h); err != nil {
			return err
		}
	}
	s.reg.SetDefault(s.home)
	return nil
}

// TemplateFuncs exposes URL building to template documents.
func (s *Site) TemplateFuncs() map[string]any {
	return map[string]any{
		"url": s.URLFor,
	}
}

// URLFor builds the absolute URL of a registered type. An empty type is the
// blog home.
func (s *Site) URLFor(typ string, args ...string) string {
	return s.link(s.cfg.BaseURL, typ, args...)
}

func (s *Site) link(base, typ string, args ...string) string {
	var parts []string
	if typ != "" {
		repr, ok := s.reg.Representation(typ)
		if !ok {
			repr = typ
		}
		parts = append(parts, repr)
	}
	for _, a := range args {
		if a = strings.Trim(a, "/"); a != "" {
			parts = append(parts, escapePath(a))
		}
	}
	if len(parts) == 0 {
		return base
	}
	if s.cfg.URLScan == ScanQueryString {
		return base + "?" + strings.Join(parts, "/")
	}
	return base + strings.Join(parts, "/")
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

// pageLink links page n of a listing.
func (s *Site) pageLink(typ, value string, n int) string {
	if n <= 1 {
		return s.URLFor(typ, value)
	}
	return s.URLFor(typ, value, "page", strconv.Itoa(n))
}

// part extracts the dispatcher input from a request URL.
func (s *Site) part(u *url.URL) string {
	if s.cfg.URLScan == ScanQueryString {
		raw := u.RawQuery
		if i := strings.IndexByte(raw, '&'); i >= 0 {
			raw = raw[:i]
		}
		if strings.Contains(raw, "=") {
			return ""
		}
		if dec, err := url.PathUnescape(raw); err == nil {
			raw = dec
		}
		return strings.Trim(raw, "/")
	}
	p := u.Path
	if !strings.HasPrefix(p+"/", s.basePath) {
		return p
	}
	if len(p) >= len(s.basePath) {
		p = p[len(s.basePath):]
	} else {
		p = ""
	}
	return strings.Trim(p, "/")
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ServeHTTP dispatches the request to its URL handler.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	typ, h, value := s.reg.Resolve(s.part(r.URL))
	rest, page, ok := SplitPage(value)
	var err error
	if ok {
		err = h(sw, r, Args{Type: typ, Value: rest, Page: page})
	} else {
		err = NotFound()
	}
	if err != nil {
		s.fail(sw, r, err)
	}
	if typ == "" {
		typ = "home"
	}
	s.observe(typ, sw.status)
}

func (s *Site) fail(w http.ResponseWriter, r *http.Request, err error) {
	var he *HTTPError
	if !errors.As(err, &he) {
		if errors.Is(err, blog.ErrNotFound) {
			he = NotFound()
		} else {
			logging.FromContext(r.Context(), s.logger).Error("public handler failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	if he.Code != http.StatusNotFound {
		http.Error(w, he.Error(), he.Code)
		return
	}
	p, perr := s.newPage(r, Args{Type: "404"})
	if perr == nil {
		perr = s.respond(w, r, http.StatusNotFound, "404.html", "text/html; charset=utf-8", p)
	}
	if perr != nil {
		s.logger.Warn("render 404 failed", zap.Error(perr))
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}
}

// newPage loads the blog and fills the fields every document uses.
func (s *Site) newPage(r *http.Request, a Args) (*Page, error) {
	b, err := s.svc.GetBlog(r.Context(), s.blogID)
	if err != nil {
		return nil, err
	}
	lang := b.Lang
	if lang == "" {
		lang = "en"
	}
	return &Page{
		Blog:      b,
		Type:      a.Type,
		Args:      a,
		Lang:      lang,
		BaseURL:   s.cfg.BaseURL,
		SelfURL:   s.cfg.BaseURL + strings.TrimPrefix(r.URL.RequestURI(), s.basePath),
		XMLRPCURL: s.URLFor("xmlrpc", b.ID),
		Updated:   b.UpdatedAt,
		Pager:     Pager{Current: max(a.Page, 1)},
		ctx:       r.Context(),
	}, nil
}

// respond renders doc and writes it with validators. GET and HEAD responses
// with status 200 honour If-None-Match and If-Modified-Since.
func (s *Site) respond(w http.ResponseWriter, r *http.Request, status int, doc, contentType string, p *Page) error {
	var buf bytes.Buffer
	if err := s.rend.Render(&buf, doc, p); err != nil {
		return err
	}
	body := buf.Bytes()
	h := w.Header()
	h.Set("Content-Type", contentType)
	cacheable := status == http.StatusOK && (r.Method == http.MethodGet || r.Method == http.MethodHead)
	if cacheable {
		mod := p.Blog.UpdatedAt
		if tm, err := s.rend.ModTime(doc); err == nil && tm.After(mod) {
			mod = tm
		}
		mod = mod.UTC().Truncate(time.Second)
		etag := s.hasher.ETag(body)
		h.Set("ETag", etag)
		if !mod.IsZero() {
			h.Set("Last-Modified", mod.Format(http.TimeFormat))
		}
		if s.cfg.CacheControl != "" {
			h.Set("Cache-Control", s.cfg.CacheControl)
		}
		if notModified(r, etag, mod) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
	return nil
}

func notModified(r *http.Request, etag string, mod time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		for _, tag := range strings.Split(inm, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
				return true
			}
		}
		return false
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" && !mod.IsZero() {
		t, err := http.ParseTime(ims)
		return err == nil && !mod.After(t)
	}
	return false
}
