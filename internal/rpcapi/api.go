// Package rpcapi exposes a blog through the Blogger, MetaWeblog, MovableType,
// WordPress and Pingback XML-RPC dialects. Every method is a thin adapter:
// authenticate, pick the blog of the endpoint, then forward to a small set of
// generic helpers built on blog.Service.
package rpcapi

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/media"
	"github.com/JakeFAU/inkpress/internal/pingback"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

// Blogging API fault codes.
const (
	FaultLogin      = 801
	FaultNotFound   = 404
	FaultPermission = 403
	FaultInvalid    = 400
	FaultServer     = 500
)

// Pingback fault codes.
const (
	PingbackGeneric         = 0
	PingbackSourceMissing   = 16
	PingbackNoLink          = 17
	PingbackTargetMissing   = 32
	PingbackTargetInvalid   = 33
	PingbackAlreadyRecorded = 48
	PingbackAccessDenied    = 49
	PingbackUpstream        = 50
)

// Resolver builds public URLs and maps them back to posts.
type Resolver interface {
	BlogURL(b blog.Blog) string
	PostURL(b blog.Blog, p blog.Post) string
	CategoryURL(b blog.Blog, c blog.Category) string
	CategoryFeedURL(b blog.Blog, c blog.Category) string
	TagURL(b blog.Blog, tag string) string
	TagFeedURL(b blog.Blog, tag string) string
	XMLRPCURL(b blog.Blog) string
	// PostFromURL returns the post target points to, or blog.ErrNotFound.
	PostFromURL(ctx context.Context, b blog.Blog, target string) (blog.Post, error)
}

// Uploader stores media objects.
type Uploader interface {
	Upload(ctx context.Context, blogID, userID, name, contentType string, data []byte) (blog.Media, error)
}

// Verifier checks that a pingback source links to its target.
type Verifier interface {
	Verify(ctx context.Context, source, target string) (pingback.Source, error)
}

// SourcePolicy rejects pingback sources the server must not fetch.
type SourcePolicy interface {
	Check(rawURL string) error
}

// Config tunes the API surface.
type Config struct {
	SoftwareName    string
	SoftwareVersion string
	Pingbacks       bool
	// TimeZone is reported by wp.getOptions.
	TimeZone string
}

// API implements the blogging methods.
type API struct {
	cfg      Config
	svc      *blog.Service
	urls     Resolver
	uploader Uploader
	verifier Verifier
	policy   SourcePolicy
	logger   *zap.Logger
}

// Option customizes an API.
type Option func(*API)

// WithUploader enables newMediaObject and wp.uploadFile.
func WithUploader(u Uploader) Option {
	return func(a *API) { a.uploader = u }
}

// WithVerifier enables pingback.ping.
func WithVerifier(v Verifier) Option {
	return func(a *API) { a.verifier = v }
}

// WithSourcePolicy screens pingback sources before they are fetched.
func WithSourcePolicy(p SourcePolicy) Option {
	return func(a *API) { a.policy = p }
}

// New creates the API.
func New(cfg Config, svc *blog.Service, urls Resolver, logger *zap.Logger, opts ...Option) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SoftwareName == "" {
		cfg.SoftwareName = "inkpress"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	a := &API{cfg: cfg, svc: svc, urls: urls, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type blogKey struct{}

// WithBlogID scopes calls in ctx to one blog.
func WithBlogID(ctx context.Context, blogID string) context.Context {
	return context.WithValue(ctx, blogKey{}, blogID)
}

// BlogIDFrom returns the blog scoped by WithBlogID.
func BlogIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(blogKey{}).(string)
	return id
}

// Handler serves the endpoint of one blog through srv.
func Handler(srv http.Handler, blogID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.ServeHTTP(w, r.WithContext(WithBlogID(r.Context(), blogID)))
	})
}

type method struct {
	name string
	fn   func(ctx context.Context, p []any) (any, error)
	sigs [][]string
	help string
}

// Register adds every supported method to srv.
func (a *API) Register(srv *xmlrpc.Server) {
	for _, m := range a.methods() {
		srv.Register(m.name, xmlrpc.Method{
			Handler:    a.wrap(m.name, m.fn),
			Signatures: m.sigs,
			Help:       m.help,
		})
	}
}

// MethodNames lists the method names Register installs.
func (a *API) MethodNames() []string {
	ms := a.methods()
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, m.name)
	}
	return names
}

func (a *API) methods() []method {
	var ms []method
	ms = append(ms, a.bloggerMethods()...)
	ms = append(ms, a.metaWeblogMethods()...)
	ms = append(ms, a.mtMethods()...)
	ms = append(ms, a.wpMethods()...)
	ms = append(ms, a.pingbackMethods()...)
	return ms
}

func (a *API) wrap(name string, fn func(context.Context, []any) (any, error)) xmlrpc.Handler {
	return func(ctx context.Context, p []any) (any, error) {
		res, err := fn(ctx, p)
		if err != nil {
			f := toFault(err)
			if f.Code == FaultServer {
				a.logger.Error("xmlrpc call failed", zap.String("method", name), zap.Error(err))
			}
			return nil, f
		}
		return res, nil
	}
}

func toFault(err error) *xmlrpc.Fault {
	var f *xmlrpc.Fault
	switch {
	case errors.As(err, &f):
		return f
	case errors.Is(err, blog.ErrBadCredentials):
		return xmlrpc.NewFault(FaultLogin, "Login error")
	case errors.Is(err, blog.ErrNotFound):
		return xmlrpc.NewFault(FaultNotFound, "%s", err.Error())
	case errors.Is(err, blog.ErrForbidden):
		return xmlrpc.NewFault(FaultPermission, "%s", err.Error())
	case errors.Is(err, blog.ErrInvalid), errors.Is(err, blog.ErrDuplicate), errors.Is(err, media.ErrTooLarge):
		return xmlrpc.NewFault(FaultInvalid, "%s", err.Error())
	default:
		return xmlrpc.NewFault(FaultServer, "%s", err.Error())
	}
}

// session is an authenticated user bound to the endpoint's blog.
type session struct {
	user blog.User
	blog blog.Blog
}

func (s session) can(perms ...blog.Permission) bool {
	return s.user.Can(s.blog.ID, perms...)
}

func (s session) require(perms ...blog.Permission) error {
	if !s.can(perms...) {
		return xmlrpc.NewFault(FaultPermission, "You are not allowed to do this")
	}
	return nil
}

func (a *API) login(ctx context.Context, userID, password string) (blog.User, error) {
	u, err := a.svc.Authenticate(ctx, userID, password)
	if err != nil {
		if errors.Is(err, blog.ErrBadCredentials) {
			return blog.User{}, xmlrpc.NewFault(FaultLogin, "Login error")
		}
		return blog.User{}, err
	}
	return u, nil
}

// open authenticates and loads the endpoint's blog. Users without any access
// to the blog get the login fault.
func (a *API) open(ctx context.Context, userID, password string) (session, error) {
	u, err := a.login(ctx, userID, password)
	if err != nil {
		return session{}, err
	}
	blogID := BlogIDFrom(ctx)
	if blogID == "" {
		return session{}, xmlrpc.NewFault(FaultNotFound, "No blog selected")
	}
	b, err := a.svc.GetBlog(ctx, blogID)
	if err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			return session{}, xmlrpc.NewFault(FaultNotFound, "Blog %s does not exist", blogID)
		}
		return session{}, err
	}
	if !u.Can(b.ID, blog.PermUsage, blog.PermContentAdmin) {
		return session{}, xmlrpc.NewFault(FaultLogin, "Sorry, this user can not access this blog")
	}
	return session{user: u, blog: b}, nil
}

func (a *API) remoteIP(ctx context.Context) string {
	r, ok := xmlrpc.RequestFrom(ctx)
	if !ok {
		return ""
	}
	return clientIP(r)
}
