package rpcapi

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/pingback"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

func (a *API) pingbackMethods() []method {
	return []method{{
		name: "pingback.ping",
		sigs: [][]string{{"string", "string", "string"}},
		help: "Notify a link to a post",
		fn: func(ctx context.Context, p []any) (any, error) {
			return a.ping(ctx, strings.TrimSpace(p[0].(string)), strings.TrimSpace(p[1].(string)))
		},
	}}
}

func pingFault(code int, msg string) *xmlrpc.Fault {
	return xmlrpc.NewFault(code, "%s", msg)
}

// ping registers a pingback from source to target.
func (a *API) ping(ctx context.Context, source, target string) (any, error) {
	if !a.cfg.Pingbacks || a.verifier == nil {
		return nil, pingFault(PingbackAccessDenied, "Pingbacks are not accepted on this blog")
	}
	if source == "" || target == "" {
		return nil, pingFault(PingbackGeneric, "Empty source or target")
	}
	if pingback.SameURL(source, target) {
		return nil, pingFault(PingbackGeneric, "Source and target are the same")
	}
	b, err := a.svc.GetBlog(ctx, BlogIDFrom(ctx))
	if err != nil {
		return nil, pingFault(PingbackTargetMissing, "No blog on this endpoint")
	}

	post, err := a.urls.PostFromURL(ctx, b, target)
	switch {
	case errors.Is(err, blog.ErrNotFound):
		return nil, pingFault(PingbackTargetMissing, "The specified target URL does not exist")
	case err != nil:
		return nil, err
	}
	if !post.Published() || !post.OpenTrackback {
		return nil, pingFault(PingbackTargetInvalid, "The specified target URL cannot be used as a target")
	}

	if a.policy != nil {
		if err := a.policy.Check(source); err != nil {
			return nil, pingFault(PingbackAccessDenied, "The source URL is not allowed")
		}
	}
	src, err := a.verifier.Verify(ctx, source, target)
	switch {
	case errors.Is(err, pingback.ErrNoLink):
		return nil, pingFault(PingbackNoLink, "The source URL does not contain a link to the target URL")
	case errors.Is(err, pingback.ErrUpstream):
		return nil, pingFault(PingbackUpstream, "The source server returned an error")
	case err != nil:
		return nil, pingFault(PingbackSourceMissing, "The source URL does not exist")
	}

	_, err = a.svc.AddPingback(ctx, b.ID, post, source, src.Title, src.Excerpt)
	switch {
	case errors.Is(err, blog.ErrDuplicate):
		return nil, pingFault(PingbackAlreadyRecorded, "The pingback has already been registered")
	case errors.Is(err, blog.ErrForbidden):
		return nil, pingFault(PingbackTargetInvalid, "The specified target URL cannot be used as a target")
	case err != nil:
		return nil, err
	}
	a.logger.Info("pingback registered",
		zap.String("blog_id", b.ID),
		zap.Int64("post_id", post.ID),
		zap.String("source", source),
	)
	return "Pingback registered from " + source + " to " + target, nil
}
