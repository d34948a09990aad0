package public

import (
	"context"
	"net/url"
	"strings"

	"github.com/JakeFAU/inkpress/internal/blog"
)

func (s *Site) blogBase(b blog.Blog) string {
	if b.URL != "" && b.ID != s.blogID {
		return strings.TrimSuffix(b.URL, "/") + "/"
	}
	return s.cfg.BaseURL
}

func (s *Site) postLink(base string, p blog.Post) string {
	if p.Type == blog.TypePage {
		return s.link(base, "pages", p.URL)
	}
	return s.link(base, "post", p.URL)
}

// BlogURL returns the home URL of b.
func (s *Site) BlogURL(b blog.Blog) string { return s.blogBase(b) }

// PostURL returns the permalink of a post or page.
func (s *Site) PostURL(b blog.Blog, p blog.Post) string { return s.postLink(s.blogBase(b), p) }

// CategoryURL returns the listing URL of c.
func (s *Site) CategoryURL(b blog.Blog, c blog.Category) string {
	return s.link(s.blogBase(b), "category", c.URL)
}

// CategoryFeedURL returns the Atom feed of c.
func (s *Site) CategoryFeedURL(b blog.Blog, c blog.Category) string {
	return s.link(s.blogBase(b), "feed", "category", c.URL, "atom")
}

// TagURL returns the listing URL of tag.
func (s *Site) TagURL(b blog.Blog, tag string) string {
	return s.link(s.blogBase(b), "tag", tag)
}

// TagFeedURL returns the Atom feed of tag.
func (s *Site) TagFeedURL(b blog.Blog, tag string) string {
	return s.link(s.blogBase(b), "feed/tag", tag, "atom")
}

// XMLRPCURL returns the XML-RPC endpoint of b.
func (s *Site) XMLRPCURL(b blog.Blog) string {
	return s.link(s.blogBase(b), "xmlrpc", b.ID)
}

// Permalink builds the absolute URL of a post from its type and relative URL.
func (s *Site) Permalink(blogID, postType, postURL string) string {
	base := s.cfg.BaseURL
	if blogID != s.blogID {
		if b, err := s.svc.GetBlog(context.Background(), blogID); err == nil {
			base = s.blogBase(b)
		}
	}
	return s.postLink(base, blog.Post{Type: postType, URL: postURL})
}

// PostFromURL maps a permalink of b back to its post or page. Anything else
// yields blog.ErrNotFound.
func (s *Site) PostFromURL(ctx context.Context, b blog.Blog, target string) (blog.Post, error) {
	base := s.blogBase(b)
	if !strings.HasPrefix(target, base) {
		return blog.Post{}, blog.ErrNotFound
	}
	u, err := url.Parse(target)
	if err != nil {
		return blog.Post{}, blog.ErrNotFound
	}
	u.Fragment = ""
	typ, _, value := s.reg.Resolve(s.part(u))
	switch typ {
	case "post":
		return s.svc.PostByURL(ctx, b.ID, blog.TypePost, value)
	case "pages":
		return s.svc.PostByURL(ctx, b.ID, blog.TypePage, value)
	}
	return blog.Post{}, blog.ErrNotFound
}
