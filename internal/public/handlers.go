package public

import (
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/inkpress/internal/blog"
)

const (
	htmlType = "text/html; charset=utf-8"
	atomType = "application/atom+xml; charset=utf-8"
	rssType  = "application/rss+xml; charset=utf-8"
	rsdType  = "application/rsd+xml; charset=utf-8"
)

var (
	langPattern    = regexp.MustCompile(`^[a-z]{2}(?:-[a-z]{2})?$`)
	monthPattern   = regexp.MustCompile(`^([0-9]{4})/([0-9]{2})$`)
	feedPattern    = regexp.MustCompile(`^(?:category/(.+)/)?(atom|rss2)(/comments)?$`)
	tagFeedPattern = regexp.MustCompile(`^(.+)/(atom|rss2)$`)
	previewPattern = regexp.MustCompile(`^([0-9]+)/([0-9a-f]+)$`)
)

func published() *blog.PostStatus {
	return blog.StatusPtr(blog.PostPublished)
}

// list fills p with one page of posts matching f and links the neighbour
// pages. Pages past the end are not found.
func (s *Site) list(r *http.Request, p *Page, f blog.PostFilter, typ, value string) error {
	ctx := r.Context()
	f.BlogID = s.blogID
	f.Type = blog.TypePost
	f.Status = published()
	total, err := s.svc.CountPosts(ctx, f)
	if err != nil {
		return err
	}
	page := max(p.Args.Page, 1)
	f.Limit = s.cfg.PostsPerPage
	f.Offset = (page - 1) * f.Limit
	if page > 1 && f.Offset >= total {
		return NotFound()
	}
	posts, err := s.svc.Posts(ctx, f)
	if err != nil {
		return err
	}
	p.Posts = s.viewer(ctx, p.Blog).posts(posts)
	p.Total = total
	p.Pager = Pager{Current: page}
	if page > 1 {
		p.Pager.PrevURL = s.pageLink(typ, value, page-1)
	}
	if f.Offset+len(posts) < total {
		p.Pager.NextURL = s.pageLink(typ, value, page+1)
	}
	return nil
}

// home serves the blog home, a search when q is set, and 404 for unclaimed
// URLs.
func (s *Site) home(w http.ResponseWriter, r *http.Request, a Args) error {
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" && a.Value == "" {
		return s.search(w, r, a, q)
	}
	if a.Value != "" {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	if err := s.list(r, p, blog.PostFilter{}, "", ""); err != nil {
		return err
	}
	return s.respond(w, r, http.StatusOK, "home.html", htmlType, p)
}

func (s *Site) search(w http.ResponseWriter, r *http.Request, a Args, q string) error {
	a.Type = "search"
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	p.Query = q
	if err := s.list(r, p, blog.PostFilter{Search: q}, "", ""); err != nil {
		return err
	}
	// Pagination links keep the query.
	for _, link := range []*string{&p.Pager.PrevURL, &p.Pager.NextURL} {
		if *link != "" {
			*link = appendQuery(*link, "q", q)
		}
	}
	return s.respond(w, r, http.StatusOK, "search.html", htmlType, p)
}

func appendQuery(link, key, value string) string {
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return link + sep + key + "=" + url.QueryEscape(value)
}

func (s *Site) posts(w http.ResponseWriter, r *http.Request, a Args) error {
	if a.Value != "" {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	if err := s.list(r, p, blog.PostFilter{}, "posts", ""); err != nil {
		return err
	}
	return s.respond(w, r, http.StatusOK, "home.html", htmlType, p)
}

func (s *Site) lang(w http.ResponseWriter, r *http.Request, a Args) error {
	if !langPattern.MatchString(a.Value) {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	p.Lang = a.Value
	if err := s.list(r, p, blog.PostFilter{Lang: a.Value}, "lang", a.Value); err != nil {
		return err
	}
	return s.respond(w, r, http.StatusOK, "home.html", htmlType, p)
}

func (s *Site) category(w http.ResponseWriter, r *http.Request, a Args) error {
	if a.Value == "" {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	c, err := s.svc.CategoryByURL(r.Context(), s.blogID, a.Value)
	if err != nil {
		return err
	}
	cv := s.viewer(r.Context(), p.Blog).categoryView(c)
	p.Category = &cv
	if err := s.list(r, p, blog.PostFilter{CategoryID: c.ID}, "category", c.URL); err != nil {
		return err
	}
	return s.respond(w, r, http.StatusOK, "category.html", htmlType, p)
}

func (s *Site) tag(w http.ResponseWriter, r *http.Request, a Args) error {
	if a.Value == "" {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	p.Tag = a.Value
	if err := s.list(r, p, blog.PostFilter{Tag: a.Value}, "tag", a.Value); err != nil {
		return err
	}
	if p.Total == 0 {
		return NotFound()
	}
	return s.respond(w, r, http.StatusOK, "tag.html", htmlType, p)
}

func (s *Site) tags(w http.ResponseWriter, r *http.Request, a Args) error {
	if a.Value != "" {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	counts, err := s.svc.Tags(r.Context(), s.blogID)
	if err != nil {
		return err
	}
	for name, n := range counts {
		p.Tags = append(p.Tags, TagView{Name: name, Count: n, Permalink: s.URLFor("tag", name)})
	}
	sort.Slice(p.Tags, func(i, j int) bool { return p.Tags[i].Name < p.Tags[j].Name })
	return s.respond(w, r, http.StatusOK, "tags.html", htmlType, p)
}

func (s *Site) archive(w http.ResponseWriter, r *http.Request, a Args) error {
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	ctx := r.Context()
	if a.Value == "" {
		months, err := s.svc.Archives(ctx, s.blogID)
		if err != nil {
			return err
		}
		p.Archives = s.viewer(ctx, p.Blog).archives(months)
		return s.respond(w, r, http.StatusOK, "archive.html", htmlType, p)
	}
	m := monthPattern.FindStringSubmatch(a.Value)
	if m == nil {
		return NotFound()
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return NotFound()
	}
	posts, err := s.svc.Posts(ctx, blog.PostFilter{
		BlogID: s.blogID, Type: blog.TypePost, Status: published(), Year: year, Month: month,
	})
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return NotFound()
	}
	p.Date = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	p.Posts = s.viewer(ctx, p.Blog).posts(posts)
	p.Total = len(posts)
	return s.respond(w, r, http.StatusOK, "archive_month.html", htmlType, p)
}

func feedDocument(kind string) (string, string) {
	if kind == "rss2" {
		return "rss2.xml", rssType
	}
	return "atom.xml", atomType
}

// feed serves feed/<type>, feed/<type>/comments and
// feed/category/<url>/<type>.
func (s *Site) feed(w http.ResponseWriter, r *http.Request, a Args) error {
	m := feedPattern.FindStringSubmatch(a.Value)
	if m == nil {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	ctx := r.Context()
	v := s.viewer(ctx, p.Blog)
	doc, ctype := feedDocument(m[2])
	f := blog.PostFilter{BlogID: s.blogID, Type: blog.TypePost, Status: published(), Limit: feedEntries}
	if m[1] != "" {
		c, err := s.svc.CategoryByURL(ctx, s.blogID, m[1])
		if err != nil {
			return err
		}
		cv := v.categoryView(c)
		p.Category = &cv
		f.CategoryID = c.ID
	}
	if m[3] != "" {
		if p.Category != nil {
			return NotFound()
		}
		comments, err := s.svc.Comments(ctx, blog.CommentFilter{
			BlogID:       s.blogID,
			Status:       blog.CommentStatusPtr(blog.CommentPublished),
			VisiblePosts: true,
			Descending:   true,
			Limit:        feedEntries,
		})
		if err != nil {
			return err
		}
		p.FeedComments = true
		p.Comments = v.comments(comments)
		return s.respond(w, r, http.StatusOK, doc, ctype, p)
	}
	posts, err := s.svc.Posts(ctx, f)
	if err != nil {
		return err
	}
	p.Posts = v.posts(posts)
	return s.respond(w, r, http.StatusOK, doc, ctype, p)
}

func (s *Site) tagFeed(w http.ResponseWriter, r *http.Request, a Args) error {
	m := tagFeedPattern.FindStringSubmatch(a.Value)
	if m == nil {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	posts, err := s.svc.Posts(r.Context(), blog.PostFilter{
		BlogID: s.blogID, Type: blog.TypePost, Status: published(), Tag: m[1], Limit: feedEntries,
	})
	if err != nil {
		return err
	}
	p.Tag = m[1]
	p.Posts = s.viewer(r.Context(), p.Blog).posts(posts)
	doc, ctype := feedDocument(m[2])
	return s.respond(w, r, http.StatusOK, doc, ctype, p)
}

func (s *Site) rsd(w http.ResponseWriter, r *http.Request, a Args) error {
	if a.Value != "" {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	return s.respond(w, r, http.StatusOK, "rsd.xml", rsdType, p)
}

func (s *Site) xmlrpcEndpoint(w http.ResponseWriter, r *http.Request, a Args) error {
	if s.xmlrpc == nil || a.Value == "" || strings.Contains(a.Value, "/") {
		return NotFound()
	}
	s.xmlrpc(a.Value).ServeHTTP(w, r)
	return nil
}

// publicFile serves static files shipped by modules.
func (s *Site) publicFile(w http.ResponseWriter, r *http.Request, a Args) error {
	if s.files == nil || a.Value == "" {
		return NotFound()
	}
	name := path.Clean(a.Value)
	if strings.HasPrefix(name, "..") || strings.HasPrefix(name, "/") {
		return NotFound()
	}
	info, err := fs.Stat(s.files, name)
	if err != nil || info.IsDir() {
		return NotFound()
	}
	http.ServeFileFS(w, r, s.files, name)
	return nil
}

// preview shows any post to holders of its signed link.
func (s *Site) preview(w http.ResponseWriter, r *http.Request, a Args) error {
	m := previewPattern.FindStringSubmatch(a.Value)
	if m == nil || s.cfg.PreviewKey == "" {
		return NotFound()
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || !s.hasher.Equal(m[2], s.PreviewToken(id)) {
		return NotFound()
	}
	post, err := s.svc.GetPost(r.Context(), s.blogID, id)
	if err != nil {
		return err
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	pv := s.viewer(r.Context(), p.Blog).fullPost(post)
	p.Post = &pv
	w.Header().Set("Cache-Control", "no-cache")
	doc := "post.html"
	if post.Type == blog.TypePage {
		doc = "page.html"
	}
	return s.respond(w, r, http.StatusOK, doc, htmlType, p)
}

// PreviewToken signs the preview link of a post.
func (s *Site) PreviewToken(id int64) string {
	return s.hasher.Hash([]byte(s.cfg.PreviewKey + ":" + strconv.FormatInt(id, 10)))[:16]
}

// PreviewURL returns the signed preview link of a post, or "" when previews
// are disabled.
func (s *Site) PreviewURL(id int64) string {
	if s.cfg.PreviewKey == "" {
		return ""
	}
	return s.URLFor("preview", strconv.FormatInt(id, 10), s.PreviewToken(id))
}

func (s *Site) post(w http.ResponseWriter, r *http.Request, a Args) error {
	return s.entry(w, r, a, blog.TypePost, "post.html")
}

func (s *Site) page(w http.ResponseWriter, r *http.Request, a Args) error {
	return s.entry(w, r, a, blog.TypePage, "page.html")
}

// entry serves a single post or page and accepts its comment and password
// forms.
func (s *Site) entry(w http.ResponseWriter, r *http.Request, a Args, typ, doc string) error {
	if a.Value == "" || a.Page > 1 {
		return NotFound()
	}
	ctx := r.Context()
	post, err := s.svc.PostByURL(ctx, s.blogID, typ, a.Value)
	if err != nil {
		return err
	}
	if !post.Published() {
		return NotFound()
	}
	p, err := s.newPage(r, a)
	if err != nil {
		return err
	}
	v := s.viewer(ctx, p.Blog)
	pv := v.fullPost(post)
	p.Post = &pv

	if post.Password != "" && !s.unlocked(r, post) {
		return s.passwordForm(w, r, p)
	}
	if r.Method == http.MethodPost {
		done, err := s.comment(w, r, p)
		if err != nil || done {
			return err
		}
	} else if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return &HTTPError{Code: http.StatusMethodNotAllowed}
	}
	switch r.URL.Query().Get("pub") {
	case "1":
		p.Message = "Your comment has been published."
	case "0":
		p.Message = "Your comment is awaiting moderation."
	}
	if err := s.loadComments(r, p, v); err != nil {
		return err
	}
	return s.respond(w, r, http.StatusOK, doc, htmlType, p)
}

func (s *Site) loadComments(r *http.Request, p *Page, v *viewer) error {
	all, err := s.svc.Comments(r.Context(), blog.CommentFilter{
		BlogID: s.blogID, PostID: p.Post.ID, Status: blog.CommentStatusPtr(blog.CommentPublished),
	})
	if err != nil {
		return err
	}
	for _, cv := range v.comments(all) {
		if cv.Trackback {
			p.Pings = append(p.Pings, cv)
		} else {
			p.Comments = append(p.Comments, cv)
		}
	}
	return nil
}
