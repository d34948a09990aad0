package widgets

import (
	"context"
	"html/template"
	"sort"
	"strconv"

	"github.com/microcosm-cc/bluemonday"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/public"
)

// renderer loads the data of one widget. A nil result hides the widget.
type renderer func(p *Plugin, ctx context.Context, page *public.Page, w Widget) (any, error)

var renderers = map[string]renderer{
	"search":       (*Plugin).search,
	"navigation":   (*Plugin).navigation,
	"categories":   (*Plugin).categories,
	"lastposts":    (*Plugin).lastPosts,
	"lastcomments": (*Plugin).lastComments,
	"subscribe":    (*Plugin).subscribe,
	"text":         (*Plugin).text,
	"tags":         (*Plugin).tags,
	"pages":        (*Plugin).pages,
}

var textPolicy = bluemonday.UGCPolicy()

var tmpl = template.Must(template.New("widgets").Parse(`
{{define "search"}}<div class="widget search">{{with .Title}}<h2>{{.}}</h2>{{end}}<form action="{{.Data}}" method="get"><p><input type="text" name="q" value="{{.Page.Query}}"> <input type="submit" value="ok"></p></form></div>{{end}}
{{define "navigation"}}<div class="widget navigation">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul></div>{{end}}
{{define "categories"}}<div class="widget categories">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li{{if .Current}} class="category-current"{{end}}><a href="{{.URL}}">{{.Label}}</a>{{if .Count}} ({{.Count}}){{end}}</li>{{end}}</ul></div>{{end}}
{{define "lastposts"}}<div class="widget lastposts">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul></div>{{end}}
{{define "lastcomments"}}<div class="widget lastcomments">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul></div>{{end}}
{{define "subscribe"}}<div class="widget syndicate">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li><a type="{{.Type}}" href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul></div>{{end}}
{{define "text"}}<div class="widget text">{{with .Title}}<h2>{{.}}</h2>{{end}}{{.Data}}</div>{{end}}
{{define "tags"}}<div class="widget tags">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul></div>{{end}}
{{define "pages"}}<div class="widget pages">{{with .Title}}<h2>{{.}}</h2>{{end}}<ul>{{range .Data}}<li><a href="{{.URL}}">{{.Label}}</a></li>{{end}}</ul></div>{{end}}
`))

type link struct {
	URL     string
	Label   string
	Type    string
	Count   int
	Current bool
}

func limit(w Widget, def int) int {
	if n, err := strconv.Atoi(w.Settings["limit"]); err == nil && n > 0 {
		return n
	}
	return def
}

func published() *blog.PostStatus {
	return blog.StatusPtr(blog.PostPublished)
}

func (p *Plugin) search(_ context.Context, page *public.Page, _ Widget) (any, error) {
	return page.BaseURL, nil
}

func (p *Plugin) navigation(_ context.Context, page *public.Page, _ Widget) (any, error) {
	return []link{
		{URL: page.BaseURL, Label: "Home", Current: page.Type == ""},
		{URL: p.links.URLFor("archive"), Label: "Archives", Current: page.Type == "archive"},
	}, nil
}

func (p *Plugin) categories(ctx context.Context, page *public.Page, w Widget) (any, error) {
	cats, err := p.svc.Categories(ctx, page.Blog.ID)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, nil
	}
	showCount := w.Settings["postcount"] != "0"
	out := make([]link, 0, len(cats))
	for _, c := range cats {
		l := link{URL: p.links.URLFor("category", c.URL), Label: c.Title}
		if showCount {
			l.Count = c.NbPost
		}
		l.Current = page.Category != nil && page.Category.ID == c.ID
		out = append(out, l)
	}
	return out, nil
}

func (p *Plugin) lastPosts(ctx context.Context, page *public.Page, w Widget) (any, error) {
	f := blog.PostFilter{
		BlogID: page.Blog.ID, Type: blog.TypePost, Status: published(), Limit: limit(w, 10),
		CategoryURL: w.Settings["category"], Tag: w.Settings["tag"],
	}
	posts, err := p.svc.Posts(ctx, f)
	if err != nil || len(posts) == 0 {
		return nil, err
	}
	out := make([]link, 0, len(posts))
	for _, post := range posts {
		out = append(out, link{URL: p.links.Permalink(post.BlogID, post.Type, post.URL), Label: post.Title})
	}
	return out, nil
}

func (p *Plugin) lastComments(ctx context.Context, page *public.Page, w Widget) (any, error) {
	f := blog.CommentFilter{
		BlogID: page.Blog.ID, Status: blog.CommentStatusPtr(blog.CommentPublished), Limit: limit(w, 10),
	}
	if w.Settings["pings"] != "1" {
		f.Trackback = blog.BoolPtr(false)
	}
	comments, err := p.svc.Comments(ctx, f)
	if err != nil || len(comments) == 0 {
		return nil, err
	}
	// Newest first.
	sort.SliceStable(comments, func(i, j int) bool { return comments[i].Created.After(comments[j].Created) })
	out := make([]link, 0, len(comments))
	for _, c := range comments {
		post, err := p.svc.GetPost(ctx, c.BlogID, c.PostID)
		if err != nil {
			continue
		}
		out = append(out, link{
			URL:   p.links.Permalink(post.BlogID, post.Type, post.URL) + "#c" + strconv.FormatInt(c.ID, 10),
			Label: c.Author + " on " + post.Title,
		})
	}
	return out, nil
}

func (p *Plugin) subscribe(_ context.Context, _ *public.Page, w Widget) (any, error) {
	kind := w.Settings["type"]
	if kind != "rss2" {
		kind = "atom"
	}
	mime := "application/atom+xml"
	if kind == "rss2" {
		mime = "application/rss+xml"
	}
	return []link{
		{URL: p.links.URLFor("feed", kind), Label: "Entries feed", Type: mime},
		{URL: p.links.URLFor("feed", kind, "comments"), Label: "Comments feed", Type: mime},
	}, nil
}

func (p *Plugin) text(_ context.Context, _ *public.Page, w Widget) (any, error) {
	body := textPolicy.Sanitize(w.Settings["text"])
	if body == "" {
		return nil, nil
	}
	return template.HTML(body), nil // #nosec G203 -- sanitized
}

func (p *Plugin) tags(ctx context.Context, page *public.Page, w Widget) (any, error) {
	counts, err := p.svc.Tags(ctx, page.Blog.ID)
	if err != nil || len(counts) == 0 {
		return nil, err
	}
	out := make([]link, 0, len(counts))
	for name, n := range counts {
		out = append(out, link{URL: p.links.URLFor("tag", name), Label: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if n := limit(w, 20); len(out) > n {
		out = out[:n]
	}
	if w.Settings["order"] != "count" {
		sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	}
	return out, nil
}

func (p *Plugin) pages(ctx context.Context, page *public.Page, w Widget) (any, error) {
	pages, err := p.svc.Posts(ctx, blog.PostFilter{
		BlogID: page.Blog.ID, Type: blog.TypePage, Status: published(), Limit: limit(w, 50), Ascending: true,
	})
	if err != nil || len(pages) == 0 {
		return nil, err
	}
	out := make([]link, 0, len(pages))
	for _, pg := range pages {
		out = append(out, link{URL: p.links.Permalink(pg.BlogID, pg.Type, pg.URL), Label: pg.Title})
	}
	return out, nil
}
