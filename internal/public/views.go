package public

import (
	"context"
	"html/template"
	"strconv"
	"time"

	"github.com/JakeFAU/inkpress/internal/blog"
)

// viewer builds template views, caching categories and author names for
// one request.
type viewer struct {
	s       *Site
	ctx     context.Context
	b       blog.Blog
	base    string
	cats    map[int64]blog.Category
	authors map[string]string
}

func (s *Site) viewer(ctx context.Context, b blog.Blog) *viewer {
	return &viewer{s: s, ctx: ctx, b: b, base: s.blogBase(b), authors: map[string]string{}}
}

func (v *viewer) category(id int64) (blog.Category, bool) {
	if v.cats == nil {
		v.cats = map[int64]blog.Category{}
		cats, err := v.s.svc.Categories(v.ctx, v.b.ID)
		if err == nil {
			for _, c := range cats {
				v.cats[c.ID] = c
			}
		}
	}
	c, ok := v.cats[id]
	return c, ok
}

func (v *viewer) author(id string) string {
	if name, ok := v.authors[id]; ok {
		return name
	}
	name := id
	if u, err := v.s.svc.GetUser(v.ctx, id); err == nil {
		name = u.CommonName()
	}
	v.authors[id] = name
	return name
}

// post builds the list and feed view of p. Password protected posts lose
// their bodies and are flagged Protected.
func (v *viewer) post(p blog.Post) PostView {
	if p.Password == "" {
		return v.fullPost(p)
	}
	p.Password = ""
	p.Content, p.ContentXHTML = "", ""
	p.Excerpt, p.ExcerptXHTML = "", ""
	pv := v.fullPost(p)
	pv.Protected = true
	return pv
}

// fullPost builds the view of a post the visitor may read in full.
func (v *viewer) fullPost(p blog.Post) PostView {
	pv := PostView{
		Post:         p,
		Permalink:    v.s.postLink(v.base, p),
		TrackbackURL: v.s.link(v.base, "trackback", strconv.FormatInt(p.ID, 10)),
		Author:       v.author(p.UserID),
		HTML:         template.HTML(p.ContentXHTML), // #nosec G203 -- sanitized by the formatter
		ExcerptHTML:  template.HTML(p.ExcerptXHTML), // #nosec G203
	}
	if c, ok := v.category(p.CategoryID); ok {
		pv.CategoryTitle = c.Title
		pv.CategoryLink = v.s.link(v.base, "category", c.URL)
	}
	return pv
}

func (v *viewer) posts(list []blog.Post) []PostView {
	out := make([]PostView, 0, len(list))
	for _, p := range list {
		out = append(out, v.post(p))
	}
	return out
}

func (v *viewer) categoryView(c blog.Category) CategoryView {
	return CategoryView{
		Category:  c,
		Permalink: v.s.link(v.base, "category", c.URL),
		FeedURL:   v.s.link(v.base, "feed", "category", c.URL, "atom"),
	}
}

// comments builds views for comments of possibly several posts.
func (v *viewer) comments(list []blog.Comment) []CommentView {
	posts := map[int64]blog.Post{}
	out := make([]CommentView, 0, len(list))
	for _, c := range list {
		p, ok := posts[c.PostID]
		if !ok {
			var err error
			if p, err = v.s.svc.GetPost(v.ctx, v.b.ID, c.PostID); err != nil {
				continue
			}
			posts[c.PostID] = p
		}
		out = append(out, CommentView{
			Comment:   c,
			HTML:      template.HTML(c.Content), // #nosec G203 -- sanitized on insert
			PostTitle: p.Title,
			Permalink: v.s.postLink(v.base, p) + "#c" + strconv.FormatInt(c.ID, 10),
		})
	}
	return out
}

func (v *viewer) archives(months []blog.ArchiveMonth) []ArchiveView {
	out := make([]ArchiveView, 0, len(months))
	for _, m := range months {
		out = append(out, ArchiveView{
			ArchiveMonth: m,
			Date:         time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC),
			Permalink:    v.s.link(v.base, "archive", strconv.Itoa(m.Year), twoDigits(m.Month)),
		})
	}
	return out
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
