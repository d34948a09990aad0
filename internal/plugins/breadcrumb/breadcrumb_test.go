package breadcrumb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/plugins/breadcrumb"
	"github.com/JakeFAU/inkpress/internal/public"
)

const base = "http://blog.test/"

type links struct{}

func (links) URLFor(typ string, args ...string) string {
	out := base + typ
	for _, a := range args {
		out += "/" + a
	}
	return out
}

type settings map[string]string

func (s settings) Settings(context.Context, string, string) (map[string]string, error) {
	if s == nil {
		return nil, errors.New("boom")
	}
	return s, nil
}

func page(typ string, n int) *public.Page {
	return &public.Page{Blog: blog.Blog{ID: "main"}, Type: typ, BaseURL: base, Pager: public.Pager{Current: n}}
}

func TestTrail(t *testing.T) {
	t.Parallel()
	p := breadcrumb.New(nil, links{}, nil, nil)
	home := breadcrumb.Crumb{Label: "Home", URL: base}

	post := page("post", 1)
	post.Post = &public.PostView{Post: blog.Post{Title: "Hello"}, CategoryTitle: "Go", CategoryLink: base + "category/go"}
	cat := page("category", 2)
	cat.Category = &public.CategoryView{Category: blog.Category{Title: "Go"}, Permalink: base + "category/go"}
	month := page("archive", 1)
	month.Date = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	search := page("search", 1)
	search.Query = "go lang"
	tag := page("tag", 2)
	tag.Tag = "golang"

	tests := []struct {
		name string
		page *public.Page
		want []breadcrumb.Crumb
	}{
		{"home", page("", 1), nil},
		{"home page 3", page("", 3), []breadcrumb.Crumb{home, {Label: "Page 3"}}},
		{"post with category", post, []breadcrumb.Crumb{home, {Label: "Go", URL: base + "category/go"}, {Label: "Hello"}}},
		{"category page 2", cat, []breadcrumb.Crumb{home, {Label: "Go", URL: base + "category/go"}, {Label: "Page 2"}}},
		{"archive index", page("archive", 1), []breadcrumb.Crumb{home, {Label: "Archives"}}},
		{"archive month", month, []breadcrumb.Crumb{home, {Label: "Archives", URL: base + "archive"}, {Label: "March 2024"}}},
		{"search", search, []breadcrumb.Crumb{home, {Label: `Search for "go lang"`}}},
		{"tags", page("tags", 1), []breadcrumb.Crumb{home, {Label: "Tags"}}},
		{"tag page 2", tag, []breadcrumb.Crumb{
			home, {Label: "Tags", URL: base + "tags"}, {Label: "golang", URL: base + "tag/golang"}, {Label: "Page 2"},
		}},
		{"not found", page("404", 1), []breadcrumb.Crumb{home, {Label: "Not found"}}},
		{"unknown", page("rsd", 1), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Trail(tt.page))
		})
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	post := page("post", 1)
	post.Post = &public.PostView{Post: blog.Post{Title: "A <b> title"}}

	p := breadcrumb.New(settings{"separator": " / "}, links{}, nil, nil)
	assert.Equal(t,
		`<p id="breadcrumb"><a href="http://blog.test/">Home</a> / <span>A &lt;b&gt; title</span></p>`,
		string(p.Render(post)))

	// Settings failures fall back to the default separator.
	p = breadcrumb.New(settings(nil), links{}, nil, nil)
	assert.Contains(t, string(p.Render(post)), breadcrumb.DefaultSeparator)

	assert.Empty(t, p.Render(page("", 1)))
	assert.Empty(t, p.Render(nil))

	off := breadcrumb.New(nil, links{}, func() bool { return false }, nil)
	assert.Empty(t, off.Render(post))
}
