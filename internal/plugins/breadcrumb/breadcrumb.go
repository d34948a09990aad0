// Package breadcrumb renders the "you are here" trail of public pages.
package breadcrumb

import (
	"context"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/modules"
	"github.com/JakeFAU/inkpress/internal/public"
)

// ID is the module id.
const ID = "breadcrumb"

// DefaultSeparator goes between crumbs unless the blog configures another.
const DefaultSeparator = " › "

// SettingsReader returns the module settings of a blog; modules.Manager
// satisfies it.
type SettingsReader interface {
	Settings(ctx context.Context, blogID, id string) (map[string]string, error)
}

// Links builds public URLs; public.Site satisfies it.
type Links interface {
	URLFor(typ string, args ...string) string
}

// Crumb is one step of the trail. The last crumb has no URL.
type Crumb struct {
	Label string
	URL   string
}

// Plugin builds trails.
type Plugin struct {
	settings SettingsReader
	links    Links
	active   func() bool
	logger   *zap.Logger
}

// New builds the plugin. settings may be nil, in which case the default
// separator is used. A nil active means always on.
func New(settings SettingsReader, links Links, active func() bool, logger *zap.Logger) *Plugin {
	if active == nil {
		active = func() bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{settings: settings, links: links, active: active, logger: logger}
}

// ID implements modules.Plugin.
func (p *Plugin) ID() string { return ID }

// Define implements modules.Plugin.
func (p *Plugin) Define() modules.Define {
	return modules.Define{
		Name:        "Breadcrumb",
		Desc:        "Location trail for public pages",
		Author:      "inkpress",
		Version:     "1.0",
		Type:        modules.TypePlugin,
		Permissions: "admin",
		Priority:    20,
		Settings: []modules.Setting{
			{Key: "separator", Default: DefaultSeparator, Desc: "Text between two crumbs"},
		},
	}
}

// TemplateFuncs implements render.FuncProvider.
func (p *Plugin) TemplateFuncs() map[string]any {
	return map[string]any{"breadcrumb": p.Render}
}

// Render returns the trail of page as HTML, or nothing on the first home page.
func (p *Plugin) Render(page *public.Page) template.HTML {
	if page == nil || !p.active() {
		return ""
	}
	crumbs := p.Trail(page)
	if len(crumbs) == 0 {
		return ""
	}
	sep := template.HTMLEscapeString(p.separator(page))
	var b strings.Builder
	b.WriteString(`<p id="breadcrumb">`)
	for i, c := range crumbs {
		if i > 0 {
			b.WriteString(sep)
		}
		label := template.HTMLEscapeString(c.Label)
		if c.URL == "" {
			b.WriteString("<span>" + label + "</span>")
			continue
		}
		b.WriteString(`<a href="` + template.HTMLEscapeString(c.URL) + `">` + label + "</a>")
	}
	b.WriteString("</p>")
	return template.HTML(b.String()) // #nosec G203 -- every part is escaped
}

func (p *Plugin) separator(page *public.Page) string {
	if p.settings == nil {
		return DefaultSeparator
	}
	values, err := p.settings.Settings(page.Context(), page.Blog.ID, ID)
	if err != nil {
		p.logger.Warn("load breadcrumb settings", zap.Error(err))
		return DefaultSeparator
	}
	if sep, ok := values["separator"]; ok && sep != "" {
		return sep
	}
	return DefaultSeparator
}

// Trail computes the crumbs of page.
func (p *Plugin) Trail(page *public.Page) []Crumb {
	home := Crumb{Label: "Home", URL: page.BaseURL}
	n := page.Pager.Current
	paged := func(c Crumb) []Crumb {
		if n <= 1 {
			return []Crumb{home, {Label: c.Label}}
		}
		return []Crumb{home, c, pageCrumb(n)}
	}

	switch page.Type {
	case "":
		if n <= 1 {
			return nil
		}
		return []Crumb{home, pageCrumb(n)}
	case "posts":
		return paged(Crumb{Label: "Entries", URL: p.links.URLFor("posts")})
	case "post":
		if page.Post == nil {
			return nil
		}
		out := []Crumb{home}
		if page.Post.CategoryTitle != "" {
			out = append(out, Crumb{Label: page.Post.CategoryTitle, URL: page.Post.CategoryLink})
		}
		return append(out, Crumb{Label: page.Post.Title})
	case "pages", "preview":
		if page.Post == nil {
			return nil
		}
		return []Crumb{home, {Label: page.Post.Title}}
	case "category":
		if page.Category == nil {
			return nil
		}
		return paged(Crumb{Label: page.Category.Title, URL: page.Category.Permalink})
	case "archive":
		archives := Crumb{Label: "Archives", URL: p.links.URLFor("archive")}
		if page.Date.IsZero() {
			return []Crumb{home, {Label: archives.Label}}
		}
		return []Crumb{home, archives, {Label: page.Date.Format("January 2006")}}
	case "search":
		return paged(Crumb{Label: `Search for "` + page.Query + `"`, URL: page.BaseURL + "?q=" + url.QueryEscape(page.Query)})
	case "tags":
		return []Crumb{home, {Label: "Tags"}}
	case "tag":
		tags := Crumb{Label: "Tags", URL: p.links.URLFor("tags")}
		if n <= 1 {
			return []Crumb{home, tags, {Label: page.Tag}}
		}
		return []Crumb{home, tags, {Label: page.Tag, URL: p.links.URLFor("tag", page.Tag)}, pageCrumb(n)}
	case "lang":
		return paged(Crumb{Label: "Language: " + page.Args.Value, URL: p.links.URLFor("lang", page.Args.Value)})
	case "404":
		return []Crumb{home, {Label: "Not found"}}
	default:
		return nil
	}
}

func pageCrumb(n int) Crumb {
	return Crumb{Label: "Page " + strconv.Itoa(n)}
}
