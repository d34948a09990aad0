// Package widgets renders configurable sidebar blocks (search box, category
// list, latest posts, ...) into the nav and extra areas of the layout.
package widgets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"slices"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/modules"
	"github.com/JakeFAU/inkpress/internal/public"
)

// ID is the module id and the settings namespace of area layouts.
const ID = "widgets"

// Areas of the default layout.
const (
	AreaNav   = "nav"
	AreaExtra = "extra"
)

// ErrUnknownWidget is returned when saving a layout with an unknown type.
var ErrUnknownWidget = errors.New("unknown widget type")

// Widget is one configured block.
type Widget struct {
	Type  string `yaml:"type" json:"type"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	// HomeOnly hides the widget outside the first home page.
	HomeOnly bool              `yaml:"home_only,omitempty" json:"home_only,omitempty"`
	Settings map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Service is the part of blog.Service widgets read from.
type Service interface {
	Settings(ctx context.Context, blogID, namespace string) (map[string]string, error)
	SetSetting(ctx context.Context, blogID, namespace, key, value string) error
	DeleteSetting(ctx context.Context, blogID, namespace, key string) error
	Posts(ctx context.Context, f blog.PostFilter) ([]blog.Post, error)
	Comments(ctx context.Context, f blog.CommentFilter) ([]blog.Comment, error)
	GetPost(ctx context.Context, blogID string, id int64) (blog.Post, error)
	Categories(ctx context.Context, blogID string) ([]blog.Category, error)
	Tags(ctx context.Context, blogID string) (map[string]int, error)
}

// Links builds public URLs; public.Site satisfies it.
type Links interface {
	URLFor(typ string, args ...string) string
	Permalink(blogID, postType, postURL string) string
}

// Plugin renders widget areas.
type Plugin struct {
	svc    Service
	links  Links
	active func() bool
	logger *zap.Logger
}

// New builds the plugin. active reports whether the module is enabled;
// nil means always.
func New(svc Service, links Links, active func() bool, logger *zap.Logger) *Plugin {
	if active == nil {
		active = func() bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{svc: svc, links: links, active: active, logger: logger}
}

// ID implements modules.Plugin.
func (p *Plugin) ID() string { return ID }

// Define implements modules.Plugin.
func (p *Plugin) Define() modules.Define {
	return modules.Define{
		Name:        "Widgets",
		Desc:        "Sidebar blocks for the public layout",
		Author:      "inkpress",
		Version:     "1.0",
		Type:        modules.TypePlugin,
		Permissions: "admin",
		Priority:    10,
	}
}

// Defaults is the layout used until a blog saves its own.
func Defaults() map[string][]Widget {
	return map[string][]Widget{
		AreaNav: {
			{Type: "search", Title: "Search"},
			{Type: "navigation", Title: "Navigation"},
			{Type: "categories", Title: "Categories"},
			{Type: "tags", Title: "Tags", Settings: map[string]string{"limit": "20"}},
		},
		AreaExtra: {
			{Type: "subscribe", Title: "Subscribe"},
			{Type: "lastposts", Title: "Last entries", Settings: map[string]string{"limit": "5"}},
		},
	}
}

// Types lists the widget types.
func Types() []string {
	out := make([]string, 0, len(renderers))
	for name := range renderers {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Area returns the widgets of an area for a blog.
func (p *Plugin) Area(ctx context.Context, blogID, area string) ([]Widget, error) {
	stored, err := p.svc.Settings(ctx, blogID, ID)
	if err != nil {
		return nil, fmt.Errorf("load widgets: %w", err)
	}
	raw, ok := stored[area]
	if !ok {
		return Defaults()[area], nil
	}
	var list []Widget
	if err := yaml.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode %s widgets: %w", area, err)
	}
	return list, nil
}

// SetArea saves the widgets of an area.
func (p *Plugin) SetArea(ctx context.Context, blogID, area string, list []Widget) error {
	for _, w := range list {
		if _, ok := renderers[w.Type]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownWidget, w.Type)
		}
	}
	data, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode %s widgets: %w", area, err)
	}
	return p.svc.SetSetting(ctx, blogID, ID, area, string(data))
}

// ResetArea restores the default widgets of an area.
func (p *Plugin) ResetArea(ctx context.Context, blogID, area string) error {
	return p.svc.DeleteSetting(ctx, blogID, ID, area)
}

// TemplateFuncs implements render.FuncProvider.
func (p *Plugin) TemplateFuncs() map[string]any {
	return map[string]any{"widgets": p.Render}
}

// Render renders an area for a page. Failures are logged and render nothing
// so one broken widget does not break the page.
func (p *Plugin) Render(area string, page *public.Page) template.HTML {
	if page == nil || !p.active() {
		return ""
	}
	ctx := page.Context()
	list, err := p.Area(ctx, page.Blog.ID, area)
	if err != nil {
		p.logger.Warn("load widgets", zap.String("area", area), zap.Error(err))
		return ""
	}
	var buf bytes.Buffer
	for _, w := range list {
		if w.HomeOnly && (page.Type != "" || page.Pager.Current > 1) {
			continue
		}
		r, ok := renderers[w.Type]
		if !ok {
			continue
		}
		data, err := r(p, ctx, page, w)
		if err != nil {
			p.logger.Warn("render widget", zap.String("type", w.Type), zap.Error(err))
			continue
		}
		if data == nil {
			continue
		}
		if err := tmpl.ExecuteTemplate(&buf, w.Type, view{Widget: w, Page: page, Data: data}); err != nil {
			p.logger.Warn("render widget", zap.String("type", w.Type), zap.Error(err))
		}
	}
	return template.HTML(buf.String()) // #nosec G203 -- built by html/template
}

type view struct {
	Widget
	Page *public.Page
	Data any
}
