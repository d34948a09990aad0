// Package editor adds the markdown and wiki source formats.
package editor

import (
	"bytes"
	"context"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/JakeFAU/inkpress/internal/format"
	"github.com/JakeFAU/inkpress/internal/modules"
)

// ID is the module id.
const ID = "editor"

// Format names.
const (
	Markdown = "markdown"
	Wiki     = "wiki"
)

// Plugin registers its formats while active.
type Plugin struct {
	reg *format.Registry
	md  goldmark.Markdown
}

// New builds the plugin around the shared format registry.
func New(reg *format.Registry) *Plugin {
	return &Plugin{
		reg: reg,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// ID implements modules.Plugin.
func (p *Plugin) ID() string { return ID }

// Define implements modules.Plugin.
func (p *Plugin) Define() modules.Define {
	return modules.Define{
		Name:        "Editor formats",
		Desc:        "Write posts in Markdown or wiki syntax",
		Author:      "inkpress",
		Version:     "1.0",
		Type:        modules.TypePlugin,
		Permissions: "usage,contentadmin",
		Priority:    100,
	}
}

// Activate implements modules.Activator.
func (p *Plugin) Activate(context.Context) error {
	p.Register()
	return nil
}

// Deactivate implements modules.Deactivator.
func (p *Plugin) Deactivate(context.Context) error {
	p.reg.Unregister(Markdown)
	p.reg.Unregister(Wiki)
	return nil
}

// Register installs both formats; the server calls it at startup when the
// module is active.
func (p *Plugin) Register() {
	p.reg.Register(Markdown, p.markdown)
	p.reg.Register(Wiki, WikiToXHTML)
}

func (p *Plugin) markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
