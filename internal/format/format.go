// Package format converts post sources written in a named syntax (xhtml,
// plain text, markdown, wiki) into sanitized XHTML.
package format

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// ErrUnknownFormat is returned for names nothing registered.
var ErrUnknownFormat = errors.New("unknown format")

// Func converts a source document to XHTML.
type Func func(src string) (string, error)

// Registry maps format names to converters. It implements blog.Formatter.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]Func
	policy *bluemonday.Policy
}

// NewRegistry returns a registry holding the built-in xhtml and text formats.
func NewRegistry() *Registry {
	r := &Registry{
		funcs:  make(map[string]Func),
		policy: bluemonday.UGCPolicy(),
	}
	r.Register("xhtml", r.xhtml)
	r.Register("text", r.text)
	return r
}

// Register adds or replaces a format.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Unregister removes a format. The xhtml format cannot be removed.
func (r *Registry) Unregister(name string) {
	if name == "xhtml" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.funcs, name)
}

// Names lists registered formats alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Format converts src with the named format and sanitizes the result.
func (r *Registry) Format(name, src string) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	out, err := fn(src)
	if err != nil {
		return "", fmt.Errorf("format %s: %w", name, err)
	}
	return r.Sanitize(out), nil
}

// Sanitize applies the user generated content policy.
func (r *Registry) Sanitize(s string) string {
	return strings.TrimSpace(r.policy.Sanitize(s))
}

func (r *Registry) xhtml(src string) (string, error) {
	return src, nil
}

func (r *Registry) text(src string) (string, error) {
	return Paragraphs(src), nil
}

// Paragraphs escapes plain text and wraps blank-line separated blocks in <p>,
// turning single newlines into <br />.
func Paragraphs(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	var b strings.Builder
	for _, block := range strings.Split(src, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(lines[i]))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br />"))
		b.WriteString("</p>\n")
	}
	return strings.TrimSpace(b.String())
}
