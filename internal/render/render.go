// Package render loads template documents from a stack of theme layers and
// executes them. HTML documents go through html/template and are wrapped in
// the _layout.html document when they define a "content" block; XML documents
// (feeds, RSD) go through text/template.
package render

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/watch"
)

// LayoutDocument wraps HTML documents that define a "content" template.
const LayoutDocument = "_layout.html"

// ErrNoDocument is returned when no layer holds the requested document.
var ErrNoDocument = errors.New("template document not found")

//go:embed all:theme
var embedded embed.FS

// Default returns the built-in theme.
func Default() fs.FS {
	sub, err := fs.Sub(embedded, "theme")
	if err != nil {
		panic(err)
	}
	return sub
}

// Layer is one directory of template documents. Earlier layers win.
type Layer struct {
	Name string
	FS   fs.FS
}

// DirLayer is a layer reading from a directory on disk.
func DirLayer(dir string) Layer {
	return Layer{Name: dir, FS: os.DirFS(dir)}
}

// FuncProvider contributes template functions. Functions are bound when a
// document is first parsed, so providers are registered before serving.
type FuncProvider interface {
	TemplateFuncs() map[string]any
}

type document struct {
	html    *htmltemplate.Template
	text    *texttemplate.Template
	entry   string
	modTime time.Time
}

// Renderer parses and caches template documents.
type Renderer struct {
	mu      sync.RWMutex
	layers  []Layer
	funcs   map[string]any
	cache   map[string]*document
	started time.Time
	logger  *zap.Logger
}

// New returns a renderer serving only the built-in theme until SetLayers is
// called.
func New(logger *zap.Logger, providers ...FuncProvider) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		layers:  []Layer{{Name: "default", FS: Default()}},
		funcs:   baseFuncs(),
		cache:   make(map[string]*document),
		started: time.Now().UTC().Truncate(time.Second),
		logger:  logger,
	}
	for _, p := range providers {
		r.AddFuncs(p)
	}
	return r
}

// SetLayers replaces the layer stack; the built-in theme is always appended
// as the last fallback.
func (r *Renderer) SetLayers(layers ...Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(append([]Layer(nil), layers...), Layer{Name: "default", FS: Default()})
	r.cache = make(map[string]*document)
}

// Layers lists layer names, highest priority first.
func (r *Renderer) Layers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.layers))
	for _, l := range r.layers {
		out = append(out, l.Name)
	}
	return out
}

// AddFuncs merges the provider's functions and drops parsed documents.
func (r *Renderer) AddFuncs(p FuncProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, fn := range p.TemplateFuncs() {
		r.funcs[name] = fn
	}
	r.cache = make(map[string]*document)
}

// Flush drops every parsed document.
func (r *Renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*document)
	r.logger.Debug("template cache flushed")
}

// Has reports whether some layer provides doc.
func (r *Renderer) Has(doc string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, _, err := r.find(doc)
	return err == nil
}

// ModTime returns the newest modification time of the files doc is built
// from. Embedded files report the process start time.
func (r *Renderer) ModTime(doc string) (time.Time, error) {
	d, err := r.load(doc)
	if err != nil {
		return time.Time{}, err
	}
	return d.modTime, nil
}

// Render executes doc with data into w.
func (r *Renderer) Render(w io.Writer, doc string, data any) error {
	d, err := r.load(doc)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if d.html != nil {
		err = d.html.ExecuteTemplate(&buf, d.entry, data)
	} else {
		err = d.text.ExecuteTemplate(&buf, d.entry, data)
	}
	if err != nil {
		return fmt.Errorf("execute %s: %w", doc, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// Watch flushes the cache whenever a file below dirs changes, until ctx
// ends.
func (r *Renderer) Watch(ctx context.Context, dirs []string) error {
	w, err := watch.New(dirs, watch.DefaultDelay, func(paths []string) {
		r.logger.Info("templates changed", zap.Int("files", len(paths)))
		r.Flush()
	}, r.logger)
	if err != nil {
		return err
	}
	go w.Run(ctx)
	return nil
}

func (r *Renderer) load(doc string) (*document, error) {
	r.mu.RLock()
	d, ok := r.cache[doc]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.cache[doc]; ok {
		return d, nil
	}
	d, err := r.parse(doc)
	if err != nil {
		return nil, err
	}
	r.cache[doc] = d
	return d, nil
}

type source struct {
	name    string
	body    string
	modTime time.Time
}

func (r *Renderer) read(layer Layer, name string) (source, error) {
	b, err := fs.ReadFile(layer.FS, name)
	if err != nil {
		return source{}, err
	}
	mod := r.started
	if info, err := fs.Stat(layer.FS, name); err == nil && !info.ModTime().IsZero() {
		mod = info.ModTime().UTC().Truncate(time.Second)
	}
	return source{name: name, body: string(b), modTime: mod}, nil
}

// find returns the first layer holding name.
func (r *Renderer) find(name string) (Layer, fs.FileInfo, error) {
	for _, l := range r.layers {
		info, err := fs.Stat(l.FS, name)
		if err == nil && !info.IsDir() {
			return l, info, nil
		}
	}
	return Layer{}, nil, fmt.Errorf("%w: %s", ErrNoDocument, name)
}

// partials collects the _*.html helper documents visible through the stack.
func (r *Renderer) partials() []string {
	seen := map[string]bool{}
	for _, l := range r.layers {
		entries, err := fs.ReadDir(l.FS, ".")
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, "_") || path.Ext(name) != ".html" {
				continue
			}
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Renderer) parse(doc string) (*document, error) {
	layer, _, err := r.find(doc)
	if err != nil {
		return nil, err
	}
	main, err := r.read(layer, doc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc, err)
	}
	if path.Ext(doc) != ".html" {
		t, err := texttemplate.New(doc).Funcs(texttemplate.FuncMap(r.funcs)).Parse(main.body)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", doc, err)
		}
		return &document{text: t, entry: doc, modTime: main.modTime}, nil
	}

	var sources []source
	for _, name := range r.partials() {
		if name == doc {
			continue
		}
		l, _, err := r.find(name)
		if err != nil {
			continue
		}
		src, err := r.read(l, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sources = append(sources, src)
	}
	// The document itself goes last so its blocks override layout defaults.
	sources = append(sources, main)

	root := htmltemplate.New(doc).Funcs(htmltemplate.FuncMap(r.funcs))
	d := &document{html: root, entry: doc}
	for _, src := range sources {
		t := root
		if src.name != doc {
			t = root.New(src.name)
		}
		if _, err := t.Parse(src.body); err != nil {
			return nil, fmt.Errorf("parse %s: %w", src.name, err)
		}
		if src.modTime.After(d.modTime) {
			d.modTime = src.modTime
		}
	}
	if root.Lookup("content") != nil && root.Lookup(LayoutDocument) != nil {
		d.entry = LayoutDocument
	}
	return d, nil
}
