package public

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Args is what the dispatcher extracted from the request URL.
type Args struct {
	// Type is the registered type that matched ("" for the default handler).
	Type string
	// Value is the part after the representation, pagination stripped.
	Value string
	// Page is the 1-based page number from a trailing page/N segment.
	Page int
}

// HandlerFunc serves one URL type. Returning an *HTTPError selects the
// response status; any other error is a 500.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, args Args) error

type route struct {
	typ  string
	repr string
	re   *regexp.Regexp
	args int
	h    HandlerFunc
}

// Registry maps URL representations to handlers. Types are matched in
// registration order.
type Registry struct {
	mu     sync.RWMutex
	routes []route
	def    HandlerFunc
}

// NewRegistry returns an empty registry whose default handler answers 404.
func NewRegistry() *Registry {
	return &Registry{def: func(http.ResponseWriter, *http.Request, Args) error {
		return NotFound()
	}}
}

// Register adds a type, or replaces the representation and handler of an
// existing one in place. repr is a regular expression matched at the start
// of the request part and may hold groups of its own, except one named
// args.
func (g *Registry) Register(typ, repr string, h HandlerFunc) error {
	if typ == "" || h == nil {
		return errors.New("register url: type and handler are required")
	}
	re, err := regexp.Compile(`^(?:` + repr + `)(?:/(?P<args>.*))?$`)
	if err != nil {
		return fmt.Errorf("register url %s: %w", typ, err)
	}
	args := re.SubexpIndex("args")
	if args != re.NumSubexp() {
		return fmt.Errorf("register url %s: group name args is reserved", typ)
	}
	rt := route{typ: typ, repr: repr, re: re, args: args, h: h}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.routes {
		if g.routes[i].typ == typ {
			g.routes[i] = rt
			return nil
		}
	}
	g.routes = append(g.routes, rt)
	return nil
}

// Unregister removes a type.
func (g *Registry) Unregister(typ string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.routes {
		if g.routes[i].typ == typ {
			g.routes = append(g.routes[:i], g.routes[i+1:]...)
			return
		}
	}
}

// SetDefault installs the handler used for the empty part and for parts no
// type matches.
func (g *Registry) SetDefault(h HandlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.def = h
}

// Types lists registered types in match order.
func (g *Registry) Types() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.routes))
	for _, rt := range g.routes {
		out = append(out, rt.typ)
	}
	return out
}

// Representation returns the representation registered for typ.
func (g *Registry) Representation(typ string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, rt := range g.routes {
		if rt.typ == typ {
			return rt.repr, true
		}
	}
	return "", false
}

// Resolve finds the handler for a request part. The empty part and parts no
// type claims go to the default handler, the latter with the whole part as
// value.
func (g *Registry) Resolve(part string) (string, HandlerFunc, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if part == "" {
		return "", g.def, ""
	}
	for _, rt := range g.routes {
		if m := rt.re.FindStringSubmatch(part); m != nil {
			return rt.typ, rt.h, m[rt.args]
		}
	}
	return "", g.def, part
}

var pagePattern = regexp.MustCompile(`(?:^|/)page/([0-9]+)$`)

// SplitPage strips a trailing page/N segment. ok is false when N is not a
// valid page number.
func SplitPage(value string) (rest string, page int, ok bool) {
	m := pagePattern.FindStringSubmatchIndex(value)
	if m == nil {
		return value, 1, true
	}
	n, err := strconv.Atoi(value[m[2]:m[3]])
	if err != nil || n < 1 {
		return value, 0, false
	}
	return strings.TrimSuffix(value[:m[0]], "/"), n, true
}
