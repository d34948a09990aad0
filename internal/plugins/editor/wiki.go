package editor

import (
	"html"
	"regexp"
	"strings"
)

var (
	wikiLink   = regexp.MustCompile(`\[([^|\]]+)\|([^|\]]+)(?:\|([a-z]{2}))?\]`)
	wikiURL    = regexp.MustCompile(`\[((?:https?|mailto|ftp):[^\]\s]+)\]`)
	wikiStrong = regexp.MustCompile(`__(.+?)__`)
	wikiEm     = regexp.MustCompile(`&#39;&#39;(.+?)&#39;&#39;`)
	wikiCode   = regexp.MustCompile(`@@(.+?)@@`)
	wikiIns    = regexp.MustCompile(`\+\+(.+?)\+\+`)
	wikiDel    = regexp.MustCompile(`--(.+?)--`)
	wikiQuote  = regexp.MustCompile(`\{\{(.+?)\}\}`)
	wikiImage  = regexp.MustCompile(`\(\(([^|)]+)(?:\|([^|)]*))?\)\)`)
)

// WikiToXHTML converts wiki syntax to XHTML:
//
//	!!! title      h3 (!! h4, ! h5)
//	* item / # item  lists
//	> text         blockquote
//	///            preformatted block delimiter
//	----           horizontal rule
//	__strong__ ''em'' @@code@@ ++ins++ --del-- {{quote}}
//	[label|url] [url] ((image|alt))
func WikiToXHTML(src string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	w := wikiWriter{}
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "///":
			w.flush()
			var pre []string
			for i++; i < len(lines) && strings.TrimSpace(lines[i]) != "///"; i++ {
				pre = append(pre, html.EscapeString(lines[i]))
			}
			w.out.WriteString("<pre>" + strings.Join(pre, "\n") + "</pre>\n")
		case trimmed == "":
			w.flush()
		case trimmed == "----":
			w.flush()
			w.out.WriteString("<hr />\n")
		case strings.HasPrefix(trimmed, "!"):
			w.flush()
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "!"))
			tag := map[int]string{1: "h5", 2: "h4"}[level]
			if tag == "" {
				tag = "h3"
			}
			text := strings.TrimSpace(strings.TrimLeft(trimmed, "!"))
			w.out.WriteString("<" + tag + ">" + inline(text) + "</" + tag + ">\n")
		case strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "# "):
			kind := "ul"
			if trimmed[0] == '#' {
				kind = "ol"
			}
			w.block(kind)
			w.items = append(w.items, inline(strings.TrimSpace(trimmed[2:])))
		case strings.HasPrefix(trimmed, ">"):
			w.block("blockquote")
			w.items = append(w.items, inline(strings.TrimSpace(trimmed[1:])))
		default:
			w.block("p")
			w.items = append(w.items, inline(trimmed))
		}
	}
	w.flush()
	return strings.TrimSpace(w.out.String()), nil
}

type wikiWriter struct {
	out   strings.Builder
	kind  string
	items []string
}

// block starts a block of kind, closing a different open one.
func (w *wikiWriter) block(kind string) {
	if w.kind != kind {
		w.flush()
		w.kind = kind
	}
}

func (w *wikiWriter) flush() {
	if w.kind == "" || len(w.items) == 0 {
		w.kind, w.items = "", nil
		return
	}
	switch w.kind {
	case "ul", "ol":
		w.out.WriteString("<" + w.kind + ">")
		for _, it := range w.items {
			w.out.WriteString("<li>" + it + "</li>")
		}
		w.out.WriteString("</" + w.kind + ">\n")
	case "blockquote":
		w.out.WriteString("<blockquote><p>" + strings.Join(w.items, "<br />") + "</p></blockquote>\n")
	default:
		w.out.WriteString("<p>" + strings.Join(w.items, "<br />") + "</p>\n")
	}
	w.kind, w.items = "", nil
}

func inline(s string) string {
	s = html.EscapeString(s)
	s = wikiCode.ReplaceAllString(s, "<code>$1</code>")
	s = wikiImage.ReplaceAllString(s, `<img src="$1" alt="$2" />`)
	s = wikiLink.ReplaceAllStringFunc(s, func(m string) string {
		g := wikiLink.FindStringSubmatch(m)
		attr := ""
		if g[3] != "" {
			attr = ` hreflang="` + g[3] + `"`
		}
		return `<a href="` + g[2] + `"` + attr + `>` + g[1] + `</a>`
	})
	s = wikiURL.ReplaceAllString(s, `<a href="$1">$1</a>`)
	s = wikiStrong.ReplaceAllString(s, "<strong>$1</strong>")
	s = wikiEm.ReplaceAllString(s, "<em>$1</em>")
	s = wikiIns.ReplaceAllString(s, "<ins>$1</ins>")
	s = wikiDel.ReplaceAllString(s, "<del>$1</del>")
	s = wikiQuote.ReplaceAllString(s, "<q>$1</q>")
	return s
}
