package pingback

import (
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
)

// ExternalLinks returns the distinct absolute http(s) links of an XHTML
// fragment, resolved against source, leaving out links back into the site
// that hosts source.
func ExternalLinks(content, source string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	doc, err := htmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}
	base, err := url.Parse(source)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range htmlquery.Find(doc, "//a[@href]") {
		ref, err := url.Parse(strings.TrimSpace(htmlquery.SelectAttr(n, "href")))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if strings.EqualFold(abs.Host, base.Host) {
			continue
		}
		abs.Fragment = ""
		link := abs.String()
		if !seen[link] {
			seen[link] = true
			out = append(out, link)
		}
	}
	return out
}
