package blog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	slugStrip       = regexp.MustCompile(`[^a-z0-9/_-]+`)
	slugDashes      = regexp.MustCompile(`-{2,}`)
	wordSplit       = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	trailingCounter = regexp.MustCompile(`^(.*?)-(\d+)$`)
)

// stripMarks removes diacritics ("é" -> "e").
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify lowercases s, strips accents and replaces everything that is not a
// letter, digit, dash or underscore with a dash. Slashes are kept when
// keepSlash is set so dated post URLs survive.
func Slugify(s string, keepSlash bool) string {
	s = strings.ToLower(stripMarks(strings.TrimSpace(s)))
	if !keepSlash {
		s = strings.ReplaceAll(s, "/", "-")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, s)
	s = slugStrip.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-/")
}

// Words builds the normalized, deduplicated word list used by search. Words
// shorter than three characters are dropped.
func Words(texts ...string) string {
	seen := map[string]struct{}{}
	for _, text := range texts {
		text = tagPattern.ReplaceAllString(text, " ")
		text = strings.ToLower(stripMarks(text))
		for _, w := range wordSplit.Split(text, -1) {
			if len([]rune(w)) < 3 {
				continue
			}
			seen[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// SearchWords normalizes a user query the same way Words does.
func SearchWords(q string) []string {
	w := Words(q)
	if w == "" {
		return nil
	}
	return strings.Split(w, " ")
}

// nextURL bumps a trailing counter ("hello" -> "hello-1", "hello-1" -> "hello-2").
func nextURL(u string) string {
	if m := trailingCounter.FindStringSubmatch(u); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1] + "-" + strconv.Itoa(n+1)
	}
	return u + "-1"
}
