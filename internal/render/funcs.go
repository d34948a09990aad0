package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

func baseFuncs() map[string]any {
	return map[string]any{
		"date":     formatDate,
		"rfc3339":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"rfc822":   func(t time.Time) string { return t.UTC().Format(time.RFC1123Z) },
		"xml":      escapeXML,
		"truncate": truncate,
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
		"join":     strings.Join,
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		// Overridden by the public site; kept so documents parse standalone.
		"url":        func(typ string, args ...string) string { return "/" + strings.Join(append([]string{typ}, args...), "/") },
		"widgets":    func(string, any) string { return "" },
		"breadcrumb": func(any) string { return "" },
	}
}

func formatDate(layout string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

func escapeXML(v any) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(fmt.Sprint(v)))
	return buf.String()
}

func truncate(n int, s string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
