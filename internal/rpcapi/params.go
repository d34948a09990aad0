package rpcapi

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

func invalid(format string, args ...any) *xmlrpc.Fault {
	return xmlrpc.NewFault(FaultInvalid, format, args...)
}

// parseID reads a numeric id sent as a string or an int.
func parseID(v any, what string) (int64, error) {
	switch t := v.(type) {
	case int:
		if t > 0 {
			return int64(t), nil
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, xmlrpc.NewFault(FaultNotFound, "No such %s", what)
}

func str(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case []byte:
		return string(t), true
	}
	return fmt.Sprint(v), true
}

func integer(m map[string]any, key string) (int, bool) {
	switch t := m[key].(type) {
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case float64:
		return int(t), true
	}
	return 0, false
}

// flag reads booleans sent as bool, 0/1, or the "open"/"closed" strings used
// by comment and ping toggles.
func flag(m map[string]any, key string) (bool, bool) {
	switch t := m[key].(type) {
	case bool:
		return t, true
	case int:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "open":
			return true, true
		case "0", "false", "closed", "":
			return false, true
		}
	}
	return false, false
}

func date(m map[string]any, key string) (time.Time, bool) {
	switch t := m[key].(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case string:
		d, err := xmlrpc.ParseDateTime(t)
		return d, err == nil
	}
	return time.Time{}, false
}

func stringList(m map[string]any, key string) ([]string, bool) {
	switch t := m[key].(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		return splitList(t), true
	}
	return nil, false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func limit(v any, def int) int {
	switch t := v.(type) {
	case int:
		if t > 0 {
			return t
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func postStatusName(s blog.PostStatus) string {
	switch s {
	case blog.PostPublished:
		return "publish"
	case blog.PostScheduled:
		return "future"
	case blog.PostPending:
		return "pending"
	default:
		return "draft"
	}
}

func parsePostStatus(name string) (blog.PostStatus, bool) {
	switch name {
	case "publish", "private":
		return blog.PostPublished, true
	case "future":
		return blog.PostScheduled, true
	case "pending":
		return blog.PostPending, true
	case "draft":
		return blog.PostUnpublished, true
	}
	return 0, false
}

func commentStatusName(s blog.CommentStatus) string {
	switch s {
	case blog.CommentPublished:
		return "approve"
	case blog.CommentJunk:
		return "spam"
	default:
		return "hold"
	}
}

func parseCommentStatus(name string) (blog.CommentStatus, bool) {
	switch name {
	case "approve":
		return blog.CommentPublished, true
	case "hold":
		return blog.CommentPending, true
	case "spam":
		return blog.CommentJunk, true
	}
	return 0, false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
