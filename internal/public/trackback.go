package public

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
)

// trackback receives trackback pings on trackback/<post id>.
func (s *Site) trackback(w http.ResponseWriter, r *http.Request, a Args) error {
	id, err := strconv.ParseInt(a.Value, 10, 64)
	if err != nil || a.Page > 1 {
		return NotFound()
	}
	if r.Method != http.MethodPost {
		return writeTrackback(w, "Trackbacks must be sent with POST.")
	}
	if err := r.ParseForm(); err != nil {
		return writeTrackback(w, "Malformed request.")
	}
	source := r.PostForm.Get("url")
	if source == "" {
		return writeTrackback(w, "No URL parameter found.")
	}
	if !s.allow(r) {
		return writeTrackback(w, "Too many trackbacks, try again later.")
	}
	post, err := s.svc.GetPost(r.Context(), s.blogID, id)
	if err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			return writeTrackback(w, "No such post.")
		}
		return err
	}
	title := r.PostForm.Get("title")
	if name := r.PostForm.Get("blog_name"); name != "" && title == "" {
		title = name
	}
	_, err = s.svc.AddPingback(r.Context(), s.blogID, post, source, title, r.PostForm.Get("excerpt"))
	switch {
	case errors.Is(err, blog.ErrDuplicate):
		return writeTrackback(w, "The trackback has already been registered.")
	case errors.Is(err, blog.ErrForbidden):
		return writeTrackback(w, "Trackbacks are closed on this post.")
	case err != nil:
		s.logger.Warn("trackback failed", zap.Int64("post_id", id), zap.Error(err))
		return writeTrackback(w, "Trackback could not be registered.")
	}
	return writeTrackback(w, "")
}

// writeTrackback answers with the trackback response document. An empty
// message means success.
func writeTrackback(w http.ResponseWriter, msg string) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if msg == "" {
		buf.WriteString("<response>\n<error>0</error>\n</response>\n")
	} else {
		buf.WriteString("<response>\n<error>1</error>\n<message>")
		_ = xml.EscapeText(&buf, []byte(msg))
		buf.WriteString("</message>\n</response>\n")
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}
