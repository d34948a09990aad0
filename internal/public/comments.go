package public

import (
	"errors"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
)

const passwordCookiePrefix = "inkpress_pw_"

func passwordCookie(id int64) string {
	return passwordCookiePrefix + strconv.FormatInt(id, 10)
}

func (s *Site) passwordDigest(id int64, password string) string {
	return s.hasher.Hash([]byte(strconv.FormatInt(id, 10) + ":" + password))
}

// unlocked reports whether the visitor sent the password of a protected post.
func (s *Site) unlocked(r *http.Request, p blog.Post) bool {
	c, err := r.Cookie(passwordCookie(p.ID))
	return err == nil && s.hasher.Equal(c.Value, s.passwordDigest(p.ID, p.Password))
}

// passwordForm asks for the password of a protected post. A correct answer
// sets the cookie and redirects back to the post.
func (s *Site) passwordForm(w http.ResponseWriter, r *http.Request, p *Page) error {
	post := p.Post
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return &HTTPError{Code: http.StatusBadRequest}
		}
		pw := r.PostForm.Get("password")
		digest := s.passwordDigest(post.ID, pw)
		if pw != "" && s.hasher.Equal(digest, s.passwordDigest(post.ID, post.Password)) {
			http.SetCookie(w, &http.Cookie{
				Name:     passwordCookie(post.ID),
				Value:    digest,
				Path:     s.basePath,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			http.Redirect(w, r, post.Permalink, http.StatusSeeOther)
			return nil
		}
		p.Error = "Wrong password."
	}
	// Nothing of the post leaks to the form.
	p.Post = &PostView{Post: blog.Post{ID: post.ID, Title: post.Title, Type: post.Type}, Permalink: post.Permalink}
	w.Header().Set("Cache-Control", "no-cache")
	return s.respond(w, r, http.StatusOK, "password.html", htmlType, p)
}

// comment handles the comment form of p. done reports that a response has
// been written; otherwise the post is rendered with the form state in p.
func (s *Site) comment(w http.ResponseWriter, r *http.Request, p *Page) (bool, error) {
	if err := r.ParseForm(); err != nil {
		return false, &HTTPError{Code: http.StatusBadRequest}
	}
	post := p.Post
	if !post.OpenComment {
		return false, &HTTPError{Code: http.StatusForbidden, Msg: "comments are closed"}
	}
	f := CommentForm{
		Name:    strings.TrimSpace(r.PostForm.Get("c_name")),
		Email:   strings.TrimSpace(r.PostForm.Get("c_mail")),
		Site:    strings.TrimSpace(r.PostForm.Get("c_site")),
		Content: strings.TrimSpace(r.PostForm.Get("c_content")),
	}
	p.Form = f
	if r.PostForm.Get("preview") != "" {
		p.Form.PreviewHTML = template.HTML(s.policy.Sanitize(f.Content)) // #nosec G203 -- sanitized
		return false, nil
	}
	if !s.allow(r) {
		return false, &HTTPError{Code: http.StatusTooManyRequests, Msg: "too many comments, try again later"}
	}
	c, err := s.svc.AddComment(r.Context(), blog.Comment{
		PostID:  post.ID,
		BlogID:  s.blogID,
		Author:  f.Name,
		Email:   f.Email,
		Site:    f.Site,
		Content: f.Content,
		IP:      clientIP(r),
	}, nil)
	switch {
	case errors.Is(err, blog.ErrInvalid), errors.Is(err, blog.ErrForbidden):
		p.Error = err.Error()
		return false, nil
	case err != nil:
		return false, err
	}
	s.logger.Info("comment added",
		zap.String("blog_id", s.blogID),
		zap.Int64("post_id", post.ID),
		zap.Int64("comment_id", c.ID),
		zap.Stringer("status", c.Status),
	)
	pub := "0"
	if c.Status == blog.CommentPublished {
		pub = "1"
	}
	http.Redirect(w, r, appendQuery(post.Permalink, "pub", pub), http.StatusSeeOther)
	return true, nil
}

func (s *Site) allow(r *http.Request) bool {
	return s.throttle == nil || s.throttle.Allow(clientIP(r))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
