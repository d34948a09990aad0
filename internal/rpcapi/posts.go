package rpcapi

import (
	"context"
	"errors"
	"html"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

const defaultRecent = 10

var (
	bloggerTitle = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
)

// splitBloggerContent pulls the optional <title> element out of a Blogger
// content string. Without one the title is the first words of the text.
func splitBloggerContent(content string) (title, body string) {
	if m := bloggerTitle.FindStringSubmatchIndex(content); m != nil {
		title = strings.TrimSpace(content[m[2]:m[3]])
		body = strings.TrimSpace(content[:m[0]] + content[m[1]:])
		return title, body
	}
	text := strings.Join(strings.Fields(html.UnescapeString(tagPattern.ReplaceAllString(content, " "))), " ")
	return cut(text, 50), strings.TrimSpace(content)
}

func cut(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	s = string(r[:n])
	if i := strings.LastIndex(s, " "); i > 0 {
		s = s[:i]
	}
	return s + "..."
}

// newPostDefaults returns an empty post owned by the session user.
func (a *API) newPostDefaults(ctx context.Context, s session, typ string) blog.Post {
	p := blog.Post{
		BlogID:        s.blog.ID,
		UserID:        s.user.ID,
		Type:          typ,
		Format:        s.user.DefaultFormat,
		Lang:          s.blog.Lang,
		OpenComment:   true,
		OpenTrackback: true,
	}
	if p.Format == "" {
		p.Format = "xhtml"
	}
	settings, err := a.svc.Settings(ctx, s.blog.ID, blog.NamespaceSystem)
	if err == nil {
		if v, ok := settings[blog.SettingAllowComment]; ok {
			p.OpenComment = v != "0" && v != "false"
		}
		if v, ok := settings[blog.SettingAllowTB]; ok {
			p.OpenTrackback = v != "0" && v != "false"
		}
	}
	return p
}

// applyStruct copies the fields of a MetaWeblog/WordPress content struct
// onto p. Absent members leave p unchanged.
func (a *API) applyStruct(ctx context.Context, s session, p *blog.Post, m map[string]any) error {
	if v, ok := str(m, "title"); ok {
		p.Title = v
	}
	if v, ok := str(m, "description"); ok {
		p.Content = v
	}
	if more, ok := str(m, "mt_text_more"); ok && strings.TrimSpace(more) != "" {
		p.Content = strings.TrimSpace(p.Content) + "\n" + more
	}
	if v, ok := str(m, "mt_excerpt"); ok {
		p.Excerpt = v
	}
	if v, ok := str(m, "mt_convert_breaks"); ok && slices.Contains(a.svc.Formats(), v) {
		p.Format = v
	}
	if v, ok := flag(m, "mt_allow_comments"); ok {
		p.OpenComment = v
	}
	if v, ok := flag(m, "mt_allow_pings"); ok {
		p.OpenTrackback = v
	}
	if v, ok := date(m, "dateCreated"); ok {
		p.Created = v
	} else if v, ok := date(m, "date_created_gmt"); ok {
		p.Created = v
	}
	if v, ok := str(m, "wp_slug"); ok && strings.TrimSpace(v) != "" {
		p.URL = v
	}
	if v, ok := str(m, "wp_password"); ok {
		p.Password = v
	}
	if v, ok := stringList(m, "mt_keywords"); ok {
		p.Tags = v
	}
	if v, ok := str(m, "wp_author_id"); ok && v != "" && v != p.UserID {
		if !s.can(blog.PermContentAdmin) {
			return xmlrpc.NewFault(FaultPermission, "You are not allowed to change the author")
		}
		p.UserID = v
	}
	if names, ok := stringList(m, "categories"); ok {
		id, err := a.categoryByName(ctx, s.blog.ID, names)
		if err != nil {
			return err
		}
		p.CategoryID = id
	}
	return nil
}

// categoryByName maps the first known category title in names to its id.
func (a *API) categoryByName(ctx context.Context, blogID string, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	cats, err := a.svc.Categories(ctx, blogID)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		for _, c := range cats {
			if strings.EqualFold(c.Title, name) || c.URL == name {
				return c.ID, nil
			}
		}
	}
	return 0, nil
}

// status picks the stored status from an explicit status member or the
// publish flag. Users without publish rights can only submit for review.
func status(s session, m map[string]any, key string, publish bool) (blog.PostStatus, error) {
	st := blog.PostUnpublished
	if publish {
		st = blog.PostPublished
	}
	if name, ok := str(m, key); ok && name != "" {
		parsed, known := parsePostStatus(name)
		if !known {
			return 0, invalid("Unknown status %q", name)
		}
		st = parsed
	}
	if (st == blog.PostPublished || st == blog.PostScheduled) && !s.can(blog.PermPublish, blog.PermContentAdmin) {
		st = blog.PostPending
	}
	return st, nil
}

func (a *API) newPost(ctx context.Context, s session, typ string, m map[string]any, publish bool) (blog.Post, error) {
	p := a.newPostDefaults(ctx, s, typ)
	if err := a.applyStruct(ctx, s, &p, m); err != nil {
		return blog.Post{}, err
	}
	st, err := status(s, m, typ+"_status", publish)
	if err != nil {
		return blog.Post{}, err
	}
	p.Status = st
	return a.svc.NewPost(ctx, p)
}

// loadPost fetches a post of the given type the session may modify.
func (a *API) loadPost(ctx context.Context, s session, id int64, typ string, write bool) (blog.Post, error) {
	p, err := a.svc.GetPost(ctx, s.blog.ID, id)
	if err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			return blog.Post{}, xmlrpc.NewFault(FaultNotFound, "No such %s", typ)
		}
		return blog.Post{}, err
	}
	if typ != "" && p.Type != typ {
		return blog.Post{}, xmlrpc.NewFault(FaultNotFound, "No such %s", typ)
	}
	if p.UserID != s.user.ID && !s.can(blog.PermContentAdmin) {
		if write || !p.Published() {
			return blog.Post{}, xmlrpc.NewFault(FaultPermission, "You are not allowed to access this %s", typ)
		}
	}
	return p, nil
}

func (a *API) editPost(ctx context.Context, s session, id int64, typ string, m map[string]any, publish bool) (blog.Post, error) {
	p, err := a.loadPost(ctx, s, id, typ, true)
	if err != nil {
		return blog.Post{}, err
	}
	if err := a.applyStruct(ctx, s, &p, m); err != nil {
		return blog.Post{}, err
	}
	st, err := status(s, m, typ+"_status", publish)
	if err != nil {
		return blog.Post{}, err
	}
	p.Status = st
	return a.svc.UpdatePost(ctx, p)
}

func (a *API) deletePost(ctx context.Context, s session, id int64, typ string) error {
	if err := s.require(blog.PermDelete, blog.PermContentAdmin); err != nil {
		return err
	}
	p, err := a.loadPost(ctx, s, id, typ, true)
	if err != nil {
		return err
	}
	return a.svc.DeletePost(ctx, s.blog.ID, p.ID)
}

func (a *API) recentPosts(ctx context.Context, s session, typ string, n int) ([]blog.Post, error) {
	f := blog.PostFilter{BlogID: s.blog.ID, Type: typ, Limit: n}
	if !s.can(blog.PermContentAdmin) {
		f.UserID = s.user.ID
	}
	return a.svc.Posts(ctx, f)
}

func (a *API) postStruct(ctx context.Context, s session, p blog.Post) map[string]any {
	var cats []any
	if p.CategoryID != 0 {
		if c, err := a.svc.GetCategory(ctx, s.blog.ID, p.CategoryID); err == nil {
			cats = append(cats, c.Title)
		}
	}
	if cats == nil {
		cats = []any{}
	}
	author := p.UserID
	if u, err := a.svc.GetUser(ctx, p.UserID); err == nil {
		author = u.CommonName()
	}
	link := a.urls.PostURL(s.blog, p)
	id := strconv.FormatInt(p.ID, 10)
	out := map[string]any{
		"dateCreated":            p.Created,
		"date_created_gmt":       p.Created,
		"userid":                 p.UserID,
		"title":                  p.Title,
		"description":            p.Content,
		"mt_excerpt":             p.Excerpt,
		"mt_text_more":           "",
		"mt_allow_comments":      boolInt(p.OpenComment),
		"mt_allow_pings":         boolInt(p.OpenTrackback),
		"mt_convert_breaks":      p.Format,
		"mt_keywords":            strings.Join(p.Tags, ", "),
		"link":                   link,
		"permaLink":              link,
		"categories":             cats,
		"wp_slug":                p.URL,
		"wp_password":            p.Password,
		"wp_author":              author,
		"wp_author_id":           p.UserID,
		"wp_author_display_name": author,
	}
	if p.Type == blog.TypePage {
		out["page_id"] = id
		out["page_status"] = postStatusName(p.Status)
		out["wp_page_parent_id"] = 0
		out["wp_page_parent_title"] = ""
		out["wp_page_order"] = 0
		out["wp_page_template"] = "default"
		out["text_more"] = ""
		out["excerpt"] = p.Excerpt
	} else {
		out["postid"] = id
		out["post_status"] = postStatusName(p.Status)
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (a *API) bloggerMethods() []method {
	return []method{
		{
			name: "blogger.newPost",
			sigs: [][]string{{"string", "string", "string", "string", "string", "string", "boolean"}},
			help: "New post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				title, body := splitBloggerContent(p[4].(string))
				post, err := a.newPost(ctx, s, blog.TypePost, map[string]any{"title": title, "description": body}, p[5].(bool))
				if err != nil {
					return nil, err
				}
				return strconv.FormatInt(post.ID, 10), nil
			},
		},
		{
			name: "blogger.editPost",
			sigs: [][]string{{"boolean", "string", "string", "string", "string", "string", "boolean"}},
			help: "Edit a post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[1], "post")
				if err != nil {
					return nil, err
				}
				title, body := splitBloggerContent(p[4].(string))
				if _, err := a.editPost(ctx, s, id, blog.TypePost, map[string]any{"title": title, "description": body}, p[5].(bool)); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "blogger.getPost",
			sigs: [][]string{{"struct", "string", "string", "string", "string"}},
			help: "Return a post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[1], "post")
				if err != nil {
					return nil, err
				}
				post, err := a.loadPost(ctx, s, id, blog.TypePost, false)
				if err != nil {
					return nil, err
				}
				return bloggerStruct(post), nil
			},
		},
		{
			name: "blogger.deletePost",
			sigs: [][]string{{"boolean", "string", "string", "string", "string", "boolean"}},
			help: "Delete a post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[1], "post")
				if err != nil {
					return nil, err
				}
				if err := a.deletePost(ctx, s, id, blog.TypePost); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "blogger.getRecentPosts",
			sigs: [][]string{{"array", "string", "string", "string", "string", "int"}},
			help: "Return a list of recent posts",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				posts, err := a.recentPosts(ctx, s, blog.TypePost, limit(p[4], defaultRecent))
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(posts))
				for _, post := range posts {
					out = append(out, bloggerStruct(post))
				}
				return out, nil
			},
		},
		{
			name: "blogger.getUsersBlogs",
			sigs: [][]string{{"array", "string", "string", "string"}},
			help: "Return user's blogs",
			fn: func(ctx context.Context, p []any) (any, error) {
				return a.usersBlogs(ctx, p[1].(string), p[2].(string))
			},
		},
		{
			name: "blogger.getUserInfo",
			sigs: [][]string{{"struct", "string", "string", "string"}},
			help: "User information",
			fn: func(ctx context.Context, p []any) (any, error) {
				u, err := a.login(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"userid":    u.ID,
					"firstname": u.Firstname,
					"lastname":  u.Name,
					"nickname":  u.DisplayName,
					"email":     u.Email,
					"url":       u.URL,
				}, nil
			},
		},
	}
}

func bloggerStruct(p blog.Post) map[string]any {
	return map[string]any{
		"dateCreated": p.Created,
		"userid":      p.UserID,
		"postid":      strconv.FormatInt(p.ID, 10),
		"content":     "<title>" + html.EscapeString(p.Title) + "</title>" + p.Content,
	}
}

func (a *API) usersBlogs(ctx context.Context, userID, password string) ([]any, error) {
	u, err := a.login(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	blogs, err := a.svc.UserBlogs(ctx, u)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(blogs))
	for _, b := range blogs {
		out = append(out, map[string]any{
			"blogid":   b.ID,
			"blogName": b.Name,
			"url":      a.urls.BlogURL(b),
			"xmlrpc":   a.urls.XMLRPCURL(b),
			"isAdmin":  u.Can(b.ID, blog.PermAdmin),
		})
	}
	return out, nil
}

func (a *API) metaWeblogMethods() []method {
	return []method{
		{
			name: "metaWeblog.newPost",
			sigs: [][]string{{"string", "string", "string", "string", "struct", "boolean"}},
			help: "New post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				post, err := a.newPost(ctx, s, blog.TypePost, p[3].(map[string]any), p[4].(bool))
				if err != nil {
					return nil, err
				}
				return strconv.FormatInt(post.ID, 10), nil
			},
		},
		{
			name: "metaWeblog.editPost",
			sigs: [][]string{{"boolean", "string", "string", "string", "struct", "boolean"}},
			help: "Edit a post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[0], "post")
				if err != nil {
					return nil, err
				}
				if _, err := a.editPost(ctx, s, id, blog.TypePost, p[3].(map[string]any), p[4].(bool)); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "metaWeblog.getPost",
			sigs: [][]string{{"struct", "string", "string", "string"}},
			help: "Return a post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[0], "post")
				if err != nil {
					return nil, err
				}
				post, err := a.loadPost(ctx, s, id, blog.TypePost, false)
				if err != nil {
					return nil, err
				}
				return a.postStruct(ctx, s, post), nil
			},
		},
		{
			name: "metaWeblog.getRecentPosts",
			sigs: [][]string{{"array", "string", "string", "string", "int"}},
			help: "Return a list of recent posts",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				posts, err := a.recentPosts(ctx, s, blog.TypePost, limit(p[3], defaultRecent))
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(posts))
				for _, post := range posts {
					out = append(out, a.postStruct(ctx, s, post))
				}
				return out, nil
			},
		},
		{
			name: "metaWeblog.newMediaObject",
			sigs: [][]string{{"struct", "string", "string", "string", "struct"}},
			help: "Upload a file on the web server",
			fn:   a.newMediaObject,
		},
		{
			name: "metaWeblog.getCategories",
			sigs: [][]string{{"array", "string", "string", "string"}},
			help: "List available categories",
			fn:   a.getCategories,
		},
	}
}

func (a *API) newMediaObject(ctx context.Context, p []any) (any, error) {
	s, err := a.open(ctx, p[1].(string), p[2].(string))
	if err != nil {
		return nil, err
	}
	if err := s.require(blog.PermMedia, blog.PermContentAdmin); err != nil {
		return nil, err
	}
	if a.uploader == nil {
		return nil, xmlrpc.NewFault(FaultServer, "Media uploads are disabled")
	}
	m := p[3].(map[string]any)
	name, _ := str(m, "name")
	typ, _ := str(m, "type")
	var data []byte
	switch bits := m["bits"].(type) {
	case []byte:
		data = bits
	case string:
		data = []byte(bits)
	default:
		return nil, invalid("No file content")
	}
	md, err := a.uploader.Upload(ctx, s.blog.ID, s.user.ID, name, typ, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":   strconv.FormatInt(md.ID, 10),
		"file": md.Name,
		"url":  md.URL,
		"type": md.ContentType,
	}, nil
}

func (a *API) getCategories(ctx context.Context, p []any) (any, error) {
	s, err := a.open(ctx, p[1].(string), p[2].(string))
	if err != nil {
		return nil, err
	}
	cats, err := a.svc.Categories(ctx, s.blog.ID)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(cats))
	for _, c := range cats {
		id := strconv.FormatInt(c.ID, 10)
		out = append(out, map[string]any{
			"categoryId":          id,
			"parentId":            "0",
			"description":         c.Title,
			"categoryDescription": c.Desc,
			"categoryName":        c.Title,
			"htmlUrl":             a.urls.CategoryURL(s.blog, c),
			"rssUrl":              a.urls.CategoryFeedURL(s.blog, c),
		})
	}
	return out, nil
}

func (a *API) mtMethods() []method {
	return []method{
		{
			name: "mt.getRecentPostTitles",
			sigs: [][]string{{"array", "string", "string", "string", "int"}},
			help: "List recent posts titles",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				posts, err := a.recentPosts(ctx, s, blog.TypePost, limit(p[3], defaultRecent))
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(posts))
				for _, post := range posts {
					out = append(out, map[string]any{
						"dateCreated": post.Created,
						"userid":      post.UserID,
						"postid":      strconv.FormatInt(post.ID, 10),
						"title":       post.Title,
					})
				}
				return out, nil
			},
		},
		{
			name: "mt.getCategoryList",
			sigs: [][]string{{"array", "string", "string", "string"}},
			help: "List available categories",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				cats, err := a.svc.Categories(ctx, s.blog.ID)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(cats))
				for _, c := range cats {
					out = append(out, map[string]any{
						"categoryId":   strconv.FormatInt(c.ID, 10),
						"categoryName": c.Title,
					})
				}
				return out, nil
			},
		},
		{
			name: "mt.getPostCategories",
			sigs: [][]string{{"array", "string", "string", "string"}},
			help: "Return a list of post's categories",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[0], "post")
				if err != nil {
					return nil, err
				}
				post, err := a.loadPost(ctx, s, id, blog.TypePost, false)
				if err != nil {
					return nil, err
				}
				out := []any{}
				if post.CategoryID != 0 {
					c, err := a.svc.GetCategory(ctx, s.blog.ID, post.CategoryID)
					if err != nil {
						return nil, err
					}
					out = append(out, map[string]any{
						"categoryId":   strconv.FormatInt(c.ID, 10),
						"categoryName": c.Title,
						"isPrimary":    true,
					})
				}
				return out, nil
			},
		},
		{
			name: "mt.setPostCategories",
			sigs: [][]string{{"boolean", "string", "string", "string", "array"}},
			help: "Set a post category",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[0], "post")
				if err != nil {
					return nil, err
				}
				post, err := a.loadPost(ctx, s, id, blog.TypePost, true)
				if err != nil {
					return nil, err
				}
				catID, err := primaryCategory(p[3].([]any))
				if err != nil {
					return nil, err
				}
				if err := a.svc.SetPostCategory(ctx, s.blog.ID, post.ID, catID); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "mt.supportedMethods",
			sigs: [][]string{{"array"}},
			help: "Retrieve information about the XML-RPC methods supported by the server",
			fn: func(context.Context, []any) (any, error) {
				return a.MethodNames(), nil
			},
		},
		{
			name: "mt.supportedTextFilters",
			sigs: [][]string{{"array"}},
			help: "Retrieve information about the text formatting plugins supported by the server",
			fn: func(context.Context, []any) (any, error) {
				names := a.svc.Formats()
				out := make([]any, 0, len(names))
				for _, n := range names {
					out = append(out, map[string]any{"key": n, "label": n})
				}
				return out, nil
			},
		},
		{
			name: "mt.getTrackbackPings",
			sigs: [][]string{{"array", "string"}},
			help: "Retrieve the list of TrackBack pings posted to a particular entry",
			fn: func(ctx context.Context, p []any) (any, error) {
				id, err := parseID(p[0], "post")
				if err != nil {
					return nil, err
				}
				blogID := BlogIDFrom(ctx)
				post, err := a.svc.GetPost(ctx, blogID, id)
				if err != nil || !post.Published() {
					return nil, xmlrpc.NewFault(FaultNotFound, "No such post")
				}
				pings, err := a.svc.Comments(ctx, blog.CommentFilter{
					BlogID:    blogID,
					PostID:    post.ID,
					Status:    blog.CommentStatusPtr(blog.CommentPublished),
					Trackback: blog.BoolPtr(true),
				})
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(pings))
				for _, c := range pings {
					out = append(out, map[string]any{
						"pingTitle": c.Author,
						"pingURL":   c.Site,
						"pingIP":    c.IP,
					})
				}
				return out, nil
			},
		},
		{
			name: "mt.publishPost",
			sigs: [][]string{{"boolean", "string", "string", "string"}},
			help: "Publish an existing post",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				if err := s.require(blog.PermPublish, blog.PermContentAdmin); err != nil {
					return nil, err
				}
				id, err := parseID(p[0], "post")
				if err != nil {
					return nil, err
				}
				post, err := a.loadPost(ctx, s, id, blog.TypePost, true)
				if err != nil {
					return nil, err
				}
				if _, err := a.svc.SetPostStatus(ctx, s.blog.ID, post.ID, blog.PostPublished); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
	}
}

// primaryCategory picks the category flagged isPrimary, else the first one.
// An empty list clears the category.
func primaryCategory(list []any) (int64, error) {
	var first int64
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return 0, invalid("Categories must be structs")
		}
		id, err := parseID(m["categoryId"], "category")
		if err != nil {
			return 0, err
		}
		if primary, ok := flag(m, "isPrimary"); ok && primary {
			return id, nil
		}
		if first == 0 {
			first = id
		}
	}
	return first, nil
}
