package rpcapi

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

var (
	statusLabels = map[string]any{
		"draft":   "Unpublished",
		"pending": "Pending",
		"future":  "Scheduled",
		"publish": "Published",
	}
	commentStatusLabels = map[string]any{
		"hold":    "Unapproved",
		"approve": "Approved",
		"spam":    "Junk",
	}
)

func sig(types ...string) []string {
	return types
}

// auth3 is the common (blog_id, username, password) prefix.
var auth3 = []string{"string", "string", "string"}

func withAuth(ret string, extra ...string) []string {
	return append(append([]string{ret}, auth3...), extra...)
}

func (a *API) wpMethods() []method {
	return []method{
		{
			name: "wp.getUsersBlogs",
			sigs: [][]string{sig("array", "string", "string")},
			help: "Retrieve the blogs of the user",
			fn: func(ctx context.Context, p []any) (any, error) {
				return a.usersBlogs(ctx, p[0].(string), p[1].(string))
			},
		},
		{
			name: "wp.getPage",
			sigs: [][]string{sig("struct", "string", "string", "string", "string")},
			help: "Get a page",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[1], "page")
				if err != nil {
					return nil, err
				}
				page, err := a.loadPost(ctx, s, id, blog.TypePage, false)
				if err != nil {
					return nil, err
				}
				return a.postStruct(ctx, s, page), nil
			},
		},
		{
			name: "wp.getPages",
			sigs: [][]string{withAuth("array"), withAuth("array", "int")},
			help: "Get pages",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				n := 10
				if len(p) > 3 {
					n = limit(p[3], n)
				}
				pages, err := a.recentPosts(ctx, s, blog.TypePage, n)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(pages))
				for _, page := range pages {
					out = append(out, a.postStruct(ctx, s, page))
				}
				return out, nil
			},
		},
		{
			name: "wp.newPage",
			sigs: [][]string{withAuth("string", "struct", "boolean")},
			help: "Create a new page",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				page, err := a.newPost(ctx, s, blog.TypePage, p[3].(map[string]any), p[4].(bool))
				if err != nil {
					return nil, err
				}
				return strconv.FormatInt(page.ID, 10), nil
			},
		},
		{
			name: "wp.deletePage",
			sigs: [][]string{withAuth("boolean", "string")},
			help: "Delete a page",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[3], "page")
				if err != nil {
					return nil, err
				}
				if err := a.deletePost(ctx, s, id, blog.TypePage); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "wp.editPage",
			sigs: [][]string{sig("boolean", "string", "string", "string", "string", "struct", "boolean")},
			help: "Edit a page",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[2].(string), p[3].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[1], "page")
				if err != nil {
					return nil, err
				}
				if _, err := a.editPost(ctx, s, id, blog.TypePage, p[4].(map[string]any), p[5].(bool)); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "wp.getPageList",
			sigs: [][]string{withAuth("array")},
			help: "Get a short list of pages",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				pages, err := a.recentPosts(ctx, s, blog.TypePage, 0)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(pages))
				for _, page := range pages {
					out = append(out, map[string]any{
						"page_id":          strconv.FormatInt(page.ID, 10),
						"page_title":       page.Title,
						"page_parent_id":   "0",
						"dateCreated":      page.Created,
						"date_created_gmt": page.Created,
					})
				}
				return out, nil
			},
		},
		{
			name: "wp.getAuthors",
			sigs: [][]string{withAuth("array")},
			help: "List authors",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				users, err := a.svc.Users(ctx, s.blog.ID)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(users))
				for _, u := range users {
					out = append(out, map[string]any{
						"user_id":      u.ID,
						"user_login":   u.ID,
						"display_name": u.CommonName(),
					})
				}
				return out, nil
			},
		},
		{
			name: "wp.getCategories",
			sigs: [][]string{withAuth("array")},
			help: "List categories",
			fn:   a.getCategories,
		},
		{
			name: "wp.getTags",
			sigs: [][]string{withAuth("array")},
			help: "Get tags list",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				tags, err := a.svc.Tags(ctx, s.blog.ID)
				if err != nil {
					return nil, err
				}
				names := make([]string, 0, len(tags))
				for t := range tags {
					names = append(names, t)
				}
				sort.Strings(names)
				out := make([]any, 0, len(names))
				for _, t := range names {
					out = append(out, map[string]any{
						"tag_id":   t,
						"name":     t,
						"count":    tags[t],
						"slug":     t,
						"html_url": a.urls.TagURL(s.blog, t),
						"rss_url":  a.urls.TagFeedURL(s.blog, t),
					})
				}
				return out, nil
			},
		},
		{
			name: "wp.newCategory",
			sigs: [][]string{withAuth("int", "struct")},
			help: "Add a new category",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				if err := s.require(blog.PermCategories, blog.PermContentAdmin); err != nil {
					return nil, err
				}
				m := p[3].(map[string]any)
				name, _ := str(m, "name")
				slug, _ := str(m, "slug")
				desc, _ := str(m, "description")
				c, err := a.svc.NewCategory(ctx, blog.Category{BlogID: s.blog.ID, Title: name, URL: slug, Desc: desc})
				if err != nil {
					return nil, err
				}
				return int(c.ID), nil
			},
		},
		{
			name: "wp.deleteCategory",
			sigs: [][]string{withAuth("boolean", "int")},
			help: "Delete a category",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				if err := s.require(blog.PermCategories, blog.PermContentAdmin); err != nil {
					return nil, err
				}
				if err := a.svc.DeleteCategory(ctx, s.blog.ID, int64(p[3].(int))); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "wp.suggestCategories",
			sigs: [][]string{withAuth("array", "string"), withAuth("array", "string", "int")},
			help: "Get category suggestions",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				prefix := strings.ToLower(strings.TrimSpace(p[3].(string)))
				maxResults := 0
				if len(p) > 4 {
					maxResults = limit(p[4], 0)
				}
				cats, err := a.svc.Categories(ctx, s.blog.ID)
				if err != nil {
					return nil, err
				}
				out := []any{}
				for _, c := range cats {
					if !strings.HasPrefix(strings.ToLower(c.Title), prefix) {
						continue
					}
					out = append(out, map[string]any{
						"category_id":   strconv.FormatInt(c.ID, 10),
						"category_name": c.Title,
					})
					if maxResults > 0 && len(out) == maxResults {
						break
					}
				}
				return out, nil
			},
		},
		{
			name: "wp.uploadFile",
			sigs: [][]string{withAuth("struct", "struct")},
			help: "Upload a file",
			fn:   a.newMediaObject,
		},
		{
			name: "wp.getPostStatusList",
			sigs: [][]string{withAuth("struct")},
			help: "Retrieve post status list",
			fn:   a.staticList(statusLabels),
		},
		{
			name: "wp.getPageStatusList",
			sigs: [][]string{withAuth("struct")},
			help: "Retrieve page status list",
			fn:   a.staticList(statusLabels),
		},
		{
			name: "wp.getPageTemplates",
			sigs: [][]string{withAuth("struct")},
			help: "Retrieve page templates list",
			fn:   a.staticList(map[string]any{"Default": "default"}),
		},
		{
			name: "wp.getCommentStatusList",
			sigs: [][]string{withAuth("struct")},
			help: "Retrieve comment status list",
			fn:   a.staticList(commentStatusLabels),
		},
		{
			name: "wp.getOptions",
			sigs: [][]string{withAuth("struct"), withAuth("struct", "array")},
			help: "Retrieve blog options",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				var names []any
				if len(p) > 3 {
					names = p[3].([]any)
				}
				return a.options(s.blog, names), nil
			},
		},
		{
			name: "wp.setOptions",
			sigs: [][]string{withAuth("struct", "struct")},
			help: "Update blog options",
			fn:   a.setOptions,
		},
		{
			name: "wp.getComment",
			sigs: [][]string{withAuth("struct", "string")},
			help: "Gets a comment",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				c, post, err := a.loadComment(ctx, s, p[3], false)
				if err != nil {
					return nil, err
				}
				return a.commentStruct(s, c, post), nil
			},
		},
		{
			name: "wp.getCommentCount",
			sigs: [][]string{withAuth("struct", "string")},
			help: "Retrieve comment count",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				id, err := parseID(p[3], "post")
				if err != nil {
					return nil, err
				}
				return a.commentCount(ctx, s, id)
			},
		},
		{
			name: "wp.getComments",
			sigs: [][]string{withAuth("array", "struct")},
			help: "Gets a set of comments",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				return a.comments(ctx, s, p[3].(map[string]any))
			},
		},
		{
			name: "wp.deleteComment",
			sigs: [][]string{withAuth("boolean", "string")},
			help: "Remove comment",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				c, _, err := a.loadComment(ctx, s, p[3], true)
				if err != nil {
					return nil, err
				}
				if err := a.svc.DeleteComment(ctx, s.blog.ID, c.ID); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "wp.editComment",
			sigs: [][]string{withAuth("boolean", "string", "struct")},
			help: "Edit comment",
			fn: func(ctx context.Context, p []any) (any, error) {
				s, err := a.open(ctx, p[1].(string), p[2].(string))
				if err != nil {
					return nil, err
				}
				c, _, err := a.loadComment(ctx, s, p[3], true)
				if err != nil {
					return nil, err
				}
				if err := applyCommentStruct(&c, p[4].(map[string]any)); err != nil {
					return nil, err
				}
				if _, err := a.svc.UpdateComment(ctx, c); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			name: "wp.newComment",
			sigs: [][]string{withAuth("int", "string", "struct")},
			help: "Create comment",
			fn:   a.newComment,
		},
	}
}

func (a *API) staticList(v map[string]any) func(context.Context, []any) (any, error) {
	return func(ctx context.Context, p []any) (any, error) {
		if _, err := a.open(ctx, p[1].(string), p[2].(string)); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (a *API) options(b blog.Blog, names []any) map[string]any {
	opt := func(desc string, readonly bool, value any) map[string]any {
		return map[string]any{"desc": desc, "readonly": readonly, "value": value}
	}
	all := map[string]any{
		"software_name":    opt("Software Name", true, a.cfg.SoftwareName),
		"software_version": opt("Software Version", true, a.cfg.SoftwareVersion),
		"blog_url":         opt("Blog URL", true, a.urls.BlogURL(b)),
		"time_zone":        opt("Time Zone", true, a.cfg.TimeZone),
		"blog_title":       opt("Blog Title", false, b.Name),
		"blog_tagline":     opt("Blog Tagline", false, b.Desc),
		"date_format":      opt("Date Format", false, "2006-01-02"),
		"time_format":      opt("Time Format", false, "15:04"),
	}
	if len(names) == 0 {
		return all
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if name, ok := n.(string); ok {
			if v, ok := all[name]; ok {
				out[name] = v
			}
		}
	}
	return out
}

func (a *API) setOptions(ctx context.Context, p []any) (any, error) {
	s, err := a.open(ctx, p[1].(string), p[2].(string))
	if err != nil {
		return nil, err
	}
	if err := s.require(blog.PermAdmin); err != nil {
		return nil, err
	}
	m := p[3].(map[string]any)
	b := s.blog
	changed := make([]any, 0, len(m))
	for name := range m {
		changed = append(changed, name)
	}
	if v, ok := str(m, "blog_title"); ok {
		b.Name = v
	}
	if v, ok := str(m, "blog_tagline"); ok {
		b.Desc = v
	}
	if b != s.blog {
		if b, err = a.svc.UpdateBlog(ctx, b); err != nil {
			return nil, err
		}
	}
	return a.options(b, changed), nil
}

func (a *API) loadComment(ctx context.Context, s session, rawID any, write bool) (blog.Comment, blog.Post, error) {
	id, err := parseID(rawID, "comment")
	if err != nil {
		return blog.Comment{}, blog.Post{}, err
	}
	if write && !s.can(blog.PermContentAdmin) {
		return blog.Comment{}, blog.Post{}, xmlrpc.NewFault(FaultPermission, "You are not allowed to moderate comments")
	}
	c, err := a.svc.GetComment(ctx, s.blog.ID, id)
	if err != nil {
		return blog.Comment{}, blog.Post{}, err
	}
	if !write && c.Status != blog.CommentPublished && !s.can(blog.PermContentAdmin) {
		return blog.Comment{}, blog.Post{}, xmlrpc.NewFault(FaultNotFound, "No such comment")
	}
	post, err := a.svc.GetPost(ctx, s.blog.ID, c.PostID)
	if err != nil {
		return blog.Comment{}, blog.Post{}, err
	}
	return c, post, nil
}

func (a *API) commentStruct(s session, c blog.Comment, post blog.Post) map[string]any {
	typ := ""
	if c.Trackback {
		typ = "pingback"
	}
	id := strconv.FormatInt(c.ID, 10)
	return map[string]any{
		"date_created_gmt": c.Created,
		"dateCreated":      c.Created,
		"user_id":          "",
		"comment_id":       id,
		"parent":           "0",
		"status":           commentStatusName(c.Status),
		"content":          c.Content,
		"link":             a.urls.PostURL(s.blog, post) + "#c" + id,
		"post_id":          strconv.FormatInt(post.ID, 10),
		"post_title":       post.Title,
		"author":           c.Author,
		"author_url":       c.Site,
		"author_email":     c.Email,
		"author_ip":        c.IP,
		"type":             typ,
	}
}

func applyCommentStruct(c *blog.Comment, m map[string]any) error {
	if v, ok := str(m, "status"); ok {
		st, known := parseCommentStatus(v)
		if !known {
			return invalid("Unknown comment status %q", v)
		}
		c.Status = st
	}
	if v, ok := date(m, "date_created_gmt"); ok {
		c.Created = v
	}
	if v, ok := str(m, "content"); ok {
		c.Content = v
	}
	if v, ok := str(m, "author"); ok {
		c.Author = v
	}
	if v, ok := str(m, "author_url"); ok {
		c.Site = v
	}
	if v, ok := str(m, "author_email"); ok {
		c.Email = v
	}
	return nil
}

func (a *API) commentCount(ctx context.Context, s session, postID int64) (map[string]any, error) {
	count := func(st blog.CommentStatus) (int, error) {
		return a.svc.CountComments(ctx, blog.CommentFilter{
			BlogID: s.blog.ID, PostID: postID, Status: blog.CommentStatusPtr(st),
		})
	}
	approved, err := count(blog.CommentPublished)
	if err != nil {
		return nil, err
	}
	pending, err := count(blog.CommentPending)
	if err != nil {
		return nil, err
	}
	spam, err := count(blog.CommentJunk)
	if err != nil {
		return nil, err
	}
	total, err := a.svc.CountComments(ctx, blog.CommentFilter{BlogID: s.blog.ID, PostID: postID})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"approved":            approved,
		"awaiting_moderation": pending,
		"spam":                spam,
		"total_comments":      total,
	}, nil
}

func (a *API) comments(ctx context.Context, s session, m map[string]any) ([]any, error) {
	f := blog.CommentFilter{BlogID: s.blog.ID, Limit: 10}
	if v, ok := m["post_id"]; ok && v != "" {
		id, err := parseID(v, "post")
		if err != nil {
			return nil, err
		}
		f.PostID = id
	}
	if v, ok := str(m, "status"); ok && v != "" {
		st, known := parseCommentStatus(v)
		if !known {
			return nil, invalid("Unknown comment status %q", v)
		}
		f.Status = &st
	}
	if !s.can(blog.PermContentAdmin) {
		f.Status = blog.CommentStatusPtr(blog.CommentPublished)
	}
	if v, ok := integer(m, "offset"); ok && v > 0 {
		f.Offset = v
	}
	if v, ok := integer(m, "number"); ok && v > 0 {
		f.Limit = v
	}
	list, err := a.svc.Comments(ctx, f)
	if err != nil {
		return nil, err
	}
	posts := map[int64]blog.Post{}
	out := make([]any, 0, len(list))
	for _, c := range list {
		post, ok := posts[c.PostID]
		if !ok {
			if post, err = a.svc.GetPost(ctx, s.blog.ID, c.PostID); err != nil {
				return nil, err
			}
			posts[c.PostID] = post
		}
		out = append(out, a.commentStruct(s, c, post))
	}
	return out, nil
}

func (a *API) newComment(ctx context.Context, p []any) (any, error) {
	s, err := a.open(ctx, p[1].(string), p[2].(string))
	if err != nil {
		return nil, err
	}
	postID, err := parseID(p[3], "post")
	if err != nil {
		return nil, err
	}
	post, err := a.loadPost(ctx, s, postID, "", false)
	if err != nil {
		return nil, err
	}
	if !post.Published() {
		return nil, xmlrpc.NewFault(FaultPermission, "Comments are closed")
	}
	m := p[4].(map[string]any)
	c := blog.Comment{
		BlogID: s.blog.ID,
		PostID: post.ID,
		Author: s.user.CommonName(),
		Email:  s.user.Email,
		Site:   s.user.URL,
		IP:     a.remoteIP(ctx),
	}
	if v, ok := str(m, "content"); ok {
		c.Content = v
	}
	if v, ok := str(m, "author"); ok && v != "" {
		c.Author = v
	}
	if v, ok := str(m, "author_url"); ok && v != "" {
		c.Site = v
	}
	if v, ok := str(m, "author_email"); ok && v != "" {
		c.Email = v
	}
	published := blog.CommentPublished
	stored, err := a.svc.AddComment(ctx, c, &published)
	if err != nil {
		return nil, err
	}
	return int(stored.ID), nil
}
