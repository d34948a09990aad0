// Package memory provides an in-memory blog.Repository for development,
// tests and single-process deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/inkpress/internal/blog"
)

type settingKey struct {
	blogID    string
	namespace string
}

// Repository keeps every record in maps guarded by a single RWMutex.
type Repository struct {
	mu         sync.RWMutex
	blogs      map[string]blog.Blog
	posts      map[int64]blog.Post
	categories map[int64]blog.Category
	comments   map[int64]blog.Comment
	users      map[string]blog.User
	settings   map[settingKey]map[string]string
	media      map[int64]blog.Media
	nextID     int64
}

var _ blog.Repository = (*Repository)(nil)

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		blogs:      make(map[string]blog.Blog),
		posts:      make(map[int64]blog.Post),
		categories: make(map[int64]blog.Category),
		comments:   make(map[int64]blog.Comment),
		users:      make(map[string]blog.User),
		settings:   make(map[settingKey]map[string]string),
		media:      make(map[int64]blog.Media),
	}
}

func (r *Repository) id() int64 {
	r.nextID++
	return r.nextID
}

// GetBlog fetches a blog by ID.
func (r *Repository) GetBlog(_ context.Context, id string) (blog.Blog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blogs[id]
	if !ok {
		return blog.Blog{}, blog.ErrNotFound
	}
	return b, nil
}

// ListBlogs returns all blogs sorted by ID.
func (r *Repository) ListBlogs(_ context.Context) ([]blog.Blog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]blog.Blog, 0, len(r.blogs))
	for _, b := range r.blogs {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveBlog inserts or replaces a blog.
func (r *Repository) SaveBlog(_ context.Context, b blog.Blog) error {
	if b.ID == "" {
		return fmt.Errorf("%w: blog id is required", blog.ErrInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blogs[b.ID] = b
	return nil
}

// TouchBlog moves UpdatedAt forward; it never goes backwards.
func (r *Repository) TouchBlog(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blogs[id]
	if !ok {
		return blog.ErrNotFound
	}
	if at.After(b.UpdatedAt) {
		b.UpdatedAt = at
		r.blogs[id] = b
	}
	return nil
}

// ListPosts filters, sorts and pages posts.
func (r *Repository) ListPosts(_ context.Context, f blog.PostFilter) ([]blog.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.matchPosts(f)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Created.Equal(b.Created) {
			if f.Ascending {
				return a.Created.Before(b.Created)
			}
			return a.Created.After(b.Created)
		}
		if f.Ascending {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return page(matched, f.Offset, f.Limit), nil
}

// CountPosts counts posts matching f.
func (r *Repository) CountPosts(_ context.Context, f blog.PostFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matchPosts(f)), nil
}

func (r *Repository) matchPosts(f blog.PostFilter) []blog.Post {
	catID := f.CategoryID
	if f.CategoryURL != "" {
		catID = -1
		for _, c := range r.categories {
			if c.BlogID == f.BlogID && c.URL == f.CategoryURL {
				catID = c.ID
			}
		}
	}
	words := blog.SearchWords(f.Search)
	out := make([]blog.Post, 0)
	for _, p := range r.posts {
		switch {
		case f.BlogID != "" && p.BlogID != f.BlogID,
			f.ID != 0 && p.ID != f.ID,
			f.Type != "" && p.Type != f.Type,
			f.Status != nil && p.Status != *f.Status,
			f.UserID != "" && p.UserID != f.UserID,
			catID != 0 && p.CategoryID != catID,
			f.URL != "" && p.URL != f.URL,
			f.Year != 0 && p.Created.Year() != f.Year,
			f.Month != 0 && int(p.Created.Month()) != f.Month,
			f.Selected != nil && p.Selected != *f.Selected,
			f.Tag != "" && !contains(p.Tags, f.Tag),
			f.Lang != "" && p.Lang != f.Lang,
			len(words) > 0 && !hasWords(p.Words, words):
			continue
		}
		out = append(out, clonePost(p))
	}
	return out
}

// CreatePost stores a new post and returns its ID.
func (r *Repository) CreatePost(_ context.Context, p blog.Post) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blogs[p.BlogID]; !ok {
		return 0, fmt.Errorf("blog %s: %w", p.BlogID, blog.ErrNotFound)
	}
	p.ID = r.id()
	r.posts[p.ID] = clonePost(p)
	return p.ID, nil
}

// UpdatePost replaces a stored post.
func (r *Repository) UpdatePost(_ context.Context, p blog.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.posts[p.ID]
	if !ok || old.BlogID != p.BlogID {
		return blog.ErrNotFound
	}
	r.posts[p.ID] = clonePost(p)
	return nil
}

// DeletePost removes a post and its comments.
func (r *Repository) DeletePost(_ context.Context, blogID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.BlogID != blogID {
		return blog.ErrNotFound
	}
	delete(r.posts, id)
	for cid, c := range r.comments {
		if c.PostID == id {
			delete(r.comments, cid)
		}
	}
	return nil
}

// ListArchiveMonths groups published entries by month, newest first.
func (r *Repository) ListArchiveMonths(_ context.Context, blogID string) ([]blog.ArchiveMonth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[[2]int]int{}
	for _, p := range r.posts {
		if p.BlogID != blogID || p.Type != blog.TypePost || !p.Published() {
			continue
		}
		counts[[2]int{p.Created.Year(), int(p.Created.Month())}]++
	}
	out := make([]blog.ArchiveMonth, 0, len(counts))
	for k, n := range counts {
		out = append(out, blog.ArchiveMonth{Year: k[0], Month: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}

// ListTags counts tags used by published posts.
func (r *Repository) ListTags(_ context.Context, blogID string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]int{}
	for _, p := range r.posts {
		if p.BlogID != blogID || !p.Published() {
			continue
		}
		for _, t := range p.Tags {
			out[t]++
		}
	}
	return out, nil
}

// ListCategories returns categories ordered by position, with post counts.
func (r *Repository) ListCategories(_ context.Context, blogID string) ([]blog.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]blog.Category, 0)
	for _, c := range r.categories {
		if c.BlogID != blogID {
			continue
		}
		c.NbPost = 0
		for _, p := range r.posts {
			if p.CategoryID == c.ID && p.Published() && p.Type == blog.TypePost {
				c.NbPost++
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateCategory stores a category.
func (r *Repository) CreateCategory(_ context.Context, c blog.Category) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	r.categories[c.ID] = c
	return c.ID, nil
}

// DeleteCategory removes a category and detaches its posts.
func (r *Repository) DeleteCategory(_ context.Context, blogID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.categories[id]
	if !ok || c.BlogID != blogID {
		return blog.ErrNotFound
	}
	delete(r.categories, id)
	for pid, p := range r.posts {
		if p.CategoryID == id {
			p.CategoryID = 0
			r.posts[pid] = p
		}
	}
	return nil
}

// ListComments returns comments oldest first, or newest first when
// f.Descending is set.
func (r *Repository) ListComments(_ context.Context, f blog.CommentFilter) ([]blog.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.matchComments(f)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.Descending {
			a, b = b, a
		}
		if !a.Created.Equal(b.Created) {
			return a.Created.Before(b.Created)
		}
		return a.ID < b.ID
	})
	return page(matched, f.Offset, f.Limit), nil
}

// CountComments counts comments matching f.
func (r *Repository) CountComments(_ context.Context, f blog.CommentFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matchComments(f)), nil
}

func (r *Repository) matchComments(f blog.CommentFilter) []blog.Comment {
	out := make([]blog.Comment, 0)
	for _, c := range r.comments {
		switch {
		case f.BlogID != "" && c.BlogID != f.BlogID,
			f.ID != 0 && c.ID != f.ID,
			f.PostID != 0 && c.PostID != f.PostID,
			f.Status != nil && c.Status != *f.Status,
			f.Trackback != nil && c.Trackback != *f.Trackback,
			f.Site != "" && c.Site != f.Site,
			f.VisiblePosts && !r.visiblePost(c.PostID):
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Repository) visiblePost(id int64) bool {
	p, ok := r.posts[id]
	return ok && p.Published() && p.Password == ""
}

// CreateComment stores a comment.
func (r *Repository) CreateComment(_ context.Context, c blog.Comment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[c.PostID]; !ok || p.BlogID != c.BlogID {
		return 0, fmt.Errorf("post %d: %w", c.PostID, blog.ErrNotFound)
	}
	c.ID = r.id()
	r.comments[c.ID] = c
	return c.ID, nil
}

// UpdateComment replaces a stored comment.
func (r *Repository) UpdateComment(_ context.Context, c blog.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.comments[c.ID]
	if !ok || old.BlogID != c.BlogID {
		return blog.ErrNotFound
	}
	r.comments[c.ID] = c
	return nil
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(_ context.Context, blogID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok || c.BlogID != blogID {
		return blog.ErrNotFound
	}
	delete(r.comments, id)
	return nil
}

// GetUser fetches an account.
func (r *Repository) GetUser(_ context.Context, id string) (blog.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return blog.User{}, blog.ErrNotFound
	}
	return cloneUser(u), nil
}

// ListBlogUsers returns users with any permission on blogID, super users included.
func (r *Repository) ListBlogUsers(_ context.Context, blogID string) ([]blog.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]blog.User, 0)
	for _, u := range r.users {
		if u.Super || len(u.Permissions[blogID]) > 0 {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveUser inserts or replaces an account.
func (r *Repository) SaveUser(_ context.Context, u blog.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", blog.ErrInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = cloneUser(u)
	return nil
}

// GetSettings returns a copy of one settings namespace.
func (r *Repository) GetSettings(_ context.Context, blogID, namespace string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.settings[settingKey{blogID, namespace}]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// SetSetting writes one setting.
func (r *Repository) SetSetting(_ context.Context, blogID, namespace, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := settingKey{blogID, namespace}
	if r.settings[k] == nil {
		r.settings[k] = map[string]string{}
	}
	r.settings[k][key] = value
	return nil
}

// DeleteSetting removes one setting.
func (r *Repository) DeleteSetting(_ context.Context, blogID, namespace, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings[settingKey{blogID, namespace}], key)
	return nil
}

// DeleteNamespace removes a namespace from every blog.
func (r *Repository) DeleteNamespace(_ context.Context, namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.settings {
		if k.namespace == namespace {
			delete(r.settings, k)
		}
	}
	return nil
}

// CreateMedia records an uploaded file.
func (r *Repository) CreateMedia(_ context.Context, m blog.Media) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.id()
	r.media[m.ID] = m
	return m.ID, nil
}

// ListMedia lists a blog's media, newest first.
func (r *Repository) ListMedia(_ context.Context, blogID string) ([]blog.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]blog.Media, 0)
	for _, m := range r.media {
		if m.BlogID == blogID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func hasWords(indexed string, words []string) bool {
	have := strings.Fields(indexed)
	for _, w := range words {
		found := false
		for _, h := range have {
			if strings.HasPrefix(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func clonePost(p blog.Post) blog.Post {
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

func cloneUser(u blog.User) blog.User {
	perms := make(map[string]blog.PermissionSet, len(u.Permissions))
	for b, set := range u.Permissions {
		cp := make(blog.PermissionSet, len(set))
		for k, v := range set {
			cp[k] = v
		}
		perms[b] = cp
	}
	u.Permissions = perms
	return u
}
