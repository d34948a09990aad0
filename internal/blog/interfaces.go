package blog

import (
	"context"
	"time"
)

// BlogStore reads and updates blog rows.
type BlogStore interface {
	GetBlog(ctx context.Context, id string) (Blog, error)
	ListBlogs(ctx context.Context) ([]Blog, error)
	SaveBlog(ctx context.Context, b Blog) error
	TouchBlog(ctx context.Context, id string, at time.Time) error
}

// PostStore persists posts and pages.
type PostStore interface {
	ListPosts(ctx context.Context, f PostFilter) ([]Post, error)
	CountPosts(ctx context.Context, f PostFilter) (int, error)
	CreatePost(ctx context.Context, p Post) (int64, error)
	UpdatePost(ctx context.Context, p Post) error
	DeletePost(ctx context.Context, blogID string, id int64) error
	ListArchiveMonths(ctx context.Context, blogID string) ([]ArchiveMonth, error)
	ListTags(ctx context.Context, blogID string) (map[string]int, error)
}

// CategoryStore persists categories.
type CategoryStore interface {
	ListCategories(ctx context.Context, blogID string) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (int64, error)
	DeleteCategory(ctx context.Context, blogID string, id int64) error
}

// CommentStore persists comments, pingbacks and trackbacks.
type CommentStore interface {
	ListComments(ctx context.Context, f CommentFilter) ([]Comment, error)
	CountComments(ctx context.Context, f CommentFilter) (int, error)
	CreateComment(ctx context.Context, c Comment) (int64, error)
	UpdateComment(ctx context.Context, c Comment) error
	DeleteComment(ctx context.Context, blogID string, id int64) error
}

// UserStore loads accounts.
type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListBlogUsers(ctx context.Context, blogID string) ([]User, error)
	SaveUser(ctx context.Context, u User) error
}

// SettingsStore is a namespaced key/value store scoped per blog. An empty
// blogID addresses global settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, blogID, namespace string) (map[string]string, error)
	SetSetting(ctx context.Context, blogID, namespace, key, value string) error
	DeleteSetting(ctx context.Context, blogID, namespace, key string) error
	// DeleteNamespace removes a namespace from every blog.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// MediaStore records uploaded media metadata.
type MediaStore interface {
	CreateMedia(ctx context.Context, m Media) (int64, error)
	ListMedia(ctx context.Context, blogID string) ([]Media, error)
}

// Repository is the full storage surface the Service needs.
type Repository interface {
	BlogStore
	PostStore
	CategoryStore
	CommentStore
	UserStore
	SettingsStore
	MediaStore
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Formatter converts source content written in a given syntax to XHTML.
type Formatter interface {
	Format(name, src string) (string, error)
	Names() []string
}
