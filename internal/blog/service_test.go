package blog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/events"
	"github.com/JakeFAU/inkpress/internal/storage/memory"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newService(t *testing.T) (*blog.Service, *memory.Repository, *recorder) {
	t.Helper()
	repo := memory.NewRepository()
	require.NoError(t, repo.SaveBlog(context.Background(), blog.Blog{ID: "default", Name: "Blog"}))
	rec := &recorder{}
	clock := &fixedClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return blog.NewService(repo, nil, clock, rec, nil), repo, rec
}

func TestNewPostBuildsUniqueURLs(t *testing.T) {
	t.Parallel()

	svc, _, rec := newService(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	first, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Héllo World", Content: "<p>one</p>",
		Status: blog.PostPublished, Created: created})
	require.NoError(t, err)
	assert.Equal(t, "2024/05/01/hello-world", first.URL)
	assert.Equal(t, blog.TypePost, first.Type)
	assert.Equal(t, "<p>one</p>", first.ContentXHTML)
	assert.Contains(t, first.Words, "hello")

	second, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Hello world", Content: "two",
		Created: created})
	require.NoError(t, err)
	assert.Equal(t, "2024/05/01/hello-world-1", second.URL)

	page, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Type: blog.TypePage, Title: "About me"})
	require.NoError(t, err)
	assert.Equal(t, "about-me", page.URL)

	assert.Equal(t, []events.Type{
		events.PostCreated, events.PostPublished, events.PostCreated, events.PostCreated,
	}, rec.types())

	b, err := svc.GetBlog(ctx, "default")
	require.NoError(t, err)
	assert.False(t, b.UpdatedAt.IsZero())
}

func TestNewPostValidation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.NewPost(ctx, blog.Post{Title: "x"})
	require.ErrorIs(t, err, blog.ErrInvalid)
	_, err = svc.NewPost(ctx, blog.Post{BlogID: "default"})
	require.ErrorIs(t, err, blog.ErrInvalid)
	_, err = svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "x", Type: "gallery"})
	require.ErrorIs(t, err, blog.ErrInvalid)
	_, err = svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "x", CategoryID: 42})
	require.ErrorIs(t, err, blog.ErrInvalid)
}

func TestUpdatePostEmitsPublishOnTransition(t *testing.T) {
	t.Parallel()

	svc, _, rec := newService(t)
	ctx := context.Background()
	p, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Draft", Content: "x"})
	require.NoError(t, err)

	p.Status = blog.PostPublished
	p.Title = "Draft renamed"
	updated, err := svc.UpdatePost(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, p.URL, updated.URL, "url is kept when already set")

	_, err = svc.UpdatePost(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, []events.Type{events.PostCreated, events.PostPublished}, rec.types())

	require.NoError(t, svc.DeletePost(ctx, "default", p.ID))
	_, err = svc.GetPost(ctx, "default", p.ID)
	require.ErrorIs(t, err, blog.ErrNotFound)
}

func TestCommentsModerationAndCounters(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()
	post, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Open", Content: "x",
		Status: blog.PostPublished, OpenComment: true, OpenTrackback: true})
	require.NoError(t, err)

	c, err := svc.AddComment(ctx, blog.Comment{BlogID: "default", PostID: post.ID, Author: "Ann",
		Site: "example.com", Content: "<p>nice</p><script>alert(1)</script>"}, nil)
	require.NoError(t, err)
	assert.Equal(t, blog.CommentPublished, c.Status)
	assert.Equal(t, "http://example.com", c.Site)
	assert.NotContains(t, c.Content, "script")

	require.NoError(t, svc.SetSetting(ctx, "default", blog.NamespaceSystem, blog.SettingCommentsPub, "0"))
	moderated, err := svc.AddComment(ctx, blog.Comment{BlogID: "default", PostID: post.ID, Author: "Bob",
		Content: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, blog.CommentPending, moderated.Status)

	got, err := svc.GetPost(ctx, "default", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NbComment)

	_, err = svc.AddComment(ctx, blog.Comment{BlogID: "default", PostID: post.ID, Content: "anon"}, nil)
	require.ErrorIs(t, err, blog.ErrInvalid)

	require.NoError(t, svc.DeleteComment(ctx, "default", c.ID))
	got, err = svc.GetPost(ctx, "default", post.ID)
	require.NoError(t, err)
	assert.Zero(t, got.NbComment)
}

func TestCommentsClosed(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()
	post, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Closed", Content: "x",
		Status: blog.PostPublished})
	require.NoError(t, err)
	_, err = svc.AddComment(ctx, blog.Comment{BlogID: "default", PostID: post.ID, Author: "a", Content: "b"}, nil)
	require.ErrorIs(t, err, blog.ErrForbidden)

	forced := blog.CommentStatusPtr(blog.CommentPublished)
	_, err = svc.AddComment(ctx, blog.Comment{BlogID: "default", PostID: post.ID, Author: "a", Content: "b"}, forced)
	require.NoError(t, err)
}

func TestAddPingbackRejectsDuplicates(t *testing.T) {
	t.Parallel()

	svc, _, rec := newService(t)
	ctx := context.Background()
	post, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Ping me", Content: "x",
		Status: blog.PostPublished, OpenTrackback: true})
	require.NoError(t, err)

	c, err := svc.AddPingback(ctx, "default", post, "http://source.example/post", "Source", "context")
	require.NoError(t, err)
	assert.True(t, c.Trackback)
	assert.Contains(t, c.Content, "<strong>Source</strong>")

	_, err = svc.AddPingback(ctx, "default", post, "http://source.example/post", "Source", "context")
	require.ErrorIs(t, err, blog.ErrDuplicate)

	got, err := svc.GetPost(ctx, "default", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NbTrackback)
	assert.Contains(t, rec.types(), events.PingbackReceived)
}

func TestRecountComments(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newService(t)
	ctx := context.Background()
	post, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "Count", Content: "x",
		Status: blog.PostPublished, OpenComment: true})
	require.NoError(t, err)
	_, err = svc.AddComment(ctx, blog.Comment{BlogID: "default", PostID: post.ID, Author: "a", Content: "b"}, nil)
	require.NoError(t, err)

	stale, err := svc.GetPost(ctx, "default", post.ID)
	require.NoError(t, err)
	stale.NbComment = 99
	require.NoError(t, repo.UpdatePost(ctx, stale))

	changed, err := svc.RecountComments(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	fixed, err := svc.GetPost(ctx, "default", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed.NbComment)
}

func TestAuthenticateAndPermissions(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newService(t)
	ctx := context.Background()
	hash, err := blog.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, repo.SaveUser(ctx, blog.User{ID: "jo", PasswordHash: hash, Status: 1,
		Permissions: map[string]blog.PermissionSet{"default": blog.ParsePermissions("usage,publish")}}))
	require.NoError(t, repo.SaveUser(ctx, blog.User{ID: "off", PasswordHash: hash, Status: 0}))

	u, err := svc.Authenticate(ctx, "jo", "secret")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "jo", "wrong")
	require.ErrorIs(t, err, blog.ErrBadCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "secret")
	require.ErrorIs(t, err, blog.ErrBadCredentials)
	_, err = svc.Authenticate(ctx, "off", "secret")
	require.ErrorIs(t, err, blog.ErrBadCredentials)

	require.NoError(t, svc.CheckPermission(u, "default", blog.PermPublish))
	require.ErrorIs(t, svc.CheckPermission(u, "default", blog.PermAdmin), blog.ErrForbidden)
	require.ErrorIs(t, svc.CheckPermission(u, "other"), blog.ErrForbidden)
	require.NoError(t, svc.CheckPermission(blog.User{Super: true}, "other", blog.PermAdmin))

	blogs, err := svc.UserBlogs(ctx, u)
	require.NoError(t, err)
	require.Len(t, blogs, 1)
}

func TestCategories(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	ctx := context.Background()
	a, err := svc.NewCategory(ctx, blog.Category{BlogID: "default", Title: "Café"})
	require.NoError(t, err)
	b, err := svc.NewCategory(ctx, blog.Category{BlogID: "default", Title: "cafe"})
	require.NoError(t, err)
	assert.Equal(t, "cafe", a.URL)
	assert.Equal(t, "cafe-1", b.URL)
	assert.Greater(t, b.Position, a.Position)

	post, err := svc.NewPost(ctx, blog.Post{BlogID: "default", Title: "x", Content: "y"})
	require.NoError(t, err)
	require.NoError(t, svc.SetPostCategory(ctx, "default", post.ID, b.ID))
	got, err := svc.GetPost(ctx, "default", post.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.CategoryID)

	found, err := svc.CategoryByURL(ctx, "default", "cafe-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)
	require.NoError(t, svc.DeleteCategory(ctx, "default", b.ID))
	require.ErrorIs(t, svc.DeleteCategory(ctx, "default", b.ID), blog.ErrNotFound)
}
