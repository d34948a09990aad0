package maintenance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/clock/system"
	mediamem "github.com/JakeFAU/inkpress/internal/media/memory"
	"github.com/JakeFAU/inkpress/internal/plugins/maintenance"
	"github.com/JakeFAU/inkpress/internal/storage/memory"
)

type flusher struct{ n int }

func (f *flusher) Flush() { f.n++ }

type env struct {
	ctx    context.Context
	svc    *blog.Service
	clock  *system.Fixed
	cache  *flusher
	store  *mediamem.Store
	plugin *maintenance.Plugin
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.SaveBlog(ctx, blog.Blog{ID: "main", Name: "Main"}))
	require.NoError(t, repo.SaveUser(ctx, blog.User{ID: "ann", Status: 1}))
	clock := system.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := blog.NewService(repo, nil, clock, nil, nil)
	e := &env{ctx: ctx, svc: svc, clock: clock, cache: &flusher{}, store: mediamem.New("http://media.test/")}
	e.plugin = maintenance.New(svc, clock, nil, maintenance.Defaults(svc, e.cache, e.store, clock)...)
	return e
}

func (e *env) post(t *testing.T, title string) blog.Post {
	t.Helper()
	p, err := e.svc.NewPost(e.ctx, blog.Post{
		BlogID: "main", UserID: "ann", Title: title, Content: "some words", Status: blog.PostPublished, OpenComment: true,
	})
	require.NoError(t, err)
	return p
}

func TestTasksOrder(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	var ids []string
	for _, task := range e.plugin.Tasks() {
		ids = append(ids, task.ID())
	}
	assert.Equal(t, []string{"countcomments", "indexposts", "indexcomments", "cache", "exportblog"}, ids)
}

func TestRunRecordsTimestamp(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.post(t, "One")
	e.post(t, "Two")

	res, err := e.plugin.Run(e.ctx, "main", "indexposts")
	require.NoError(t, err)
	assert.Equal(t, "2 entries indexed", res.Message)
	assert.Equal(t, e.clock.Now(), res.Ran)

	statuses, err := e.plugin.Statuses(e.ctx, "main")
	require.NoError(t, err)
	for _, st := range statuses {
		if st.ID == "indexposts" {
			assert.Equal(t, e.clock.Now(), st.LastRun)
			assert.False(t, st.Expired)
		}
	}

	_, err = e.plugin.Run(e.ctx, "main", "cache")
	require.NoError(t, err)
	assert.Equal(t, 1, e.cache.n)

	_, err = e.plugin.Run(e.ctx, "main", "nope")
	require.ErrorIs(t, err, maintenance.ErrUnknownTask)
}

func TestExpired(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ids := func() []string {
		list, err := e.plugin.Expired(e.ctx, "main")
		require.NoError(t, err)
		var out []string
		for _, st := range list {
			out = append(out, st.ID)
		}
		return out
	}
	// Never run tasks with an interval are due.
	assert.Equal(t, []string{"indexposts", "exportblog"}, ids())

	_, err := e.plugin.Run(e.ctx, "main", "exportblog")
	require.NoError(t, err)
	_, err = e.plugin.Run(e.ctx, "main", "indexposts")
	require.NoError(t, err)
	assert.Empty(t, ids())

	e.clock.Advance(8 * 24 * time.Hour)
	assert.Equal(t, []string{"exportblog"}, ids())

	e.plugin.SetInterval("exportblog", 0)
	e.plugin.SetInterval("cache", time.Hour)
	assert.Equal(t, []string{"cache"}, ids())
}

func TestCountComments(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	p := e.post(t, "Commented")
	_, err := e.svc.AddComment(e.ctx, blog.Comment{BlogID: "main", PostID: p.ID, Author: "Bob", Content: "hi"},
		blog.CommentStatusPtr(blog.CommentPublished))
	require.NoError(t, err)

	res, err := e.plugin.Run(e.ctx, "main", "countcomments")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "posts updated")
	got, err := e.svc.GetPost(e.ctx, "main", p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NbComment)
}

func TestExportBlog(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.post(t, "Exported")

	res, err := e.plugin.Run(e.ctx, "main", "exportblog")
	require.NoError(t, err)
	assert.Equal(t, "exported to http://media.test/main/exports/20240501-120000.yaml", res.Message)

	data, ct, ok := e.store.Get("main/exports/20240501-120000.yaml")
	require.True(t, ok)
	assert.Equal(t, "application/yaml", ct)
	var doc maintenance.Export
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "Main", doc.Blog.Name)
	require.Len(t, doc.Posts, 1)
	assert.Equal(t, "Exported", doc.Posts[0].Title)
}

type failingIndexer struct{}

func (failingIndexer) RecountComments(context.Context, string) (int, error) { return 0, errors.New("db down") }
func (failingIndexer) ReindexPosts(context.Context, string) (int, error)    { return 0, nil }
func (failingIndexer) ReindexComments(context.Context, string) (int, error) { return 0, nil }

func TestFailedRunIsNotRecorded(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	p := maintenance.New(e.svc, e.clock, nil, maintenance.CountComments(failingIndexer{}))
	_, err := p.Run(e.ctx, "main", "countcomments")
	require.Error(t, err)
	statuses, err := p.Statuses(e.ctx, "main")
	require.NoError(t, err)
	assert.True(t, statuses[0].LastRun.IsZero())
}
