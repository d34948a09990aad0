package rpcapi_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/pingback"
	"github.com/JakeFAU/inkpress/internal/rpcapi"
	"github.com/JakeFAU/inkpress/internal/storage/memory"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

const base = "http://blog.test/"

type resolver struct {
	svc *blog.Service
}

func (resolver) BlogURL(blog.Blog) string { return base }
func (resolver) PostURL(_ blog.Blog, p blog.Post) string {
	if p.Type == blog.TypePage {
		return base + "pages/" + p.URL
	}
	return base + "post/" + p.URL
}
func (resolver) CategoryURL(_ blog.Blog, c blog.Category) string { return base + "category/" + c.URL }
func (resolver) CategoryFeedURL(_ blog.Blog, c blog.Category) string {
	return base + "feed/category/" + c.URL + "/atom"
}
func (resolver) TagURL(_ blog.Blog, tag string) string     { return base + "tag/" + tag }
func (resolver) TagFeedURL(_ blog.Blog, tag string) string { return base + "feed/tag/" + tag + "/atom" }
func (resolver) XMLRPCURL(b blog.Blog) string              { return base + "xmlrpc/" + b.ID }
func (r resolver) PostFromURL(ctx context.Context, b blog.Blog, target string) (blog.Post, error) {
	if !strings.HasPrefix(target, base+"post/") {
		return blog.Post{}, blog.ErrNotFound
	}
	return r.svc.PostByURL(ctx, b.ID, blog.TypePost, strings.TrimPrefix(target, base+"post/"))
}

type uploader struct {
	got []byte
}

func (u *uploader) Upload(_ context.Context, blogID, userID, name, contentType string, data []byte) (blog.Media, error) {
	u.got = data
	return blog.Media{ID: 9, BlogID: blogID, UserID: userID, Name: name, URL: base + "media/" + name, ContentType: contentType}, nil
}

type verifier struct {
	src pingback.Source
	err error
}

func (v verifier) Verify(context.Context, string, string) (pingback.Source, error) {
	return v.src, v.err
}

type fixture struct {
	svc  *blog.Service
	srv  *xmlrpc.Server
	ctx  context.Context
	up   *uploader
	repo *memory.Repository
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newFixture(t *testing.T, v rpcapi.Verifier) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.SaveBlog(ctx, blog.Blog{ID: "main", Name: "Main", Desc: "tagline", Lang: "en"}))
	require.NoError(t, repo.SaveBlog(ctx, blog.Blog{ID: "other", Name: "Other"}))
	users := []blog.User{
		{ID: "admin", Name: "Admin", Status: 1, PasswordHash: hash(t, "secret"),
			Permissions: map[string]blog.PermissionSet{"main": {blog.PermAdmin: true}}},
		{ID: "writer", Name: "Writer", DisplayName: "W. Riter", Status: 1, PasswordHash: hash(t, "pw"),
			Permissions: map[string]blog.PermissionSet{"main": {blog.PermUsage: true}}},
		{ID: "stranger", Status: 1, PasswordHash: hash(t, "pw"),
			Permissions: map[string]blog.PermissionSet{"other": {blog.PermUsage: true}}},
	}
	for _, u := range users {
		require.NoError(t, repo.SaveUser(ctx, u))
	}
	svc := blog.NewService(repo, nil, nil, nil, nil)
	up := &uploader{}
	opts := []rpcapi.Option{rpcapi.WithUploader(up)}
	if v != nil {
		opts = append(opts, rpcapi.WithVerifier(v))
	}
	api := rpcapi.New(rpcapi.Config{SoftwareVersion: "1.2.3", Pingbacks: true}, svc, resolver{svc: svc}, nil, opts...)
	srv := xmlrpc.NewServer(xmlrpc.Config{}, nil)
	api.Register(srv)
	return &fixture{svc: svc, srv: srv, ctx: rpcapi.WithBlogID(ctx, "main"), up: up, repo: repo}
}

func (f *fixture) call(t *testing.T, method string, params ...any) any {
	t.Helper()
	res, err := f.srv.Invoke(f.ctx, method, params)
	require.NoError(t, err, method)
	return res
}

func (f *fixture) fault(t *testing.T, method string, params ...any) int {
	t.Helper()
	_, err := f.srv.Invoke(f.ctx, method, params)
	var fault *xmlrpc.Fault
	require.True(t, errors.As(err, &fault), "%s: expected fault, got %v", method, err)
	return fault.Code
}

func TestAuthentication(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	assert.Equal(t, rpcapi.FaultLogin, f.fault(t, "metaWeblog.getRecentPosts", "main", "admin", "wrong", 5))
	assert.Equal(t, rpcapi.FaultLogin, f.fault(t, "metaWeblog.getRecentPosts", "main", "stranger", "pw", 5))
	assert.Equal(t, xmlrpc.FaultInvalidParams, f.fault(t, "metaWeblog.getRecentPosts", "main", "admin"))

	blogs := f.call(t, "blogger.getUsersBlogs", "", "writer", "pw").([]any)
	require.Len(t, blogs, 1)
	assert.Equal(t, map[string]any{
		"blogid":   "main",
		"blogName": "Main",
		"url":      base,
		"xmlrpc":   base + "xmlrpc/main",
		"isAdmin":  false,
	}, blogs[0])

	info := f.call(t, "blogger.getUserInfo", "", "writer", "pw").(map[string]any)
	assert.Equal(t, "W. Riter", info["nickname"])
}

func TestMetaWeblogPostLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_, err := f.svc.NewCategory(context.Background(), blog.Category{BlogID: "main", Title: "Go"})
	require.NoError(t, err)

	created := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	id := f.call(t, "metaWeblog.newPost", "main", "admin", "secret", map[string]any{
		"title":             "Hello RPC",
		"description":       "<p>body</p>",
		"mt_excerpt":        "short",
		"mt_keywords":       "go, rpc",
		"categories":        []any{"go"},
		"dateCreated":       created,
		"mt_allow_comments": 0,
	}, true).(string)

	post := f.call(t, "metaWeblog.getPost", id, "admin", "secret").(map[string]any)
	assert.Equal(t, "Hello RPC", post["title"])
	assert.Equal(t, "<p>body</p>", post["description"])
	assert.Equal(t, "short", post["mt_excerpt"])
	assert.Equal(t, "go, rpc", post["mt_keywords"])
	assert.Equal(t, []any{"Go"}, post["categories"])
	assert.Equal(t, created, post["dateCreated"])
	assert.Equal(t, 0, post["mt_allow_comments"])
	assert.Equal(t, "publish", post["post_status"])
	assert.Equal(t, base+"post/2024/03/04/hello-rpc", post["link"])

	assert.Equal(t, true, f.call(t, "metaWeblog.editPost", id, "admin", "secret",
		map[string]any{"title": "Hello again"}, false))
	post = f.call(t, "metaWeblog.getPost", id, "admin", "secret").(map[string]any)
	assert.Equal(t, "Hello again", post["title"])
	assert.Equal(t, "draft", post["post_status"])

	assert.Equal(t, true, f.call(t, "mt.publishPost", id, "admin", "secret"))
	recent := f.call(t, "mt.getRecentPostTitles", "main", "admin", "secret", 10).([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, "Hello again", recent[0].(map[string]any)["title"])

	assert.Equal(t, true, f.call(t, "blogger.deletePost", "", id, "admin", "secret", true))
	assert.Equal(t, rpcapi.FaultNotFound, f.fault(t, "metaWeblog.getPost", id, "admin", "secret"))
}

func TestWriterPermissions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	id := f.call(t, "metaWeblog.newPost", "main", "writer", "pw",
		map[string]any{"title": "Mine", "description": "x"}, true).(string)
	post := f.call(t, "metaWeblog.getPost", id, "writer", "pw").(map[string]any)
	assert.Equal(t, "pending", post["post_status"], "writers without publish right submit for review")

	adminID := f.call(t, "metaWeblog.newPost", "main", "admin", "secret",
		map[string]any{"title": "Theirs", "description": "y"}, false).(string)
	assert.Equal(t, rpcapi.FaultPermission, f.fault(t, "metaWeblog.editPost", adminID, "writer", "pw",
		map[string]any{"title": "hijack"}, true))
	assert.Equal(t, rpcapi.FaultPermission, f.fault(t, "blogger.deletePost", "", id, "writer", "pw", true))
	assert.Equal(t, rpcapi.FaultPermission, f.fault(t, "wp.newCategory", "main", "writer", "pw",
		map[string]any{"name": "Nope"}))

	recent := f.call(t, "metaWeblog.getRecentPosts", "main", "writer", "pw", 10).([]any)
	require.Len(t, recent, 1, "writers only list their own posts")
}

func TestBloggerContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	id := f.call(t, "blogger.newPost", "", "main", "admin", "secret", "<title>From Blogger</title><p>text</p>", true).(string)

	post := f.call(t, "blogger.getPost", "", id, "admin", "secret").(map[string]any)
	assert.Equal(t, "<title>From Blogger</title><p>text</p>", post["content"])

	require.Equal(t, true, f.call(t, "blogger.editPost", "", id, "admin", "secret", "<p>no title here at all</p>", true))
	n, _ := strconv.ParseInt(id, 10, 64)
	p, err := f.svc.GetPost(context.Background(), "main", n)
	require.NoError(t, err)
	assert.Equal(t, "no title here at all", p.Title)
}

func TestCategoriesAndTags(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	catID := f.call(t, "wp.newCategory", "main", "admin", "secret",
		map[string]any{"name": "Travel", "slug": "trips"}).(int)
	cats := f.call(t, "metaWeblog.getCategories", "main", "admin", "secret").([]any)
	require.Len(t, cats, 1)
	assert.Equal(t, base+"category/trips", cats[0].(map[string]any)["htmlUrl"])

	suggest := f.call(t, "wp.suggestCategories", "main", "admin", "secret", "tr").([]any)
	assert.Len(t, suggest, 1)

	id := f.call(t, "metaWeblog.newPost", "main", "admin", "secret",
		map[string]any{"title": "Tagged", "description": "x", "mt_keywords": "Sun, sea"}, true).(string)
	assert.Equal(t, true, f.call(t, "mt.setPostCategories", id, "admin", "secret",
		[]any{map[string]any{"categoryId": strconv.Itoa(catID), "isPrimary": true}}))
	pc := f.call(t, "mt.getPostCategories", id, "admin", "secret").([]any)
	require.Len(t, pc, 1)
	assert.Equal(t, "Travel", pc[0].(map[string]any)["categoryName"])

	tags := f.call(t, "wp.getTags", "main", "admin", "secret").([]any)
	require.Len(t, tags, 2)
	assert.Equal(t, "sea", tags[0].(map[string]any)["name"])

	assert.Equal(t, true, f.call(t, "wp.deleteCategory", "main", "admin", "secret", catID))
	assert.Empty(t, f.call(t, "mt.getPostCategories", id, "admin", "secret"))
}

func TestPages(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	id := f.call(t, "wp.newPage", "main", "admin", "secret",
		map[string]any{"title": "About", "description": "me", "page_status": "publish"}, false).(string)
	page := f.call(t, "wp.getPage", "main", id, "admin", "secret").(map[string]any)
	assert.Equal(t, id, page["page_id"])
	assert.Equal(t, "publish", page["page_status"])
	assert.Equal(t, base+"pages/about", page["link"])

	assert.Equal(t, true, f.call(t, "wp.editPage", "main", id, "admin", "secret",
		map[string]any{"title": "About us"}, true))
	list := f.call(t, "wp.getPageList", "main", "admin", "secret").([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "About us", list[0].(map[string]any)["page_title"])
	assert.Len(t, f.call(t, "wp.getPages", "main", "admin", "secret", 5), 1)

	assert.Equal(t, rpcapi.FaultNotFound, f.fault(t, "metaWeblog.getPost", id, "admin", "secret"),
		"pages are not posts")
	assert.Equal(t, true, f.call(t, "wp.deletePage", "main", "admin", "secret", id))
	assert.Empty(t, f.call(t, "wp.getPageList", "main", "admin", "secret"))
}

func TestComments(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	id := f.call(t, "metaWeblog.newPost", "main", "admin", "secret",
		map[string]any{"title": "Discuss", "description": "x"}, true).(string)

	cid := f.call(t, "wp.newComment", "main", "writer", "pw", id, map[string]any{"content": "Nice one"}).(int)
	c := f.call(t, "wp.getComment", "main", "admin", "secret", cid).(map[string]any)
	assert.Equal(t, "W. Riter", c["author"])
	assert.Equal(t, "approve", c["status"])
	assert.Equal(t, "Discuss", c["post_title"])

	assert.Equal(t, rpcapi.FaultPermission, f.fault(t, "wp.editComment", "main", "writer", "pw", cid,
		map[string]any{"status": "spam"}))
	assert.Equal(t, true, f.call(t, "wp.editComment", "main", "admin", "secret", cid,
		map[string]any{"status": "hold"}))

	count := f.call(t, "wp.getCommentCount", "main", "admin", "secret", id).(map[string]any)
	assert.Equal(t, 0, count["approved"])
	assert.Equal(t, 1, count["awaiting_moderation"])
	assert.Equal(t, 1, count["total_comments"])

	assert.Len(t, f.call(t, "wp.getComments", "main", "admin", "secret", map[string]any{"post_id": id}), 1)
	assert.Empty(t, f.call(t, "wp.getComments", "main", "writer", "pw", map[string]any{}),
		"held comments are hidden from writers")

	assert.Equal(t, true, f.call(t, "wp.deleteComment", "main", "admin", "secret", cid))
	assert.Equal(t, rpcapi.FaultNotFound, f.fault(t, "wp.getComment", "main", "admin", "secret", cid))
}

func TestOptionsAndLists(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	opts := f.call(t, "wp.getOptions", "main", "admin", "secret", []any{"software_version", "blog_title"}).(map[string]any)
	require.Len(t, opts, 2)
	assert.Equal(t, "1.2.3", opts["software_version"].(map[string]any)["value"])

	assert.Equal(t, rpcapi.FaultPermission, f.fault(t, "wp.setOptions", "main", "writer", "pw",
		map[string]any{"blog_title": "Hacked"}))
	updated := f.call(t, "wp.setOptions", "main", "admin", "secret", map[string]any{"blog_title": "Renamed"}).(map[string]any)
	assert.Equal(t, "Renamed", updated["blog_title"].(map[string]any)["value"])
	b, err := f.svc.GetBlog(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", b.Name)

	statuses := f.call(t, "wp.getPostStatusList", "main", "admin", "secret").(map[string]any)
	assert.Contains(t, statuses, "publish")
	assert.Contains(t, f.call(t, "wp.getCommentStatusList", "main", "admin", "secret"), "approve")
	authors := f.call(t, "wp.getAuthors", "main", "admin", "secret").([]any)
	assert.Len(t, authors, 2)

	methods := f.call(t, "mt.supportedMethods").([]string)
	assert.Contains(t, methods, "wp.getUsersBlogs")
	assert.Contains(t, methods, "pingback.ping")
	filters := f.call(t, "mt.supportedTextFilters").([]any)
	assert.Equal(t, map[string]any{"key": "xhtml", "label": "xhtml"}, filters[0])
}

func TestMediaUpload(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	res := f.call(t, "metaWeblog.newMediaObject", "main", "admin", "secret", map[string]any{
		"name": "cat.png", "type": "image/png", "bits": []byte{1, 2, 3},
	}).(map[string]any)
	assert.Equal(t, base+"media/cat.png", res["url"])
	assert.Equal(t, []byte{1, 2, 3}, f.up.got)

	assert.Equal(t, rpcapi.FaultPermission, f.fault(t, "wp.uploadFile", "main", "writer", "pw",
		map[string]any{"name": "x.txt", "bits": []byte("x")}))
}

func TestPingback(t *testing.T) {
	t.Parallel()
	source := "http://remote.test/article"
	f := newFixture(t, verifier{src: pingback.Source{URL: source, Title: "Remote article", Excerpt: "[...] nice [...]"}})
	id := f.call(t, "metaWeblog.newPost", "main", "admin", "secret",
		map[string]any{"title": "Target", "description": "x", "dateCreated": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}, true).(string)
	target := base + "post/2024/01/02/target"

	msg := f.call(t, "pingback.ping", source, target).(string)
	assert.Contains(t, msg, "Pingback registered")
	assert.Equal(t, rpcapi.PingbackAlreadyRecorded, f.fault(t, "pingback.ping", source, target))
	assert.Equal(t, rpcapi.PingbackTargetMissing, f.fault(t, "pingback.ping", source, base+"post/nope"))
	assert.Equal(t, rpcapi.PingbackGeneric, f.fault(t, "pingback.ping", target, target))

	pings := f.call(t, "mt.getTrackbackPings", id).([]any)
	require.Len(t, pings, 1)
	assert.Equal(t, "Remote article", pings[0].(map[string]any)["pingTitle"])

	assert.Equal(t, true, f.call(t, "metaWeblog.editPost", id, "admin", "secret",
		map[string]any{"mt_allow_pings": 0}, true))
	assert.Equal(t, rpcapi.PingbackTargetInvalid, f.fault(t, "pingback.ping", "http://remote.test/2", target))
}

func TestPingbackVerifierErrors(t *testing.T) {
	t.Parallel()
	cases := map[error]int{
		pingback.ErrNoLink:         rpcapi.PingbackNoLink,
		pingback.ErrSourceNotFound: rpcapi.PingbackSourceMissing,
		pingback.ErrUpstream:       rpcapi.PingbackUpstream,
	}
	for verr, code := range cases {
		f := newFixture(t, verifier{err: verr})
		f.call(t, "metaWeblog.newPost", "main", "admin", "secret",
			map[string]any{"title": "T", "description": "x", "dateCreated": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}, true)
		assert.Equal(t, code, f.fault(t, "pingback.ping", "http://remote.test/a", base+"post/2024/01/02/t"), verr.Error())
	}

	f := newFixture(t, nil)
	assert.Equal(t, rpcapi.PingbackAccessDenied, f.fault(t, "pingback.ping", "http://remote.test/a", base+"post/x"))
}

func TestHandlerScopesBlog(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	h := rpcapi.Handler(f.srv, "other")

	var body bytes.Buffer
	require.NoError(t, xmlrpc.EncodeCall(&body, "metaWeblog.getRecentPosts", "other", "admin", "secret", 5))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/xmlrpc/other", &body))

	_, err := xmlrpc.DecodeResponse(rec.Body)
	var fault *xmlrpc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, rpcapi.FaultLogin, fault.Code, "admin of main has no access to other")
}
