package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/config"
	"github.com/JakeFAU/inkpress/internal/modules"
	"github.com/JakeFAU/inkpress/internal/plugins/widgets"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Logging.Development = false
	cfg.Blog.Name = "Test Notes"
	cfg.Modules.PluginDirs = []string{filepath.Join(dir, "plugins")}
	cfg.Modules.ThemesDir = filepath.Join(dir, "themes")
	cfg.Modules.StateFile = filepath.Join(dir, "modules.yaml")
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	hash, err := blog.HashPassword("s3cret")
	require.NoError(t, err)
	cfg.Bootstrap.AdminUser = "admin"
	cfg.Bootstrap.AdminPasswordHash = hash
	return &cfg
}

func buildApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func rpcCall(t *testing.T, h http.Handler, method string, params ...any) (any, error) {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, xmlrpc.EncodeCall(&body, method, params...))
	req := httptest.NewRequest(http.MethodPost, "http://localhost:8080/xmlrpc/default", &body)
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return xmlrpc.DecodeResponse(rec.Body)
}

func TestBuildServesBlogAndProbes(t *testing.T) {
	app := buildApp(t, testConfig(t))
	h := app.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Test Notes")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/no/such/page", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestXMLRPCPublishShowsOnHome(t *testing.T) {
	app := buildApp(t, testConfig(t))
	h := app.Handler()

	methods, err := rpcCall(t, h, "system.listMethods")
	require.NoError(t, err)
	assert.Contains(t, methods, "metaWeblog.newPost")
	assert.Contains(t, methods, "pingback.ping")

	_, err = rpcCall(t, h, "metaWeblog.newPost", "default", "admin", "wrong",
		map[string]any{"title": "Nope", "description": "x"}, true)
	var fault *xmlrpc.Fault
	require.ErrorAs(t, err, &fault)

	id, err := rpcCall(t, h, "metaWeblog.newPost", "default", "admin", "s3cret",
		map[string]any{"title": "Wired Together", "description": "<p>hello</p>"}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wired Together")
}

func TestCloseFlushesEventsBeforePingbackQueue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pingback.Enabled = true
	cfg.Events.BatchMaxEvents = 1000
	cfg.Events.BatchMaxWait = time.Hour
	app := buildApp(t, cfg)
	require.NotNil(t, app.pingQueue)

	_, err := app.svc.NewPost(context.Background(), blog.Post{
		BlogID: cfg.Blog.ID, UserID: "admin", Status: blog.PostPublished, Title: "Linking out",
		Content: `<p>See <a href="http://remote.test/article">this</a>.</p>`,
	})
	require.NoError(t, err)
	assert.Zero(t, app.pingQueue.Len())

	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, 1, app.pingQueue.Len())
}

func TestMediaUploadIsServed(t *testing.T) {
	app := buildApp(t, testConfig(t))
	h := app.Handler()

	res, err := rpcCall(t, h, "metaWeblog.newMediaObject", "default", "admin", "s3cret",
		map[string]any{"name": "note.txt", "type": "text/plain", "bits": []byte("plain words")})
	require.NoError(t, err)
	link, _ := res.(map[string]any)["url"].(string)
	require.True(t, strings.HasPrefix(link, "http://localhost:8080/media/"), link)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plain words", rec.Body.String())
}

func TestAdminAPIListsBuiltinPlugins(t *testing.T) {
	app := buildApp(t, testConfig(t))
	h := app.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://localhost:8080/admin/api/login",
		strings.NewReader(`{"user":"admin","password":"s3cret"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "http://localhost:8080/admin/api/modules", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Modules []modules.Module `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	ids := make([]string, 0, len(list.Modules))
	for _, m := range list.Modules {
		ids = append(ids, m.ID)
	}
	assert.Subset(t, ids, []string{"editor", "widgets", "breadcrumb", "maintenance"})
	assert.True(t, app.Modules().IsActive(widgets.ID))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "http://localhost:8080/admin/api/events?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"events":`)

	statuses, err := app.Maintenance().Statuses(context.Background(), "default")
	require.NoError(t, err)
	assert.NotEmpty(t, statuses)
}

func TestMigrateIsNoopInMemory(t *testing.T) {
	app := buildApp(t, testConfig(t))
	require.NoError(t, app.Migrate(context.Background()))
}

func TestNewAppRequiresConfig(t *testing.T) {
	_, err := NewApp(nil, nil)
	assert.Error(t, err)
}
