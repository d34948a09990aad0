package modules

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inkpress/internal/events"
)

type memSettings struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{data: map[string]map[string]string{}}
}

func (s *memSettings) Settings(_ context.Context, blogID, ns string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for k, v := range s.data[blogID+"/"+ns] {
		out[k] = v
	}
	return out, nil
}

func (s *memSettings) SetSetting(_ context.Context, blogID, ns, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data[blogID+"/"+ns]
	if m == nil {
		m = map[string]string{}
		s.data[blogID+"/"+ns] = m
	}
	m[key] = value
	return nil
}

func (s *memSettings) DropSettings(_ context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if strings.HasSuffix(k, "/"+ns) {
			delete(s.data, k)
		}
	}
	return nil
}

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

type hooked struct {
	id    string
	def   Define
	calls []string
	fail  error
}

func (h *hooked) ID() string     { return h.id }
func (h *hooked) Define() Define { return h.def }
func (h *hooked) Install(context.Context) error {
	h.calls = append(h.calls, "install")
	return nil
}
func (h *hooked) Activate(context.Context) error {
	h.calls = append(h.calls, "activate")
	return h.fail
}
func (h *hooked) Deactivate(context.Context) error {
	h.calls = append(h.calls, "deactivate")
	return nil
}
func (h *hooked) Uninstall(context.Context) error {
	h.calls = append(h.calls, "uninstall")
	return nil
}
func (h *hooked) Configure(_ context.Context, blogID string, s map[string]string) error {
	h.calls = append(h.calls, "configure:"+blogID+":"+s["color"])
	return nil
}

func writeModule(t *testing.T, dir, id, define string) string {
	t.Helper()
	root := filepath.Join(dir, id)
	require.NoError(t, os.MkdirAll(root, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, DefineFile), []byte(define), 0o600))
	return root
}

type env struct {
	m        *Manager
	plugins  string
	themes   string
	state    string
	settings *memSettings
	events   *recorder
	ops      map[string]string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		plugins:  filepath.Join(dir, "plugins"),
		themes:   filepath.Join(dir, "themes"),
		state:    filepath.Join(dir, "state", "modules.yaml"),
		settings: newMemSettings(),
		events:   &recorder{},
		ops:      map[string]string{},
	}
	require.NoError(t, os.MkdirAll(e.plugins, 0o750))
	require.NoError(t, os.MkdirAll(e.themes, 0o750))
	e.m = New(Config{
		PluginDirs:  []string{e.plugins},
		ThemesDir:   e.themes,
		StateFile:   e.state,
		Protected:   []string{"locked"},
		CoreVersion: "2.1",
	}, e.settings, nil, WithEmitter(e.events), WithObserver(func(op, result string) { e.ops[op] = result }))
	return e
}

func TestScanAndList(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	writeModule(t, e.plugins, "gallery", "name: Gallery\nversion: 1.0\npriority: 5\n")
	writeModule(t, e.plugins, "alpha", "name: Alpha\nversion: 0.1\npriority: 5\n")
	writeModule(t, e.plugins, "first", "name: First\nversion: 2.0\npriority: 1\n")
	writeModule(t, e.plugins, "broken", "name: [\n")
	writeModule(t, e.plugins, "nameless", "version: 1\n")
	writeModule(t, e.plugins, "wrongtype", "name: T\nversion: 1\ntype: theme\n")
	writeModule(t, e.themes, "berlin", "name: Berlin\nversion: 1.0\ntype: theme\n")
	require.NoError(t, os.MkdirAll(filepath.Join(e.plugins, "nodefine"), 0o750))

	require.NoError(t, e.m.Scan(context.Background()))

	var ids []string
	for _, mod := range e.m.List(TypePlugin) {
		ids = append(ids, mod.ID)
	}
	assert.Equal(t, []string{"first", "alpha", "gallery"}, ids)
	themes := e.m.List(TypeTheme)
	require.Len(t, themes, 1)
	assert.Equal(t, "berlin", themes[0].ID)
	assert.Len(t, e.m.List(""), 4)

	mod, err := e.m.Get("gallery")
	require.NoError(t, err)
	assert.True(t, mod.Active())
	assert.Equal(t, filepath.Join(e.plugins, "gallery"), mod.Root)

	_, err = e.m.Get("broken")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestRequirements(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	writeModule(t, e.plugins, "base", "name: Base\nversion: 1.5\n")
	writeModule(t, e.plugins, "needsbase", "name: N\nversion: 1\nrequires:\n  - id: base\n    version: \"1.2\"\n")
	writeModule(t, e.plugins, "needsnewbase", "name: N\nversion: 1\nrequires:\n  - id: base\n    version: \"2.0\"\n")
	writeModule(t, e.plugins, "chain", "name: C\nversion: 1\nrequires:\n  - id: needsnewbase\n")
	writeModule(t, e.plugins, "needscore", "name: C\nversion: 1\nrequires:\n  - id: core\n    version: \"3.0\"\n")
	require.NoError(t, e.m.Scan(context.Background()))

	assert.True(t, e.m.IsActive("needsbase"))
	mod, _ := e.m.Get("needsnewbase")
	assert.Equal(t, []string{"base 2.0"}, mod.Missing)
	mod, _ = e.m.Get("chain")
	assert.Equal(t, []string{"needsnewbase"}, mod.Missing)
	mod, _ = e.m.Get("needscore")
	assert.Equal(t, []string{"core 3.0"}, mod.Missing)

	require.NoError(t, e.m.Deactivate(context.Background(), "base"))
	assert.False(t, e.m.IsActive("needsbase"))
	require.NoError(t, e.m.Activate(context.Background(), "base"))
	assert.True(t, e.m.IsActive("needsbase"))
}

func TestActivateDeactivateDiskModule(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	root := writeModule(t, e.plugins, "gallery", "name: Gallery\nversion: 1.0\n")
	ctx := context.Background()
	require.NoError(t, e.m.Scan(ctx))

	changes := 0
	e.m.OnChange(func() { changes++ })

	require.NoError(t, e.m.Deactivate(ctx, "gallery"))
	assert.FileExists(t, filepath.Join(root, DisabledMarker))
	assert.False(t, e.m.IsActive("gallery"))
	assert.Equal(t, "ok", e.ops["deactivate"])

	require.NoError(t, e.m.Activate(ctx, "gallery"))
	assert.NoFileExists(t, filepath.Join(root, DisabledMarker))
	assert.True(t, e.m.IsActive("gallery"))
	assert.Equal(t, 2, changes)

	err := e.m.Activate(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.Equal(t, "error", e.ops["activate"])

	require.Len(t, e.events.got, 2)
	assert.Equal(t, events.ModuleChanged, e.events.got[0].Type)
	assert.Equal(t, "gallery", e.events.got[0].Module)
	assert.Equal(t, "deactivate", e.events.got[0].Note)
}

func TestBuiltinLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	p := &hooked{id: "widgets", def: Define{Name: "Widgets", Version: "1.0", Type: TypePlugin,
		Settings: []Setting{{Key: "color", Default: "blue"}}}}
	require.NoError(t, e.m.Register(ctx, p))
	require.NoError(t, e.m.Scan(ctx))
	assert.Equal(t, []string{"install"}, p.calls)

	mod, err := e.m.Get("widgets")
	require.NoError(t, err)
	assert.True(t, mod.Builtin)
	assert.True(t, mod.Active())
	assert.Same(t, Plugin(p), mod.Plugin())

	require.NoError(t, e.m.Deactivate(ctx, "widgets"))
	assert.False(t, e.m.IsActive("widgets"))
	assert.FileExists(t, e.state)

	// A new manager reads the saved state and does not reinstall.
	again := New(Config{StateFile: e.state}, e.settings, nil)
	p2 := &hooked{id: "widgets", def: p.def}
	require.NoError(t, again.Register(ctx, p2))
	require.NoError(t, again.Scan(ctx))
	assert.Empty(t, p2.calls)
	assert.False(t, again.IsActive("widgets"))

	require.NoError(t, e.m.Activate(ctx, "widgets"))
	assert.True(t, e.m.IsActive("widgets"))
	assert.Equal(t, []string{"install", "deactivate", "activate"}, p.calls)

	p.fail = errors.New("boom")
	assert.Error(t, e.m.Activate(ctx, "widgets"))
}

func TestSettingsAndConfigure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	p := &hooked{id: "widgets", def: Define{Name: "Widgets", Version: "1.0", Type: TypePlugin,
		Settings: []Setting{{Key: "color", Default: "blue"}, {Key: "size", Default: "3"}}}}
	require.NoError(t, e.m.Register(ctx, p))
	require.NoError(t, e.m.Scan(ctx))

	got, err := e.m.Settings(ctx, "main", "widgets")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "blue", "size": "3"}, got)

	require.NoError(t, e.m.Configure(ctx, "main", "widgets", map[string]string{"color": "red"}))
	got, err = e.m.Settings(ctx, "main", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "red", got["color"])
	assert.Contains(t, p.calls, "configure:main:red")

	other, err := e.m.Settings(ctx, "other", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "blue", other["color"])

	err = e.m.Configure(ctx, "main", "widgets", map[string]string{"bogus": "1"})
	assert.ErrorIs(t, err, ErrUnknownSetting)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	root := writeModule(t, e.plugins, "gallery", "name: Gallery\nversion: 1.0\n")
	writeModule(t, e.plugins, "locked", "name: Locked\nversion: 1.0\n")
	require.NoError(t, e.m.Scan(ctx))
	require.NoError(t, e.settings.SetSetting(ctx, "main", SettingsNamespace("gallery"), "size", "2"))
	require.NoError(t, e.settings.SetSetting(ctx, "main", SettingsNamespace("locked"), "size", "4"))

	require.NoError(t, e.m.Delete(ctx, "gallery"))
	assert.NoDirExists(t, root)
	_, err := e.m.Get("gallery")
	assert.ErrorIs(t, err, ErrUnknownModule)
	stored, err := e.settings.Settings(ctx, "main", SettingsNamespace("gallery"))
	require.NoError(t, err)
	assert.Empty(t, stored)

	assert.ErrorIs(t, e.m.Delete(ctx, "locked"), ErrProtected)
	stored, err = e.settings.Settings(ctx, "main", SettingsNamespace("locked"))
	require.NoError(t, err)
	assert.Equal(t, "4", stored["size"])
}

func TestUninstallBuiltin(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	def := Define{Name: "Widgets", Version: "1.0", Type: TypePlugin, Settings: []Setting{{Key: "color", Default: "blue"}}}
	p := &hooked{id: "widgets", def: def}
	require.NoError(t, e.m.Register(ctx, p))
	require.NoError(t, e.m.Scan(ctx))
	require.NoError(t, e.m.Configure(ctx, "main", "widgets", map[string]string{"color": "red"}))
	require.NoError(t, e.settings.SetSetting(ctx, "other", SettingsNamespace("widgets"), "color", "green"))
	require.NoError(t, e.settings.SetSetting(ctx, "main", SettingsNamespace("gallery"), "size", "2"))

	require.NoError(t, e.m.Delete(ctx, "widgets"))
	assert.Equal(t, "ok", e.ops["delete"])
	require.NotEmpty(t, p.calls)
	assert.Equal(t, "uninstall", p.calls[len(p.calls)-1])
	mod, err := e.m.Get("widgets")
	require.NoError(t, err)
	assert.True(t, mod.Builtin)
	assert.False(t, mod.Active())

	got, err := e.m.Settings(ctx, "main", "widgets")
	require.NoError(t, err)
	assert.Equal(t, "blue", got["color"])
	stored, err := e.settings.Settings(ctx, "other", SettingsNamespace("widgets"))
	require.NoError(t, err)
	assert.Empty(t, stored)
	kept, err := e.settings.Settings(ctx, "main", SettingsNamespace("gallery"))
	require.NoError(t, err)
	assert.Equal(t, "2", kept["size"])

	// A restart does not install it again behind the user's back.
	again := New(Config{StateFile: e.state}, e.settings, nil)
	p2 := &hooked{id: "widgets", def: def}
	require.NoError(t, again.Register(ctx, p2))
	require.NoError(t, again.Scan(ctx))
	assert.Empty(t, p2.calls)
	assert.False(t, again.IsActive("widgets"))

	p.calls = nil
	require.NoError(t, e.m.Activate(ctx, "widgets"))
	assert.Equal(t, []string{"install", "activate"}, p.calls)
	assert.True(t, e.m.IsActive("widgets"))

	p.calls = nil
	require.NoError(t, e.m.Deactivate(ctx, "widgets"))
	require.NoError(t, e.m.Activate(ctx, "widgets"))
	assert.Equal(t, []string{"deactivate", "activate"}, p.calls)
}

func TestTemplateDirsThemesAndPublicFS(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	root := writeModule(t, e.plugins, "gallery", "name: Gallery\nversion: 1.0\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, TemplateDir), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "templates"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, PublicDir), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, PublicDir, "style.css"), []byte("body{}"), 0o600))
	writeModule(t, e.themes, "base", "name: Base\nversion: 1\ntype: theme\n")
	writeModule(t, e.themes, "child", "name: Child\nversion: 1\ntype: theme\nparent: base\n")
	require.NoError(t, e.m.Scan(ctx))

	assert.Equal(t, []string{filepath.Join(root, "tpl")}, e.m.TemplateDirs())

	dirs, err := e.m.ThemeDirs("child")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(e.themes, "child"), filepath.Join(e.themes, "base")}, dirs)
	_, err = e.m.ThemeDirs("gallery")
	assert.ErrorIs(t, err, ErrUnknownModule)

	data, err := fs.ReadFile(e.m.PublicFS(), "gallery/style.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))

	require.NoError(t, e.m.Deactivate(ctx, "gallery"))
	_, err = fs.ReadFile(e.m.PublicFS(), "gallery/style.css")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Empty(t, e.m.TemplateDirs())
	_, err = e.m.PublicFS().Open("../etc/passwd")
	assert.Error(t, err)
}
