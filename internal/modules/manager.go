package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/events"
	"github.com/JakeFAU/inkpress/internal/watch"
)

// DisabledMarker turns a disk module off while keeping it installed.
const DisabledMarker = "_disabled"

// CoreID is the requirement id matched against Config.CoreVersion.
const CoreID = "core"

// Config locates modules on disk.
type Config struct {
	// PluginDirs are scanned in order; the first one receives installs.
	PluginDirs []string
	ThemesDir  string
	// StateFile keeps the enabled state of builtin plugins.
	StateFile string
	// Protected modules cannot be deleted.
	Protected   []string
	CoreVersion string
	// MaxPackageSize caps the uncompressed size of an installed archive.
	MaxPackageSize int64
}

// SettingsStore persists blog-scoped module settings; blog.Service
// satisfies it.
type SettingsStore interface {
	Settings(ctx context.Context, blogID, namespace string) (map[string]string, error)
	SetSetting(ctx context.Context, blogID, namespace, key, value string) error
	DropSettings(ctx context.Context, namespace string) error
}

// Module is one known plugin or theme.
type Module struct {
	ID string `json:"id"`
	Define
	// Root is the module directory; empty for builtins.
	Root    string `json:"root,omitempty"`
	Builtin bool   `json:"builtin"`
	Enabled bool   `json:"enabled"`
	// Missing lists unmet requirements; such a module stays inactive.
	Missing []string `json:"missing,omitempty"`

	plugin Plugin
}

// Active reports whether the module is enabled with all requirements met.
func (m Module) Active() bool {
	return m.Enabled && len(m.Missing) == 0
}

// Plugin returns the compiled-in implementation of a builtin.
func (m Module) Plugin() Plugin {
	return m.plugin
}

// Manager keeps the module list and applies lifecycle operations.
type Manager struct {
	cfg      Config
	settings SettingsStore
	emitter  events.Emitter
	observe  func(op, result string)
	logger   *zap.Logger

	mu        sync.RWMutex
	builtins  map[string]Plugin
	mods      map[string]*Module
	state     state
	listeners []func()
}

// Option customizes a Manager.
type Option func(*Manager)

// WithEmitter publishes a ModuleChanged event after each operation.
func WithEmitter(e events.Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithObserver is told the outcome of every operation.
func WithObserver(fn func(op, result string)) Option {
	return func(m *Manager) { m.observe = fn }
}

// New returns a manager. Call Register for builtins, then Scan.
func New(cfg Config, settings SettingsStore, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		settings: settings,
		emitter:  events.Nop{},
		observe:  func(string, string) {},
		logger:   logger,
		builtins: map[string]Plugin{},
		mods:     map[string]*Module{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to run after every rescan.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Register adds a compiled-in plugin. Its Install hook runs the first time
// the id is seen. An uninstalled builtin stays off until activated.
func (m *Manager) Register(ctx context.Context, p Plugin) error {
	id := p.ID()
	if !ValidID(id) {
		return fmt.Errorf("%w: bad id %q", ErrInvalidDefine, id)
	}
	if err := p.Define().Validate(); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadState(); err != nil {
		return err
	}
	m.builtins[id] = p
	if slices.Contains(m.state.Disabled, id) {
		return nil
	}
	return m.install(ctx, id, p)
}

// install runs the Install hook of a builtin unless the state already
// records it. Callers hold m.mu with the state loaded.
func (m *Manager) install(ctx context.Context, id string, p Plugin) error {
	if slices.Contains(m.state.Installed, id) {
		return nil
	}
	if h, ok := p.(Installer); ok {
		if err := h.Install(ctx); err != nil {
			return fmt.Errorf("install %s: %w", id, err)
		}
	}
	m.state.Installed = append(m.state.Installed, id)
	return m.saveState()
}

// Scan rebuilds the module list from builtins and module directories.
func (m *Manager) Scan(ctx context.Context) error {
	m.mu.Lock()
	if err := m.loadState(); err != nil {
		m.mu.Unlock()
		return err
	}
	mods := map[string]*Module{}
	for id, p := range m.builtins {
		mods[id] = &Module{
			ID:      id,
			Define:  p.Define(),
			Builtin: true,
			Enabled: !slices.Contains(m.state.Disabled, id),
			plugin:  p,
		}
	}
	for _, dir := range m.cfg.PluginDirs {
		m.scanDir(ctx, dir, TypePlugin, mods)
	}
	if m.cfg.ThemesDir != "" {
		m.scanDir(ctx, m.cfg.ThemesDir, TypeTheme, mods)
	}
	m.resolve(mods)
	m.mods = mods
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

func (m *Manager) scanDir(ctx context.Context, dir string, typ Type, mods map[string]*Module) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("read module dir", zap.String("dir", dir), zap.Error(err))
		}
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if !e.IsDir() || !ValidID(e.Name()) {
			continue
		}
		id := e.Name()
		if _, dup := mods[id]; dup {
			m.logger.Debug("module shadowed", zap.String("module", id), zap.String("dir", dir))
			continue
		}
		root := filepath.Join(dir, id)
		data, err := os.ReadFile(filepath.Join(root, DefineFile))
		if err != nil {
			continue
		}
		def, err := ParseDefine(data)
		if err != nil {
			m.logger.Warn("skip module", zap.String("module", id), zap.Error(err))
			continue
		}
		if def.Type != typ {
			m.logger.Warn("skip module", zap.String("module", id), zap.String("type", string(def.Type)),
				zap.String("want", string(typ)))
			continue
		}
		_, err = os.Stat(filepath.Join(root, DisabledMarker))
		mods[id] = &Module{ID: id, Define: def, Root: root, Enabled: errors.Is(err, os.ErrNotExist)}
	}
}

// resolve marks enabled modules whose requirements are unmet. It repeats
// until stable since one inactive module can break others.
func (m *Manager) resolve(mods map[string]*Module) {
	for _, mod := range mods {
		mod.Missing = nil
	}
	for changed := true; changed; {
		changed = false
		for _, mod := range mods {
			if !mod.Active() {
				continue
			}
			if missing := m.unmet(mod, mods); len(missing) > 0 {
				mod.Missing = missing
				changed = true
				m.logger.Info("module requirements unmet", zap.String("module", mod.ID), zap.Strings("missing", missing))
			}
		}
	}
}

func (m *Manager) unmet(mod *Module, mods map[string]*Module) []string {
	var missing []string
	for _, r := range mod.Requires {
		label := r.ID
		if r.Version != "" {
			label += " " + r.Version
		}
		if r.ID == CoreID {
			if r.Version != "" && CompareVersions(m.cfg.CoreVersion, r.Version) < 0 {
				missing = append(missing, label)
			}
			continue
		}
		dep, ok := mods[r.ID]
		if !ok || !dep.Active() || (r.Version != "" && CompareVersions(dep.Version, r.Version) < 0) {
			missing = append(missing, label)
		}
	}
	return missing
}

// List returns modules of typ ("" for all) by priority then id.
func (m *Manager) List(typ Type) []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Module, 0, len(m.mods))
	for _, mod := range m.mods {
		if typ == "" || mod.Type == typ {
			out = append(out, *mod)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Active returns the active modules of typ by priority.
func (m *Manager) Active(typ Type) []Module {
	all := m.List(typ)
	out := all[:0]
	for _, mod := range all {
		if mod.Active() {
			out = append(out, mod)
		}
	}
	return out
}

// Get returns one module.
func (m *Manager) Get(id string) (Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.mods[id]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return *mod, nil
}

// IsActive reports whether id is known and active.
func (m *Manager) IsActive(id string) bool {
	mod, err := m.Get(id)
	return err == nil && mod.Active()
}

// Activate enables a module.
func (m *Manager) Activate(ctx context.Context, id string) (err error) {
	defer m.done("activate", id, &err)
	mod, err := m.Get(id)
	if err != nil {
		return err
	}
	if mod.Builtin {
		m.mu.Lock()
		err = m.loadState()
		if err == nil {
			err = m.install(ctx, id, mod.plugin)
		}
		m.mu.Unlock()
		if err != nil {
			return err
		}
		if err := m.updateState(func(s *state) { s.Disabled = remove(s.Disabled, id) }); err != nil {
			return err
		}
	} else if err := os.Remove(filepath.Join(mod.Root, DisabledMarker)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("activate %s: %w", id, err)
	}
	if h, ok := mod.plugin.(Activator); ok {
		if err := h.Activate(ctx); err != nil {
			return fmt.Errorf("activate %s: %w", id, err)
		}
	}
	return m.Scan(ctx)
}

// Deactivate disables a module.
func (m *Manager) Deactivate(ctx context.Context, id string) (err error) {
	defer m.done("deactivate", id, &err)
	mod, err := m.Get(id)
	if err != nil {
		return err
	}
	if mod.Builtin {
		err = m.updateState(func(s *state) {
			if !slices.Contains(s.Disabled, id) {
				s.Disabled = append(s.Disabled, id)
			}
		})
		if err != nil {
			return err
		}
	} else if err := os.WriteFile(filepath.Join(mod.Root, DisabledMarker), nil, 0o600); err != nil {
		return fmt.Errorf("deactivate %s: %w", id, err)
	}
	if h, ok := mod.plugin.(Deactivator); ok {
		if err := h.Deactivate(ctx); err != nil {
			return fmt.Errorf("deactivate %s: %w", id, err)
		}
	}
	return m.Scan(ctx)
}

// Delete uninstalls a module and drops its settings on every blog. A disk
// module is removed from disk. A builtin runs its Uninstall hook and stays
// listed but disabled; Activate installs it again. Protected modules
// refuse.
func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	defer m.done("delete", id, &err)
	mod, err := m.Get(id)
	if err != nil {
		return err
	}
	if slices.Contains(m.cfg.Protected, id) {
		return fmt.Errorf("delete %s: %w", id, ErrProtected)
	}
	if h, ok := mod.plugin.(Uninstaller); ok {
		if err := h.Uninstall(ctx); err != nil {
			return fmt.Errorf("uninstall %s: %w", id, err)
		}
	}
	if mod.Builtin {
		err = m.updateState(func(s *state) {
			s.Installed = remove(s.Installed, id)
			if !slices.Contains(s.Disabled, id) {
				s.Disabled = append(s.Disabled, id)
			}
		})
		if err != nil {
			return err
		}
	} else if err := os.RemoveAll(mod.Root); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if err := m.settings.DropSettings(ctx, SettingsNamespace(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return m.Scan(ctx)
}

// SettingsNamespace is where a module's blog settings live.
func SettingsNamespace(id string) string {
	return "module_" + id
}

// Settings returns the declared settings of a module for a blog, stored
// values over defaults.
func (m *Manager) Settings(ctx context.Context, blogID, id string) (map[string]string, error) {
	mod, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	stored, err := m.settings.Settings(ctx, blogID, SettingsNamespace(id))
	if err != nil {
		return nil, fmt.Errorf("load %s settings: %w", id, err)
	}
	out := make(map[string]string, len(mod.Settings))
	for _, s := range mod.Settings {
		out[s.Key] = s.Default
		if v, ok := stored[s.Key]; ok {
			out[s.Key] = v
		}
	}
	return out, nil
}

// Configure stores settings of a module for a blog. Only declared keys are
// accepted.
func (m *Manager) Configure(ctx context.Context, blogID, id string, values map[string]string) (err error) {
	defer m.done("configure", id, &err)
	mod, err := m.Get(id)
	if err != nil {
		return err
	}
	declared := map[string]bool{}
	for _, s := range mod.Settings {
		declared[s.Key] = true
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if !declared[k] {
			return fmt.Errorf("configure %s: %w: %s", id, ErrUnknownSetting, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.settings.SetSetting(ctx, blogID, SettingsNamespace(id), k, values[k]); err != nil {
			return fmt.Errorf("configure %s: %w", id, err)
		}
	}
	if h, ok := mod.plugin.(Configurer); ok {
		all, err := m.Settings(ctx, blogID, id)
		if err != nil {
			return err
		}
		if err := h.Configure(ctx, blogID, all); err != nil {
			return fmt.Errorf("configure %s: %w", id, err)
		}
	}
	return nil
}

// done records the outcome of an operation.
func (m *Manager) done(op, id string, err *error) {
	result := "ok"
	if *err != nil {
		result = "error"
		m.logger.Warn("module operation failed", zap.String("op", op), zap.String("module", id), zap.Error(*err))
	} else {
		m.logger.Info("module operation", zap.String("op", op), zap.String("module", id))
		m.emitter.Emit(events.Event{Type: events.ModuleChanged, TS: time.Now().UTC(), Module: id, Note: op})
	}
	m.observe(op, result)
}

// TemplateDirs lists the tpl/ directories of active disk plugins,
// highest priority first.
func (m *Manager) TemplateDirs() []string {
	var dirs []string
	for _, mod := range m.Active(TypePlugin) {
		if mod.Root == "" {
			continue
		}
		dir := filepath.Join(mod.Root, TemplateDir)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// ThemeDirs returns the directory of theme id followed by its ancestors.
func (m *Manager) ThemeDirs(id string) ([]string, error) {
	var dirs []string
	seen := map[string]bool{}
	for id != "" && !seen[id] {
		seen[id] = true
		mod, err := m.Get(id)
		if err != nil {
			return nil, err
		}
		if mod.Type != TypeTheme {
			return nil, fmt.Errorf("%w: %s is not a theme", ErrUnknownModule, id)
		}
		dirs = append(dirs, mod.Root)
		id = mod.Parent
	}
	return dirs, nil
}

// Watch rescans whenever a module directory changes, until ctx ends.
func (m *Manager) Watch(ctx context.Context) error {
	roots := slices.Clone(m.cfg.PluginDirs)
	if m.cfg.ThemesDir != "" {
		roots = append(roots, m.cfg.ThemesDir)
	}
	w, err := watch.New(roots, watch.DefaultDelay, func(paths []string) {
		m.logger.Info("module files changed", zap.Int("files", len(paths)))
		if err := m.Scan(ctx); err != nil {
			m.logger.Warn("rescan modules", zap.Error(err))
		}
	}, m.logger)
	if err != nil {
		return err
	}
	go w.Run(ctx)
	return nil
}

func remove(list []string, v string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == v })
}
