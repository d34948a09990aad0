package modules

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
)

const (
	defaultRepositoryTTL = time.Hour
	defaultDownloadLimit = 20 << 20
)

// Entry is one module offered by a remote repository.
type Entry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Author  string   `json:"author,omitempty"`
	Desc    string   `json:"desc,omitempty"`
	File    string   `json:"file"`
	Details string   `json:"details,omitempty"`
	Support string   `json:"support,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Update pairs an installed module with a newer repository entry.
type Update struct {
	Entry
	Current string `json:"current"`
}

// ZipInstaller installs module archives; Manager satisfies it.
type ZipInstaller interface {
	InstallZip(ctx context.Context, data []byte, want Type) (Module, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// RepositoryConfig locates a remote catalog.
type RepositoryConfig struct {
	URL  string
	Type Type
	TTL  time.Duration
	// MaxDownload caps archive downloads.
	MaxDownload int64
	UserAgent   string
}

// Repository reads a remote module catalog and downloads archives from it.
type Repository struct {
	cfg    RepositoryConfig
	client *http.Client
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
	fetched time.Time
}

// NewRepository builds a catalog client. client and clock may be nil.
func NewRepository(cfg RepositoryConfig, client *http.Client, clock Clock, logger *zap.Logger) *Repository {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultRepositoryTTL
	}
	if cfg.MaxDownload <= 0 {
		cfg.MaxDownload = defaultDownloadLimit
	}
	if cfg.Type == "" {
		cfg.Type = TypePlugin
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if clock == nil {
		clock = wallClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{cfg: cfg, client: client, clock: clock, logger: logger}
}

// Type is the module type this repository offers.
func (r *Repository) Type() Type {
	return r.cfg.Type
}

// Entries returns the catalog, fetching it when the cached copy expired.
// A stale copy is kept when the refresh fails.
func (r *Repository) Entries(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries != nil && r.clock.Now().Sub(r.fetched) < r.cfg.TTL {
		return r.entries, nil
	}
	entries, err := r.fetch(ctx)
	if err != nil {
		if r.entries != nil {
			r.logger.Warn("refresh module repository", zap.String("url", r.cfg.URL), zap.Error(err))
			return r.entries, nil
		}
		return nil, err
	}
	r.entries, r.fetched = entries, r.clock.Now()
	return entries, nil
}

// Refresh drops the cached catalog.
func (r *Repository) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

func (r *Repository) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return resp, nil
}

func (r *Repository) fetch(ctx context.Context) ([]Entry, error) {
	if r.cfg.URL == "" {
		return nil, fmt.Errorf("fetch module repository: no url configured")
	}
	resp, err := r.get(ctx, r.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch module repository: %w", err)
	}
	defer resp.Body.Close()
	entries, err := ParseCatalog(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch module repository: %w", err)
	}
	r.logger.Debug("module repository fetched", zap.String("url", r.cfg.URL), zap.Int("modules", len(entries)))
	return entries, nil
}

// ParseCatalog reads a <modules><module id="..">..</module></modules>
// document. Entries without an id, version or file are skipped.
func ParseCatalog(rd io.Reader) ([]Entry, error) {
	doc, err := xmlquery.Parse(rd)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	var out []Entry
	for _, n := range xmlquery.Find(doc, "//module") {
		e := Entry{
			ID:      strings.TrimSpace(n.SelectAttr("id")),
			Name:    childText(n, "name"),
			Version: childText(n, "version"),
			Author:  childText(n, "author"),
			Desc:    childText(n, "desc"),
			File:    childText(n, "file"),
			Details: childText(n, "details"),
			Support: childText(n, "support"),
		}
		for _, t := range xmlquery.Find(n, "tags/tag") {
			if tag := strings.TrimSpace(t.InnerText()); tag != "" {
				e.Tags = append(e.Tags, tag)
			}
		}
		if !ValidID(e.ID) || e.Version == "" || e.File == "" {
			continue
		}
		if e.Name == "" {
			e.Name = e.ID
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func childText(n *xmlquery.Node, name string) string {
	if c := xmlquery.FindOne(n, name); c != nil {
		return strings.TrimSpace(c.InnerText())
	}
	return ""
}

// Get returns one catalog entry.
func (r *Repository) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s not in repository", ErrUnknownModule, id)
}

// Search matches every word of q against id, name, description, author
// and tags, case-insensitively.
func (r *Repository) Search(ctx context.Context, q string) ([]Entry, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(q))
	var out []Entry
	for _, e := range entries {
		hay := strings.ToLower(strings.Join(append([]string{e.ID, e.Name, e.Desc, e.Author}, e.Tags...), " "))
		match := true
		for _, w := range words {
			if !strings.Contains(hay, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out, nil
}

// Updates lists installed disk modules the catalog has a newer version of.
func (r *Repository) Updates(ctx context.Context, installed []Module) ([]Update, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	var out []Update
	for _, mod := range installed {
		if mod.Builtin || mod.Type != r.cfg.Type {
			continue
		}
		if e, ok := byID[mod.ID]; ok && CompareVersions(e.Version, mod.Version) > 0 {
			out = append(out, Update{Entry: e, Current: mod.Version})
		}
	}
	return out, nil
}

// Install downloads the archive of id and hands it to inst. The archive
// must carry the id and version the catalogue announced.
func (r *Repository) Install(ctx context.Context, id string, inst ZipInstaller) (Module, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return Module{}, err
	}
	resp, err := r.get(ctx, e.File)
	if err != nil {
		return Module{}, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxDownload+1))
	if err != nil {
		return Module{}, fmt.Errorf("download %s: %w", id, err)
	}
	if int64(len(data)) > r.cfg.MaxDownload {
		return Module{}, fmt.Errorf("download %s: %w: larger than %d bytes", id, ErrInvalidPackage, r.cfg.MaxDownload)
	}
	got, def, err := InspectZip(data)
	if err != nil {
		return Module{}, fmt.Errorf("download %s: %w", id, err)
	}
	if got != e.ID || CompareVersions(def.Version, e.Version) != 0 {
		return Module{}, fmt.Errorf("download %s: %w: archive holds %s %s, catalogue announced %s %s",
			id, ErrInvalidPackage, got, def.Version, e.ID, e.Version)
	}
	return inst.InstallZip(ctx, data, r.cfg.Type)
}
