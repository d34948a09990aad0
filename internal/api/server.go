package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/metrics"
	"github.com/JakeFAU/inkpress/internal/middleware"
	"github.com/JakeFAU/inkpress/internal/modules"
	"github.com/JakeFAU/inkpress/internal/plugins/maintenance"
	"github.com/JakeFAU/inkpress/internal/publisher/memory"
)

// Prefix is where the admin routes are mounted.
const Prefix = "/admin/api"

const requestTimeout = 60 * time.Second

// Modules is the module manager surface; modules.Manager satisfies it.
type Modules interface {
	List(typ modules.Type) []modules.Module
	Get(id string) (modules.Module, error)
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Settings(ctx context.Context, blogID, id string) (map[string]string, error)
	Configure(ctx context.Context, blogID, id string, values map[string]string) error
	InstallZip(ctx context.Context, data []byte, want modules.Type) (modules.Module, error)
	Scan(ctx context.Context) error
}

// Catalog is a remote module repository; modules.Repository satisfies it.
type Catalog interface {
	Type() modules.Type
	Search(ctx context.Context, q string) ([]modules.Entry, error)
	Updates(ctx context.Context, installed []modules.Module) ([]modules.Update, error)
	Install(ctx context.Context, id string, inst modules.ZipInstaller) (modules.Module, error)
}

// Maintenance runs housekeeping tasks; maintenance.Plugin satisfies it.
type Maintenance interface {
	Statuses(ctx context.Context, blogID string) ([]maintenance.Status, error)
	Run(ctx context.Context, blogID, taskID string) (maintenance.Result, error)
}

// EventLog lists recently published events; publisher/memory satisfies it.
type EventLog interface {
	Recent(limit int) []memory.PublishedMessage
}

// ReadyFunc reports whether downstream dependencies are usable.
type ReadyFunc func(ctx context.Context) error

// Config tunes the API.
type Config struct {
	// MaxUploadBytes caps module package uploads.
	MaxUploadBytes int64
}

// Server wires HTTP handlers to the module manager and maintenance tasks.
type Server struct {
	router   chi.Router
	cfg      Config
	auth     *Auth
	mods     Modules
	catalogs map[modules.Type]Catalog
	maint    Maintenance
	events   EventLog
	ready    ReadyFunc
	logger   *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithCatalog enables repository routes for the catalog's module type.
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.catalogs[c.Type()] = c }
}

// WithMaintenance enables the maintenance routes.
func WithMaintenance(m Maintenance) Option {
	return func(s *Server) { s.maint = m }
}

// WithEventLog enables the recent events route.
func WithEventLog(l EventLog) Option {
	return func(s *Server) { s.events = l }
}

// WithReady sets the readiness probe.
func WithReady(fn ReadyFunc) Option {
	return func(s *Server) { s.ready = fn }
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, auth *Auth, mods Modules, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		cfg:      cfg,
		auth:     auth,
		mods:     mods,
		catalogs: map[modules.Type]Catalog{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics.Init()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route(Prefix, func(r chi.Router) {
		r.Post("/login", s.login)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Get("/me", s.me)
			r.Group(func(r chi.Router) {
				r.Use(requireSuper)
				r.Route("/modules", func(r chi.Router) {
					r.Get("/", s.listModules)
					r.Post("/scan", s.scanModules)
					r.Post("/install", s.installModule)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.getModule)
						r.Delete("/", s.deleteModule)
						r.Post("/activate", s.activateModule)
						r.Post("/deactivate", s.deactivateModule)
						r.Get("/settings", s.moduleSettings)
						r.Put("/settings", s.configureModule)
					})
				})
				r.Route("/repository/{type}", func(r chi.Router) {
					r.Get("/", s.searchRepository)
					r.Get("/updates", s.repositoryUpdates)
				})
				r.Get("/events", s.recentEvents)
			})
			r.Route("/blogs/{blog_id}/maintenance", func(r chi.Router) {
				r.Get("/", s.listTasks)
				r.Post("/{task}", s.runTask)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recentEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event log disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list := s.events.Recent(limit)
	if list == nil {
		list = []memory.PublishedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	token, exp, err := s.auth.Login(r.Context(), req.User, req.Password)
	if err != nil {
		if errors.Is(err, blog.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "wrong user or password")
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires": exp})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           u.ID,
		"display_name": u.DisplayName,
		"super":        u.Super,
	})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, modules.ErrUnknownModule), errors.Is(err, blog.ErrNotFound),
		errors.Is(err, maintenance.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, modules.ErrProtected), errors.Is(err, blog.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, modules.ErrInvalidDefine), errors.Is(err, modules.ErrInvalidPackage),
		errors.Is(err, modules.ErrUnknownSetting), errors.Is(err, blog.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, modules.ErrNotNewer):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
