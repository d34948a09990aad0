// Package server builds the inkpress application graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/api"
	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/clock/system"
	"github.com/JakeFAU/inkpress/internal/config"
	"github.com/JakeFAU/inkpress/internal/dispatcher"
	"github.com/JakeFAU/inkpress/internal/events"
	eventsinks "github.com/JakeFAU/inkpress/internal/events/sinks"
	"github.com/JakeFAU/inkpress/internal/format"
	"github.com/JakeFAU/inkpress/internal/hash/sha256"
	"github.com/JakeFAU/inkpress/internal/id/uuid"
	"github.com/JakeFAU/inkpress/internal/logging"
	"github.com/JakeFAU/inkpress/internal/media"
	gcsmedia "github.com/JakeFAU/inkpress/internal/media/gcs"
	localmedia "github.com/JakeFAU/inkpress/internal/media/local"
	memorymedia "github.com/JakeFAU/inkpress/internal/media/memory"
	"github.com/JakeFAU/inkpress/internal/metrics"
	"github.com/JakeFAU/inkpress/internal/middleware"
	"github.com/JakeFAU/inkpress/internal/modules"
	"github.com/JakeFAU/inkpress/internal/pingback"
	"github.com/JakeFAU/inkpress/internal/plugins/breadcrumb"
	"github.com/JakeFAU/inkpress/internal/plugins/editor"
	"github.com/JakeFAU/inkpress/internal/plugins/maintenance"
	"github.com/JakeFAU/inkpress/internal/plugins/widgets"
	"github.com/JakeFAU/inkpress/internal/policy/ratelimit"
	"github.com/JakeFAU/inkpress/internal/policy/simple"
	"github.com/JakeFAU/inkpress/internal/public"
	memorypublisher "github.com/JakeFAU/inkpress/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/inkpress/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/inkpress/internal/queue/memory"
	"github.com/JakeFAU/inkpress/internal/render"
	"github.com/JakeFAU/inkpress/internal/rpcapi"
	memoryStorage "github.com/JakeFAU/inkpress/internal/storage/memory"
	pgstore "github.com/JakeFAU/inkpress/internal/storage/postgres"
	"github.com/JakeFAU/inkpress/internal/xmlrpc"
)

// Version is reported to XML-RPC clients and checked by module requirements.
const Version = "1.0.0"

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	repo     blog.Repository
	pg       *pgstore.Repository
	svc      *blog.Service
	store    media.Store
	gcs      *gcsmedia.Store
	hub      *events.Hub
	recent   *memorypublisher.Publisher
	renderer *render.Renderer
	site     *public.Site
	rpc      *xmlrpc.Server
	mods     *modules.Manager
	maint    *maintenance.Plugin
	apiSrv   *api.Server
	handler  http.Handler

	pingQueue    *queueMemory.Queue[pingback.Job]
	pingDispatch *dispatcher.Dispatcher[pingback.Job]

	catalogs map[modules.Type]*modules.Repository

	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic

	closeOnce sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("blog", cfg.Blog.ID),
		zap.String("db_backend", cfg.DB.Backend),
		zap.String("media_backend", cfg.Media.Backend),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	app, err = NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	metrics.Init()
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	app.logger.Info("building application dependencies")
	if err = setupRepository(ctx, app); err != nil {
		return nil, err
	}
	if err = bootstrap(ctx, app); err != nil {
		return nil, err
	}
	if err = setupMedia(ctx, app); err != nil {
		return nil, err
	}
	sinks, err := setupSinks(ctx, app)
	if err != nil {
		return nil, err
	}

	// The outbound pingback sink resolves permalinks through the site, which
	// is built after the service.
	links := &lazyLinks{}
	if cfg.Pingback.Enabled {
		app.pingQueue = queueMemory.NewQueue[pingback.Job](cfg.Pingback.QueueDepth)
		sinks = append(sinks, pingback.NewSink(app.pingQueue, links, func(result string) {
			metrics.ObservePingback(metrics.Outbound, result)
		}, app.logger.Named("pingback")))
	}
	app.hub = events.NewHub(events.Config{
		BufferSize:     cfg.Events.BufferSize,
		MaxBatchEvents: cfg.Events.BatchMaxEvents,
		MaxBatchWait:   cfg.Events.BatchMaxWait,
		SinkTimeout:    cfg.Events.SinkTimeout,
		BaseContext:    ctx,
		Logger:         app.logger.Named("events"),
	}, sinks...)

	formats := format.NewRegistry()
	clock := system.New()
	app.svc = blog.NewService(app.repo, formats, clock, app.hub, app.logger.Named("blog"))

	fetcher := pingback.NewFetcher(pingback.FetcherConfig{
		UserAgent: cfg.Pingback.UserAgent,
		Timeout:   cfg.Pingback.Timeout,
	})
	sourcePolicy := simple.New(simple.Config{AllowPrivate: cfg.Pingback.AllowPrivate})

	app.rpc = xmlrpc.NewServer(xmlrpc.Config{
		MaxBodyBytes: cfg.Server.XMLRPCMaxBody,
		Observer:     observeXMLRPC,
	}, app.logger.Named("xmlrpc"))

	app.renderer = render.New(app.logger.Named("render"))
	app.mods = modules.New(modules.Config{
		PluginDirs:  cfg.Modules.PluginDirs,
		ThemesDir:   cfg.Modules.ThemesDir,
		StateFile:   cfg.Modules.StateFile,
		Protected:   cfg.Modules.Protected,
		CoreVersion: Version,
	}, app.svc, app.logger.Named("modules"),
		modules.WithEmitter(app.hub),
		modules.WithObserver(metrics.ObserveModuleOperation),
	)

	app.site, err = public.New(public.Config{
		BaseURL:      cfg.Blog.URL,
		URLScan:      cfg.Blog.URLScan,
		PostsPerPage: cfg.Blog.PostsPerPage,
		CacheControl: cfg.Blog.CacheControl,
		PreviewKey:   cfg.Blog.PreviewKey,
	}, cfg.Blog.ID, app.svc, app.renderer, sha256.NewKeyed([]byte(cfg.Blog.PreviewKey)), app.logger.Named("public"),
		public.WithXMLRPC(func(blogID string) http.Handler { return rpcapi.Handler(app.rpc, blogID) }),
		public.WithPublicFiles(app.mods.PublicFS()),
		public.WithObserver(metrics.ObserveDocument),
		public.WithThrottle(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Blog.CommentRate,
			DefaultBurst: cfg.Blog.CommentBurst,
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("public site init failed: %w", err)
	}
	links.site = app.site

	rpcapi.New(rpcapi.Config{
		SoftwareName:    "inkpress",
		SoftwareVersion: Version,
		Pingbacks:       cfg.Blog.Pingbacks,
		TimeZone:        "UTC",
	}, app.svc, app.site, app.logger.Named("rpcapi"),
		rpcapi.WithUploader(media.NewUploader(app.store, app.svc, uuid.New(), cfg.Media.MaxSize)),
		rpcapi.WithVerifier(pingback.NewVerifier(fetcher)),
		rpcapi.WithSourcePolicy(sourcePolicy),
	).Register(app.rpc)

	if err = setupPlugins(ctx, app, formats, clock); err != nil {
		return nil, err
	}

	if cfg.Pingback.Enabled {
		setupPingbackWorkers(app, fetcher, sourcePolicy)
	}

	auth, err := setupAuth(app, clock)
	if err != nil {
		return nil, err
	}
	opts := []api.Option{api.WithMaintenance(app.maint), api.WithReady(app.ready), api.WithEventLog(app.recent)}
	app.catalogs = setupCatalogs(app, clock)
	for _, c := range app.catalogs {
		opts = append(opts, api.WithCatalog(c))
	}
	app.apiSrv = api.NewServer(api.Config{}, auth, app.mods, app.logger.Named("api"), opts...)

	app.handler = app.routes()
	return app, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Service exposes the blog service to commands.
func (a *App) Service() *blog.Service {
	return a.svc
}

// Modules exposes the module manager to commands.
func (a *App) Modules() *modules.Manager {
	return a.mods
}

// Maintenance exposes the maintenance plugin to commands.
func (a *App) Maintenance() *maintenance.Plugin {
	return a.maint
}

// Catalog returns the remote repository configured for typ.
func (a *App) Catalog(typ modules.Type) (*modules.Repository, bool) {
	c, ok := a.catalogs[typ]
	return c, ok
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(a.logger.Named("http")))
	r.Use(middleware.AccessLog(a.logger.Named("http")))

	apiHandler := a.apiSrv.Handler()
	r.Handle("/healthz", apiHandler)
	r.Handle("/readyz", apiHandler)
	r.Handle("/metrics", apiHandler)
	r.Handle(api.Prefix+"/*", apiHandler)

	if prefix, h := a.mediaHandler(); h != nil {
		r.Handle(prefix+"*", http.StripPrefix(prefix, h))
	}

	site := metrics.Middleware(a.site)
	r.NotFound(site.ServeHTTP)
	r.MethodNotAllowed(site.ServeHTTP)
	return r
}

// mediaHandler serves uploads for the backends that keep them in-process or
// on local disk, under the path of the media URL.
func (a *App) mediaHandler() (string, http.Handler) {
	u, err := url.Parse(a.cfg.MediaURL())
	if err != nil || u.Path == "" {
		return "", nil
	}
	blogURL, err := url.Parse(a.cfg.Blog.URL)
	if err != nil || !strings.EqualFold(u.Host, blogURL.Host) {
		return "", nil
	}
	prefix := strings.TrimSuffix(u.Path, "/") + "/"
	switch s := a.store.(type) {
	case *memorymedia.Store:
		return prefix, s
	case *localmedia.Store:
		return prefix, s.Handler()
	}
	return "", nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pg != nil {
		if err := a.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The dispatcher outlives the signal until pending events are flushed.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatchDone := make(chan struct{})
	if a.pingDispatch != nil {
		go func() {
			defer close(dispatchDone)
			a.logger.Info("pingback dispatcher started")
			a.pingDispatch.Run(dispatchCtx)
		}()
	} else {
		close(dispatchDone)
	}
	a.startWatchers(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port), zap.String("blog_url", a.cfg.Blog.URL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.flushEvents(shutdownCtx)
	stopDispatch()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("pingback dispatcher did not drain before shutdown timeout")
	}

	return a.Close(shutdownCtx)
}

func (a *App) startWatchers(ctx context.Context) {
	if a.cfg.Modules.Watch {
		if err := a.mods.Watch(ctx); err != nil {
			a.logger.Warn("module watcher disabled", zap.Error(err))
		}
	}
	if a.cfg.Theme.Watch {
		dirs := a.templateDirs()
		if len(dirs) == 0 {
			return
		}
		if err := a.renderer.Watch(ctx, dirs); err != nil {
			a.logger.Warn("template watcher disabled", zap.Error(err))
		}
	}
}

// Close gracefully shuts down the application. Later calls are no-ops.
// Pending events reach their sinks before the pingback queue closes.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.flushEvents(ctx)
		if a.pingQueue != nil {
			a.pingQueue.Close()
		}
		a.closeInfrastructure()
		a.closeObservability()
		a.logger.Info("shutdown complete")
	})
	return nil
}

// flushEvents closes the hub, delivering buffered events. Repeated calls
// only wait for the first one.
func (a *App) flushEvents(ctx context.Context) {
	if a.hub == nil {
		return
	}
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("event hub close failed", zap.Error(err))
	}
}

func (a *App) closeInfrastructure() {
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

func (a *App) closeObservability() {
	// Sync fails on non-file sinks such as stderr on some platforms.
	_ = a.logger.Sync()
}

func setupRepository(ctx context.Context, app *App) error {
	switch app.cfg.DB.Backend {
	case "postgres":
		app.logger.Info("using postgres repository")
		repo, err := pgstore.New(ctx, pgstore.Config{
			DSN:             app.cfg.DB.DSN,
			MaxConns:        app.cfg.DB.MaxConns,
			MinConns:        app.cfg.DB.MinConns,
			MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres repository init failed: %w", err)
		}
		app.pg = repo
		app.repo = repo
	default:
		app.logger.Warn("using in-memory repository; content is lost on restart")
		app.repo = memoryStorage.NewRepository()
	}
	return nil
}

// Migrate applies the database schema when the postgres backend is used.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Info("in-memory repository needs no migration")
		return nil
	}
	if err := a.pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("schema applied")
	return nil
}

// bootstrap creates the configured blog and admin user when missing.
func bootstrap(ctx context.Context, app *App) error {
	cfg := app.cfg
	if _, err := app.repo.GetBlog(ctx, cfg.Blog.ID); errors.Is(err, blog.ErrNotFound) {
		b := blog.Blog{
			ID:        cfg.Blog.ID,
			Name:      cfg.Blog.Name,
			URL:       cfg.Blog.URL,
			Lang:      cfg.Blog.Lang,
			Status:    1,
			UpdatedAt: time.Now().UTC(),
		}
		if err := app.repo.SaveBlog(ctx, b); err != nil {
			return fmt.Errorf("create blog %s: %w", b.ID, err)
		}
		app.logger.Info("blog created", zap.String("blog", b.ID))
	} else if err != nil {
		return fmt.Errorf("load blog %s: %w", cfg.Blog.ID, err)
	}

	if cfg.Blog.CommentsModeration {
		if err := app.repo.SetSetting(ctx, cfg.Blog.ID, blog.NamespaceSystem, blog.SettingCommentsPub, "0"); err != nil {
			return fmt.Errorf("store moderation setting: %w", err)
		}
	}

	if cfg.Bootstrap.AdminUser == "" || cfg.Bootstrap.AdminPasswordHash == "" {
		return nil
	}
	if _, err := app.repo.GetUser(ctx, cfg.Bootstrap.AdminUser); errors.Is(err, blog.ErrNotFound) {
		u := blog.User{
			ID:           cfg.Bootstrap.AdminUser,
			Name:         cfg.Bootstrap.AdminUser,
			PasswordHash: cfg.Bootstrap.AdminPasswordHash,
			Super:        true,
			Status:       1,
			Lang:         cfg.Blog.Lang,
		}
		if err := app.repo.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		app.logger.Info("admin user created", zap.String("user", u.ID))
	} else if err != nil {
		return fmt.Errorf("load admin user: %w", err)
	}
	return nil
}

func setupMedia(ctx context.Context, app *App) error {
	publicURL := app.cfg.MediaURL()
	switch app.cfg.Media.Backend {
	case "gcs":
		app.logger.Info("using GCS media backend", zap.String("bucket", app.cfg.Media.Bucket))
		store, err := gcsmedia.Open(ctx, gcsmedia.Config{
			Bucket:    app.cfg.Media.Bucket,
			Prefix:    app.cfg.Media.Prefix,
			PublicURL: app.cfg.Media.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("gcs media store init failed: %w", err)
		}
		app.gcs = store
		app.store = store
	case "local":
		app.logger.Info("using local media backend", zap.String("path", app.cfg.Media.BaseDir))
		store, err := localmedia.New(localmedia.Config{BaseDir: app.cfg.Media.BaseDir, PublicURL: publicURL})
		if err != nil {
			return fmt.Errorf("local media store init failed: %w", err)
		}
		app.store = store
	default:
		app.logger.Info("using in-memory media backend")
		app.store = memorymedia.New(publicURL)
	}
	return nil
}

func setupSinks(ctx context.Context, app *App) ([]events.Sink, error) {
	list := []events.Sink{eventsinks.NewLogSink(app.logger.Named("events_log"))}
	promSink, err := eventsinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	var already prometheus.AlreadyRegisteredError
	switch {
	case errors.As(err, &already):
		app.logger.Debug("events collector already registered")
	case err != nil:
		return nil, err
	default:
		list = append(list, promSink)
	}
	app.recent = memorypublisher.New(app.cfg.Events.RecentLog)
	list = append(list, eventsinks.NewPublisherSink(app.recent, "recent", app.logger.Named("events_recent")))

	if !app.cfg.PublishEvents() {
		app.logger.Info("no Pub/Sub topic configured, events are not published")
		return list, nil
	}
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubTopic = app.pubsubClient.Topic(app.cfg.PubSub.Topic)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	pub := gcppublisher.New(app.pubsubTopic)
	return append(list, eventsinks.NewPublisherSink(pub, app.cfg.PubSub.Topic, app.logger.Named("events_pubsub"))), nil
}

func setupPlugins(ctx context.Context, app *App, formats *format.Registry, clock *system.Clock) error {
	edit := editor.New(formats)
	wid := widgets.New(app.svc, app.site, func() bool { return app.mods.IsActive(widgets.ID) }, app.logger.Named("widgets"))
	crumbs := breadcrumb.New(app.mods, app.site, func() bool { return app.mods.IsActive(breadcrumb.ID) }, app.logger.Named("breadcrumb"))
	app.maint = maintenance.New(app.svc, clock, app.logger.Named("maintenance"),
		maintenance.Defaults(app.svc, app.renderer, app.store, clock)...)

	for _, p := range []modules.Plugin{edit, wid, crumbs, app.maint} {
		if err := app.mods.Register(ctx, p); err != nil {
			return fmt.Errorf("register plugin %s: %w", p.ID(), err)
		}
	}
	if err := app.mods.Scan(ctx); err != nil {
		return fmt.Errorf("scan modules: %w", err)
	}
	if app.mods.IsActive(editor.ID) {
		edit.Register()
	}

	app.renderer.AddFuncs(app.site)
	app.renderer.AddFuncs(wid)
	app.renderer.AddFuncs(crumbs)

	if err := app.applyLayers(); err != nil {
		return err
	}
	app.mods.OnChange(func() {
		if err := app.applyLayers(); err != nil {
			app.logger.Warn("reload template layers", zap.Error(err))
		}
	})
	return nil
}

// applyLayers stacks the theme (and its parents) over active plugin
// templates and the built-in theme.
func (a *App) applyLayers() error {
	var layers []render.Layer
	if a.cfg.Theme.Name != "" {
		dirs, err := a.mods.ThemeDirs(a.cfg.Theme.Name)
		if err != nil {
			return fmt.Errorf("theme %s: %w", a.cfg.Theme.Name, err)
		}
		for _, d := range dirs {
			layers = append(layers, render.DirLayer(d))
		}
	}
	for _, d := range a.mods.TemplateDirs() {
		layers = append(layers, render.DirLayer(d))
	}
	a.renderer.SetLayers(layers...)
	a.logger.Debug("template layers", zap.Strings("layers", a.renderer.Layers()))
	return nil
}

func (a *App) templateDirs() []string {
	dirs := a.mods.TemplateDirs()
	if a.cfg.Theme.Name != "" {
		if theme, err := a.mods.ThemeDirs(a.cfg.Theme.Name); err == nil {
			dirs = append(theme, dirs...)
		}
	}
	return dirs
}

func setupPingbackWorkers(app *App, fetcher *pingback.Fetcher, policy *simple.Policy) {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.Pingback.PerHostRPS,
		DefaultBurst: 1,
		Observe:      metrics.ObserveRateLimitDelay,
	})
	client := xmlrpc.NewClient(app.cfg.Pingback.Timeout, app.cfg.Pingback.UserAgent)
	sender := countingSender{pingback.NewSender(fetcher, client, limiter, policy)}
	workerCfg := pingback.WorkerConfig{
		MaxAttempts: app.cfg.Pingback.MaxAttempts,
		Backoff:     app.cfg.Pingback.Backoff,
		MaxBackoff:  app.cfg.Pingback.MaxBackoff,
	}
	app.logger.Info("pingback workers",
		zap.Int("workers", app.cfg.Pingback.Workers),
		zap.Int("queue_depth", app.cfg.Pingback.QueueDepth),
		zap.Float64("per_host_rps", app.cfg.Pingback.PerHostRPS),
	)
	workers := make([]dispatcher.Worker, 0, app.cfg.Pingback.Workers)
	for i := 0; i < app.cfg.Pingback.Workers; i++ {
		workers = append(workers, pingback.NewWorker(app.pingQueue, sender, workerCfg, func(result string) {
			metrics.ObservePingback(metrics.Outbound, result)
		}, app.logger.Named("pingback_worker").With(zap.Int("index", i))))
	}
	app.pingDispatch = dispatcher.New[pingback.Job](app.pingQueue, workers, dispatcher.WithDrain(app.cfg.Pingback.DrainTimeout))
}

func setupAuth(app *App, clock *system.Clock) (*api.Auth, error) {
	secret := app.cfg.Auth.JWTSecret
	if secret == "" {
		var err error
		if secret, err = uuid.New().Secret(); err != nil {
			return nil, err
		}
		app.logger.Warn("auth.jwt_secret not set; admin tokens will not survive a restart")
	}
	auth, err := api.NewAuth(secret, app.cfg.Auth.TokenTTL, clock, app.svc)
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}
	return auth, nil
}

func setupCatalogs(app *App, clock *system.Clock) map[modules.Type]*modules.Repository {
	client := &http.Client{Timeout: 30 * time.Second}
	out := map[modules.Type]*modules.Repository{}
	for _, c := range []struct {
		url string
		typ modules.Type
	}{
		{app.cfg.Modules.RepositoryURL, modules.TypePlugin},
		{app.cfg.Modules.ThemeRepositoryURL, modules.TypeTheme},
	} {
		if c.url == "" {
			continue
		}
		out[c.typ] = modules.NewRepository(modules.RepositoryConfig{
			URL:       c.url,
			Type:      c.typ,
			TTL:       app.cfg.Modules.RepositoryTTL,
			UserAgent: "inkpress/" + Version,
		}, client, clock, app.logger.Named("repository"))
	}
	return out
}

func observeXMLRPC(method string, err error) {
	result := "ok"
	var fault *xmlrpc.Fault
	switch {
	case errors.As(err, &fault):
		result = fmt.Sprintf("fault_%d", fault.Code)
	case err != nil:
		result = "error"
	}
	metrics.ObserveXMLRPC(method, result)
	if method == "pingback.ping" {
		metrics.ObservePingback(metrics.Inbound, result)
	}
}

// lazyLinks forwards to the public site once it exists.
type lazyLinks struct {
	site *public.Site
}

func (l *lazyLinks) Permalink(blogID, postType, postURL string) string {
	if l.site == nil {
		return ""
	}
	return l.site.Permalink(blogID, postType, postURL)
}

// countingSender tracks busy pingback workers.
type countingSender struct {
	next pingback.JobSender
}

func (s countingSender) Send(ctx context.Context, job pingback.Job) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	return s.next.Send(ctx, job)
}
