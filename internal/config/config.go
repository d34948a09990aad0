// Package config loads and validates inkpress configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (INKPRESS_SERVER_PORT, ...).
const EnvPrefix = "INKPRESS"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Blog      BlogConfig      `mapstructure:"blog"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	DB        DBConfig        `mapstructure:"db"`
	Media     MediaConfig     `mapstructure:"media"`
	Modules   ModulesConfig   `mapstructure:"modules"`
	Pingback  PingbackConfig  `mapstructure:"pingback"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Events    EventsConfig    `mapstructure:"events"`
	Theme     ThemeConfig     `mapstructure:"theme"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// XMLRPCMaxBody caps XML-RPC request bodies.
	XMLRPCMaxBody int64 `mapstructure:"xmlrpc_max_body"`
}

// LoggingConfig selects the zap flavor, level and encoding.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
}

// AuthConfig signs admin API tokens.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// BlogConfig describes the served blog and its public site.
type BlogConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	// URL is the absolute public root, with a trailing slash.
	URL          string `mapstructure:"url"`
	Lang         string `mapstructure:"lang"`
	PostsPerPage int    `mapstructure:"posts_per_page"`
	// URLScan is path_info or query_string.
	URLScan      string `mapstructure:"url_scan"`
	CacheControl string `mapstructure:"cache_control"`
	// CommentsModeration holds new comments as pending.
	CommentsModeration bool   `mapstructure:"comments_moderation"`
	Pingbacks          bool   `mapstructure:"pingbacks"`
	PreviewKey         string `mapstructure:"preview_key"`
	// CommentRate is the sustained comments per second allowed from one
	// address; CommentBurst submissions may arrive at once. Zero disables.
	CommentRate  float64 `mapstructure:"comment_rate"`
	CommentBurst int     `mapstructure:"comment_burst"`
}

// BootstrapConfig seeds the first super user.
type BootstrapConfig struct {
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	// Backend is memory or postgres.
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// MediaConfig selects the blob store for uploads and exports.
type MediaConfig struct {
	// Backend is memory, local or gcs.
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	PublicURL string `mapstructure:"public_url"`
	MaxSize   int64  `mapstructure:"max_size"`
}

// ModulesConfig locates plugins, themes and remote catalogs.
type ModulesConfig struct {
	PluginDirs         []string      `mapstructure:"plugin_dirs"`
	ThemesDir          string        `mapstructure:"themes_dir"`
	StateFile          string        `mapstructure:"state_file"`
	RepositoryURL      string        `mapstructure:"repository_url"`
	ThemeRepositoryURL string        `mapstructure:"theme_repository_url"`
	RepositoryTTL      time.Duration `mapstructure:"repository_ttl"`
	Protected          []string      `mapstructure:"protected"`
	Watch              bool          `mapstructure:"watch"`
}

// PingbackConfig tunes outbound pingbacks and source verification.
type PingbackConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Workers     int           `mapstructure:"workers"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	PerHostRPS  float64       `mapstructure:"per_host_rps"`
	UserAgent   string        `mapstructure:"user_agent"`
	// DrainTimeout bounds how long queued pingbacks keep sending after
	// shutdown starts.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// AllowPrivate lets pingbacks reach loopback and private networks.
	AllowPrivate bool `mapstructure:"allow_private"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. Events
// are published only when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// EventsConfig tunes the event hub.
type EventsConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	BatchMaxEvents int           `mapstructure:"batch_max_events"`
	BatchMaxWait   time.Duration `mapstructure:"batch_max_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	RecentLog      int           `mapstructure:"recent_log"`
}

// ThemeConfig picks the public theme.
type ThemeConfig struct {
	// Name is a theme module id; empty uses the embedded default.
	Name  string `mapstructure:"name"`
	Watch bool   `mapstructure:"watch"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.xmlrpc_max_body", 32<<20)
	v.SetDefault("logging.development", true)
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("blog.id", "default")
	v.SetDefault("blog.name", "My first blog")
	v.SetDefault("blog.url", "http://localhost:8080/")
	v.SetDefault("blog.lang", "en")
	v.SetDefault("blog.posts_per_page", 10)
	v.SetDefault("blog.url_scan", "path_info")
	v.SetDefault("blog.cache_control", "public, max-age=60")
	v.SetDefault("blog.comments_moderation", false)
	v.SetDefault("blog.pingbacks", true)
	v.SetDefault("db.backend", "memory")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("media.backend", "memory")
	v.SetDefault("media.base_dir", "data/media")
	v.SetDefault("media.max_size", 10<<20)
	v.SetDefault("modules.plugin_dirs", []string{"plugins"})
	v.SetDefault("modules.themes_dir", "themes")
	v.SetDefault("modules.state_file", "data/modules.yaml")
	v.SetDefault("modules.repository_ttl", "1h")
	v.SetDefault("modules.watch", false)
	v.SetDefault("blog.comment_rate", 0.05)
	v.SetDefault("blog.comment_burst", 3)
	v.SetDefault("pingback.enabled", true)
	v.SetDefault("pingback.workers", 2)
	v.SetDefault("pingback.queue_depth", 256)
	v.SetDefault("pingback.timeout", "10s")
	v.SetDefault("pingback.max_attempts", 3)
	v.SetDefault("pingback.backoff", "2s")
	v.SetDefault("pingback.max_backoff", "1m")
	v.SetDefault("pingback.per_host_rps", 1.0)
	v.SetDefault("pingback.user_agent", "inkpress/1.0 (+pingback)")
	v.SetDefault("pingback.drain_timeout", "5s")
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.batch_max_events", 100)
	v.SetDefault("events.batch_max_wait", "250ms")
	v.SetDefault("events.sink_timeout", "5s")
	v.SetDefault("events.recent_log", 200)
	v.SetDefault("theme.watch", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0"))
	}
	if c.Blog.ID == "" {
		errs = append(errs, fmt.Errorf("blog.id is required"))
	}
	if !strings.HasSuffix(c.Blog.URL, "/") {
		errs = append(errs, fmt.Errorf("blog.url must end with /"))
	}
	if c.Blog.URLScan != "path_info" && c.Blog.URLScan != "query_string" {
		errs = append(errs, fmt.Errorf("blog.url_scan must be path_info or query_string"))
	}
	if c.Blog.PostsPerPage <= 0 {
		errs = append(errs, fmt.Errorf("blog.posts_per_page must be > 0"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 16 bytes"))
	}
	switch c.DB.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			errs = append(errs, fmt.Errorf("db.dsn must be set for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("db.backend must be memory or postgres"))
	}
	switch c.Media.Backend {
	case "memory", "local":
	case "gcs":
		if c.Media.Bucket == "" {
			errs = append(errs, fmt.Errorf("media.bucket must be set for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.backend must be memory, local or gcs"))
	}
	if c.Pingback.Enabled && c.Pingback.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pingback.workers must be > 0 when pingbacks are enabled"))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		errs = append(errs, fmt.Errorf("pubsub.project_id and pubsub.topic must be set together"))
	}
	return errors.Join(errs...)
}

// PublishEvents reports whether a Pub/Sub topic is configured.
func (c Config) PublishEvents() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.Topic != ""
}

// MediaURL is the public root of uploaded media.
func (c Config) MediaURL() string {
	if c.Media.PublicURL != "" {
		return c.Media.PublicURL
	}
	return strings.TrimSuffix(c.Blog.URL, "/") + "/media/"
}
