// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Session SessionConfig `mapstructure:"session"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig governs the coordinator and refresh policy.
type CrawlConfig struct {
	SeedURLs          []string `mapstructure:"seed_urls"`
	SiteHost          string   `mapstructure:"site_host"`
	MaxConcurrency    int      `mapstructure:"max_concurrency"`
	RefreshTTLSeconds int      `mapstructure:"refresh_ttl_seconds"`
	MaxRetries        int      `mapstructure:"max_retries"`
	RetryBaseMs       int      `mapstructure:"retry_base_ms"`
	Keywords          []string `mapstructure:"keywords"`
}

// SessionConfig governs the browser session pool. AcquireTimeoutSeconds
// is zero by default; workers then wait as long as it takes for a
// session to free up.
type SessionConfig struct {
	PoolSize              int     `mapstructure:"pool_size"`
	NavTimeoutSeconds     int     `mapstructure:"nav_timeout_seconds"`
	AcquireTimeoutSeconds int     `mapstructure:"acquire_timeout_seconds"`
	DomainQPS             float64 `mapstructure:"domain_qps"`
	UserAgent             string  `mapstructure:"user_agent"`
	Headless              bool    `mapstructure:"headless"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ServerConfig controls the read API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ArchiveConfig controls optional raw-HTML archival of product pages.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // none, memory, local, gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig controls optional change-event publishing.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"` // none, memory, pubsub
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETWATCH")
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
	v.SetDefault("crawl.site_host", "www.megamarket.example")
	v.SetDefault("crawl.max_concurrency", 4)
	v.SetDefault("crawl.refresh_ttl_seconds", 3600)
	v.SetDefault("crawl.max_retries", 5)
	v.SetDefault("crawl.retry_base_ms", 2000)
	v.SetDefault("session.pool_size", 4)
	v.SetDefault("session.nav_timeout_seconds", 60)
	v.SetDefault("session.domain_qps", 1.0)
	v.SetDefault("session.user_agent", "marketwatch-bot/0.1")
	v.SetDefault("session.headless", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.SiteHost == "" {
		return fmt.Errorf("crawl.site_host must be set")
	}
	if c.Crawl.MaxConcurrency <= 0 {
		return fmt.Errorf("crawl.max_concurrency must be > 0")
	}
	if c.Crawl.MaxRetries <= 0 {
		return fmt.Errorf("crawl.max_retries must be > 0")
	}
	if c.Session.PoolSize <= 0 {
		return fmt.Errorf("session.pool_size must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Archive.Provider {
	case "none", "memory", "local", "gcs":
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Archive.Provider == "local" && c.Archive.LocalDir == "" {
		return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
	}
	switch c.Notify.Provider {
	case "none", "memory", "pubsub":
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
	}
	return nil
}

// RefreshTTL returns the entity refresh interval as a duration.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.Crawl.RefreshTTLSeconds) * time.Second
}

// RetryBase returns the base wait used for linear retry backoff.
func (c Config) RetryBase() time.Duration {
	return time.Duration(c.Crawl.RetryBaseMs) * time.Millisecond
}

// NavTimeout returns the per-navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Session.NavTimeoutSeconds) * time.Second
}

// AcquireTimeout returns the session acquisition bound, zero when the
// wait should be unbounded.
func (c Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Session.AcquireTimeoutSeconds) * time.Second
}
