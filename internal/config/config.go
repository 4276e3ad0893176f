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
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs the crawl cycle and queue behavior.
type CrawlerConfig struct {
	ListingURL        string `mapstructure:"listing_url"`
	BaseURL           string `mapstructure:"base_url"`
	InstanceName      string `mapstructure:"instance_name"`
	Concurrency       int    `mapstructure:"concurrency"`
	StaleAfterMinutes int    `mapstructure:"stale_after_minutes"`
	IntervalSeconds   int    `mapstructure:"interval_seconds"`
	UserAgent         string `mapstructure:"user_agent"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the Postgres pool.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// ServerConfig controls the health/metrics HTTP server used in loop mode.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ArchiveConfig selects the raw-page snapshot store, if any.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"` // "", "local" or "gcs"
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for change-event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// AutomaticEnv only resolves keys viper already knows about, so keys with
	// no default need an explicit binding or their env vars are ignored.
	for _, key := range []string{
		"crawler.instance_name",
		"db.dsn",
		"archive.base_dir",
		"archive.bucket",
		"pubsub.project_id",
		"pubsub.topic_name",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

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
	v.SetDefault("crawler.listing_url", "https://www.imdb.com/calendar")
	v.SetDefault("crawler.base_url", "https://www.imdb.com")
	v.SetDefault("crawler.concurrency", 8)
	v.SetDefault("crawler.stale_after_minutes", 60)
	v.SetDefault("crawler.interval_seconds", 300)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("archive.provider", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.ListingURL == "" {
		return fmt.Errorf("crawler.listing_url must be set")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url must be set")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.StaleAfterMinutes <= 0 {
		return fmt.Errorf("crawler.stale_after_minutes must be > 0")
	}
	if c.Crawler.IntervalSeconds <= 0 {
		return fmt.Errorf("crawler.interval_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Archive.Provider {
	case "", "local", "gcs":
	default:
		return fmt.Errorf("archive.provider must be empty, \"local\" or \"gcs\"")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// StaleAfter returns the stale-task timeout as a duration.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Crawler.StaleAfterMinutes) * time.Minute
}

// FetchTimeout returns the per-request fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Interval returns the loop-mode wait between cycles.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Crawler.IntervalSeconds) * time.Second
}
