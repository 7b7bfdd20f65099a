// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// Storage backends.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig     `mapstructure:"server"`
	Crawler CrawlerConfig    `mapstructure:"crawler"`
	Wiki    WikiConfig       `mapstructure:"wiki"`
	History HistoryConfig    `mapstructure:"history"`
	Storage StorageConfig    `mapstructure:"storage"`
	DB      DBConfig         `mapstructure:"db"`
	PubSub  PubSubConfig     `mapstructure:"pubsub"`
	Logging LoggingConfig    `mapstructure:"logging"`
	Targets []crawler.Target `mapstructure:"targets"`
}

// ServerConfig controls the operator HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CrawlerConfig governs the dispatcher and fetcher.
type CrawlerConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	QueueCapacity  int    `mapstructure:"queue_capacity"`
}

// WikiConfig identifies the wiki being crawled.
type WikiConfig struct {
	Domain string `mapstructure:"domain"`
	Token  string `mapstructure:"token"`
	// BaseURL overrides https://<domain> for requests; used against mirrors
	// and test servers.
	BaseURL string `mapstructure:"base_url"`
}

// HistoryConfig bounds revision history pagination.
type HistoryConfig struct {
	MaxPages int `mapstructure:"max_pages"`
}

// StorageConfig selects the record sink.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres page and run stores.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	PagesTable             string `mapstructure:"pages_table"`
	RunsTable              string `mapstructure:"runs_table"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// config.{yaml,json,toml} in the working directory and
// $HOME/.wikidot-crawler, and proceeds on defaults when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".wikidot-crawler"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "wikidot-crawler/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.queue_capacity", 64)
	v.SetDefault("wiki.domain", "scp-wiki.wikidot.com")
	v.SetDefault("wiki.token", "123456")
	v.SetDefault("history.max_pages", 5)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "data/records")
	v.SetDefault("storage.prefix", "records")
	v.SetDefault("db.pages_table", "pages")
	v.SetDefault("db.runs_table", "crawl_runs")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Wiki.Domain) == "" {
		return fmt.Errorf("wiki.domain is required")
	}
	if c.History.MaxPages <= 0 {
		return fmt.Errorf("history.max_pages must be > 0")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend %q is not one of local, memory, gcs", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	for i, target := range c.Targets {
		if strings.TrimSpace(target.URL) == "" {
			return fmt.Errorf("targets[%d].url is required", i)
		}
		if _, ok := crawler.ParseKind(string(target.Kind)); !ok {
			return fmt.Errorf("targets[%d].kind %q is not one of item, tale, hub, goi, supplement, series-index", i, target.Kind)
		}
	}
	return nil
}

// FetchTimeout converts the crawler timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// MaxConnLifetime converts the db connection lifetime into a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}
