// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/parselab/shop-parser/internal/parser"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig                  `mapstructure:"server"`
	Auth          AuthConfig                    `mapstructure:"auth"`
	Parser        ParserConfig                  `mapstructure:"parser"`
	Fetch         FetchConfig                   `mapstructure:"fetch"`
	Browser       BrowserConfig                 `mapstructure:"browser"`
	Snapshots     SnapshotConfig                `mapstructure:"snapshots"`
	DB            DBConfig                      `mapstructure:"db"`
	PubSub        PubSubConfig                  `mapstructure:"pubsub"`
	Logging       LoggingConfig                 `mapstructure:"logging"`
	Profiles      map[string]parser.SiteProfile `mapstructure:"profiles"`
	StandardTasks map[string]StandardTask       `mapstructure:"standard_tasks"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ParserConfig governs worker pool and task defaults.
type ParserConfig struct {
	Workers             int     `mapstructure:"workers"`
	QueueDepth          int     `mapstructure:"queue_depth"`
	MaxPagesDefault     int     `mapstructure:"max_pages_default"`
	MaxRetriesDefault   int     `mapstructure:"max_retries_default"`
	RateLimitSeconds    float64 `mapstructure:"rate_limit_seconds"`
	FallbackCurrency    string  `mapstructure:"fallback_currency"`
	TaskDeadlineSeconds int     `mapstructure:"task_deadline_seconds"`
}

// FetchConfig configures the direct HTTP fetch path.
type FetchConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxAttempts      int      `mapstructure:"max_attempts"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	JitterMaxMs      int      `mapstructure:"jitter_max_ms"`
	UserAgents       []string `mapstructure:"user_agents"`
	Proxies          []string `mapstructure:"proxies"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	ScrollSettle  int  `mapstructure:"scroll_settle_ms"`
}

// SnapshotConfig sets where raw page snapshots are archived.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StandardTask is a named submission template for recurring parse jobs.
type StandardTask struct {
	URL              string            `mapstructure:"url"`
	ParserType       string            `mapstructure:"parser_type"`
	MaxPages         int               `mapstructure:"max_pages"`
	MaxRetries       int               `mapstructure:"max_retries"`
	RateLimitSeconds float64           `mapstructure:"rate_limit_seconds"`
	Tags             map[string]string `mapstructure:"tags"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PARSER")
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
	v.SetDefault("parser.workers", 4)
	v.SetDefault("parser.queue_depth", 64)
	v.SetDefault("parser.max_pages_default", 1)
	v.SetDefault("parser.max_retries_default", 3)
	v.SetDefault("parser.rate_limit_seconds", 2.0)
	v.SetDefault("parser.fallback_currency", "USD")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.jitter_max_ms", 500)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.max_parallel", 1)
	v.SetDefault("browser.nav_timeout_seconds", 25)
	v.SetDefault("browser.scroll_settle_ms", 400)
	v.SetDefault("snapshots.enabled", false)
	v.SetDefault("snapshots.backend", "local")
	v.SetDefault("snapshots.base_dir", "snapshots")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Parser.Workers <= 0 {
		return fmt.Errorf("parser.workers must be > 0")
	}
	if c.Parser.RateLimitSeconds < 0 {
		return fmt.Errorf("parser.rate_limit_seconds must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Browser.Enabled && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0 when browser is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Snapshots.Backend {
	case "", "memory", "local", "gcs":
	default:
		return fmt.Errorf("snapshots.backend must be one of memory, local, gcs")
	}
	if c.Snapshots.Enabled && c.Snapshots.Backend == "gcs" && c.Snapshots.GCSBucket == "" {
		return fmt.Errorf("snapshots.gcs_bucket must be set for the gcs backend")
	}
	for domain, profile := range c.Profiles {
		if profile.Domain == "" {
			profile.Domain = domain
		}
		if profile.Domain != domain {
			return fmt.Errorf("profiles.%s: domain mismatch %q", domain, profile.Domain)
		}
	}
	return nil
}

// SiteProfiles returns the configured profiles with the map key filled in
// as the domain when omitted.
func (c Config) SiteProfiles() []parser.SiteProfile {
	out := make([]parser.SiteProfile, 0, len(c.Profiles))
	for domain, profile := range c.Profiles {
		if profile.Domain == "" {
			profile.Domain = domain
		}
		out = append(out, profile)
	}
	return out
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DefaultRateInterval converts the default per-domain spacing into a
// duration.
func (c Config) DefaultRateInterval() time.Duration {
	return time.Duration(c.Parser.RateLimitSeconds * float64(time.Second))
}
