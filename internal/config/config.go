// Package config loads and validates tracker configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Snapshot backends.
const (
	SnapshotNone  = "none"
	SnapshotLocal = "local"
	SnapshotGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Headless     HeadlessConfig     `mapstructure:"headless"`
	Crossref     CrossrefConfig     `mapstructure:"crossref"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	DB           DBConfig           `mapstructure:"db"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                 int `mapstructure:"port"`
	ScrapeTimeoutSeconds int `mapstructure:"scrape_timeout_seconds"`
}

// HTTPConfig configures the static, feed and metadata API clients.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	DomainRPS      float64 `mapstructure:"domain_rps"`
	DomainBurst    int     `mapstructure:"domain_burst"`
	PageDelayMs    int     `mapstructure:"page_delay_ms"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the browser-rendered strategy.
type HeadlessConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	NavTimeoutSeconds   int    `mapstructure:"nav_timeout_seconds"`
	ReadyTimeoutSeconds int    `mapstructure:"ready_timeout_seconds"`
	MinDelayMs          int    `mapstructure:"min_delay_ms"`
	MaxDelayMs          int    `mapstructure:"max_delay_ms"`
	ViewportWidth       int64  `mapstructure:"viewport_width"`
	ViewportHeight      int64  `mapstructure:"viewport_height"`
	Timezone            string `mapstructure:"timezone"`
	Locale              string `mapstructure:"locale"`
}

// CrossrefConfig configures the metadata API fallback.
type CrossrefConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Mailto  string `mapstructure:"mailto"`
	Rows    int    `mapstructure:"rows"`
}

// OrchestratorConfig governs a scrape run.
type OrchestratorConfig struct {
	Parallelism  int `mapstructure:"parallelism"`
	PageCapacity int `mapstructure:"page_capacity"`
	// RecentDays drops dated records older than the window; zero disables the cutoff.
	RecentDays int `mapstructure:"recent_days"`
	// Journals restricts the run to these names or abbreviations; empty means all.
	Journals []string `mapstructure:"journals"`
}

// DBConfig controls access to the relational database.
// An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SnapshotConfig selects where raw listing pages are archived.
type SnapshotConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ScheduleConfig holds the optional cron trigger for serve mode.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// SyncConfig points push mode at a remote tracker.
type SyncConfig struct {
	TargetURL      string `mapstructure:"target_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional .env file, the environment and an optional YAML file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TRACKER")
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
	v.SetDefault("server.scrape_timeout_seconds", 600)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.domain_rps", 0.5)
	v.SetDefault("http.domain_burst", 1)
	v.SetDefault("http.page_delay_ms", 2000)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.ready_timeout_seconds", 15)
	v.SetDefault("headless.min_delay_ms", 2000)
	v.SetDefault("headless.max_delay_ms", 5000)
	v.SetDefault("headless.viewport_width", 1920)
	v.SetDefault("headless.viewport_height", 1080)
	v.SetDefault("headless.timezone", "America/New_York")
	v.SetDefault("headless.locale", "en-US")
	v.SetDefault("crossref.base_url", "https://api.crossref.org/works")
	v.SetDefault("crossref.rows", 20)
	v.SetDefault("orchestrator.parallelism", 2)
	v.SetDefault("orchestrator.page_capacity", 1000)
	v.SetDefault("orchestrator.recent_days", 0)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("snapshot.backend", SnapshotNone)
	v.SetDefault("snapshot.dir", "snapshots")
	v.SetDefault("snapshot.prefix", "listings")
	v.SetDefault("sync.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.DomainRPS < 0 {
		return fmt.Errorf("http.domain_rps must be >= 0")
	}
	if c.Orchestrator.Parallelism <= 0 {
		return fmt.Errorf("orchestrator.parallelism must be > 0")
	}
	if c.Orchestrator.PageCapacity <= 0 {
		return fmt.Errorf("orchestrator.page_capacity must be > 0")
	}
	if c.Orchestrator.RecentDays < 0 {
		return fmt.Errorf("orchestrator.recent_days must be >= 0")
	}
	if c.Headless.MinDelayMs < 0 || c.Headless.MaxDelayMs < c.Headless.MinDelayMs {
		return fmt.Errorf("headless delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.Crossref.Rows <= 0 || c.Crossref.Rows > 1000 {
		return fmt.Errorf("crossref.rows must be in (0, 1000]")
	}
	switch c.Snapshot.Backend {
	case SnapshotNone, "":
	case SnapshotLocal:
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir must be set for the local backend")
		}
	case SnapshotGCS:
		if c.Snapshot.GCSBucket == "" {
			return fmt.Errorf("snapshot.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("snapshot.backend %q is not one of none, local, gcs", c.Snapshot.Backend)
	}
	return nil
}

// HTTPTimeout converts http.timeout_seconds to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ScrapeTimeout bounds a triggered run; zero means no bound.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Server.ScrapeTimeoutSeconds) * time.Second
}

// PageDelay is the politeness delay between listing pages.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.HTTP.PageDelayMs) * time.Millisecond
}
