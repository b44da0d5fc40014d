// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. CARCRAWLER_FETCHER_WORKERS.
const EnvPrefix = "CARCRAWLER"

// Store providers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Export providers.
const (
	ExportLocal = "local"
	ExportGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Collector CollectorConfig `mapstructure:"collector"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Phone     PhoneConfig     `mapstructure:"phone"`
	Store     StoreConfig     `mapstructure:"store"`
	Export    ExportConfig    `mapstructure:"export"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SiteConfig describes the listing site being crawled.
type SiteConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	PerPage         int    `mapstructure:"per_page"`
	ListingSelector string `mapstructure:"listing_selector"`
	UserAgent       string `mapstructure:"user_agent"`
}

// DiscoveryConfig selects how the number of index pages is found.
type DiscoveryConfig struct {
	Strategy    string `mapstructure:"strategy"`
	MaxPages    int    `mapstructure:"max_pages"`
	EmptyStreak int    `mapstructure:"empty_streak"`
}

// CollectorConfig controls index page fan-out. Zero means one per CPU.
type CollectorConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// FetcherConfig sizes the detail page worker pool.
type FetcherConfig struct {
	Workers int `mapstructure:"workers"`
}

// HTTPConfig configures request timeouts and the per-host rate cap.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// PhoneConfig picks the phone number strategy.
type PhoneConfig struct {
	Strategy       string `mapstructure:"strategy"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SettleMs       int    `mapstructure:"settle_ms"`
}

// StoreConfig controls the listing store.
type StoreConfig struct {
	Provider   string `mapstructure:"provider"`
	DSN        string `mapstructure:"dsn"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Name       string `mapstructure:"name"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Table      string `mapstructure:"table"`
	RunsTable  string `mapstructure:"runs_table"`
	CommitMode string `mapstructure:"commit_mode"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// ExportConfig chooses where listing snapshots are written.
type ExportConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the run notification target. An empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig drives the serve command. Cron wins over Hour when set.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	Hour       int    `mapstructure:"hour"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the run trigger endpoint.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps config keys to the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"site.base_url":  "BASE_URL",
	"store.host":     "DB_HOST",
	"store.port":     "DB_PORT",
	"store.name":     "DB_NAME",
	"store.user":     "DB_USER",
	"store.password": "DB_PASSWORD",
	"schedule.hour":  "SCRAPE_TIME_HOUR",
}

// Load reads .env (if present), defaults, the optional config file and the
// environment, then validates the result.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := readConfigFile(v, path); err != nil {
		return Config{}, err
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

// readConfigFile reads path, or looks for config.yaml in the working
// directory, /etc/carcrawler and $HOME/.carcrawler when path is empty.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/carcrawler/")
	v.AddConfigPath("$HOME/.carcrawler")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// LoadDotEnv exports variables from a dotenv file without overriding the
// existing environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.per_page", 100)
	v.SetDefault("site.listing_selector", "a.m-link-ticket")
	v.SetDefault("site.user_agent", "Mozilla/5.0")
	v.SetDefault("discovery.strategy", crawler.DiscoveryBinary)
	v.SetDefault("discovery.max_pages", 100000)
	v.SetDefault("discovery.empty_streak", 3)
	v.SetDefault("collector.parallelism", 0)
	v.SetDefault("fetcher.workers", 20)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("phone.strategy", crawler.PhoneNone)
	v.SetDefault("phone.timeout_seconds", 6)
	v.SetDefault("phone.settle_ms", 2000)
	v.SetDefault("store.provider", StorePostgres)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.host", "")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.name", "")
	v.SetDefault("store.user", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.table", "cars")
	v.SetDefault("store.runs_table", "crawl_runs")
	v.SetDefault("store.commit_mode", crawler.CommitRecord)
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("export.provider", ExportLocal)
	v.SetDefault("export.local_dir", "dumps")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.hour", 12)
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Crawler().Validate(); err != nil {
		return fmt.Errorf("invalid crawler config: %w", err)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Schedule.Cron == "" && (c.Schedule.Hour < 0 || c.Schedule.Hour > 23) {
		return fmt.Errorf("schedule.hour must be between 0 and 23")
	}
	switch c.Store.Provider {
	case StorePostgres:
		if c.Store.DSN == "" && c.Store.Host == "" {
			return fmt.Errorf("store.dsn or store.host must be set for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("store.provider %q is not supported", c.Store.Provider)
	}
	switch c.Export.Provider {
	case ExportLocal:
		if c.Export.LocalDir == "" {
			return fmt.Errorf("export.local_dir must be set for local export")
		}
	case ExportGCS:
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket must be set for gcs export")
		}
	default:
		return fmt.Errorf("export.provider %q is not supported", c.Export.Provider)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Phone.Strategy == crawler.PhoneBrowser && c.Phone.TimeoutSeconds <= 0 {
		return fmt.Errorf("phone.timeout_seconds must be > 0 for the browser strategy")
	}
	return nil
}

// Crawler returns the slice of configuration the pipeline needs.
func (c Config) Crawler() crawler.Config {
	return crawler.Config{
		BaseURL:           c.Site.BaseURL,
		PerPage:           c.Site.PerPage,
		ListingSelector:   c.Site.ListingSelector,
		DiscoveryStrategy: c.Discovery.Strategy,
		MaxPages:          c.Discovery.MaxPages,
		EmptyStreak:       c.Discovery.EmptyStreak,
		PageParallelism:   c.Collector.Parallelism,
		Workers:           c.Fetcher.Workers,
		RequestTimeout:    c.RequestTimeout(),
		PhoneStrategy:     c.Phone.Strategy,
		CommitMode:        c.Store.CommitMode,
	}
}

// RequestTimeout converts http.timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PhoneWait converts phone.timeout_seconds into a duration.
func (c Config) PhoneWait() time.Duration {
	return time.Duration(c.Phone.TimeoutSeconds) * time.Second
}

// PhoneSettle converts phone.settle_ms into a duration.
func (c Config) PhoneSettle() time.Duration {
	return time.Duration(c.Phone.SettleMs) * time.Millisecond
}

// CronSpec returns schedule.cron, or a daily spec at schedule.hour.
func (c Config) CronSpec() string {
	if c.Schedule.Cron != "" {
		return c.Schedule.Cron
	}
	return fmt.Sprintf("0 %d * * *", c.Schedule.Hour)
}

// DatabaseURL returns store.dsn, or a postgres URL assembled from the
// host/port/name/user/password keys.
func (c Config) DatabaseURL() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Store.Host, strconv.Itoa(c.Store.Port)),
		Path:   "/" + c.Store.Name,
	}
	switch {
	case c.Store.User != "" && c.Store.Password != "":
		u.User = url.UserPassword(c.Store.User, c.Store.Password)
	case c.Store.User != "":
		u.User = url.User(c.Store.User)
	}
	return u.String()
}
