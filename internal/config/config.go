package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/elonfeng/pitchpulse/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Sources   SourcesConfig   `yaml:"sources"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Digest    DigestConfig    `yaml:"digest"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	Keywords  KeywordsConfig  `yaml:"keywords"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Log       logger.Config   `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the periodic jobs run by `pitchpulse run`.
type ScheduleConfig struct {
	CommunityInterval string `yaml:"community_interval"`
	EditorialInterval string `yaml:"editorial_interval"`
	VideoInterval     string `yaml:"video_interval"`
	DigestAt          string `yaml:"digest_at"` // "HH:MM", local time
}

// SourcesConfig holds configuration for all source families.
type SourcesConfig struct {
	Reddit  RedditConfig  `yaml:"reddit"`
	RSS     RSSConfig     `yaml:"rss"`
	YouTube YouTubeConfig `yaml:"youtube"`
	// Parallel bounds concurrent sub-origin fetches within one family.
	Parallel int `yaml:"parallel"`
}

// RedditConfig for the community family.
type RedditConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Subreddits   []string `yaml:"subreddits"`
	Limit        int      `yaml:"limit"`
}

// RSSConfig for the editorial family.
type RSSConfig struct {
	Enabled bool       `yaml:"enabled"`
	Feeds   []FeedItem `yaml:"feeds"`
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// YouTubeConfig for the video family.
type YouTubeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Channels []ChannelItem `yaml:"channels"`
}

// ChannelItem is a YouTube channel by display name and channel id.
type ChannelItem struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// SummarizeConfig configures the optional AI summarizer.
type SummarizeConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Interval string `yaml:"interval"` // minimum spacing between calls
	Backfill int    `yaml:"backfill_limit"`
}

// ParseInterval returns the throttle interval.
func (s SummarizeConfig) ParseInterval() time.Duration {
	return parseDuration(s.Interval, 1500*time.Millisecond)
}

// DigestConfig configures the daily digest.
type DigestConfig struct {
	Title string `yaml:"title"`
}

// AlertsConfig configures digest delivery destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook delivery.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook delivery.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for a generic signed webhook, e.g. an email relay.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ArchiveConfig configures the S3-compatible digest archive.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // set for R2/MinIO
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

// CacheConfig configures the read-path page cache. An empty URL disables it.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
	Prefix   string `yaml:"prefix"`
}

// ParseTTL returns the cache TTL.
func (c CacheConfig) ParseTTL() time.Duration {
	return parseDuration(c.TTL, 2*time.Minute)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CronSecret string `yaml:"cron_secret"`
	PageSize   int    `yaml:"page_size"`
}

// KeywordsConfig points at an optional replacement keyword table file.
type KeywordsConfig struct {
	Path string `yaml:"path"`
}

// TimeoutsConfig bounds every external call.
type TimeoutsConfig struct {
	Fetch     string `yaml:"fetch"`
	Summarize string `yaml:"summarize"`
	Store     string `yaml:"store"`
	Deliver   string `yaml:"deliver"`
}

func (t TimeoutsConfig) FetchTimeout() time.Duration {
	return parseDuration(t.Fetch, 20*time.Second)
}

func (t TimeoutsConfig) SummarizeTimeout() time.Duration {
	return parseDuration(t.Summarize, 30*time.Second)
}

func (t TimeoutsConfig) StoreTimeout() time.Duration {
	return parseDuration(t.Store, 5*time.Second)
}

func (t TimeoutsConfig) DeliverTimeout() time.Duration {
	return parseDuration(t.Deliver, 15*time.Second)
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./pitchpulse.db"},
		Schedule: ScheduleConfig{
			CommunityInterval: "15m",
			EditorialInterval: "30m",
			VideoInterval:     "1h",
			DigestAt:          "07:00",
		},
		Sources: SourcesConfig{
			Reddit: RedditConfig{
				Enabled: true,
				Subreddits: []string{
					"NWSL", "ThornsFC", "OLReign", "KCCurrent", "SanDiegoWaveFC",
					"AngelCityFC", "ChicagoRedStars", "NCCourage", "orlandopride",
					"WashingtonSpirit", "HoustonDash", "GothamFC", "RacingLouFC",
					"UtahRoyalsFC", "BayFC",
				},
				Limit: 25,
			},
			RSS: RSSConfig{
				Enabled: true,
				Feeds: []FeedItem{
					{Name: "NWSL Soccer", URL: "https://www.nwslsoccer.com/rss/news"},
					{Name: "Equalizer Soccer", URL: "https://equalizersoccer.com/feed/"},
					{Name: "The Athletic Women's Soccer", URL: "https://www.nytimes.com/athletic/rss/womens-soccer/"},
					{Name: "All for XI", URL: "https://allforxi.com/feed/"},
				},
			},
			YouTube: YouTubeConfig{
				Enabled: true,
				Channels: []ChannelItem{
					{Name: "NWSL", ID: "UCrdYyU0ZMTj8qh_0K8Ec2zA"},
				},
			},
			Parallel: 8,
		},
		Summarize: SummarizeConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Interval: "1500ms",
			Backfill: 25,
		},
		Digest: DigestConfig{Title: "NWSL Daily"},
		Archive: ArchiveConfig{
			Region: "auto",
			Prefix: "digests/",
		},
		Cache: CacheConfig{
			TTL:    "2m",
			Prefix: "pitchpulse:",
		},
		Server: ServerConfig{Port: 8080, PageSize: 20},
		Log:    logger.Config{Level: "info", Output: "stderr"},
	}
}

// Load reads a .env file if present, then configuration from a YAML file,
// and applies env var overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error

	durations := map[string]string{
		"schedule.community_interval": c.Schedule.CommunityInterval,
		"schedule.editorial_interval": c.Schedule.EditorialInterval,
		"schedule.video_interval":     c.Schedule.VideoInterval,
		"summarize.interval":          c.Summarize.Interval,
		"cache.ttl":                   c.Cache.TTL,
		"timeouts.fetch":              c.Timeouts.Fetch,
		"timeouts.summarize":          c.Timeouts.Summarize,
		"timeouts.store":              c.Timeouts.Store,
		"timeouts.deliver":            c.Timeouts.Deliver,
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}

	if c.Schedule.DigestAt != "" {
		if _, err := time.Parse("15:04", c.Schedule.DigestAt); err != nil {
			errs = append(errs, fmt.Errorf("schedule.digest_at: want HH:MM, got %q", c.Schedule.DigestAt))
		}
	}
	switch c.Summarize.Provider {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("summarize.provider: unknown provider %q", c.Summarize.Provider))
	}
	if c.Server.PageSize < 0 || c.Server.PageSize > 100 {
		errs = append(errs, fmt.Errorf("server.page_size: must be 1..100, got %d", c.Server.PageSize))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket: required when archive is enabled"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path: required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseEvery returns a schedule interval, falling back to def.
func ParseEvery(v string, def time.Duration) time.Duration {
	return parseDuration(v, def)
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PITCHPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PITCHPULSE_KEYWORDS"); v != "" {
		cfg.Keywords.Path = v
	}
	if v := os.Getenv("PITCHPULSE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PITCHPULSE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Server.CronSecret = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Sources.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Sources.Reddit.ClientSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("DIGEST_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("DIGEST_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Summarize.APIKey = v
		cfg.Summarize.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Summarize.APIKey = v
		cfg.Summarize.Provider = "anthropic"
		if cfg.Summarize.Model == "gpt-4o-mini" {
			cfg.Summarize.Model = ""
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
}
