package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"farewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	FareSource FareSourceConfig `mapstructure:"fare_source"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the sampler and dispatcher cadences.
type SchedulerConfig struct {
	SamplerInterval    time.Duration `mapstructure:"sampler_interval"`
	DispatcherInterval time.Duration `mapstructure:"dispatcher_interval"`
	AlignToBucket      bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey    int64         `mapstructure:"advisory_lock_key"`
	StartupDelay       time.Duration `mapstructure:"startup_delay"`
}

// FareSourceConfig covers the upstream fare quote API.
type FareSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Origin         string        `mapstructure:"origin"`
	Currency       string        `mapstructure:"currency"`
	LeadDays       int           `mapstructure:"lead_days"`
	TripDays       int           `mapstructure:"trip_days"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// StatsConfig sets the rolling-window sizes in days.
type StatsConfig struct {
	ShortWindowDays  int `mapstructure:"short_window_days"`
	MediumWindowDays int `mapstructure:"medium_window_days"`
	LongWindowDays   int `mapstructure:"long_window_days"`
}

// AlertingConfig defines gate defaults and dispatcher behaviour.
type AlertingConfig struct {
	DefaultMinDropPct       float64       `mapstructure:"default_min_drop_pct"`
	DefaultMaxAlertsPerWeek int           `mapstructure:"default_max_alerts_per_week"`
	BatchSize               int           `mapstructure:"batch_size"`
	MaxRetries              int           `mapstructure:"max_retries"`
	RetryBackoff            time.Duration `mapstructure:"retry_backoff"`
	Webhook                 WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig describes the outbound delivery endpoint.
type WebhookConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	AuthToken      string        `mapstructure:"auth_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FAREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "farewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "farewatch")

	v.SetDefault("scheduler.sampler_interval", "6h")
	v.SetDefault("scheduler.dispatcher_interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66617265))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("fare_source.origin", "WAW")
	v.SetDefault("fare_source.currency", "USD")
	v.SetDefault("fare_source.lead_days", 30)
	v.SetDefault("fare_source.trip_days", 7)
	v.SetDefault("fare_source.request_timeout", "10s")
	v.SetDefault("fare_source.user_agent", "farewatch/1.0")
	v.SetDefault("fare_source.rate_per_second", 2.0)
	v.SetDefault("fare_source.max_concurrency", 4)

	v.SetDefault("stats.short_window_days", 7)
	v.SetDefault("stats.medium_window_days", 90)
	v.SetDefault("stats.long_window_days", 365)

	v.SetDefault("alerting.default_min_drop_pct", 5.0)
	v.SetDefault("alerting.default_max_alerts_per_week", 3)
	v.SetDefault("alerting.batch_size", 10)
	v.SetDefault("alerting.max_retries", 3)
	v.SetDefault("alerting.retry_backoff", "2m")
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.SamplerInterval <= 0 {
		return fmt.Errorf("scheduler.sampler_interval must be greater than zero")
	}
	if c.Scheduler.DispatcherInterval <= 0 {
		return fmt.Errorf("scheduler.dispatcher_interval must be greater than zero")
	}
	if c.FareSource.Origin == "" {
		return fmt.Errorf("fare_source.origin is required")
	}
	if c.FareSource.LeadDays <= 0 || c.FareSource.TripDays <= 0 {
		return fmt.Errorf("fare_source.lead_days and fare_source.trip_days must be greater than zero")
	}
	if c.FareSource.MaxConcurrency <= 0 {
		return fmt.Errorf("fare_source.max_concurrency must be greater than zero")
	}
	if c.Stats.ShortWindowDays <= 0 || c.Stats.MediumWindowDays <= 0 || c.Stats.LongWindowDays <= 0 {
		return fmt.Errorf("stats windows must be greater than zero")
	}
	if c.Stats.ShortWindowDays > c.Stats.MediumWindowDays || c.Stats.MediumWindowDays > c.Stats.LongWindowDays {
		return fmt.Errorf("stats windows must satisfy short <= medium <= long")
	}
	if c.Alerting.DefaultMinDropPct < 0 {
		return fmt.Errorf("alerting.default_min_drop_pct cannot be negative")
	}
	if c.Alerting.DefaultMaxAlertsPerWeek <= 0 {
		return fmt.Errorf("alerting.default_max_alerts_per_week must be greater than zero")
	}
	if c.Alerting.BatchSize <= 0 {
		return fmt.Errorf("alerting.batch_size must be greater than zero")
	}
	if c.Alerting.MaxRetries <= 0 {
		return fmt.Errorf("alerting.max_retries must be greater than zero")
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url 必须配置")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
