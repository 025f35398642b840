package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/demo"
	"github.com/dgnsrekt/heatseeker/internal/exposure"
	"github.com/dgnsrekt/heatseeker/internal/notify"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Exposure  ExposureConfig  `mapstructure:"exposure"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Output    OutputConfig    `mapstructure:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Notify    notify.Config   `mapstructure:"notify"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelay    int    `mapstructure:"retry_delay_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	PageLimit     int    `mapstructure:"page_limit"`
	MaxPages      int    `mapstructure:"max_pages"`
}

type ExposureConfig struct {
	FallbackOpenInterest int64   `mapstructure:"fallback_open_interest"`
	TenorYears           float64 `mapstructure:"tenor_years"`
	TenorFloorYears      float64 `mapstructure:"tenor_floor_years"`
	Gatekeeper           bool    `mapstructure:"gatekeeper"`
	GatekeeperPercentile float64 `mapstructure:"gatekeeper_percentile"`
	TimeAware            bool    `mapstructure:"time_aware"`
}

type DashboardConfig struct {
	Tickers         []string `mapstructure:"tickers"`
	Mode            string   `mapstructure:"mode"`
	Strict          bool     `mapstructure:"strict"`
	DefaultSpot     float64  `mapstructure:"default_spot"`
	StrikeWindow    float64  `mapstructure:"strike_window"`
	StrikeStep      float64  `mapstructure:"strike_step"`
	DemoSeed        int64    `mapstructure:"demo_seed"`
	DemoExpirations int      `mapstructure:"demo_expirations"`
}

type ScanConfig struct {
	Workers int `mapstructure:"workers"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory"`
	Compress  bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	// A missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("api.base_url", "https://api.polygon.io")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("api.retry_delay_sec", 2)
	v.SetDefault("api.rate_per_second", 5)
	v.SetDefault("api.page_limit", 250)
	v.SetDefault("api.max_pages", 40)
	v.SetDefault("exposure.fallback_open_interest", exposure.DefaultFallbackOpenInterest)
	v.SetDefault("exposure.tenor_years", exposure.DefaultTenor)
	v.SetDefault("exposure.tenor_floor_years", exposure.DefaultTenorFloor)
	v.SetDefault("exposure.gatekeeper", true)
	v.SetDefault("exposure.gatekeeper_percentile", exposure.DefaultGatekeeperPercentile)
	v.SetDefault("exposure.time_aware", false)
	v.SetDefault("dashboard.tickers", DefaultTickers())
	v.SetDefault("dashboard.mode", "live")
	v.SetDefault("dashboard.strict", false)
	v.SetDefault("dashboard.default_spot", DefaultSpot)
	v.SetDefault("dashboard.strike_window", 70.0)
	v.SetDefault("dashboard.strike_step", 1.0)
	v.SetDefault("dashboard.demo_seed", 42)
	v.SetDefault("dashboard.demo_expirations", 0)
	v.SetDefault("scan.workers", 3)
	v.SetDefault("output.directory", "data")
	v.SetDefault("output.compress", false)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("notify.token", "")

	// Environment variable support
	v.SetEnvPrefix("HEATSEEKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("api.api_key", "HEATSEEKER_API_KEY", "POLYGON_API_KEY")
	_ = v.BindEnv("notify.enabled", "HEATSEEKER_NOTIFY_ENABLED", "NTFY_ENABLED")
	_ = v.BindEnv("notify.server", "HEATSEEKER_NOTIFY_SERVER", "NTFY_SERVER")
	_ = v.BindEnv("notify.topic", "HEATSEEKER_NOTIFY_TOPIC", "NTFY_TOPIC")
	_ = v.BindEnv("notify.priority", "HEATSEEKER_NOTIFY_PRIORITY", "NTFY_PRIORITY")
	_ = v.BindEnv("notify.token", "HEATSEEKER_NOTIFY_TOKEN", "NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	for i, t := range cfg.Dashboard.Tickers {
		cfg.Dashboard.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	for _, t := range c.Dashboard.Tickers {
		if !IsValidTicker(t) {
			errs.InvalidTickers = append(errs.InvalidTickers, t)
		}
	}

	switch strings.ToLower(c.Dashboard.Mode) {
	case "live", "file", "demo":
	default:
		errs.add("dashboard.mode must be 'live', 'file' or 'demo', got %q", c.Dashboard.Mode)
	}
	if c.Dashboard.DefaultSpot <= 0 {
		errs.add("dashboard.default_spot must be > 0")
	}
	if c.Dashboard.StrikeStep <= 0 {
		errs.add("dashboard.strike_step must be > 0")
	}
	if c.Dashboard.StrikeWindow < 0 {
		errs.add("dashboard.strike_window must be >= 0")
	}
	if c.Exposure.TenorYears <= 0 {
		errs.add("exposure.tenor_years must be > 0")
	}
	if c.Exposure.TenorFloorYears <= 0 {
		errs.add("exposure.tenor_floor_years must be > 0")
	}
	if c.Exposure.FallbackOpenInterest < 0 {
		errs.add("exposure.fallback_open_interest must be >= 0")
	}
	if p := c.Exposure.GatekeeperPercentile; p < 0 || p > 100 {
		errs.add("exposure.gatekeeper_percentile must be within [0, 100], got %v", p)
	}
	if c.Scan.Workers < 1 {
		errs.add("scan.workers must be >= 1")
	}
	if err := c.Notify.Validate(); err != nil {
		errs.add("%v", err)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ExposureOptions converts the exposure section into aggregator options.
// Valuation stays zero; callers set it per computation.
func (c *Config) ExposureOptions() exposure.Options {
	return exposure.Options{
		FallbackOpenInterest: c.Exposure.FallbackOpenInterest,
		Tenor:                c.Exposure.TenorYears,
		TenorFloor:           c.Exposure.TenorFloorYears,
		Gatekeeper:           c.Exposure.Gatekeeper,
		GatekeeperPercentile: c.Exposure.GatekeeperPercentile,
	}
}

// ClientOptions converts the api section into market data client options.
func (c *Config) ClientOptions() api.Options {
	return api.Options{
		BaseURL:    c.API.BaseURL,
		RatePerSec: c.API.RatePerSecond,
		Timeout:    time.Duration(c.API.TimeoutSec) * time.Second,
		RetryCount: c.API.RetryCount,
		RetryDelay: time.Duration(c.API.RetryDelay) * time.Second,
		PageLimit:  c.API.PageLimit,
		MaxPages:   c.API.MaxPages,
	}
}

// ResolverConfig builds the source resolver's fallbacks from the dashboard section.
func (c *Config) ResolverConfig() source.Config {
	return source.Config{
		DefaultSpot: c.Dashboard.DefaultSpot,
		Demo: demo.Config{
			Window:      c.Dashboard.StrikeWindow,
			Step:        c.Dashboard.StrikeStep,
			Seed:        c.Dashboard.DemoSeed,
			Expirations: c.Dashboard.DemoExpirations,
		},
	}
}
