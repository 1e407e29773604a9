package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/peaking-cli/internal/model"
	"github.com/sells-group/peaking-cli/internal/peaking"
	"github.com/sells-group/peaking-cli/internal/resilience"
	"github.com/sells-group/peaking-cli/internal/tracker"
)

// Config holds the full application configuration.
type Config struct {
	Peaking    PeakingConfig    `yaml:"peaking" mapstructure:"peaking"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PeakingConfig holds the analysis settings passed to the pipeline.
type PeakingConfig struct {
	BaseYear       int      `yaml:"base_year" mapstructure:"base_year"`
	CurrentYear    int      `yaml:"current_year" mapstructure:"current_year"` // 0 means the clock's year
	ExcludedCities []string `yaml:"excluded_cities" mapstructure:"excluded_cities"`
	InclusionFlags []string `yaml:"inclusion_flags" mapstructure:"inclusion_flags"`
}

// Options resolves the current year against clock and returns pipeline options.
func (c PeakingConfig) Options(clock clockwork.Clock) peaking.Options {
	current := c.CurrentYear
	if current <= 0 {
		current = clock.Now().Year()
	}
	base := c.BaseYear
	if base <= 0 {
		base = peaking.DefaultBaseYear
	}
	opts := peaking.DefaultOptions(current)
	opts.Years = model.YearRange{Base: base, Current: current}
	if c.ExcludedCities != nil {
		opts.ExcludedCities = c.ExcludedCities
	}
	if len(c.InclusionFlags) > 0 {
		opts.InclusionFlags = c.InclusionFlags
	}
	return opts
}

// InputConfig describes the tracker file.
type InputConfig struct {
	Path      string          `yaml:"path" mapstructure:"path"`
	Sheet     string          `yaml:"sheet" mapstructure:"sheet"`
	HeaderRow int             `yaml:"header_row" mapstructure:"header_row"`
	Columns   tracker.Columns `yaml:"columns" mapstructure:"columns"`
}

// TrackerOptions converts the input section to reader options.
func (c InputConfig) TrackerOptions() tracker.Options {
	def := tracker.DefaultOptions()
	opts := tracker.Options{Sheet: c.Sheet, HeaderRow: c.HeaderRow, Columns: c.Columns}
	if opts.HeaderRow <= 0 {
		opts.HeaderRow = def.HeaderRow
	}
	if opts.Columns.City == "" {
		opts.Columns.City = def.Columns.City
	}
	if opts.Columns.Source == "" {
		opts.Columns.Source = def.Columns.Source
	}
	if opts.Columns.Year == "" {
		opts.Columns.Year = def.Columns.Year
	}
	if opts.Columns.Emissions == "" {
		opts.Columns.Emissions = def.Columns.Emissions
	}
	if opts.Columns.Include == "" {
		opts.Columns.Include = def.Columns.Include
	}
	return opts
}

// StoreConfig configures the registry and run log.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig  `yaml:"pool" mapstructure:"pool"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// RetryConfig configures connection retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Resilience converts the retry section to a resilience.RetryConfig.
func (c RetryConfig) Resilience() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Multiplier:     c.Multiplier,
		JitterFraction: c.JitterFraction,
	}
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	CSV     bool   `yaml:"csv" mapstructure:"csv"`
	Publish bool   `yaml:"publish" mapstructure:"publish"`
}

// ServerConfig configures the dashboard API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures webhook alerts for runs.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PEAKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	cols := tracker.DefaultColumns()
	retry := resilience.DefaultRetryConfig()
	v.SetDefault("peaking.base_year", peaking.DefaultBaseYear)
	v.SetDefault("peaking.current_year", 0)
	v.SetDefault("peaking.excluded_cities", peaking.DefaultExcludedCities)
	v.SetDefault("peaking.inclusion_flags", peaking.DefaultInclusionFlags)
	v.SetDefault("input.path", "")
	v.SetDefault("input.sheet", tracker.DefaultSheet)
	v.SetDefault("input.header_row", 2)
	v.SetDefault("input.columns.city", cols.City)
	v.SetDefault("input.columns.source", cols.Source)
	v.SetDefault("input.columns.year", cols.Year)
	v.SetDefault("input.columns.emissions", cols.Emissions)
	v.SetDefault("input.columns.include", cols.Include)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "peaking.db")
	v.SetDefault("store.pool.max_conns", 4)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("store.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("store.retry.initial_backoff_ms", int(retry.InitialBackoff/time.Millisecond))
	v.SetDefault("store.retry.max_backoff_ms", int(retry.MaxBackoff/time.Millisecond))
	v.SetDefault("store.retry.multiplier", retry.Multiplier)
	v.SetDefault("store.retry.jitter_fraction", retry.JitterFraction)
	v.SetDefault("output.dir", "./out")
	v.SetDefault("output.csv", false)
	v.SetDefault("output.publish", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 3600)
	v.SetDefault("monitoring.lookback_window_hours", 168)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes are "run",
// "serve" and "registry". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve", "registry":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode != "registry" {
		if c.Peaking.CurrentYear > 0 && c.Peaking.CurrentYear < c.Peaking.BaseYear {
			errs = append(errs, fmt.Sprintf("peaking.current_year %d is before base_year %d", c.Peaking.CurrentYear, c.Peaking.BaseYear))
		}
		if c.Input.HeaderRow < 0 {
			errs = append(errs, "input.header_row must be >= 0")
		}
		if c.Output.Publish && c.Store.Driver != "postgres" {
			errs = append(errs, "output.publish requires the postgres store driver")
		}
	}

	if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
