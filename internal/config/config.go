package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Regions   RegionsConfig   `yaml:"regions" mapstructure:"regions"`
	Tiles     TilesConfig     `yaml:"tiles" mapstructure:"tiles"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ProviderConfig holds imagery catalog credentials and endpoints.
type ProviderConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TokenURL       string  `yaml:"token_url" mapstructure:"token_url"`
	ClientID       string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string  `yaml:"client_secret" mapstructure:"client_secret"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	PageSize       int     `yaml:"page_size" mapstructure:"page_size"`
}

// PipelineConfig configures scene search and index calculation.
type PipelineConfig struct {
	AOI            string   `yaml:"aoi" mapstructure:"aoi"`
	LookbackDays   int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	MaxCloudCover  float64  `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	MaxScenes      int      `yaml:"max_scenes" mapstructure:"max_scenes"`
	Indexes        []string `yaml:"indexes" mapstructure:"indexes"`
	Concurrency    int      `yaml:"concurrency" mapstructure:"concurrency"`
	RasterSize     int      `yaml:"raster_size" mapstructure:"raster_size"`
	RunTimeoutMins int      `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
}

// SchedulerConfig configures the periodic run loop. With Enabled false the
// timer is not armed but manual triggers still work.
type SchedulerConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalHours int  `yaml:"interval_hours" mapstructure:"interval_hours"`
	RunOnStart    bool `yaml:"run_on_start" mapstructure:"run_on_start"`
}

// RegionsConfig configures the named aggregation regions.
type RegionsConfig struct {
	File          string `yaml:"file" mapstructure:"file"`
	DefaultRegion string `yaml:"default_region" mapstructure:"default_region"`
}

// TilesConfig configures the map tile renderer and its cache.
type TilesConfig struct {
	Size          int     `yaml:"size" mapstructure:"size"`
	CacheEntries  int     `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	MinZoom       int     `yaml:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom       int     `yaml:"max_zoom" mapstructure:"max_zoom"`
	Opacity       float64 `yaml:"opacity" mapstructure:"opacity"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RunTimeout returns the per-run deadline as a duration.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMins) * time.Minute
}

// Interval returns the scheduler interval as a duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// CacheTTL returns the tile cache entry lifetime as a duration.
func (c TilesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TERRASIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "terrasight.db")
	v.SetDefault("provider.base_url", "https://sh.dataspace.copernicus.eu")
	v.SetDefault("provider.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	// Credentials default to empty so AutomaticEnv can see the keys during
	// Unmarshal; viper only surfaces env values for keys it already knows.
	v.SetDefault("provider.client_id", "")
	v.SetDefault("provider.client_secret", "")
	v.SetDefault("provider.requests_per_sec", 2.0)
	v.SetDefault("provider.burst", 4)
	v.SetDefault("provider.timeout_secs", 60)
	v.SetDefault("provider.max_retries", 4)
	v.SetDefault("provider.page_size", 50)
	v.SetDefault("pipeline.aoi", "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))")
	v.SetDefault("pipeline.lookback_days", 7)
	v.SetDefault("pipeline.max_cloud_cover", 40.0)
	v.SetDefault("pipeline.max_scenes", 20)
	v.SetDefault("pipeline.indexes", []string{"vegetation", "water", "builtup", "moisture"})
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.raster_size", 512)
	v.SetDefault("pipeline.run_timeout_mins", 30)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_hours", 24)
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("regions.file", "regions.yaml")
	v.SetDefault("regions.default_region", "Trnava")
	v.SetDefault("tiles.size", 256)
	v.SetDefault("tiles.cache_entries", 512)
	v.SetDefault("tiles.cache_ttl_hours", 24)
	v.SetDefault("tiles.min_zoom", 6)
	v.SetDefault("tiles.max_zoom", 14)
	v.SetDefault("tiles.opacity", 0.85)
	v.SetDefault("server.port", 8080)
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

// Validate checks the fields required for the given mode ("run", "serve",
// "backfill", "export"). Missing values are collected so the operator sees
// all of them at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	common := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	provider := func() {
		if c.Provider.ClientID == "" {
			problems = append(problems, "provider.client_id is required")
		}
		if c.Provider.ClientSecret == "" {
			problems = append(problems, "provider.client_secret is required")
		}
		if c.Pipeline.AOI == "" {
			problems = append(problems, "pipeline.aoi is required")
		}
		if c.Pipeline.MaxCloudCover < 0 || c.Pipeline.MaxCloudCover > 100 {
			problems = append(problems, "pipeline.max_cloud_cover must be between 0 and 100")
		}
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 32 {
			problems = append(problems, "pipeline.concurrency must be between 1 and 32")
		}
	}

	switch mode {
	case "run", "backfill":
		common()
		provider()
	case "serve":
		common()
		provider()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Scheduler.IntervalHours < 1 {
			problems = append(problems, "scheduler.interval_hours must be >= 1")
		}
		if c.Tiles.MinZoom < 0 || c.Tiles.MaxZoom < c.Tiles.MinZoom {
			problems = append(problems, "tiles zoom range is invalid")
		}
	case "export", "regions", "migrate", "scenes":
		common()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
