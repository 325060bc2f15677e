package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-level configuration for the lg binary.
type Config struct {
	Thresholds Thresholds       `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store" json:"store"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache" json:"cache"`
	Warehouse  WarehouseConfig  `mapstructure:"warehouse" yaml:"warehouse" json:"warehouse"`
	GrowthBook GrowthBookConfig `mapstructure:"growthbook" yaml:"growthbook" json:"growthbook"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port" json:"port"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// CacheConfig controls the provider result cache. An empty RedisURL
// selects the in-process cache.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

type WarehouseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	Table  string `mapstructure:"table" yaml:"table" json:"table"`
}

type GrowthBookConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("thresholds.srm_warning", d.SRMWarning)
	v.SetDefault("thresholds.srm_blocked", d.SRMBlocked)
	v.SetDefault("thresholds.guardrail_worsened", d.GuardrailWorsened)
	v.SetDefault("thresholds.guardrail_severe", d.GuardrailSevere)
	v.SetDefault("thresholds.alpha", d.Alpha)
	v.SetDefault("thresholds.min_sample_size", d.MinSampleSize)
	v.SetDefault("thresholds.multiple_testing", d.MultipleTesting)
	v.SetDefault("thresholds.variance_tolerance", d.VarianceTolerance)
	v.SetDefault("thresholds.bayes_samples", d.BayesSamples)
	v.SetDefault("thresholds.bayes_seed", d.BayesSeed)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.path", "./lg.db")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("warehouse.driver", "postgres")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.table", "experiment_variants")
	v.SetDefault("growthbook.base_url", "https://api.growthbook.io/api/v1")
}

// Load reads configuration from defaults, an optional YAML file and
// LG_-prefixed environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
