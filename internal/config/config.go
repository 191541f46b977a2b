// Package config loads gaa settings from config.yaml, GAA_* environment
// variables, and built-in defaults, in that order of increasing precedence
// for the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the results API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	Dir         string                   `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int                      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int                      `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string                   `yaml:"user_agent" mapstructure:"user_agent"`
	Datasets    map[string]DatasetConfig `yaml:"datasets" mapstructure:"datasets"`
}

// DatasetConfig names a remote dataset for the fetch command.
type DatasetConfig struct {
	GeometryURL  string `yaml:"geometry_url" mapstructure:"geometry_url"`
	AttributeURL string `yaml:"attribute_url" mapstructure:"attribute_url"`
	Extract      bool   `yaml:"extract" mapstructure:"extract"`
}

// PipelineConfig holds the default run parameters. Command-line flags
// override these per invocation.
type PipelineConfig struct {
	JoinPolicy         string  `yaml:"join_policy" mapstructure:"join_policy"`
	Standardize        string  `yaml:"standardize" mapstructure:"standardize"`
	CollinearThreshold float64 `yaml:"collinear_threshold" mapstructure:"collinear_threshold"`
	Metric             string  `yaml:"metric" mapstructure:"metric"`
	MinkowskiP         float64 `yaml:"minkowski_p" mapstructure:"minkowski_p"`
	Rule               string  `yaml:"rule" mapstructure:"rule"`
	DistanceBand       float64 `yaml:"distance_band" mapstructure:"distance_band"`
	KNN                int     `yaml:"knn_k" mapstructure:"knn_k"`
	Linkage            string  `yaml:"linkage" mapstructure:"linkage"`
	K                  int     `yaml:"k" mapstructure:"k"`
	GapMaxK            int     `yaml:"gap_max_k" mapstructure:"gap_max_k"`
	GapB               int     `yaml:"gap_b" mapstructure:"gap_b"`
	Alpha              float64 `yaml:"alpha" mapstructure:"alpha"`
	MinSize            int     `yaml:"min_size" mapstructure:"min_size"`
	Seed               int64   `yaml:"seed" mapstructure:"seed"`
	Workers            int     `yaml:"workers" mapstructure:"workers"`
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
	v.SetEnvPrefix("GAA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gaa.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("fetch.dir", "data")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "gaa/1.0")
	v.SetDefault("pipeline.join_policy", "inner")
	v.SetDefault("pipeline.standardize", "minmax")
	v.SetDefault("pipeline.collinear_threshold", 0.8)
	v.SetDefault("pipeline.metric", "euclidean")
	v.SetDefault("pipeline.minkowski_p", 3)
	v.SetDefault("pipeline.rule", "queen")
	v.SetDefault("pipeline.distance_band", 0)
	v.SetDefault("pipeline.knn_k", 8)
	v.SetDefault("pipeline.linkage", "ward")
	v.SetDefault("pipeline.k", 0)
	v.SetDefault("pipeline.gap_max_k", 10)
	v.SetDefault("pipeline.gap_b", 50)
	v.SetDefault("pipeline.alpha", -1)
	v.SetDefault("pipeline.min_size", 1)
	v.SetDefault("pipeline.seed", 42)
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the fields the given mode depends on. Mode is the command
// about to run: "run", "serve", or "fetch".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported (use sqlite or postgres)", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}

	switch mode {
	case "run":
		if c.Pipeline.CollinearThreshold <= 0 || c.Pipeline.CollinearThreshold > 1 {
			problems = append(problems, "pipeline.collinear_threshold must be in (0, 1]")
		}
		if c.Pipeline.Alpha != -1 && (c.Pipeline.Alpha < 0 || c.Pipeline.Alpha > 1) {
			problems = append(problems, "pipeline.alpha must be -1 (scan) or in [0, 1]")
		}
		if c.Pipeline.K < 0 {
			problems = append(problems, "pipeline.k must be >= 0")
		}
		if c.Pipeline.GapMaxK < 2 {
			problems = append(problems, "pipeline.gap_max_k must be >= 2")
		}
		if c.Pipeline.GapB < 1 {
			problems = append(problems, "pipeline.gap_b must be >= 1")
		}
		if c.Pipeline.MinSize < 1 {
			problems = append(problems, "pipeline.min_size must be >= 1")
		}
		if c.Pipeline.KNN < 1 {
			problems = append(problems, "pipeline.knn_k must be >= 1")
		}
		if c.Pipeline.Workers < 0 {
			problems = append(problems, "pipeline.workers must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	case "fetch":
		if c.Fetch.Dir == "" {
			problems = append(problems, "fetch.dir is required")
		}
		if c.Fetch.TimeoutSecs <= 0 {
			problems = append(problems, "fetch.timeout_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
