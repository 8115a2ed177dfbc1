package config

import (
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/industrial-cli/internal/industrial"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Source      SourceConfig      `yaml:"source" mapstructure:"source"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary" mapstructure:"vocabulary"`
	Containment ContainmentConfig `yaml:"containment" mapstructure:"containment"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures how input files are read.
type SourceConfig struct {
	Format         string `yaml:"format" mapstructure:"format"`
	Procs          int    `yaml:"procs" mapstructure:"procs"`
	BuildingsLayer string `yaml:"buildings_layer" mapstructure:"buildings_layer"`
	LanduseLayer   string `yaml:"landuse_layer" mapstructure:"landuse_layer"`
}

// VocabularyConfig holds the tag vocabulary. When File is set, the keys it
// names replace the inline values and the rest are kept.
type VocabularyConfig struct {
	industrial.Vocabulary `yaml:",inline" mapstructure:",squash"`

	File string `yaml:"file" mapstructure:"file"`

	// CountsAsLikeOverride is set from the command line and wins over both
	// the inline value and the file.
	CountsAsLikeOverride *bool `yaml:"-" mapstructure:"-"`
}

// ContainmentConfig selects and tunes the containment backend.
type ContainmentConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`

	Workers   int     `yaml:"workers" mapstructure:"workers"`
	CacheSize int     `yaml:"cache_size" mapstructure:"cache_size"`
	CellSize  float64 `yaml:"cell_size" mapstructure:"cell_size"`
	Table     string  `yaml:"table" mapstructure:"table"`
	QPS       float64 `yaml:"qps" mapstructure:"qps"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
	BatchSize int     `yaml:"batch_size" mapstructure:"batch_size"`

	RetryAttempts     int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// OutputConfig configures the classify report.
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INDUSTRIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	def := industrial.DefaultVocabulary()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "industrial.db")
	v.SetDefault("source.format", "auto")
	v.SetDefault("source.procs", 0)
	v.SetDefault("source.buildings_layer", "gis_osm_buildings_a_free_1.shp")
	v.SetDefault("source.landuse_layer", "gis_osm_landuse_a_free_1.shp")
	v.SetDefault("vocabulary.building_key", def.BuildingKey)
	v.SetDefault("vocabulary.landuse_key", def.LanduseKey)
	v.SetDefault("vocabulary.building_values", def.BuildingValues)
	v.SetDefault("vocabulary.industrial_landuse", def.IndustrialLanduse)
	v.SetDefault("vocabulary.industrial_like", def.IndustrialLike)
	v.SetDefault("vocabulary.industrial_counts_as_like", false)
	v.SetDefault("vocabulary.file", "")
	v.SetDefault("containment.backend", "memory")
	v.SetDefault("containment.database_url", "")
	v.SetDefault("containment.workers", 4)
	v.SetDefault("containment.cache_size", 10000)
	v.SetDefault("containment.cell_size", 0.01)
	v.SetDefault("containment.table", "geo.landuse_areas")
	v.SetDefault("containment.qps", 0)
	v.SetDefault("containment.burst", 1)
	v.SetDefault("containment.batch_size", 5000)
	v.SetDefault("containment.retry_attempts", 3)
	v.SetDefault("containment.retry_backoff_ms", 200)
	v.SetDefault("containment.retry_max_backoff_ms", 5000)
	v.SetDefault("output.format", "csv")
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

// LoadVocabulary returns the configured vocabulary, layering the YAML file
// named by File over the inline values when set.
func (c VocabularyConfig) LoadVocabulary() (industrial.Vocabulary, error) {
	vocab := c.Vocabulary
	vocab.BuildingValues = slices.Clone(c.BuildingValues)
	vocab.IndustrialLanduse = slices.Clone(c.IndustrialLanduse)
	vocab.IndustrialLike = slices.Clone(c.IndustrialLike)

	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return industrial.Vocabulary{}, eris.Wrapf(err, "config: read vocabulary file %s", c.File)
		}
		if err := yaml.Unmarshal(data, &vocab); err != nil {
			return industrial.Vocabulary{}, eris.Wrapf(err, "config: parse vocabulary file %s", c.File)
		}
	}
	if c.CountsAsLikeOverride != nil {
		vocab.IndustrialCountsAsLike = *c.CountsAsLikeOverride
	}
	return vocab, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, "log.format must be json or console")
	}

	switch mode {
	case "classify":
		errs = append(errs, c.validateStore()...)
		switch c.Containment.Backend {
		case "memory":
		case "postgis":
			if c.PostGISURL() == "" {
				errs = append(errs, "containment.database_url is required for the postgis backend")
			}
		default:
			errs = append(errs, "containment.backend must be memory or postgis")
		}
		if c.Containment.Workers < 1 || c.Containment.Workers > 256 {
			errs = append(errs, "containment.workers must be between 1 and 256")
		}
		if c.Containment.CacheSize < 0 {
			errs = append(errs, "containment.cache_size must be >= 0")
		}
		if c.Containment.QPS < 0 {
			errs = append(errs, "containment.qps must be >= 0")
		}
	case "areas":
		if c.PostGISURL() == "" {
			errs = append(errs, "containment.database_url is required")
		}
		if c.Containment.BatchSize <= 0 {
			errs = append(errs, "containment.batch_size must be > 0")
		}
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid (%s)", strings.Join(errs, "; "))
	}
	return nil
}

// PostGISURL returns the connection string for the landuse table. A postgres
// store's URL is reused when containment has none of its own.
func (c *Config) PostGISURL() string {
	if c.Containment.DatabaseURL != "" {
		return c.Containment.DatabaseURL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return ""
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
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
