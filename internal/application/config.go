package application

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/infrastructure/units"
	"github.com/ahrav/go-affinity/internal/ports"
)

// EnvPrefix is prepended to every environment variable that overrides
// a Config field, for example AFFINITY_THRESHOLD or AFFINITY_SERVER_ADDR.
const EnvPrefix = "AFFINITY_"

// Config is the complete runtime configuration of the affinity service.
// Values are layered: DefaultConfig, then the YAML file, then environment
// variables, and the result is validated with struct tags.
type Config struct {
	// Affinity controls scoring and grouping.
	Affinity AffinityConfig `yaml:"affinity"`
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	// Storage selects where forms, answers and profiles are read from.
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	// Cache selects where active results are kept.
	Cache CacheConfig `yaml:"cache" envPrefix:"CACHE_"`
}

// AffinityConfig holds the scoring and clustering parameters.
type AffinityConfig struct {
	// Threshold is the minimum similarity joining two respondents, in (0, 1].
	Threshold float64 `yaml:"threshold" env:"THRESHOLD" validate:"gt=0,lte=1"`
	// NumericRange fixes the NUMERIC normalization range; 0 observes it
	// per question.
	NumericRange float64 `yaml:"numeric_range" env:"NUMERIC_RANGE" validate:"min=0"`
	// NumericFallbackRange applies when an observed range is unusable.
	NumericFallbackRange float64 `yaml:"numeric_fallback_range" env:"NUMERIC_FALLBACK_RANGE" validate:"gt=0"`
	// TextStrategy is token_overlap or levenshtein.
	TextStrategy string `yaml:"text_strategy" env:"TEXT_STRATEGY" validate:"required,oneof=token_overlap levenshtein"`
	// Workers bounds parallel matrix rows; 0 builds sequentially.
	Workers int `yaml:"workers" env:"WORKERS" validate:"min=0,max=256"`
	// PipelineFile optionally points at a pipeline definition that
	// replaces the default stage list.
	PipelineFile string `yaml:"pipeline_file" env:"PIPELINE_FILE"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR" validate:"required"`
	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" validate:"min=0"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST" validate:"min=0"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"min=0"`
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER" validate:"required,oneof=memory sqlite pgx"`
	// DSN is a file path for sqlite or a connection URL for pgx.
	DSN string `yaml:"dsn" env:"DSN" validate:"required_unless=Driver memory"`
}

// CacheConfig selects the active result store.
type CacheConfig struct {
	// RedisAddr enables the Redis store; empty keeps results in memory.
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" validate:"min=0"`
	TTL           time.Duration `yaml:"ttl" env:"TTL" validate:"min=0"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() Config {
	scorer := units.DefaultScorerConfig()
	return Config{
		Affinity: AffinityConfig{
			Threshold:            units.DefaultGroupFormationConfig().Threshold,
			NumericRange:         scorer.NumericRange,
			NumericFallbackRange: scorer.NumericFallbackRange,
			TextStrategy:         string(scorer.TextStrategy),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Driver: "memory"},
		Cache:   CacheConfig{TTL: 24 * time.Hour},
	}
}

// LoadConfig reads the YAML file at path over DefaultConfig, applies
// environment overrides and validates the result. An empty path skips
// the file.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return ParseConfig(nil)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML data over DefaultConfig, applies environment
// overrides and validates the result. Unknown YAML fields are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("YAML decode failed: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ScorerConfig projects the scoring parameters onto the unit configuration.
func (c AffinityConfig) ScorerConfig() units.ScorerConfig {
	return units.ScorerConfig{
		NumericRange:         c.NumericRange,
		NumericFallbackRange: c.NumericFallbackRange,
		TextStrategy:         units.TextStrategy(c.TextStrategy),
	}
}

// PipelineDefinition declares the ordered units of an affinity pipeline.
// Definitions are YAML documents loaded by PipelineLoader.
type PipelineDefinition struct {
	// Version specifies the definition schema version using semantic
	// versioning.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata names and describes the pipeline.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Units lists the stages in execution order.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
}

// Metadata provides descriptive information about a pipeline definition.
type Metadata struct {
	// Name is the human-readable identifier and becomes the pipeline ID.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description provides a detailed explanation of the pipeline's purpose.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels for grouping definitions.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// UnitConfig declares one stage of a pipeline.
type UnitConfig struct {
	// ID is the unique identifier for this unit within the pipeline.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Type names a factory in the unit registry.
	Type string `yaml:"type" validate:"required"`
	// Parameters contains type-specific configuration, validated
	// according to the unit type.
	Parameters yaml.Node `yaml:"parameters"`
}
