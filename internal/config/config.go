// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// EmbeddingConfig configures the embedding gateway: one primary model, an
// ordered fallback chain and the per-model retry budget.
type EmbeddingConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	PrimaryModel   string        `mapstructure:"primary_model"`
	FallbackModels []string      `mapstructure:"fallback_models"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type VectorConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Environment  string  `mapstructure:"environment"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embedding.PrimaryModel == "" {
		warnings = append(warnings, "embedding primary_model is empty")
	}
	if c.Embedding.APIKey == "" {
		warnings = append(warnings, "embedding api_key is empty")
	}
	if c.Embedding.MaxRetries < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding max_retries %d is negative", c.Embedding.MaxRetries))
	}
	if c.Vector.Collection == "" {
		warnings = append(warnings, "vector collection is empty")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("telemetry sample_rate %.2f is outside [0.0, 1.0]", c.Telemetry.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "knowledge_base")
	v.SetDefault("vector.timeout", 10*time.Second)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
