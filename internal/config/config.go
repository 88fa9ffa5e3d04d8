package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level settled.yaml configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig controls the replay pipeline.
type EngineConfig struct {
	// Lanes is the number of parallel workers. 0 means one per CPU.
	Lanes int `yaml:"lanes" env:"SETTLED_LANES"`
	// QueueCapacity bounds each lane's event queue.
	QueueCapacity int `yaml:"queue_capacity" env:"SETTLED_QUEUE_CAPACITY"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Level string `yaml:"level" env:"SETTLED_LOG_LEVEL"` // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Lanes:         0,
			QueueCapacity: 1 << 16,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a settled.yaml file and applies environment overrides. A
// missing file is not an error; defaults (plus environment) apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
