package authprofiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration for the store and manager.
type Config struct {
	StorePath string                          `yaml:"storePath"`
	LogLevel  string                          `yaml:"logLevel"`
	LogFile   string                          `yaml:"logFile"`
	Cooldowns map[FailureReason]time.Duration `yaml:"cooldowns"`
	EnvVars   map[string]string               `yaml:"envVars"`
}

// DefaultConfigPath sits next to the default store.
func DefaultConfigPath() string {
	return filepath.Join(openclawAgentDir(), "auth-config.yaml")
}

// LoadConfig reads the config at path. A missing file yields an empty config.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects unknown cooldown reasons and negative durations.
func (c *Config) Validate() error {
	for reason, d := range c.Cooldowns {
		if !reason.Valid() {
			return fmt.Errorf("cooldowns: unknown reason %q", reason)
		}
		if d < 0 {
			return fmt.Errorf("cooldowns: %s must not be negative", reason)
		}
	}
	return nil
}

// ResolvedStorePath returns StorePath, or DefaultPath when unset.
func (c *Config) ResolvedStorePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	return DefaultPath()
}

// ManagerOptions turns the config into Manager options.
func (c *Config) ManagerOptions() []ManagerOption {
	var opts []ManagerOption
	if len(c.Cooldowns) > 0 {
		opts = append(opts, WithCooldowns(c.Cooldowns))
	}
	if len(c.EnvVars) > 0 {
		opts = append(opts, WithEnvVars(c.EnvVars))
	}
	return opts
}
