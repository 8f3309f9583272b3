// Package config handles configuration loading for hive.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for hive.
type Config struct {
	Pool   PoolConfig   `mapstructure:"pool"`
	Tasks  TasksConfig  `mapstructure:"tasks"`
	Backup BackupConfig `mapstructure:"backup"`
	Queue  QueueConfig  `mapstructure:"queue"`
}

// PoolConfig holds agent pool settings.
type PoolConfig struct {
	MaxAgents    int    `mapstructure:"max_agents"`
	AgentBinary  string `mapstructure:"agent_binary"`
	DefaultModel string `mapstructure:"default_model"`
}

// TasksConfig holds task runner settings.
type TasksConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// AllowedCommands overrides the stock allow-list when non-empty.
	AllowedCommands []string `mapstructure:"allowed_commands"`
}

// BackupConfig holds database backup settings.
type BackupConfig struct {
	Keep     int           `mapstructure:"keep"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// QueueConfig holds feature queue settings.
type QueueConfig struct {
	// GateOnDependencies makes next-feature selection skip features
	// whose blocking dependencies have not passed.
	GateOnDependencies bool `mapstructure:"gate_on_dependencies"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (HIVE_*)
// 2. Project config (.hive.yaml in current directory or parent)
// 3. User config (~/.config/hive/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("HIVE")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.max_agents", 10)
	v.SetDefault("pool.agent_binary", "hive-agent")
	v.SetDefault("pool.default_model", "claude-opus-4-6")

	v.SetDefault("tasks.timeout", "120s")
	v.SetDefault("tasks.allowed_commands", []string{})

	v.SetDefault("backup.keep", 20)
	v.SetDefault("backup.cooldown", "60s")

	v.SetDefault("queue.gate_on_dependencies", false)
}

// getUserConfigDir returns the XDG config directory for hive.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hive")
	}
	return filepath.Join(home, ".config", "hive")
}

// findProjectConfig searches for .hive.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hive.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxAgents:    10,
			AgentBinary:  "hive-agent",
			DefaultModel: "claude-opus-4-6",
		},
		Tasks: TasksConfig{
			Timeout: 120 * time.Second,
		},
		Backup: BackupConfig{
			Keep:     20,
			Cooldown: 60 * time.Second,
		},
		Queue: QueueConfig{},
	}
}
