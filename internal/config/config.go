// Package config handles configuration loading for the orchestration
// core. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tunable settings for the orchestration core.
// Retry, backoff and scoring parameters are deliberately configuration
// rather than hard-coded constants.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Selection    SelectionConfig    `mapstructure:"selection"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Decompose    DecomposeConfig    `mapstructure:"decompose"`
	State        StateConfig        `mapstructure:"state"`
}

// OrchestratorConfig holds execution-loop settings.
type OrchestratorConfig struct {
	// RetryBudget is the number of retries after the first attempt.
	RetryBudget int `mapstructure:"retry_budget"`
	// BackoffBase is the delay before the first retry; it doubles per attempt.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// SubtaskTimeout is the per-subtask delegation timeout when the
	// subtask carries no duration estimate.
	SubtaskTimeout time.Duration `mapstructure:"subtask_timeout"`
	// TimeoutFactor scales a subtask's estimated duration into its timeout.
	TimeoutFactor float64 `mapstructure:"timeout_factor"`
	// MaxParallel bounds concurrent dispatches within one generation.
	MaxParallel int `mapstructure:"max_parallel"`
	// EvalWindow is the number of recent tasks in the self-evaluation window.
	EvalWindow int `mapstructure:"eval_window"`
}

// SelectionConfig holds the agent scoring weights.
type SelectionConfig struct {
	WeightSuccess float64 `mapstructure:"weight_success"`
	WeightSpeed   float64 `mapstructure:"weight_speed"`
	WeightLoad    float64 `mapstructure:"weight_load"`
}

// RegistryConfig holds agent liveness settings.
type RegistryConfig struct {
	// HeartbeatTimeout is how stale a heartbeat may be before the agent
	// is marked unhealthy.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	// ExpiryInterval is how often stale agents are checked for.
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
	// HeartbeatInterval is how often provider hosts report in.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// DecomposeConfig holds decomposer settings.
type DecomposeConfig struct {
	// CacheSize is the plan cache capacity; zero disables caching.
	CacheSize int `mapstructure:"cache_size"`
	// StrategiesFile is an optional YAML file of custom strategies.
	StrategiesFile string `mapstructure:"strategies_file"`
}

// StateConfig holds snapshot persistence settings.
type StateConfig struct {
	// Enabled toggles fire-and-forget snapshots entirely.
	Enabled bool `mapstructure:"enabled"`
	// Path is the SQLite database file; empty uses the project default.
	Path string `mapstructure:"path"`
}

// Load loads configuration with the following precedence
// (highest to lowest):
//  1. Environment variables (STUDIO_*)
//  2. Project config (.studio.yaml in current directory or a parent)
//  3. User config (~/.config/studio/config.yaml)
//  4. Built-in defaults
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

	// Merge project config if present (takes precedence).
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("STUDIO")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
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

// GetProjectConfigPath returns the project config file path, if any.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Execution loop defaults
	v.SetDefault("orchestrator.retry_budget", 2)
	v.SetDefault("orchestrator.backoff_base", "200ms")
	v.SetDefault("orchestrator.subtask_timeout", "30s")
	v.SetDefault("orchestrator.timeout_factor", 3.0)
	v.SetDefault("orchestrator.max_parallel", 8)
	v.SetDefault("orchestrator.eval_window", 20)

	// Selection scoring defaults
	v.SetDefault("selection.weight_success", 0.5)
	v.SetDefault("selection.weight_speed", 0.3)
	v.SetDefault("selection.weight_load", 0.2)

	// Registry liveness defaults
	v.SetDefault("registry.heartbeat_timeout", "30s")
	v.SetDefault("registry.expiry_interval", "10s")
	v.SetDefault("registry.heartbeat_interval", "5s")

	// Decomposer defaults
	v.SetDefault("decompose.cache_size", 128)
	v.SetDefault("decompose.strategies_file", "")

	// Snapshot persistence defaults
	v.SetDefault("state.enabled", false)
	v.SetDefault("state.path", "")
}

// getUserConfigDir returns the XDG config directory for the studio.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "studio")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "studio")
	}
	return filepath.Join(home, ".config", "studio")
}

// findProjectConfig searches for .studio.yaml in the current directory
// and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".studio.yaml")
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
		Orchestrator: OrchestratorConfig{
			RetryBudget:    2,
			BackoffBase:    200 * time.Millisecond,
			SubtaskTimeout: 30 * time.Second,
			TimeoutFactor:  3.0,
			MaxParallel:    8,
			EvalWindow:     20,
		},
		Selection: SelectionConfig{
			WeightSuccess: 0.5,
			WeightSpeed:   0.3,
			WeightLoad:    0.2,
		},
		Registry: RegistryConfig{
			HeartbeatTimeout:  30 * time.Second,
			ExpiryInterval:    10 * time.Second,
			HeartbeatInterval: 5 * time.Second,
		},
		Decompose: DecomposeConfig{
			CacheSize: 128,
		},
		State: StateConfig{
			Enabled: false,
		},
	}
}
