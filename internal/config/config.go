// Package config handles configuration loading and management for conductor.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for conductor.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Store     StoreConfig     `mapstructure:"store"`
	Events    EventsConfig    `mapstructure:"events"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// WorkerConfig holds settings for spawned worker processes.
type WorkerConfig struct {
	// Command is the executable used to run tasks.
	Command string `mapstructure:"command"`
	// Args are extra arguments passed before the task payload.
	Args []string `mapstructure:"args"`
	// UseAPI switches plan and question generation from the worker
	// subprocess to the Anthropic API.
	UseAPI bool `mapstructure:"use_api"`
}

// SchedulerConfig holds task scheduling settings.
type SchedulerConfig struct {
	// Concurrency is the maximum number of tasks running at once.
	Concurrency int `mapstructure:"concurrency"`
	// MaxRetries is the number of retries before a task is failed.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoff is the delay before a retry attempt starts.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// SpawnStagger is the delay between consecutive task launches.
	SpawnStagger time.Duration `mapstructure:"spawn_stagger"`
}

// TimeoutsConfig holds generation timeout settings.
type TimeoutsConfig struct {
	Questions time.Duration `mapstructure:"questions"`
	Plan      time.Duration `mapstructure:"plan"`
}

// WorkspaceConfig holds task workspace settings.
type WorkspaceConfig struct {
	// BaseDir is where per-task worktrees are created. Empty means
	// ~/.cache/conductor/workspaces.
	BaseDir string `mapstructure:"base_dir"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means the XDG default.
	Path string `mapstructure:"path"`
	// Debounce is the delay before a state change is written to disk.
	Debounce time.Duration `mapstructure:"debounce"`
}

// EventsConfig holds event hub settings.
type EventsConfig struct {
	// HeartbeatInterval is how often idle subscribers receive a heartbeat.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONDUCTOR_*, ANTHROPIC_API_KEY)
// 2. Project config (.conductor.yaml in current directory or parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("CONDUCTOR")
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_aws_bedrock", "CLAUDE_CODE_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path.
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

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Watch reloads configuration whenever the user config file changes on disk
// and invokes onChange with the fresh config. Returns an error if the user
// config file does not exist yet.
func Watch(onChange func(*Config)) error {
	path := GetUserConfigPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("worker.command", cfg.Worker.Command)
	v.Set("worker.args", cfg.Worker.Args)
	v.Set("worker.use_api", cfg.Worker.UseAPI)
	v.Set("scheduler.concurrency", cfg.Scheduler.Concurrency)
	v.Set("scheduler.max_retries", cfg.Scheduler.MaxRetries)
	v.Set("scheduler.retry_backoff", cfg.Scheduler.RetryBackoff.String())
	v.Set("scheduler.spawn_stagger", cfg.Scheduler.SpawnStagger.String())
	v.Set("timeouts.questions", cfg.Timeouts.Questions.String())
	v.Set("timeouts.plan", cfg.Timeouts.Plan.String())
	v.Set("workspace.base_dir", cfg.Workspace.BaseDir)
	v.Set("store.path", cfg.Store.Path)
	v.Set("store.debounce", cfg.Store.Debounce.String())
	v.Set("events.heartbeat_interval", cfg.Events.HeartbeatInterval.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("worker.command", "claude")
	v.SetDefault("worker.args", []string{})
	v.SetDefault("worker.use_api", false)

	v.SetDefault("scheduler.concurrency", 3)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.retry_backoff", "2s")
	v.SetDefault("scheduler.spawn_stagger", "200ms")

	v.SetDefault("timeouts.questions", "30s")
	v.SetDefault("timeouts.plan", "60s")

	v.SetDefault("workspace.base_dir", "")

	v.SetDefault("store.path", "")
	v.SetDefault("store.debounce", "1s")

	v.SetDefault("events.heartbeat_interval", "15s")
}

// getUserConfigDir returns the XDG config directory for conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
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
		Worker: WorkerConfig{
			Command: "claude",
		},
		Scheduler: SchedulerConfig{
			Concurrency:  3,
			MaxRetries:   3,
			RetryBackoff: 2 * time.Second,
			SpawnStagger: 200 * time.Millisecond,
		},
		Timeouts: TimeoutsConfig{
			Questions: 30 * time.Second,
			Plan:      60 * time.Second,
		},
		Store: StoreConfig{
			Debounce: time.Second,
		},
		Events: EventsConfig{
			HeartbeatInterval: 15 * time.Second,
		},
	}
}
