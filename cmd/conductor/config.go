package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ckirkland/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify conductor configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/conductor/config.yaml
Project-specific overrides can be placed in .conductor.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", orUnset(cfg.Anthropic.Model))
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("worker.command: %s\n", cfg.Worker.Command)
	fmt.Printf("worker.use_api: %t\n", cfg.Worker.UseAPI)
	fmt.Printf("scheduler.concurrency: %d\n", cfg.Scheduler.Concurrency)
	fmt.Printf("scheduler.max_retries: %d\n", cfg.Scheduler.MaxRetries)
	fmt.Printf("scheduler.retry_backoff: %s\n", cfg.Scheduler.RetryBackoff)
	fmt.Printf("scheduler.spawn_stagger: %s\n", cfg.Scheduler.SpawnStagger)
	fmt.Printf("timeouts.questions: %s\n", cfg.Timeouts.Questions)
	fmt.Printf("timeouts.plan: %s\n", cfg.Timeouts.Plan)
	fmt.Printf("workspace.base_dir: %s\n", orUnset(cfg.Workspace.BaseDir))
	fmt.Printf("store.path: %s\n", orUnset(cfg.Store.Path))
	fmt.Printf("store.debounce: %s\n", cfg.Store.Debounce)
	fmt.Printf("events.heartbeat_interval: %s\n", cfg.Events.HeartbeatInterval)
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orUnset(cfg.Anthropic.Model), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "worker.command":
		return cfg.Worker.Command, nil
	case "worker.use_api":
		return strconv.FormatBool(cfg.Worker.UseAPI), nil
	case "scheduler.concurrency":
		return strconv.Itoa(cfg.Scheduler.Concurrency), nil
	case "scheduler.max_retries":
		return strconv.Itoa(cfg.Scheduler.MaxRetries), nil
	case "scheduler.retry_backoff":
		return cfg.Scheduler.RetryBackoff.String(), nil
	case "scheduler.spawn_stagger":
		return cfg.Scheduler.SpawnStagger.String(), nil
	case "timeouts.questions":
		return cfg.Timeouts.Questions.String(), nil
	case "timeouts.plan":
		return cfg.Timeouts.Plan.String(), nil
	case "workspace.base_dir":
		return orUnset(cfg.Workspace.BaseDir), nil
	case "store.path":
		return orUnset(cfg.Store.Path), nil
	case "store.debounce":
		return cfg.Store.Debounce.String(), nil
	case "events.heartbeat_interval":
		return cfg.Events.HeartbeatInterval.String(), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "worker.command":
		cfg.Worker.Command = value
	case "worker.use_api":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Worker.UseAPI = b
	case "scheduler.concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid concurrency: %s", value)
		}
		cfg.Scheduler.Concurrency = n
	case "scheduler.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid retry count: %s", value)
		}
		cfg.Scheduler.MaxRetries = n
	case "scheduler.retry_backoff":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Scheduler.RetryBackoff = d
	case "scheduler.spawn_stagger":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Scheduler.SpawnStagger = d
	case "timeouts.questions":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Timeouts.Questions = d
	case "timeouts.plan":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Timeouts.Plan = d
	case "workspace.base_dir":
		cfg.Workspace.BaseDir = value
	case "store.path":
		cfg.Store.Path = value
	case "store.debounce":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Store.Debounce = d
	case "events.heartbeat_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Events.HeartbeatInterval = d
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
