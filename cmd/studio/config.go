package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Display the effective configuration after merging defaults, the
user config and any project override.

Configuration is stored at ~/.config/studio/config.yaml
Project-specific overrides can be placed in .studio.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayAllConfig(cfg)
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("orchestrator.retry_budget: %d\n", cfg.Orchestrator.RetryBudget)
	fmt.Printf("orchestrator.backoff_base: %s\n", cfg.Orchestrator.BackoffBase)
	fmt.Printf("orchestrator.subtask_timeout: %s\n", cfg.Orchestrator.SubtaskTimeout)
	fmt.Printf("orchestrator.timeout_factor: %.1f\n", cfg.Orchestrator.TimeoutFactor)
	fmt.Printf("orchestrator.max_parallel: %d\n", cfg.Orchestrator.MaxParallel)
	fmt.Printf("orchestrator.eval_window: %d\n", cfg.Orchestrator.EvalWindow)
	fmt.Printf("selection.weight_success: %.2f\n", cfg.Selection.WeightSuccess)
	fmt.Printf("selection.weight_speed: %.2f\n", cfg.Selection.WeightSpeed)
	fmt.Printf("selection.weight_load: %.2f\n", cfg.Selection.WeightLoad)
	fmt.Printf("registry.heartbeat_timeout: %s\n", cfg.Registry.HeartbeatTimeout)
	fmt.Printf("registry.expiry_interval: %s\n", cfg.Registry.ExpiryInterval)
	fmt.Printf("registry.heartbeat_interval: %s\n", cfg.Registry.HeartbeatInterval)
	fmt.Printf("decompose.cache_size: %d\n", cfg.Decompose.CacheSize)
	fmt.Printf("decompose.strategies_file: %s\n", displayString(cfg.Decompose.StrategiesFile))
	fmt.Printf("state.enabled: %t\n", cfg.State.Enabled)
	fmt.Printf("state.path: %s\n", displayString(cfg.State.Path))

	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("\nProject override: %s\n", project)
	}
	fmt.Printf("User config: %s\n", config.GetUserConfigPath())
}

func displayString(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
