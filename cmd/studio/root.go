package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Task decomposition and multi-agent orchestration",
	Long: `Studio decomposes complex tasks into dependency-ordered subtasks and
delegates them to capability providers over an in-process message bus.

Core capabilities:
- Decomposes tasks into a validated dependency graph
- Executes independent subtasks concurrently, wave by wave
- Selects agents by capability, health and track record
- Retries transient failures with exponential backoff
- Aggregates partial results even when some subtasks fail`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
