package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/provider"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the built-in provider roster and strategies",
	Long: `Show the capability providers a run would register and the
decomposition strategies available for task types.`,
	Run: func(cmd *cobra.Command, args []string) {
		roster := []provider.Provider{
			provider.NewAnalysisProvider(),
			provider.NewRecommendProvider(),
			provider.NewPipelineProvider(),
			provider.NewEchoProvider([]string{"step", "summarize", "echo"}),
		}

		fmt.Println("Providers:")
		for _, p := range roster {
			fmt.Printf("  %s %-12s %s\n",
				color.CyanString("•"), p.Type(), strings.Join(p.Capabilities(), ", "))
		}

		fmt.Println("\nStrategies:")
		for _, s := range decompose.New().Strategies() {
			fmt.Printf("  %s %s\n", color.CyanString("•"), s)
		}
		fmt.Printf("  %s %s (fallback for unknown task types)\n",
			color.CyanString("•"), decompose.FallbackStrategy)
	},
}
