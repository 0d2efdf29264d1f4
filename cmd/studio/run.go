package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/config"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/delegation"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/orchestrator"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/provider"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/registry"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/state"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

var (
	runInputs  []string
	runData    string
	runPersist bool
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run <task-type>",
	Short: "Submit a task and wait for its result",
	Long: `Run a task through the full pipeline: decompose, execute, aggregate.

The built-in demo providers serve the compression analysis and data
pipeline strategies. Task input is given as repeated --input key=value
pairs; --data is shorthand for --input data=<value>.

Examples:
  studio run compression_analysis --data "aaabbbcccaaa"
  studio run data_pipeline --input source=events.log
  studio run summarize --data "one-shot task with no strategy"`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "Task input as key=value (repeatable)")
	runCmd.Flags().StringVar(&runData, "data", "", "Shorthand for --input data=<value>")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "Snapshot task state to the project database")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress per-event output")
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	input, err := parseInputs(runInputs, runData)
	if err != nil {
		return err
	}

	b := bus.New()
	defer b.Close()

	reg := registry.New(registry.Weights{
		Success: cfg.Selection.WeightSuccess,
		Speed:   cfg.Selection.WeightSpeed,
		Load:    cfg.Selection.WeightLoad,
	})

	channel, err := delegation.New(b)
	if err != nil {
		return fmt.Errorf("create delegation channel: %w", err)
	}
	defer channel.Close()

	dec := decompose.New(decompose.WithCacheSize(cfg.Decompose.CacheSize))
	if cfg.Decompose.StrategiesFile != "" {
		n, err := dec.LoadTemplates(cfg.Decompose.StrategiesFile)
		if err != nil {
			return fmt.Errorf("load strategy templates: %w", err)
		}
		fmt.Printf("Loaded %d strategy templates from %s\n", n, cfg.Decompose.StrategiesFile)

		watchStop := make(chan struct{})
		defer close(watchStop)
		if err := dec.WatchTemplates(cfg.Decompose.StrategiesFile, watchStop); err != nil {
			return fmt.Errorf("watch strategy templates: %w", err)
		}
	}

	hosts, err := startDemoProviders(b, reg, cfg.Registry.HeartbeatInterval)
	if err != nil {
		return fmt.Errorf("start providers: %w", err)
	}
	defer func() {
		for _, h := range hosts {
			h.Stop()
		}
	}()

	opts := []orchestrator.Option{
		orchestrator.WithSettings(orchestrator.SettingsFromConfig(cfg)),
	}
	if runPersist || cfg.State.Enabled {
		dbPath := cfg.State.Path
		if dbPath == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			dbPath = state.ProjectDBPath(cwd)
		}
		db, err := state.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate state database: %w", err)
		}
		opts = append(opts, orchestrator.WithStateDB(db))
	}

	orch := orchestrator.New(b, reg, dec, channel, opts...)
	defer orch.Stop()

	if !runQuiet {
		if _, err := b.Subscribe(models.TopicTaskEvents, printEvent); err != nil {
			return fmt.Errorf("subscribe task events: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg.StartExpiry(ctx, cfg.Registry.HeartbeatTimeout, cfg.Registry.ExpiryInterval)

	task := &models.Task{Type: args[0], Input: input}
	taskID, err := orch.Submit(task)
	if err != nil {
		return fmt.Errorf("submit task: %w", err)
	}
	fmt.Printf("Submitted task %s (%s)\n", color.CyanString(taskID), task.Type)

	go func() {
		<-ctx.Done()
		orch.Cancel(taskID)
	}()

	result, err := orch.Await(context.Background(), taskID)
	if err != nil {
		return fmt.Errorf("await task: %w", err)
	}

	printResult(result)
	if result.Status == models.TaskStatusFailed {
		os.Exit(1)
	}
	return nil
}

// startDemoProviders registers the built-in provider roster.
func startDemoProviders(b *bus.Bus, reg *registry.Registry, heartbeat time.Duration) ([]*provider.Host, error) {
	providers := []provider.Provider{
		provider.NewAnalysisProvider(),
		provider.NewRecommendProvider(),
		provider.NewPipelineProvider(),
		provider.NewEchoProvider([]string{"step", "summarize", "echo"}),
	}

	hosts := make([]*provider.Host, 0, len(providers))
	for _, p := range providers {
		h := provider.NewHost(p, b, reg, provider.WithHeartbeatInterval(heartbeat))
		if err := h.Start(); err != nil {
			for _, started := range hosts {
				started.Stop()
			}
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// parseInputs builds the task input map from --input pairs and --data.
func parseInputs(pairs []string, data string) (map[string]any, error) {
	input := make(map[string]any)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", pair)
		}
		input[key] = value
	}
	if data != "" {
		input["data"] = data
	}
	if len(input) == 0 {
		return nil, nil
	}
	return input, nil
}

// printEvent renders one task event to the terminal.
func printEvent(msg bus.Message) {
	ev, ok := msg.Payload.(models.Event)
	if !ok {
		return
	}
	stamp := ev.Timestamp.Format("15:04:05.000")
	switch ev.Type {
	case models.EventSubtaskCompleted:
		fmt.Printf("[%s] %s %s (agent %s)\n", stamp, color.GreenString("✓"), ev.SubtaskID, ev.AgentID)
	case models.EventSubtaskFailed:
		fmt.Printf("[%s] %s %s: %s\n", stamp, color.RedString("✗"), ev.SubtaskID, ev.Err)
	case models.EventSubtaskDispatched:
		fmt.Printf("[%s] %s %s -> %s\n", stamp, color.YellowString("→"), ev.SubtaskID, ev.AgentID)
	case models.EventGenerationAdvanced:
		fmt.Printf("[%s] generation %d (%s)\n", stamp, ev.Generation, ev.Message)
	case models.EventTaskDecomposed:
		fmt.Printf("[%s] decomposed: %s\n", stamp, ev.Message)
	case models.EventTaskCompleted, models.EventTaskFailed, models.EventTaskCancelled:
		// The final summary covers terminal events.
	}
}

// printResult renders the aggregated task result.
func printResult(result *models.TaskResult) {
	if result == nil {
		return
	}
	fmt.Println()
	statusStr := string(result.Status)
	switch result.Status {
	case models.TaskStatusCompleted:
		statusStr = color.GreenString(statusStr)
	case models.TaskStatusCompletedWithErrors:
		statusStr = color.YellowString(statusStr)
	case models.TaskStatusFailed:
		statusStr = color.RedString(statusStr)
	}
	fmt.Printf("Task %s: %s (%d/%d subtasks, %d generations, %s)\n",
		result.TaskID, statusStr, result.Succeeded(), len(result.Subtasks),
		result.Generations, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	for _, st := range result.Subtasks {
		mark := color.GreenString("✓")
		detail := fmt.Sprintf("%v", st.Output)
		if st.Status != models.SubtaskStatusCompleted {
			mark = color.RedString("✗")
			detail = st.Error
		}
		fmt.Printf("  %s %-20s gen=%d attempts=%d %s\n", mark, st.SubtaskID, st.Generation, st.Attempts, detail)
	}
}
