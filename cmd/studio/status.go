package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/config"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/state"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

var (
	statusTaskID string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted task state",
	Long: `Display task snapshots from the project state database.

Without flags, lists recent tasks. With --task, shows that task's
subtasks, their generations and outcomes.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusTaskID, "task", "", "Show subtasks for one task ID")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum number of tasks to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.State.Path
	if dbPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dbPath = state.ProjectDBPath(cwd)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No task history. Run 'studio run <task-type> --persist' to record one.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if statusTaskID != "" {
		return displaySubtasks(db, statusTaskID)
	}
	return displayTasks(db)
}

func displayTasks(db *state.DB) error {
	tasks, err := db.ListTasks(statusLimit)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No task history.")
		return nil
	}

	fmt.Printf("%-16s %-24s %-22s %s\n", "TASK", "TYPE", "STATUS", "UPDATED")
	for _, t := range tasks {
		fmt.Printf("%-16s %-24s %-22s %s\n",
			t.ID, t.Type, colorStatus(t.Status), t.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func displaySubtasks(db *state.DB, taskID string) error {
	subtasks, err := db.ListSubtasks(taskID)
	if err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}
	if len(subtasks) == 0 {
		fmt.Printf("No subtasks recorded for task %s.\n", taskID)
		return nil
	}

	fmt.Printf("Task %s:\n", taskID)
	for _, st := range subtasks {
		mark := color.GreenString("✓")
		detail := ""
		switch st.Status {
		case models.SubtaskStatusFailed:
			mark = color.RedString("✗")
			detail = st.Error
		case models.SubtaskStatusCancelled:
			mark = color.YellowString("−")
			detail = st.Error
		case models.SubtaskStatusCompleted:
			if st.Result != nil {
				detail = fmt.Sprintf("%v", st.Result.Output)
			}
		default:
			mark = color.YellowString("…")
		}
		fmt.Printf("  %s %-20s gen=%d attempts=%d agent=%s %s\n",
			mark, st.ID, st.Generation, st.Attempts, st.AssignedTo, detail)
	}
	return nil
}

func colorStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString(string(s))
	case models.TaskStatusCompletedWithErrors:
		return color.YellowString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
