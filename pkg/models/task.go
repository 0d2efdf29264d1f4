package models

import "time"

// TaskStatus represents the lifecycle state of a submitted task.
type TaskStatus string

const (
	// TaskStatusReceived indicates the task has been accepted but not decomposed.
	TaskStatusReceived TaskStatus = "received"
	// TaskStatusDecomposed indicates subtasks have been derived from the task.
	TaskStatusDecomposed TaskStatus = "decomposed"
	// TaskStatusExecuting indicates subtasks are being dispatched to agents.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusAggregating indicates subtask results are being merged.
	TaskStatusAggregating TaskStatus = "aggregating"
	// TaskStatusCompleted indicates every subtask succeeded.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusCompletedWithErrors indicates a mix of succeeded and failed subtasks.
	TaskStatusCompletedWithErrors TaskStatus = "completed_with_errors"
	// TaskStatusFailed indicates no subtask produced a usable result.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusReceived, TaskStatusDecomposed, TaskStatusExecuting,
		TaskStatusAggregating, TaskStatusCompleted, TaskStatusCompletedWithErrors,
		TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is one of the three final states.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCompletedWithErrors, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Task is the unit of work submitted by a caller.
// A task is immutable once submitted; all execution state lives on its
// subtasks and on the aggregated TaskResult.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Type selects the decomposition strategy (e.g. "compression_analysis").
	Type string `json:"type"`
	// Input is the structured payload handed to the decomposition strategy.
	Input map[string]any `json:"input,omitempty"`
	// Priority orders tasks relative to each other; higher runs sooner.
	Priority int `json:"priority,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
}
