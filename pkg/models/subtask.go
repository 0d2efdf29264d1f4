package models

import (
	"maps"
	"time"
)

// SubtaskStatus represents the execution state of a single subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates the subtask has not been dispatched.
	SubtaskStatusPending SubtaskStatus = "pending"
	// SubtaskStatusDispatched indicates the subtask is executing on an agent.
	SubtaskStatusDispatched SubtaskStatus = "dispatched"
	// SubtaskStatusCompleted indicates the subtask produced a result.
	SubtaskStatusCompleted SubtaskStatus = "completed"
	// SubtaskStatusFailed indicates the subtask permanently failed.
	SubtaskStatusFailed SubtaskStatus = "failed"
	// SubtaskStatusCancelled indicates the subtask was cancelled before completion.
	SubtaskStatusCancelled SubtaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusDispatched, SubtaskStatusCompleted,
		SubtaskStatusFailed, SubtaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the subtask can no longer change state.
func (s SubtaskStatus) Terminal() bool {
	switch s {
	case SubtaskStatusCompleted, SubtaskStatusFailed, SubtaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Subtask is one node in a task's decomposition graph.
// The ID fields, Type, Requirements, DependsOn, Priority and
// EstimatedDuration are fixed at decomposition time; the remaining fields
// are written by the orchestrator as execution proceeds.
type Subtask struct {
	// ID is unique within the parent task.
	ID string `json:"id"`
	// TaskID is the ID of the parent task.
	TaskID string `json:"task_id"`
	// Type names the capability required to execute this subtask.
	Type string `json:"type"`
	// Input is the payload for the agent. String values may contain
	// references of the form {{subtaskId.result.fieldPath}} that are
	// substituted with sibling results before dispatch.
	Input map[string]any `json:"input,omitempty"`
	// Requirements is the set of capability tags an agent must offer.
	Requirements []string `json:"requirements,omitempty"`
	// DependsOn lists sibling subtask IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Priority orders subtasks within a generation for dispatch.
	Priority int `json:"priority,omitempty"`
	// EstimatedDuration is the strategy's guess at execution time.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	// Status is the current execution state.
	Status SubtaskStatus `json:"status"`
	// Generation is the index of the execution wave this subtask belongs to.
	Generation int `json:"generation"`
	// Attempts counts dispatches, including retries.
	Attempts int `json:"attempts,omitempty"`
	// AssignedTo is the ID of the agent that last executed this subtask.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Result holds the agent's output once the subtask completes.
	Result *SubtaskResult `json:"result,omitempty"`
	// Error holds the failure reason for failed subtasks.
	Error string `json:"error,omitempty"`
}

// Clone returns a deep copy of the subtask with execution state reset.
// Used by the decomposition cache so cached plans are never mutated.
func (s *Subtask) Clone() *Subtask {
	c := &Subtask{
		ID:                s.ID,
		TaskID:            s.TaskID,
		Type:              s.Type,
		Priority:          s.Priority,
		EstimatedDuration: s.EstimatedDuration,
		Status:            SubtaskStatusPending,
		Generation:        s.Generation,
	}
	if s.Input != nil {
		c.Input = cloneMap(s.Input)
	}
	if s.Requirements != nil {
		c.Requirements = append([]string(nil), s.Requirements...)
	}
	if s.DependsOn != nil {
		c.DependsOn = append([]string(nil), s.DependsOn...)
	}
	return c
}

// cloneMap deep-copies nested maps and slices; scalar values are shared.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	for k, v := range out {
		switch val := v.(type) {
		case map[string]any:
			out[k] = cloneMap(val)
		case []any:
			out[k] = cloneSlice(val)
		}
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	copy(out, s)
	for i, v := range out {
		switch val := v.(type) {
		case map[string]any:
			out[i] = cloneMap(val)
		case []any:
			out[i] = cloneSlice(val)
		}
	}
	return out
}
