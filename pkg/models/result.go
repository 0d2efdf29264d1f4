package models

import "time"

// SubtaskResult is the output of one subtask execution.
type SubtaskResult struct {
	// SubtaskID is the subtask this result belongs to.
	SubtaskID string `json:"subtask_id"`
	// Output is the structured result produced by the agent.
	Output map[string]any `json:"output,omitempty"`
	// Duration is how long the execution took on the agent.
	Duration time.Duration `json:"duration"`
	// CompletedAt is when the result was produced.
	CompletedAt time.Time `json:"completed_at"`
}

// SubtaskOutcome is the per-subtask entry in an aggregated task result.
// One entry exists for every subtask of the task, whatever its fate.
type SubtaskOutcome struct {
	// SubtaskID identifies the subtask.
	SubtaskID string `json:"subtask_id"`
	// Type is the subtask's capability type.
	Type string `json:"type"`
	// AgentID is the agent that executed the subtask, if any.
	AgentID string `json:"agent_id,omitempty"`
	// Status is the subtask's terminal state.
	Status SubtaskStatus `json:"status"`
	// Generation is the execution wave the subtask belonged to.
	Generation int `json:"generation"`
	// Attempts counts dispatches, including retries.
	Attempts int `json:"attempts"`
	// Duration is the execution time of the successful attempt.
	Duration time.Duration `json:"duration,omitempty"`
	// Output is the subtask's result payload, when it completed.
	Output map[string]any `json:"output,omitempty"`
	// Error is the failure reason, when it did not.
	Error string `json:"error,omitempty"`
}

// TaskResult is the aggregated outcome of one task.
// Partial results are always preserved: every subtask appears in Subtasks
// and every completed subtask's output appears in Output.
type TaskResult struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`
	// Status is the terminal task state.
	Status TaskStatus `json:"status"`
	// Output maps subtask ID to that subtask's output, for completed subtasks.
	Output map[string]any `json:"output,omitempty"`
	// Subtasks holds one outcome entry per subtask.
	Subtasks []SubtaskOutcome `json:"subtasks"`
	// Generations is the number of execution waves the task ran through.
	Generations int `json:"generations"`
	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the task reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded returns the number of completed subtasks.
func (r *TaskResult) Succeeded() int {
	n := 0
	for _, s := range r.Subtasks {
		if s.Status == SubtaskStatusCompleted {
			n++
		}
	}
	return n
}

// Failed returns the number of failed subtasks.
func (r *TaskResult) Failed() int {
	n := 0
	for _, s := range r.Subtasks {
		if s.Status == SubtaskStatusFailed {
			n++
		}
	}
	return n
}
