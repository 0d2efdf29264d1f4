package models

import "time"

// TopicTaskEvents is the message bus topic carrying task state transitions.
// The orchestrator publishes here on every transition; no subscriber is
// required for correct operation.
const TopicTaskEvents = "task.events"

// TopicEvaluation carries the orchestrator's advisory self-evaluation
// snapshots after each terminal task.
const TopicEvaluation = "orchestrator.evaluation"

// EventType is the kind of task event.
type EventType string

const (
	// EventTaskReceived indicates a task was accepted for execution.
	EventTaskReceived EventType = "task_received"
	// EventTaskDecomposed indicates subtasks were derived from a task.
	EventTaskDecomposed EventType = "task_decomposed"
	// EventSubtaskDispatched indicates a subtask was sent to an agent.
	EventSubtaskDispatched EventType = "subtask_dispatched"
	// EventSubtaskCompleted indicates a subtask produced a result.
	EventSubtaskCompleted EventType = "subtask_completed"
	// EventSubtaskFailed indicates a subtask permanently failed.
	EventSubtaskFailed EventType = "subtask_failed"
	// EventGenerationAdvanced indicates a new execution wave began.
	EventGenerationAdvanced EventType = "generation_advanced"
	// EventTaskCompleted indicates the task finished with all subtasks succeeding.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates the task finished without any successful subtask.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled indicates the task was cancelled by the caller.
	EventTaskCancelled EventType = "task_cancelled"
)

// Event is the payload published on TopicTaskEvents.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// TaskID is the ID of the related task.
	TaskID string `json:"task_id"`
	// SubtaskID is the ID of the related subtask, if applicable.
	SubtaskID string `json:"subtask_id,omitempty"`
	// AgentID is the ID of the related agent, if applicable.
	AgentID string `json:"agent_id,omitempty"`
	// Generation is the execution wave index, for generation events.
	Generation int `json:"generation,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Err contains error details for failure events.
	Err string `json:"err,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
