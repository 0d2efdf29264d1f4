package models

import "time"

// AgentStatus represents the operational state of a registered agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent is registered and has no work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusWorking indicates the agent is executing at least one subtask.
	AgentStatusWorking AgentStatus = "working"
	// AgentStatusError indicates the agent is unhealthy and excluded from selection.
	AgentStatusError AgentStatus = "error"
	// AgentStatusShutdown indicates the agent has deregistered.
	AgentStatusShutdown AgentStatus = "shutdown"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusWorking, AgentStatusError, AgentStatusShutdown:
		return true
	default:
		return false
	}
}

// Selectable returns true if an agent in this state may receive work.
func (s AgentStatus) Selectable() bool {
	return s == AgentStatusIdle || s == AgentStatusWorking
}

// AgentHealth is the payload of a heartbeat from a capability provider.
type AgentHealth struct {
	// Status is the provider's self-reported operational state.
	Status AgentStatus `json:"status"`
	// Load is the number of subtasks the provider is currently executing.
	Load int `json:"load"`
}

// AgentRecord is the registry's bookkeeping for one capability provider.
// The record is owned exclusively by the registry; providers update it only
// through Heartbeat and ReportResult calls.
type AgentRecord struct {
	// AgentID is the unique identifier for this agent.
	AgentID string `json:"agent_id"`
	// Type is a human-readable kind for the agent (e.g. "analyzer").
	Type string `json:"type"`
	// Capabilities lists the task types this agent can execute.
	Capabilities []string `json:"capabilities"`
	// Status is the agent's current operational state.
	Status AgentStatus `json:"status"`
	// LastHeartbeat is when the agent last reported in.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// SuccessCount is the number of subtasks completed successfully.
	SuccessCount int `json:"success_count"`
	// FailureCount is the number of subtasks that failed on this agent.
	FailureCount int `json:"failure_count"`
	// AvgDuration is the rolling mean execution time across completions.
	AvgDuration time.Duration `json:"avg_duration"`
	// CurrentLoad is the number of subtasks currently assigned.
	CurrentLoad int `json:"current_load"`
}

// SuccessRate returns the fraction of completed executions that succeeded.
// An agent with no completed work scores 1.0 so fresh agents are not
// starved out of selection.
func (a *AgentRecord) SuccessRate() float64 {
	total := a.SuccessCount + a.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(a.SuccessCount) / float64(total)
}

// HasCapabilities returns true if the agent offers every required capability.
func (a *AgentRecord) HasCapabilities(required []string) bool {
	for _, req := range required {
		found := false
		for _, cap := range a.Capabilities {
			if cap == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
