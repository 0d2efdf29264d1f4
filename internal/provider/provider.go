// Package provider defines the capability provider boundary and the
// host glue that binds a provider to the message bus and registry.
// The orchestration core depends only on the Provider interface; codec
// implementations, model backends and other specialist internals stay
// behind it.
package provider

import (
	"context"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// Provider is the closed interface every capability provider implements.
type Provider interface {
	// ID returns the provider's unique agent ID.
	ID() string
	// Type returns a human-readable kind for registration.
	Type() string
	// Capabilities returns the task types this provider can execute.
	Capabilities() []string
	// CanHandle reports whether the provider accepts the task type.
	CanHandle(taskType string) bool
	// Execute runs one subtask and returns its result.
	Execute(ctx context.Context, st *models.Subtask) (*models.SubtaskResult, error)
	// Heartbeat returns the provider's current health.
	Heartbeat() models.AgentHealth
}
