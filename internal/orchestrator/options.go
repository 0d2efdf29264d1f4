package orchestrator

import (
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/config"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/state"
)

// Settings are the execution-loop parameters. Everything here is
// configuration, not policy baked into code.
type Settings struct {
	// RetryBudget is the number of retries after the first attempt.
	RetryBudget int
	// BackoffBase is the delay before the first retry; it doubles per attempt.
	BackoffBase time.Duration
	// SubtaskTimeout is the delegation timeout for subtasks without a
	// duration estimate.
	SubtaskTimeout time.Duration
	// TimeoutFactor scales a subtask's estimated duration into its timeout.
	TimeoutFactor float64
	// MaxParallel bounds concurrent dispatches within one generation.
	MaxParallel int
	// EvalWindow is the number of recent tasks in the evaluation window.
	EvalWindow int
}

// DefaultSettings returns the built-in execution parameters.
func DefaultSettings() Settings {
	return Settings{
		RetryBudget:    2,
		BackoffBase:    200 * time.Millisecond,
		SubtaskTimeout: 30 * time.Second,
		TimeoutFactor:  3.0,
		MaxParallel:    8,
		EvalWindow:     20,
	}
}

// SettingsFromConfig maps loaded configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}
	oc := cfg.Orchestrator
	if oc.RetryBudget >= 0 {
		s.RetryBudget = oc.RetryBudget
	}
	if oc.BackoffBase > 0 {
		s.BackoffBase = oc.BackoffBase
	}
	if oc.SubtaskTimeout > 0 {
		s.SubtaskTimeout = oc.SubtaskTimeout
	}
	if oc.TimeoutFactor > 0 {
		s.TimeoutFactor = oc.TimeoutFactor
	}
	if oc.MaxParallel > 0 {
		s.MaxParallel = oc.MaxParallel
	}
	if oc.EvalWindow > 0 {
		s.EvalWindow = oc.EvalWindow
	}
	return s
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings overrides the execution-loop parameters.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) {
		o.settings = s
	}
}

// WithStateDB enables fire-and-forget task and subtask snapshots.
// Snapshot errors are logged, never propagated.
func WithStateDB(db *state.DB) Option {
	return func(o *Orchestrator) {
		o.state = db
	}
}

// WithMetrics overrides the Prometheus metrics instance, typically with
// one bound to a fresh registry in tests.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithDebugLogger attaches a file-backed execution trace.
func WithDebugLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.debugLog = l
		}
	}
}
