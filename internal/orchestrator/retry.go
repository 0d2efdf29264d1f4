package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/delegation"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/registry"
)

// retryable reports whether a failed dispatch is worth another attempt.
// Timeouts and provider-reported failures may be transient; cancellation,
// shutdown, missing capability and unresolved references are not.
func retryable(err error) bool {
	switch {
	case errors.Is(err, delegation.ErrTimeout):
		return true
	case errors.Is(err, delegation.ErrExecution):
		return true
	case errors.Is(err, delegation.ErrCancelled):
		return false
	case errors.Is(err, delegation.ErrClosed):
		return false
	case errors.Is(err, registry.ErrNoCapableAgent):
		return false
	case errors.Is(err, ErrUnresolvedDependency):
		return false
	default:
		return false
	}
}

// backoffDelay returns the delay before retry attempt n (0-based),
// doubling the base delay per attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

// sleepCtx waits for the delay or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
