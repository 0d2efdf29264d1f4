// Package delegation provides the request/response layer between the
// orchestrator and capability providers, built on top of the message bus.
// Each outgoing request is tracked in a pending-request table keyed by
// correlation ID and resolved exactly once: by a matching response, by
// its deadline elapsing, by caller cancellation, or by channel shutdown.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

var (
	// ErrTimeout indicates the target agent did not respond before the deadline.
	ErrTimeout = errors.New("delegation timed out")
	// ErrCancelled indicates the caller's context was cancelled while waiting.
	ErrCancelled = errors.New("delegation cancelled")
	// ErrClosed indicates the delegation channel has been shut down.
	ErrClosed = errors.New("delegation channel closed")
	// ErrExecution indicates the provider executed the request and reported
	// a failure of its own.
	ErrExecution = errors.New("provider execution failed")
)

// ReplyTopic is the bus topic responses are published on.
const ReplyTopic = "delegation.replies"

// RequestTopic returns the per-agent topic requests for agentID are
// published on.
func RequestTopic(agentID string) string {
	return "agent." + agentID + ".requests"
}

// Request is the payload published on a per-agent request topic.
type Request struct {
	// CorrelationID links this request to its response.
	CorrelationID string `json:"correlation_id"`
	// TaskID is the parent task, for provider-side logging.
	TaskID string `json:"task_id,omitempty"`
	// SubtaskID identifies the subtask being delegated.
	SubtaskID string `json:"subtask_id"`
	// TaskType is the capability the provider must apply.
	TaskType string `json:"task_type"`
	// Params is the resolved subtask input.
	Params map[string]any `json:"params,omitempty"`
}

// Response is the payload a provider publishes on the reply topic.
type Response struct {
	// CorrelationID echoes the request's correlation ID.
	CorrelationID string `json:"correlation_id"`
	// AgentID is the responding agent.
	AgentID string `json:"agent_id"`
	// Output is the execution result, when Err is empty.
	Output map[string]any `json:"output,omitempty"`
	// Err is the provider-reported failure reason, if any.
	Err string `json:"err,omitempty"`
	// Duration is how long the execution took.
	Duration time.Duration `json:"duration"`
}

// Channel correlates outgoing requests to eventual responses.
type Channel struct {
	bus *bus.Bus
	sub *bus.Subscription

	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  bool
}

// New creates a delegation channel and subscribes it to the reply topic.
func New(b *bus.Bus) (*Channel, error) {
	c := &Channel{
		bus:     b,
		pending: make(map[string]*pendingRequest),
	}
	sub, err := b.Subscribe(ReplyTopic, c.handleReply)
	if err != nil {
		return nil, fmt.Errorf("subscribe reply topic: %w", err)
	}
	c.sub = sub
	return c, nil
}

// Delegate sends a request to the target agent and blocks until a
// response arrives, the timeout elapses, the context is cancelled, or
// the channel is shut down. It always resolves within timeout plus
// scheduling slack; it never hangs.
func (c *Channel) Delegate(ctx context.Context, targetAgent, taskType string, req Request, timeout time.Duration) (*models.SubtaskResult, error) {
	corrID := uuid.New().String()
	req.CorrelationID = corrID
	req.TaskType = taskType

	p := newPendingRequest(corrID, targetAgent, time.Now().Add(timeout))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[corrID] = p
	c.mu.Unlock()
	defer c.remove(corrID)

	err := c.bus.Publish(RequestTopic(targetAgent), bus.Message{
		Payload:       req,
		CorrelationID: corrID,
		ReplyTo:       ReplyTopic,
	})
	if err != nil {
		p.resolve(nil, ErrClosed)
		<-p.done
		return nil, fmt.Errorf("publish request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		// Resolved by a response or by shutdown; fall through.
	case <-timer.C:
		p.resolve(nil, ErrTimeout)
	case <-ctx.Done():
		p.resolve(nil, ErrCancelled)
	}

	// Exactly one resolution wrote the outcome; a resolve that lost the
	// race above was a no-op.
	out := <-p.outcome
	if out.err != nil {
		return nil, out.err
	}
	if out.resp.Err != "" {
		return nil, fmt.Errorf("%w: %s", ErrExecution, out.resp.Err)
	}
	return &models.SubtaskResult{
		SubtaskID:   req.SubtaskID,
		Output:      out.resp.Output,
		Duration:    out.resp.Duration,
		CompletedAt: time.Now(),
	}, nil
}

// PendingCount returns the number of unresolved requests.
func (c *Channel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close resolves every pending request with ErrClosed and unsubscribes
// from the reply topic. Subsequent Delegate calls fail immediately.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := make([]*pendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		pending = append(pending, p)
	}
	c.mu.Unlock()

	for _, p := range pending {
		p.resolve(nil, ErrClosed)
	}
	c.sub.Unsubscribe()
}

// handleReply resolves the pending request matching an incoming response.
// Responses arriving after their request was resolved are dropped.
func (c *Channel) handleReply(msg bus.Message) {
	resp, ok := msg.Payload.(Response)
	if !ok {
		if rp, isPtr := msg.Payload.(*Response); isPtr {
			resp = *rp
			ok = true
		}
	}
	if !ok {
		log.Printf("[delegation] dropping reply with unexpected payload type %T", msg.Payload)
		return
	}

	c.mu.Lock()
	p := c.pending[resp.CorrelationID]
	c.mu.Unlock()
	if p == nil {
		// Late response after timeout or shutdown.
		return
	}
	p.resolve(&resp, nil)
}

// remove drops a pending request from the table.
func (c *Channel) remove(corrID string) {
	c.mu.Lock()
	delete(c.pending, corrID)
	c.mu.Unlock()
}
