package provider

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/delegation"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/registry"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// Host binds a Provider to the bus and registry: it registers the
// agent record, serves delegation requests from the provider's request
// topic, publishes responses, reports results, and sends periodic
// heartbeats.
type Host struct {
	provider Provider
	bus      *bus.Bus
	registry *registry.Registry

	heartbeatInterval time.Duration

	sub    *bus.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHeartbeatInterval sets how often the host reports provider health.
func WithHeartbeatInterval(interval time.Duration) HostOption {
	return func(h *Host) {
		if interval > 0 {
			h.heartbeatInterval = interval
		}
	}
}

// NewHost creates a host for the given provider.
func NewHost(p Provider, b *bus.Bus, reg *registry.Registry, opts ...HostOption) *Host {
	h := &Host{
		provider:          p,
		bus:               b,
		registry:          reg,
		heartbeatInterval: 5 * time.Second,
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start registers the provider and begins serving requests.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("host for agent %s already started", h.provider.ID())
	}

	rec := &models.AgentRecord{
		AgentID:      h.provider.ID(),
		Type:         h.provider.Type(),
		Capabilities: h.provider.Capabilities(),
		Status:       models.AgentStatusIdle,
	}
	if err := h.registry.Register(rec); err != nil {
		return fmt.Errorf("register agent %s: %w", rec.AgentID, err)
	}

	sub, err := h.bus.Subscribe(delegation.RequestTopic(h.provider.ID()), h.onRequest)
	if err != nil {
		_ = h.registry.Unregister(rec.AgentID)
		return fmt.Errorf("subscribe request topic: %w", err)
	}
	h.sub = sub

	h.wg.Add(1)
	go h.heartbeatLoop()

	h.started = true
	return nil
}

// Stop marks the agent as shut down, unsubscribes and stops heartbeats.
func (h *Host) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.mu.Unlock()

	close(h.stopCh)
	h.wg.Wait()
	h.sub.Unsubscribe()
	if err := h.registry.Heartbeat(h.provider.ID(), models.AgentHealth{
		Status: models.AgentStatusShutdown,
	}); err != nil {
		log.Printf("[provider] shutdown heartbeat for %s: %v", h.provider.ID(), err)
	}
}

// heartbeatLoop reports provider health until the host stops.
func (h *Host) heartbeatLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			if err := h.registry.Heartbeat(h.provider.ID(), h.provider.Heartbeat()); err != nil {
				log.Printf("[provider] heartbeat for %s: %v", h.provider.ID(), err)
			}
		}
	}
}

// onRequest serves one delegation request. The bus runs each handler on
// its own goroutine, so long executions do not block other requests.
func (h *Host) onRequest(msg bus.Message) {
	req, ok := msg.Payload.(delegation.Request)
	if !ok {
		log.Printf("[provider] agent %s dropping request with payload type %T", h.provider.ID(), msg.Payload)
		return
	}

	resp := delegation.Response{
		CorrelationID: req.CorrelationID,
		AgentID:       h.provider.ID(),
	}

	if !h.provider.CanHandle(req.TaskType) {
		resp.Err = fmt.Sprintf("agent %s cannot handle task type %q", h.provider.ID(), req.TaskType)
		h.reply(msg.ReplyTo, resp)
		return
	}

	st := &models.Subtask{
		ID:     req.SubtaskID,
		TaskID: req.TaskID,
		Type:   req.TaskType,
		Input:  req.Params,
		Status: models.SubtaskStatusDispatched,
	}

	start := time.Now()
	result, err := h.provider.Execute(context.Background(), st)
	resp.Duration = time.Since(start)

	if err != nil {
		resp.Err = err.Error()
	} else if result != nil {
		resp.Output = result.Output
		if result.Duration > 0 {
			resp.Duration = result.Duration
		}
	}

	if rerr := h.registry.ReportResult(h.provider.ID(), err == nil, resp.Duration); rerr != nil {
		log.Printf("[provider] report result for %s: %v", h.provider.ID(), rerr)
	}
	h.reply(msg.ReplyTo, resp)
}

// reply publishes a response on the reply topic.
func (h *Host) reply(replyTo string, resp delegation.Response) {
	if replyTo == "" {
		replyTo = delegation.ReplyTopic
	}
	if err := h.bus.Publish(replyTo, bus.Message{
		Payload:       resp,
		CorrelationID: resp.CorrelationID,
	}); err != nil {
		log.Printf("[provider] publish reply for %s: %v", resp.CorrelationID, err)
	}
}
