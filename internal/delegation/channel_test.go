package delegation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
)

// echoAgent subscribes to an agent's request topic and replies after an
// optional delay.
func echoAgent(t *testing.T, b *bus.Bus, agentID string, delay time.Duration, fail string) {
	t.Helper()
	_, err := b.Subscribe(RequestTopic(agentID), func(msg bus.Message) {
		req, ok := msg.Payload.(Request)
		if !ok {
			t.Errorf("request payload type %T", msg.Payload)
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		resp := Response{
			CorrelationID: req.CorrelationID,
			AgentID:       agentID,
			Duration:      delay,
		}
		if fail != "" {
			resp.Err = fail
		} else {
			resp.Output = map[string]any{"echo": req.Params["data"]}
		}
		b.Publish(msg.ReplyTo, bus.Message{Payload: resp, CorrelationID: resp.CorrelationID})
	})
	if err != nil {
		t.Fatalf("subscribe agent %s: %v", agentID, err)
	}
}

func TestDelegateRoundTrip(t *testing.T) {
	b := bus.New()
	defer b.Close()
	echoAgent(t, b, "agent-1", 0, "")

	c, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result, err := c.Delegate(context.Background(), "agent-1", "echo", Request{
		SubtaskID: "st-1",
		Params:    map[string]any{"data": "ping"},
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if result.SubtaskID != "st-1" {
		t.Errorf("SubtaskID = %q, want st-1", result.SubtaskID)
	}
	if got := result.Output["echo"]; got != "ping" {
		t.Errorf("output echo = %v, want ping", got)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after resolution, want 0", c.PendingCount())
	}
}

func TestDelegateProviderFailure(t *testing.T) {
	b := bus.New()
	defer b.Close()
	echoAgent(t, b, "agent-1", 0, "codec exploded")

	c, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, err = c.Delegate(context.Background(), "agent-1", "echo", Request{SubtaskID: "st-1"}, 2*time.Second)
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("Delegate error = %v, want ErrExecution", err)
	}
}

func TestDelegateTimesOutWithoutResponder(t *testing.T) {
	b := bus.New()
	defer b.Close()

	c, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	start := time.Now()
	_, err = c.Delegate(context.Background(), "absent", "echo", Request{SubtaskID: "st-1"}, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Delegate error = %v, want ErrTimeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("Delegate took %s, want roughly the 50ms timeout", elapsed)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after timeout, want 0", c.PendingCount())
	}
}

func TestDelegateHonorsContextCancellation(t *testing.T) {
	b := bus.New()
	defer b.Close()
	echoAgent(t, b, "slow", 500*time.Millisecond, "")

	c, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = c.Delegate(ctx, "slow", "echo", Request{SubtaskID: "st-1"}, 5*time.Second)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Delegate error = %v, want ErrCancelled", err)
	}
}

func TestCloseResolvesPendingRequests(t *testing.T) {
	b := bus.New()
	defer b.Close()

	c, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Delegate(context.Background(), "absent", "echo", Request{SubtaskID: "st-1"}, 10*time.Second)
		errCh <- err
	}()

	// Wait for the request to land in the pending table, then shut down.
	deadline := time.Now().Add(2 * time.Second)
	for c.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Delegate error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Delegate hung after Close")
	}

	if _, err := c.Delegate(context.Background(), "absent", "echo", Request{}, time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Delegate after Close = %v, want ErrClosed", err)
	}
}

func TestDelegateResolvesExactlyOnceUnderRace(t *testing.T) {
	// Replies arrive right around the timeout so responses and deadlines
	// race; every call must return exactly once, quickly, either way.
	b := bus.New()
	defer b.Close()

	timeout := 20 * time.Millisecond
	echoAgentJitter := func(agentID string) {
		_, err := b.Subscribe(RequestTopic(agentID), func(msg bus.Message) {
			req := msg.Payload.(Request)
			time.Sleep(time.Duration(rand.Intn(40)) * time.Millisecond)
			b.Publish(msg.ReplyTo, bus.Message{Payload: Response{
				CorrelationID: req.CorrelationID,
				AgentID:       agentID,
				Output:        map[string]any{"ok": true},
			}})
		})
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	echoAgentJitter("jitter")

	c, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			_, err := c.Delegate(context.Background(), "jitter", "echo", Request{SubtaskID: "st"}, timeout)
			if err != nil && !errors.Is(err, ErrTimeout) {
				t.Errorf("call %d: unexpected error %v", i, err)
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("call %d took %s", i, elapsed)
			}
		}(i)
	}
	wg.Wait()

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after all calls returned, want 0", c.PendingCount())
	}
}
