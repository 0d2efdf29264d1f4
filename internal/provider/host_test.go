package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/delegation"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/registry"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

func TestHostRegistersAndServesRequests(t *testing.T) {
	b := bus.New()
	defer b.Close()
	reg := registry.New(registry.DefaultWeights())

	p := NewEchoProvider([]string{"echo"}, WithEchoID("echo-test"))
	h := NewHost(p, b, reg, WithHeartbeatInterval(time.Minute))
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Stop()

	rec, err := reg.Get("echo-test")
	if err != nil {
		t.Fatalf("agent not registered: %v", err)
	}
	if rec.Status != models.AgentStatusIdle {
		t.Errorf("status = %s, want idle", rec.Status)
	}

	c, err := delegation.New(b)
	if err != nil {
		t.Fatalf("delegation.New: %v", err)
	}
	defer c.Close()

	result, err := c.Delegate(context.Background(), "echo-test", "echo", delegation.Request{
		SubtaskID: "st-1",
		Params:    map[string]any{"data": "ping"},
	}, 2*time.Second)
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if got := result.Output["data"]; got != "ping" {
		t.Errorf("output data = %v, want ping", got)
	}

	// The host reports the outcome on the provider's behalf.
	rec, err = reg.Get("echo-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", rec.SuccessCount)
	}
}

func TestHostRejectsUnsupportedTaskType(t *testing.T) {
	b := bus.New()
	defer b.Close()
	reg := registry.New(registry.DefaultWeights())

	p := NewEchoProvider([]string{"echo"}, WithEchoID("echo-test"))
	h := NewHost(p, b, reg, WithHeartbeatInterval(time.Minute))
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Stop()

	c, err := delegation.New(b)
	if err != nil {
		t.Fatalf("delegation.New: %v", err)
	}
	defer c.Close()

	_, err = c.Delegate(context.Background(), "echo-test", "transcode", delegation.Request{SubtaskID: "st-1"}, 2*time.Second)
	if err == nil || !strings.Contains(err.Error(), "cannot handle") {
		t.Fatalf("Delegate error = %v, want a cannot-handle rejection", err)
	}
}

func TestHostStopMarksAgentShutdown(t *testing.T) {
	b := bus.New()
	defer b.Close()
	reg := registry.New(registry.DefaultWeights())

	p := NewEchoProvider([]string{"echo"}, WithEchoID("echo-test"))
	h := NewHost(p, b, reg, WithHeartbeatInterval(time.Minute))
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Start(); err == nil {
		t.Error("second Start succeeded")
	}

	h.Stop()
	h.Stop() // safe to repeat

	rec, err := reg.Get("echo-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != models.AgentStatusShutdown {
		t.Errorf("status = %s after Stop, want shutdown", rec.Status)
	}
	if _, err := reg.SelectForTask([]string{"echo"}); err == nil {
		t.Error("shut-down agent still selectable")
	}
}

func TestAnalysisProviderDeterminism(t *testing.T) {
	p := NewAnalysisProvider()

	st := &models.Subtask{ID: "entropy", Type: "entropy", Input: map[string]any{"data": "aaaa"}}
	first, err := p.Execute(context.Background(), st)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, err := p.Execute(context.Background(), st)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first.Output["score"] != second.Output["score"] {
		t.Errorf("entropy not deterministic: %v vs %v", first.Output["score"], second.Output["score"])
	}
	// A single repeated byte has zero entropy.
	if got := first.Output["score"].(float64); got != 0 {
		t.Errorf("entropy of aaaa = %v, want 0", got)
	}
}

func TestHostStopSecondStartFails(t *testing.T) {
	b := bus.New()
	defer b.Close()
	reg := registry.New(registry.DefaultWeights())

	h := NewHost(NewPipelineProvider(), b, reg, WithHeartbeatInterval(time.Minute))
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.Stop()
}
