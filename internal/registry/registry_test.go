package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

func record(id string, caps ...string) *models.AgentRecord {
	return &models.AgentRecord{AgentID: id, Type: "test", Capabilities: caps}
}

func TestRegisterRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	r := New(DefaultWeights())

	if err := r.Register(record("a1", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(record("a1", "compress")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Register error = %v, want ErrDuplicateID", err)
	}
	if err := r.Register(record("")); !errors.Is(err, ErrInvalidID) {
		t.Errorf("empty ID Register error = %v, want ErrInvalidID", err)
	}
}

func TestRegistryCopiesRecords(t *testing.T) {
	r := New(DefaultWeights())
	rec := record("a1", "compress")
	if err := r.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Mutating the caller's record must not affect the stored one.
	rec.Capabilities[0] = "mutated"
	got, err := r.Get("a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Capabilities[0] != "compress" {
		t.Errorf("stored capability = %q, want %q", got.Capabilities[0], "compress")
	}
}

func TestSelectForTaskFiltersByCapabilityAndHealth(t *testing.T) {
	r := New(DefaultWeights())
	for _, rec := range []*models.AgentRecord{
		record("text", "summarize"),
		record("codec", "compress"),
		record("sick", "compress"),
	} {
		if err := r.Register(rec); err != nil {
			t.Fatalf("Register %s: %v", rec.AgentID, err)
		}
	}
	if err := r.Heartbeat("sick", models.AgentHealth{Status: models.AgentStatusError}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	got, err := r.SelectForTask([]string{"compress"})
	if err != nil {
		t.Fatalf("SelectForTask: %v", err)
	}
	if got != "codec" {
		t.Errorf("selected %q, want codec", got)
	}

	if _, err := r.SelectForTask([]string{"transcode"}); !errors.Is(err, ErrNoCapableAgent) {
		t.Errorf("SelectForTask error = %v, want ErrNoCapableAgent", err)
	}
}

func TestSelectForTaskScoring(t *testing.T) {
	// Agent A: 90% success, 2s average, load 1.
	// Agent B: 80% success, 1s average, load 0.
	// With 0.5/0.3/0.2 weights and durations normalized against the
	// slowest candidate, A scores 0.85 and B scores 1.2.
	r := New(DefaultWeights())

	a := record("agent-a", "compress")
	a.SuccessCount, a.FailureCount = 9, 1
	a.AvgDuration = 2 * time.Second
	a.CurrentLoad = 1
	a.Status = models.AgentStatusWorking

	// Both agents are working so the idle preference does not short-circuit
	// the comparison.
	b := record("agent-b", "compress")
	b.SuccessCount, b.FailureCount = 8, 2
	b.AvgDuration = 1 * time.Second
	b.Status = models.AgentStatusWorking

	if err := r.Register(a); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("Register b: %v", err)
	}

	got, err := r.SelectForTask([]string{"compress"})
	if err != nil {
		t.Fatalf("SelectForTask: %v", err)
	}
	if got != "agent-b" {
		t.Errorf("selected %q, want agent-b", got)
	}
}

func TestSelectForTaskPrefersIdleAgents(t *testing.T) {
	r := New(DefaultWeights())

	busy := record("busy", "compress")
	busy.SuccessCount = 100
	busy.Status = models.AgentStatusWorking
	busy.CurrentLoad = 1

	idle := record("idle", "compress")
	idle.SuccessCount, idle.FailureCount = 1, 1

	if err := r.Register(busy); err != nil {
		t.Fatalf("Register busy: %v", err)
	}
	if err := r.Register(idle); err != nil {
		t.Fatalf("Register idle: %v", err)
	}

	got, err := r.SelectForTask([]string{"compress"})
	if err != nil {
		t.Fatalf("SelectForTask: %v", err)
	}
	if got != "idle" {
		t.Errorf("selected %q, want the idle agent", got)
	}
}

func TestSelectForTaskDeterministicTieBreak(t *testing.T) {
	r := New(DefaultWeights())
	if err := r.Register(record("first", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(record("second", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 10; i++ {
		got, err := r.SelectForTask([]string{"compress"})
		if err != nil {
			t.Fatalf("SelectForTask: %v", err)
		}
		if got != "first" {
			t.Fatalf("tied selection = %q, want the earliest registration", got)
		}
	}
}

func TestReportResultUpdatesCountersAndLoad(t *testing.T) {
	r := New(DefaultWeights())
	if err := r.Register(record("a1", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.ReportDispatch("a1"); err != nil {
		t.Fatalf("ReportDispatch: %v", err)
	}
	rec, _ := r.Get("a1")
	if rec.Status != models.AgentStatusWorking || rec.CurrentLoad != 1 {
		t.Fatalf("after dispatch: status=%s load=%d, want working/1", rec.Status, rec.CurrentLoad)
	}

	if err := r.ReportResult("a1", true, 2*time.Second); err != nil {
		t.Fatalf("ReportResult: %v", err)
	}
	if err := r.ReportDispatch("a1"); err != nil {
		t.Fatalf("ReportDispatch: %v", err)
	}
	if err := r.ReportResult("a1", false, 4*time.Second); err != nil {
		t.Fatalf("ReportResult: %v", err)
	}

	rec, _ = r.Get("a1")
	if rec.SuccessCount != 1 || rec.FailureCount != 1 {
		t.Errorf("counters = %d/%d, want 1/1", rec.SuccessCount, rec.FailureCount)
	}
	if rec.AvgDuration != 3*time.Second {
		t.Errorf("AvgDuration = %s, want 3s", rec.AvgDuration)
	}
	if rec.Status != models.AgentStatusIdle || rec.CurrentLoad != 0 {
		t.Errorf("after results: status=%s load=%d, want idle/0", rec.Status, rec.CurrentLoad)
	}
}

func TestHeartbeatRevivesExpiredAgent(t *testing.T) {
	r := New(DefaultWeights())
	if err := r.Register(record("a1", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Backdate the heartbeat, then expire.
	r.mu.Lock()
	r.agents["a1"].rec.LastHeartbeat = time.Now().Add(-time.Minute)
	r.mu.Unlock()
	r.expireStale(30 * time.Second)

	if _, err := r.SelectForTask([]string{"compress"}); !errors.Is(err, ErrNoCapableAgent) {
		t.Fatalf("expired agent still selectable: %v", err)
	}

	if err := r.Heartbeat("a1", models.AgentHealth{Status: models.AgentStatusIdle, Load: 0}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, err := r.SelectForTask([]string{"compress"})
	if err != nil || got != "a1" {
		t.Errorf("after heartbeat: selected %q err=%v, want a1", got, err)
	}
}

func TestStartExpiryMarksStaleAgents(t *testing.T) {
	r := New(DefaultWeights())
	if err := r.Register(record("a1", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.mu.Lock()
	r.agents["a1"].rec.LastHeartbeat = time.Now().Add(-time.Minute)
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartExpiry(ctx, 30*time.Second, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, _ := r.Get("a1")
		if rec.Status == models.AgentStatusError {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("agent never marked unhealthy by the expiry monitor")
}

func TestUnregisterRemovesAgent(t *testing.T) {
	r := New(DefaultWeights())
	if err := r.Register(record("a1", "compress")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister("a1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := r.Unregister("a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Unregister error = %v, want ErrNotFound", err)
	}
	if got := r.List(); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}
