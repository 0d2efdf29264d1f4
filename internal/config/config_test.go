package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.RetryBudget != 2 {
		t.Errorf("RetryBudget = %d, want 2", cfg.Orchestrator.RetryBudget)
	}
	if cfg.Orchestrator.BackoffBase != 200*time.Millisecond {
		t.Errorf("BackoffBase = %s, want 200ms", cfg.Orchestrator.BackoffBase)
	}
	if cfg.Orchestrator.SubtaskTimeout != 30*time.Second {
		t.Errorf("SubtaskTimeout = %s, want 30s", cfg.Orchestrator.SubtaskTimeout)
	}
	sum := cfg.Selection.WeightSuccess + cfg.Selection.WeightSpeed + cfg.Selection.WeightLoad
	if sum != 1.0 {
		t.Errorf("selection weights sum to %v, want 1.0", sum)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
orchestrator:
  retry_budget: 5
  backoff_base: 1s
  max_parallel: 2
selection:
  weight_success: 0.7
  weight_speed: 0.2
  weight_load: 0.1
state:
  enabled: true
  path: /tmp/studio-test.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Orchestrator.RetryBudget != 5 {
		t.Errorf("RetryBudget = %d, want 5", cfg.Orchestrator.RetryBudget)
	}
	if cfg.Orchestrator.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %s, want 1s", cfg.Orchestrator.BackoffBase)
	}
	if cfg.Orchestrator.MaxParallel != 2 {
		t.Errorf("MaxParallel = %d, want 2", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Selection.WeightSuccess != 0.7 {
		t.Errorf("WeightSuccess = %v, want 0.7", cfg.Selection.WeightSuccess)
	}
	if !cfg.State.Enabled || cfg.State.Path != "/tmp/studio-test.db" {
		t.Errorf("state = %+v, want enabled with explicit path", cfg.State)
	}

	// Unspecified keys keep their defaults.
	if cfg.Orchestrator.SubtaskTimeout != 30*time.Second {
		t.Errorf("SubtaskTimeout = %s, want the 30s default", cfg.Orchestrator.SubtaskTimeout)
	}
	if cfg.Decompose.CacheSize != 128 {
		t.Errorf("CacheSize = %d, want the 128 default", cfg.Decompose.CacheSize)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFromPath succeeded on a missing file")
	}
}
