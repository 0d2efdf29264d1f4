package decompose

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

const templateYAML = `
strategies:
  - task_type: image_audit
    subtasks:
      - id: decode
        type: decode
        estimated_duration: 2s
      - id: inspect
        type: inspect
        depends_on: [decode]
        input:
          depth: deep
  - task_type: ""
    subtasks: []
`

func TestLoadTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	if err := os.WriteFile(path, []byte(templateYAML), 0644); err != nil {
		t.Fatalf("write templates: %v", err)
	}

	d := New(WithCacheSize(0))
	n, err := d.LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if n != 1 {
		t.Fatalf("LoadTemplates registered %d strategies, want 1 (invalid entry skipped)", n)
	}

	plan, err := d.Decompose(&models.Task{
		ID:    "t1",
		Type:  "image_audit",
		Input: map[string]any{"data": "img-bytes"},
	})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	want := [][]string{{"decode"}, {"inspect"}}
	if !reflect.DeepEqual(plan.Generations, want) {
		t.Fatalf("Generations = %v, want %v", plan.Generations, want)
	}
	decode := plan.Subtask("decode")
	if decode.EstimatedDuration != 2*time.Second {
		t.Errorf("decode EstimatedDuration = %s, want 2s", decode.EstimatedDuration)
	}
	if got := decode.Input["data"]; got != "img-bytes" {
		t.Errorf("decode data = %v, want the task payload", got)
	}
	inspect := plan.Subtask("inspect")
	if got := inspect.Input["depth"]; got != "deep" {
		t.Errorf("inspect depth = %v, want deep", got)
	}
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	d := New()
	if _, err := d.LoadTemplates(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadTemplates succeeded on a missing file")
	}
}

func TestWatchTemplatesReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	if err := os.WriteFile(path, []byte(templateYAML), 0644); err != nil {
		t.Fatalf("write templates: %v", err)
	}

	d := New(WithCacheSize(0))
	if _, err := d.LoadTemplates(path); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	if err := d.WatchTemplates(path, stop); err != nil {
		t.Fatalf("WatchTemplates: %v", err)
	}

	updated := templateYAML + `
  - task_type: video_audit
    subtasks:
      - id: probe
        type: probe
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite templates: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(d.Strategies(), "video_audit") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher never picked up the new strategy")
}
