package decompose

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// StrategyTemplate declares a custom decomposition strategy in YAML.
// Each template turns a task type into a fixed subtask shape; task
// input is passed through under "data" and merged with any per-subtask
// input the template declares.
type StrategyTemplate struct {
	// TaskType is the task type the template handles.
	TaskType string `yaml:"task_type"`
	// Subtasks declares the shape of the decomposition.
	Subtasks []SubtaskTemplate `yaml:"subtasks"`
}

// SubtaskTemplate declares one subtask of a strategy template.
type SubtaskTemplate struct {
	ID           string         `yaml:"id"`
	Type         string         `yaml:"type"`
	Requirements []string       `yaml:"requirements,omitempty"`
	DependsOn    []string       `yaml:"depends_on,omitempty"`
	Input        map[string]any `yaml:"input,omitempty"`
	// EstimatedDuration is parsed with time.ParseDuration (e.g. "2s").
	EstimatedDuration string `yaml:"estimated_duration,omitempty"`
}

// templateFile is the root of a strategies YAML file.
type templateFile struct {
	Strategies []StrategyTemplate `yaml:"strategies"`
}

// LoadTemplates reads strategy templates from a YAML file and registers
// a strategy per template. Templates for already-registered task types
// replace the existing strategy.
func (d *Decomposer) LoadTemplates(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read strategies file: %w", err)
	}
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse strategies file: %w", err)
	}

	count := 0
	for _, tmpl := range file.Strategies {
		if tmpl.TaskType == "" || len(tmpl.Subtasks) == 0 {
			log.Printf("[decompose] skipping template with missing task_type or subtasks in %s", path)
			continue
		}
		d.RegisterStrategy(tmpl.TaskType, templateStrategy(tmpl))
		count++
	}
	return count, nil
}

// templateStrategy builds a Strategy from a template.
func templateStrategy(tmpl StrategyTemplate) Strategy {
	return func(task *models.Task) []*models.Subtask {
		subtasks := make([]*models.Subtask, 0, len(tmpl.Subtasks))
		for i, stt := range tmpl.Subtasks {
			st := &models.Subtask{
				ID:           stt.ID,
				Type:         stt.Type,
				Requirements: append([]string(nil), stt.Requirements...),
				DependsOn:    append([]string(nil), stt.DependsOn...),
				Priority:     task.Priority,
			}
			if st.ID == "" {
				st.ID = fmt.Sprintf("step-%d", i+1)
			}
			if st.Type == "" {
				st.Type = tmpl.TaskType
			}
			if stt.EstimatedDuration != "" {
				if dur, err := time.ParseDuration(stt.EstimatedDuration); err == nil {
					st.EstimatedDuration = dur
				}
			}
			input := map[string]any{"data": task.Input["data"]}
			for k, v := range stt.Input {
				input[k] = v
			}
			st.Input = input
			subtasks = append(subtasks, st)
		}
		return subtasks
	}
}

// WatchTemplates reloads the strategies file whenever it changes on
// disk, so custom task types can be tuned without a restart. The
// watcher stops when stop is closed. Reload failures keep the previous
// strategies and are logged.
func (d *Decomposer) WatchTemplates(path string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		base := filepath.Base(path)
		var lastReload time.Time
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Debounce bursts of write events from a single save.
				if time.Since(lastReload) < 200*time.Millisecond {
					continue
				}
				lastReload = time.Now()
				if n, err := d.LoadTemplates(path); err != nil {
					log.Printf("[decompose] reload of %s failed: %v", path, err)
				} else {
					log.Printf("[decompose] reloaded %d strategy templates from %s", n, path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[decompose] watcher error: %v", err)
			}
		}
	}()
	return nil
}
