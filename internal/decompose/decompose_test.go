package decompose

import (
	"errors"
	"reflect"
	"testing"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

func TestDecomposeCompressionAnalysis(t *testing.T) {
	d := New()
	task := &models.Task{
		ID:    "t1",
		Type:  TypeCompressionAnalysis,
		Input: map[string]any{"data": "aaabbb"},
	}

	plan, err := d.Decompose(task)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if plan.Strategy != TypeCompressionAnalysis {
		t.Errorf("Strategy = %q, want %q", plan.Strategy, TypeCompressionAnalysis)
	}

	want := [][]string{
		{"entropy", "redundancy"},
		{"pattern"},
		{"recommend"},
	}
	if !reflect.DeepEqual(plan.Generations, want) {
		t.Fatalf("Generations = %v, want %v", plan.Generations, want)
	}

	for _, st := range plan.Subtasks {
		if st.TaskID != "t1" {
			t.Errorf("subtask %s TaskID = %q, want t1", st.ID, st.TaskID)
		}
		if st.Status != models.SubtaskStatusPending {
			t.Errorf("subtask %s status = %q, want pending", st.ID, st.Status)
		}
		if len(st.Requirements) == 0 {
			t.Errorf("subtask %s has no requirements", st.ID)
		}
	}

	rec := plan.Subtask("recommend")
	if rec == nil {
		t.Fatal("plan has no recommend subtask")
	}
	if got := rec.Input["entropy_score"]; got != "{{entropy.result.score}}" {
		t.Errorf("recommend entropy_score = %v, want reference", got)
	}
}

func TestDecomposeUnknownTypeFallsBack(t *testing.T) {
	d := New()
	task := &models.Task{
		ID:    "t1",
		Type:  "summarize",
		Input: map[string]any{"data": "hello"},
	}

	plan, err := d.Decompose(task)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if plan.Strategy != FallbackStrategy {
		t.Errorf("Strategy = %q, want %q", plan.Strategy, FallbackStrategy)
	}
	// No steps declared: the task mirrors into a single subtask.
	if !plan.Simple() {
		t.Fatalf("plan = %+v, want a single mirroring subtask", plan.Subtasks)
	}
	st := plan.Subtasks[0]
	if st.ID != "t1-main" || st.Type != "summarize" {
		t.Errorf("mirror subtask = %s/%s, want t1-main/summarize", st.ID, st.Type)
	}
	if !reflect.DeepEqual(st.Requirements, []string{"summarize"}) {
		t.Errorf("mirror requirements = %v, want [summarize]", st.Requirements)
	}
}

func TestDecomposeFallbackChainsSteps(t *testing.T) {
	d := New()
	task := &models.Task{
		ID:   "t1",
		Type: "custom",
		Input: map[string]any{
			"data":  "payload",
			"steps": []any{"fetch", "parse", "store"},
		},
	}

	plan, err := d.Decompose(task)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	want := [][]string{{"step-1"}, {"step-2"}, {"step-3"}}
	if !reflect.DeepEqual(plan.Generations, want) {
		t.Fatalf("Generations = %v, want a linear chain %v", plan.Generations, want)
	}
	if got := plan.Subtask("step-2").DependsOn; !reflect.DeepEqual(got, []string{"step-1"}) {
		t.Errorf("step-2 DependsOn = %v, want [step-1]", got)
	}
}

func TestDecomposeRejectsUntypedTask(t *testing.T) {
	d := New()
	_, err := d.Decompose(&models.Task{ID: "t1"})
	if !errors.Is(err, ErrUnsupportedTaskType) {
		t.Fatalf("Decompose error = %v, want ErrUnsupportedTaskType", err)
	}
}

func TestDecomposeMultiStep(t *testing.T) {
	d := New()
	task := &models.Task{
		ID:   "t1",
		Type: TypeMultiStep,
		Input: map[string]any{
			"steps": []any{
				map[string]any{"id": "fetch", "type": "http_get"},
				map[string]any{"id": "parse", "type": "parse_json", "depends_on": []any{"fetch"}},
				map[string]any{"id": "store", "type": "db_write", "depends_on": []any{"parse", "missing"}},
			},
		},
	}

	plan, err := d.Decompose(task)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	want := [][]string{{"fetch"}, {"parse"}, {"store"}}
	if !reflect.DeepEqual(plan.Generations, want) {
		t.Fatalf("Generations = %v, want %v", plan.Generations, want)
	}
	// The dangling "missing" reference is validated away.
	if got := plan.Subtask("store").DependsOn; !reflect.DeepEqual(got, []string{"parse"}) {
		t.Errorf("store DependsOn = %v, want [parse]", got)
	}
}

func TestDecomposeCacheServesClones(t *testing.T) {
	d := New()
	input := map[string]any{"data": "aaabbb"}

	first, err := d.Decompose(&models.Task{ID: "t1", Type: TypeCompressionAnalysis, Input: input})
	if err != nil {
		t.Fatalf("Decompose t1: %v", err)
	}
	// Simulate execution scribbling on the first plan.
	first.Subtasks[0].Status = models.SubtaskStatusCompleted
	first.Subtasks[0].Error = "scribbled"

	second, err := d.Decompose(&models.Task{ID: "t2", Type: TypeCompressionAnalysis, Input: map[string]any{"data": "aaabbb"}})
	if err != nil {
		t.Fatalf("Decompose t2: %v", err)
	}

	if second.Subtasks[0] == first.Subtasks[0] {
		t.Fatal("cached plan shares subtask pointers across tasks")
	}
	for _, st := range second.Subtasks {
		if st.TaskID != "t2" {
			t.Errorf("subtask %s TaskID = %q, want t2", st.ID, st.TaskID)
		}
		if st.Status != models.SubtaskStatusPending || st.Error != "" {
			t.Errorf("subtask %s carries execution state from another task", st.ID)
		}
	}
	if !reflect.DeepEqual(first.Generations, second.Generations) {
		t.Errorf("cached generations differ: %v vs %v", first.Generations, second.Generations)
	}
}

func TestRegisterStrategyOverridesAndExtends(t *testing.T) {
	d := New(WithCacheSize(0))
	d.RegisterStrategy("split_in_two", func(task *models.Task) []*models.Subtask {
		return []*models.Subtask{
			{ID: "left", Type: "half"},
			{ID: "right", Type: "half"},
		}
	})

	plan, err := d.Decompose(&models.Task{ID: "t1", Type: "split_in_two"})
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(plan.Subtasks) != 2 || len(plan.Generations) != 1 {
		t.Fatalf("plan = %v generations = %v, want 2 parallel subtasks", plan.Subtasks, plan.Generations)
	}
}
