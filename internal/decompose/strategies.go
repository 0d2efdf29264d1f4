package decompose

import (
	"fmt"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// Built-in task types.
const (
	// TypeCompressionAnalysis analyzes a payload's compressibility.
	TypeCompressionAnalysis = "compression_analysis"
	// TypeDataPipeline runs an extract/transform/validate/load chain.
	TypeDataPipeline = "data_pipeline"
	// TypeMultiStep executes steps declared explicitly in the task input.
	TypeMultiStep = "multi_step"
)

// compressionAnalysisStrategy splits a compression analysis into three
// feature-extraction subtasks and one recommendation that consumes all
// of them: entropy and redundancy run first, pattern mining builds on
// the entropy profile, and the recommendation references every result.
func compressionAnalysisStrategy(task *models.Task) []*models.Subtask {
	data := task.Input["data"]
	return []*models.Subtask{
		{
			ID:                "entropy",
			Type:              "entropy",
			Input:             map[string]any{"data": data},
			EstimatedDuration: 2 * time.Second,
			Priority:          task.Priority,
		},
		{
			ID:                "redundancy",
			Type:              "redundancy",
			Input:             map[string]any{"data": data},
			EstimatedDuration: 2 * time.Second,
			Priority:          task.Priority,
		},
		{
			ID:                "pattern",
			Type:              "pattern",
			DependsOn:         []string{"entropy"},
			EstimatedDuration: 3 * time.Second,
			Priority:          task.Priority,
			Input: map[string]any{
				"data":          data,
				"entropy_score": "{{entropy.result.score}}",
			},
		},
		{
			ID:                "recommend",
			Type:              "recommend",
			DependsOn:         []string{"entropy", "redundancy", "pattern"},
			EstimatedDuration: 1 * time.Second,
			Priority:          task.Priority,
			Input: map[string]any{
				"entropy_score":    "{{entropy.result.score}}",
				"redundancy_ratio": "{{redundancy.result.ratio}}",
				"patterns":         "{{pattern.result.patterns}}",
			},
		},
	}
}

// dataPipelineStrategy produces a linear extract -> transform ->
// validate -> load chain where each stage consumes its predecessor's
// rows through cross-subtask references.
func dataPipelineStrategy(task *models.Task) []*models.Subtask {
	return []*models.Subtask{
		{
			ID:       "extract",
			Type:     "extract",
			Input:    map[string]any{"source": task.Input["source"]},
			Priority: task.Priority,
		},
		{
			ID:        "transform",
			Type:      "transform",
			DependsOn: []string{"extract"},
			Priority:  task.Priority,
			Input: map[string]any{
				"rows":  "{{extract.result.rows}}",
				"rules": task.Input["rules"],
			},
		},
		{
			ID:        "validate",
			Type:      "validate",
			DependsOn: []string{"transform"},
			Priority:  task.Priority,
			Input: map[string]any{
				"rows": "{{transform.result.rows}}",
			},
		},
		{
			ID:        "load",
			Type:      "load",
			DependsOn: []string{"transform", "validate"},
			Priority:  task.Priority,
			Input: map[string]any{
				"rows":   "{{transform.result.rows}}",
				"report": "{{validate.result.report}}",
				"sink":   task.Input["sink"],
			},
		},
	}
}

// multiStepStrategy builds subtasks from steps declared in the task
// input under "steps". Each step may declare id, type, input,
// depends_on and requirements; missing IDs are generated positionally.
// Dependencies on unknown step IDs are left for graph validation to
// drop.
func multiStepStrategy(task *models.Task) []*models.Subtask {
	rawSteps, ok := task.Input["steps"].([]any)
	if !ok {
		return nil
	}
	subtasks := make([]*models.Subtask, 0, len(rawSteps))
	for i, raw := range rawSteps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		st := &models.Subtask{
			ID:       stringField(step, "id"),
			Type:     stringField(step, "type"),
			Priority: task.Priority,
		}
		if st.ID == "" {
			st.ID = fmt.Sprintf("step-%d", i+1)
		}
		if st.Type == "" {
			st.Type = task.Type
		}
		if input, ok := step["input"].(map[string]any); ok {
			st.Input = input
		}
		st.DependsOn = stringSliceField(step, "depends_on")
		st.Requirements = stringSliceField(step, "requirements")
		subtasks = append(subtasks, st)
	}
	return subtasks
}

// sequentialChainStrategy is the generic fallback: declared steps
// become a linear chain, each depending on the previous; without steps
// the task degenerates to a single mirroring subtask.
func sequentialChainStrategy(task *models.Task) []*models.Subtask {
	rawSteps, ok := task.Input["steps"].([]any)
	if !ok || len(rawSteps) == 0 {
		return nil
	}
	subtasks := make([]*models.Subtask, 0, len(rawSteps))
	prev := ""
	for i, raw := range rawSteps {
		st := &models.Subtask{
			ID:       fmt.Sprintf("step-%d", i+1),
			Priority: task.Priority,
		}
		switch step := raw.(type) {
		case string:
			st.Type = step
			st.Input = map[string]any{"data": task.Input["data"]}
		case map[string]any:
			st.Type = stringField(step, "type")
			if st.Type == "" {
				st.Type = task.Type
			}
			if input, ok := step["input"].(map[string]any); ok {
				st.Input = input
			}
		default:
			continue
		}
		if prev != "" {
			st.DependsOn = []string{prev}
		}
		prev = st.ID
		subtasks = append(subtasks, st)
	}
	return subtasks
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		if direct, ok := m[key].([]string); ok {
			return append([]string(nil), direct...)
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
