package orchestrator

import (
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// aggregate merges every subtask's terminal state into the task result.
// Partial results are always preserved: each subtask contributes an
// outcome entry, and every completed subtask's output lands in Output
// keyed by subtask ID.
//
// The terminal status follows from the subtask outcomes alone: all
// completed means COMPLETED, none means FAILED, anything between means
// COMPLETED_WITH_ERRORS.
func aggregate(taskID string, plan *decompose.Plan, startedAt time.Time) *models.TaskResult {
	result := &models.TaskResult{
		TaskID:      taskID,
		Output:      make(map[string]any),
		Subtasks:    make([]models.SubtaskOutcome, 0, len(plan.Subtasks)),
		Generations: len(plan.Generations),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}

	completed := 0
	for _, st := range plan.Subtasks {
		outcome := models.SubtaskOutcome{
			SubtaskID:  st.ID,
			Type:       st.Type,
			AgentID:    st.AssignedTo,
			Status:     st.Status,
			Generation: st.Generation,
			Attempts:   st.Attempts,
			Error:      st.Error,
		}
		if st.Status == models.SubtaskStatusCompleted && st.Result != nil {
			completed++
			outcome.Duration = st.Result.Duration
			outcome.Output = st.Result.Output
			result.Output[st.ID] = st.Result.Output
		}
		result.Subtasks = append(result.Subtasks, outcome)
	}

	switch {
	case completed == len(plan.Subtasks):
		result.Status = models.TaskStatusCompleted
	case completed == 0:
		result.Status = models.TaskStatusFailed
	default:
		result.Status = models.TaskStatusCompletedWithErrors
	}
	return result
}
