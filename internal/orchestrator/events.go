package orchestrator

import (
	"log"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// emit publishes a task event on the task events topic. Event delivery
// is best-effort; execution never depends on a subscriber being present.
func (o *Orchestrator) emit(ev models.Event) {
	if err := o.bus.Publish(models.TopicTaskEvents, bus.Message{Payload: ev}); err != nil {
		log.Printf("[orchestrator] publish %s event for task %s: %v", ev.Type, ev.TaskID, err)
	}
	o.debugLog.Log("event %s task=%s subtask=%s agent=%s gen=%d err=%s",
		ev.Type, ev.TaskID, ev.SubtaskID, ev.AgentID, ev.Generation, ev.Err)
}
