package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/delegation"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// run drives one task through the pipeline. It always terminates: every
// subtask dispatch is bounded by a timeout, so a generation can never
// wait forever, and cancellation short-circuits between generations.
func (o *Orchestrator) run(ctx context.Context, run *taskRun) {
	defer close(run.done)
	o.metrics.IncActiveTasks()
	defer o.metrics.DecActiveTasks()

	task := run.task
	started := time.Now()
	o.emit(models.Event{Type: models.EventTaskReceived, TaskID: task.ID, Timestamp: time.Now()})
	o.snapshotTask(run)

	plan, err := o.decomposer.Decompose(task)
	if err != nil {
		o.failTask(run, started, err)
		return
	}
	o.mu.Lock()
	run.plan = plan
	o.mu.Unlock()

	o.setStatus(run, models.TaskStatusDecomposed)
	o.emit(models.Event{
		Type:      models.EventTaskDecomposed,
		TaskID:    task.ID,
		Message:   fmt.Sprintf("%d subtasks in %d generations via %s", len(plan.Subtasks), len(plan.Generations), plan.Strategy),
		Timestamp: time.Now(),
	})
	for _, st := range plan.Subtasks {
		o.snapshotSubtask(st)
	}

	o.setStatus(run, models.TaskStatusExecuting)
	cancelled := false
	for genIdx, gen := range plan.Generations {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		o.emit(models.Event{
			Type:       models.EventGenerationAdvanced,
			TaskID:     task.ID,
			Generation: genIdx,
			Message:    fmt.Sprintf("%d subtasks", len(gen)),
			Timestamp:  time.Now(),
		})
		o.runGeneration(ctx, run, plan, gen)
	}
	if ctx.Err() != nil {
		cancelled = true
	}
	if cancelled {
		markCancelled(plan)
	}

	o.setStatus(run, models.TaskStatusAggregating)
	result := aggregate(task.ID, plan, started)

	o.mu.Lock()
	run.result = result
	run.status = result.Status
	o.mu.Unlock()
	o.snapshotTask(run)
	for _, st := range plan.Subtasks {
		o.snapshotSubtask(st)
	}

	ev := models.Event{TaskID: task.ID, Timestamp: time.Now()}
	switch {
	case cancelled:
		ev.Type = models.EventTaskCancelled
		ev.Message = fmt.Sprintf("%d of %d subtasks completed before cancellation", result.Succeeded(), len(plan.Subtasks))
	case result.Status == models.TaskStatusFailed:
		ev.Type = models.EventTaskFailed
		ev.Message = "no subtask produced a result"
	default:
		ev.Type = models.EventTaskCompleted
		if result.Status == models.TaskStatusCompletedWithErrors {
			ev.Message = fmt.Sprintf("%d of %d subtasks failed", result.Failed(), len(plan.Subtasks))
		}
	}
	o.emit(ev)

	o.metrics.IncTask(string(result.Status))
	o.evaluator.Record(result)
}

// runGeneration executes one wave of independent subtasks. Dispatches
// run concurrently up to MaxParallel; a subtask failure never cancels
// its siblings.
func (o *Orchestrator) runGeneration(ctx context.Context, run *taskRun, plan *decompose.Plan, gen []string) {
	subtasks := make([]*models.Subtask, 0, len(gen))
	for _, id := range gen {
		if st := plan.Subtask(id); st != nil {
			subtasks = append(subtasks, st)
		}
	}
	// Higher priority dispatches first; ID breaks ties.
	sort.SliceStable(subtasks, func(i, j int) bool {
		if subtasks[i].Priority != subtasks[j].Priority {
			return subtasks[i].Priority > subtasks[j].Priority
		}
		return subtasks[i].ID < subtasks[j].ID
	})

	var g errgroup.Group
	g.SetLimit(o.settings.MaxParallel)
	for _, st := range subtasks {
		st := st
		g.Go(func() error {
			o.executeSubtask(ctx, run, plan, st)
			return nil
		})
	}
	g.Wait()
}

// executeSubtask resolves a subtask's inputs, then dispatches it with
// retries until it completes, exhausts its budget, or hits a permanent
// failure. The subtask's own fields carry the outcome; nothing else in
// the generation reads them until the wave finishes.
func (o *Orchestrator) executeSubtask(ctx context.Context, run *taskRun, plan *decompose.Plan, st *models.Subtask) {
	if ctx.Err() != nil {
		st.Status = models.SubtaskStatusCancelled
		st.Error = "task cancelled"
		return
	}

	// Sibling results are safe to read here: every dependency belongs to
	// an earlier generation, which finished before this wave started.
	lookup := func(id string) (map[string]any, bool) {
		dep := plan.Subtask(id)
		if dep == nil || dep.Status != models.SubtaskStatusCompleted || dep.Result == nil {
			return nil, false
		}
		return dep.Result.Output, true
	}

	resolved, err := resolveReferences(st.Input, lookup)
	if err == nil {
		// A dependency can fail without being referenced in the input.
		for _, dep := range st.DependsOn {
			if _, ok := lookup(dep); !ok {
				err = fmt.Errorf("%w: %s did not complete", ErrUnresolvedDependency, dep)
				break
			}
		}
	}
	if err != nil {
		o.failSubtask(run, st, err)
		return
	}

	timeout := o.settings.SubtaskTimeout
	if st.EstimatedDuration > 0 {
		timeout = time.Duration(float64(st.EstimatedDuration) * o.settings.TimeoutFactor)
	}

	var lastErr error
	for attempt := 0; attempt <= o.settings.RetryBudget; attempt++ {
		if attempt > 0 {
			o.metrics.IncRetry()
			if err := sleepCtx(ctx, backoffDelay(o.settings.BackoffBase, attempt-1)); err != nil {
				lastErr = delegation.ErrCancelled
				break
			}
		}

		// Re-select per attempt: the failing agent's score just dropped,
		// so the retry may land somewhere healthier.
		agentID, err := o.registry.SelectForTask(st.Requirements)
		if err != nil {
			lastErr = err
			break
		}

		st.Attempts++
		st.AssignedTo = agentID
		st.Status = models.SubtaskStatusDispatched
		if err := o.registry.ReportDispatch(agentID); err != nil {
			o.debugLog.Log("report dispatch to %s: %v", agentID, err)
		}
		o.emit(models.Event{
			Type:       models.EventSubtaskDispatched,
			TaskID:     run.task.ID,
			SubtaskID:  st.ID,
			AgentID:    agentID,
			Generation: st.Generation,
			Timestamp:  time.Now(),
		})
		o.snapshotSubtask(st)

		result, derr := o.channel.Delegate(ctx, agentID, st.Type, delegation.Request{
			TaskID:    run.task.ID,
			SubtaskID: st.ID,
			Params:    resolved,
		}, timeout)
		if derr == nil {
			st.Status = models.SubtaskStatusCompleted
			st.Result = result
			st.Error = ""
			o.metrics.ObserveSubtask(st.Type, "completed", result.Duration)
			o.emit(models.Event{
				Type:       models.EventSubtaskCompleted,
				TaskID:     run.task.ID,
				SubtaskID:  st.ID,
				AgentID:    agentID,
				Generation: st.Generation,
				Timestamp:  time.Now(),
			})
			o.snapshotSubtask(st)
			return
		}

		lastErr = derr
		o.debugLog.Log("subtask %s attempt %d on %s failed: %v", st.ID, st.Attempts, agentID, derr)
		if errors.Is(derr, delegation.ErrTimeout) {
			// The agent never replied. Its load stays elevated until its
			// next heartbeat rebalances it.
			o.metrics.ObserveSubtask(st.Type, "timeout", timeout)
		}
		if !retryable(derr) {
			break
		}
	}

	if errors.Is(lastErr, delegation.ErrCancelled) || ctx.Err() != nil {
		st.Status = models.SubtaskStatusCancelled
		st.Error = "task cancelled"
		o.snapshotSubtask(st)
		return
	}
	o.failSubtask(run, st, lastErr)
}

// failSubtask marks a subtask permanently failed.
func (o *Orchestrator) failSubtask(run *taskRun, st *models.Subtask, err error) {
	st.Status = models.SubtaskStatusFailed
	st.Error = err.Error()
	o.emit(models.Event{
		Type:       models.EventSubtaskFailed,
		TaskID:     run.task.ID,
		SubtaskID:  st.ID,
		AgentID:    st.AssignedTo,
		Generation: st.Generation,
		Err:        st.Error,
		Timestamp:  time.Now(),
	})
	o.snapshotSubtask(st)
}

// failTask records a terminal failure that happened before any subtask
// ran, such as a decomposition error.
func (o *Orchestrator) failTask(run *taskRun, started time.Time, err error) {
	result := &models.TaskResult{
		TaskID:     run.task.ID,
		Status:     models.TaskStatusFailed,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	o.mu.Lock()
	run.result = result
	run.status = models.TaskStatusFailed
	o.mu.Unlock()

	o.emit(models.Event{
		Type:      models.EventTaskFailed,
		TaskID:    run.task.ID,
		Err:       err.Error(),
		Timestamp: time.Now(),
	})
	o.snapshotTask(run)
	o.metrics.IncTask(string(models.TaskStatusFailed))
	o.evaluator.Record(result)
}

// markCancelled flips every non-terminal subtask to cancelled after the
// generation loop stops early.
func markCancelled(plan *decompose.Plan) {
	for _, st := range plan.Subtasks {
		if !st.Status.Terminal() {
			st.Status = models.SubtaskStatusCancelled
			if st.Error == "" {
				st.Error = "task cancelled"
			}
		}
	}
}
