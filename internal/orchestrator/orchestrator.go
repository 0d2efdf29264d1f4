// Package orchestrator drives tasks through the full pipeline: receive,
// decompose, execute generation by generation, aggregate, and report.
// It owns all task lifecycle state; the decomposer, registry, delegation
// channel and bus are collaborators it coordinates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/delegation"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/registry"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/state"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

var (
	// ErrTaskNotFound indicates an operation on an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStopped indicates a submission to a stopped orchestrator.
	ErrStopped = errors.New("orchestrator stopped")
)

// taskRun is the orchestrator's bookkeeping for one submitted task.
// Status and result are read and written under the orchestrator's lock;
// done closes when the task reaches a terminal state.
type taskRun struct {
	task   *models.Task
	status models.TaskStatus
	plan   *decompose.Plan
	result *models.TaskResult
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator coordinates task execution end to end.
type Orchestrator struct {
	bus        *bus.Bus
	registry   *registry.Registry
	decomposer *decompose.Decomposer
	channel    *delegation.Channel

	settings  Settings
	state     *state.DB
	metrics   *Metrics
	debugLog  *DebugLogger
	evaluator *Evaluator

	mu      sync.Mutex
	tasks   map[string]*taskRun
	stopped bool
	wg      sync.WaitGroup
}

// New creates an orchestrator over the given collaborators.
func New(b *bus.Bus, reg *registry.Registry, dec *decompose.Decomposer, ch *delegation.Channel, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:        b,
		registry:   reg,
		decomposer: dec,
		channel:    ch,
		settings:   DefaultSettings(),
		debugLog:   NopLogger(),
		tasks:      make(map[string]*taskRun),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = defaultMetrics()
	}
	o.evaluator = NewEvaluator(b, o.settings.EvalWindow)
	return o
}

// Submit accepts a task and starts executing it asynchronously.
// A task without an ID gets one; the returned ID is the handle for
// Await, GetResult and Cancel.
func (o *Orchestrator) Submit(task *models.Task) (string, error) {
	if task == nil {
		return "", errors.New("nil task")
	}
	if task.ID == "" {
		task.ID = "task-" + uuid.New().String()[:8]
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &taskRun{
		task:   task,
		status: models.TaskStatusReceived,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		cancel()
		return "", ErrStopped
	}
	if _, exists := o.tasks[task.ID]; exists {
		o.mu.Unlock()
		cancel()
		return "", fmt.Errorf("task %s already submitted", task.ID)
	}
	o.tasks[task.ID] = run
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(ctx, run)
	}()
	return task.ID, nil
}

// Await blocks until the task reaches a terminal state or the context
// is cancelled, then returns the aggregated result.
func (o *Orchestrator) Await(ctx context.Context, taskID string) (*models.TaskResult, error) {
	run, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.result, nil
}

// GetResult returns the task's current status and, once terminal, its
// aggregated result.
func (o *Orchestrator) GetResult(taskID string) (*models.TaskResult, models.TaskStatus, error) {
	run, err := o.lookup(taskID)
	if err != nil {
		return nil, "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.result, run.status, nil
}

// Cancel stops a running task. Subtasks already dispatched are abandoned;
// subtasks not yet dispatched are marked cancelled. Completed subtask
// results survive into the aggregated result.
func (o *Orchestrator) Cancel(taskID string) error {
	run, err := o.lookup(taskID)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// Evaluator returns the orchestrator's self-evaluation window.
func (o *Orchestrator) Evaluator() *Evaluator {
	return o.evaluator
}

// Stop cancels all running tasks and waits for their run loops to
// finish. Further submissions fail with ErrStopped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.wg.Wait()
		return
	}
	o.stopped = true
	runs := make([]*taskRun, 0, len(o.tasks))
	for _, run := range o.tasks {
		runs = append(runs, run)
	}
	o.mu.Unlock()

	for _, run := range runs {
		run.cancel()
	}
	o.wg.Wait()
}

// lookup finds a task run by ID.
func (o *Orchestrator) lookup(taskID string) (*taskRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return run, nil
}

// setStatus transitions a task's lifecycle state.
func (o *Orchestrator) setStatus(run *taskRun, status models.TaskStatus) {
	o.mu.Lock()
	run.status = status
	o.mu.Unlock()
	o.debugLog.Log("task %s -> %s", run.task.ID, status)
	o.snapshotTask(run)
}

// snapshotTask persists the task's current state, fire-and-forget.
func (o *Orchestrator) snapshotTask(run *taskRun) {
	if o.state == nil {
		return
	}
	o.mu.Lock()
	status := run.status
	result := run.result
	o.mu.Unlock()
	if err := o.state.SaveTask(run.task, status, result); err != nil {
		o.debugLog.Log("snapshot task %s: %v", run.task.ID, err)
	}
}

// snapshotSubtask persists one subtask's current state, fire-and-forget.
func (o *Orchestrator) snapshotSubtask(st *models.Subtask) {
	if o.state == nil {
		return
	}
	if err := o.state.SaveSubtask(st); err != nil {
		o.debugLog.Log("snapshot subtask %s/%s: %v", st.TaskID, st.ID, err)
	}
}
