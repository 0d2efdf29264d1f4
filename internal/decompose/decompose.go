// Package decompose converts a task into a validated, generation-ordered
// plan of subtasks. Strategies are pure functions keyed by task type;
// a generic sequential-chain fallback always applies, so decomposition
// fails only for tasks with no type at all.
package decompose

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/graph"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// ErrUnsupportedTaskType indicates no decomposition strategy and no
// fallback applies to the task. Fatal for the task.
var ErrUnsupportedTaskType = errors.New("unsupported task type")

// FallbackStrategy is the name recorded on plans produced by the generic
// sequential-chain fallback.
const FallbackStrategy = "sequential_chain"

// Strategy converts a task's input into a subtask list. Strategies must
// be pure: same task in, same subtasks out.
type Strategy func(task *models.Task) []*models.Subtask

// Plan is a validated decomposition: subtasks plus their generation
// ordering and a record of any edges removed during validation.
type Plan struct {
	// Strategy names the strategy that produced the plan.
	Strategy string
	// Subtasks holds every subtask with generation fields assigned.
	Subtasks []*models.Subtask
	// Generations partitions subtask IDs into ordered concurrency groups.
	Generations [][]string
	// RemovedEdges lists dependency edges removed to break cycles.
	RemovedEdges []graph.Edge
}

// Simple returns true if the plan is a single subtask mirroring the
// task, which the orchestrator executes without the generation loop.
func (p *Plan) Simple() bool {
	return len(p.Subtasks) == 1 && len(p.Subtasks[0].DependsOn) == 0
}

// Subtask returns the plan's subtask with the given ID, or nil.
func (p *Plan) Subtask(id string) *models.Subtask {
	for _, st := range p.Subtasks {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// clone deep-copies the plan for handing out of the cache, stamping the
// new task's ID onto every subtask.
func (p *Plan) clone(taskID string) *Plan {
	c := &Plan{
		Strategy:     p.Strategy,
		Subtasks:     make([]*models.Subtask, 0, len(p.Subtasks)),
		Generations:  make([][]string, len(p.Generations)),
		RemovedEdges: append([]graph.Edge(nil), p.RemovedEdges...),
	}
	for _, st := range p.Subtasks {
		cp := st.Clone()
		cp.TaskID = taskID
		c.Subtasks = append(c.Subtasks, cp)
	}
	for i, gen := range p.Generations {
		c.Generations[i] = append([]string(nil), gen...)
	}
	return c
}

// Decomposer holds the strategy table and the advisory plan cache.
type Decomposer struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	cache      *planCache
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithCacheSize sets the plan cache capacity. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(d *Decomposer) {
		d.cache = newPlanCache(size)
	}
}

// New creates a Decomposer with the built-in strategies registered.
func New(opts ...Option) *Decomposer {
	d := &Decomposer{
		strategies: make(map[string]Strategy),
		cache:      newPlanCache(defaultCacheSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.RegisterStrategy(TypeCompressionAnalysis, compressionAnalysisStrategy)
	d.RegisterStrategy(TypeDataPipeline, dataPipelineStrategy)
	d.RegisterStrategy(TypeMultiStep, multiStepStrategy)
	return d
}

// RegisterStrategy installs or replaces the strategy for a task type.
func (d *Decomposer) RegisterStrategy(taskType string, s Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[taskType] = s
}

// Strategies returns the registered task types.
func (d *Decomposer) Strategies() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.strategies))
	for t := range d.strategies {
		out = append(out, t)
	}
	return out
}

// Decompose converts a task into a validated plan.
//
// The strategy for task.Type runs first; unknown types fall back to the
// generic sequential chain. The returned subtask list is validated into
// a DAG (dangling references dropped, cycles broken) and partitioned
// into generations. Identical (strategy, input) pairs are served from
// the cache; a cache miss is always correctness-safe.
func (d *Decomposer) Decompose(task *models.Task) (*Plan, error) {
	strategyName, strategy, err := d.selectStrategy(task)
	if err != nil {
		return nil, err
	}

	key, keyed := cacheKey(strategyName, task.Input)
	if keyed {
		if cached, ok := d.cache.get(key); ok {
			return cached.clone(task.ID), nil
		}
	}

	subtasks := strategy(task)
	if len(subtasks) == 0 {
		// Degenerate decomposition: one subtask equal to the task.
		subtasks = []*models.Subtask{mirrorSubtask(task)}
	}
	for _, st := range subtasks {
		st.TaskID = task.ID
		st.Status = models.SubtaskStatusPending
		if len(st.Requirements) == 0 {
			st.Requirements = []string{st.Type}
		}
	}

	g := graph.Build(subtasks)
	plan := &Plan{
		Strategy:     strategyName,
		Subtasks:     subtasks,
		Generations:  g.Generations(),
		RemovedEdges: g.RemovedCycleEdges(),
	}
	if dropped := g.DroppedDanglingEdges(); len(dropped) > 0 {
		log.Printf("[decompose] task %s: dropped %d dangling dependency references", task.ID, len(dropped))
	}

	if keyed {
		d.cache.put(key, plan.clone(""))
	}
	return plan, nil
}

// selectStrategy resolves the strategy for a task, falling back to the
// sequential chain for unknown types.
func (d *Decomposer) selectStrategy(task *models.Task) (string, Strategy, error) {
	d.mu.RLock()
	s, ok := d.strategies[task.Type]
	d.mu.RUnlock()
	if ok {
		return task.Type, s, nil
	}
	if task.Type == "" {
		return "", nil, fmt.Errorf("%w: task %s has no type", ErrUnsupportedTaskType, task.ID)
	}
	return FallbackStrategy, sequentialChainStrategy, nil
}

// mirrorSubtask builds the single subtask used when a strategy returns
// nothing: the task itself, re-expressed as a subtask.
func mirrorSubtask(task *models.Task) *models.Subtask {
	return &models.Subtask{
		ID:           task.ID + "-main",
		TaskID:       task.ID,
		Type:         task.Type,
		Input:        task.Input,
		Requirements: []string{task.Type},
		Priority:     task.Priority,
	}
}
