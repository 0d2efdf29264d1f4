package orchestrator

import (
	"log"
	"sync"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// taskSample is one terminal task in the evaluation window.
type taskSample struct {
	taskID      string
	status      models.TaskStatus
	generations int
	wallTime    time.Duration
}

// EvalSnapshot is the advisory self-evaluation published after each
// terminal task. It summarizes the most recent window of tasks.
type EvalSnapshot struct {
	// Window is the number of tasks the snapshot covers.
	Window int `json:"window"`
	// SuccessRate is the fraction of tasks that fully completed.
	SuccessRate float64 `json:"success_rate"`
	// AvgGenerations is the mean number of execution waves per task.
	AvgGenerations float64 `json:"avg_generations"`
	// AvgWallTime is the mean wall-clock duration per task.
	AvgWallTime time.Duration `json:"avg_wall_time"`
	// Score is a composite quality signal in [0, 1], dominated by the
	// success rate and discounted slightly for deep decompositions.
	Score float64 `json:"score"`
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// Evaluator keeps a fixed-size ring of recent terminal tasks and
// publishes an evaluation snapshot after each one. Evaluation is purely
// advisory: nothing in the execution path reads it.
type Evaluator struct {
	bus    *bus.Bus
	window int

	mu      sync.Mutex
	samples []taskSample
	next    int
	filled  bool
}

// NewEvaluator creates an evaluator over a window of recent tasks.
func NewEvaluator(b *bus.Bus, window int) *Evaluator {
	if window <= 0 {
		window = 20
	}
	return &Evaluator{
		bus:     b,
		window:  window,
		samples: make([]taskSample, window),
	}
}

// Record rolls one terminal task into the window and publishes an
// updated snapshot on the evaluation topic.
func (e *Evaluator) Record(result *models.TaskResult) {
	if e == nil || result == nil {
		return
	}
	e.mu.Lock()
	e.samples[e.next] = taskSample{
		taskID:      result.TaskID,
		status:      result.Status,
		generations: result.Generations,
		wallTime:    result.FinishedAt.Sub(result.StartedAt),
	}
	e.next++
	if e.next == e.window {
		e.next = 0
		e.filled = true
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if e.bus != nil {
		if err := e.bus.Publish(models.TopicEvaluation, bus.Message{Payload: snap}); err != nil {
			log.Printf("[orchestrator] publish evaluation snapshot: %v", err)
		}
	}
}

// Snapshot returns the current evaluation over the window.
func (e *Evaluator) Snapshot() EvalSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Evaluator) snapshotLocked() EvalSnapshot {
	n := e.next
	if e.filled {
		n = e.window
	}
	snap := EvalSnapshot{Window: n, Timestamp: time.Now()}
	if n == 0 {
		return snap
	}

	completed := 0
	totalGens := 0
	var totalWall time.Duration
	for i := 0; i < n; i++ {
		s := e.samples[i]
		if s.status == models.TaskStatusCompleted {
			completed++
		}
		totalGens += s.generations
		totalWall += s.wallTime
	}

	snap.SuccessRate = float64(completed) / float64(n)
	snap.AvgGenerations = float64(totalGens) / float64(n)
	snap.AvgWallTime = totalWall / time.Duration(n)

	// Depth discount: a plan that needs many waves to finish is slower
	// to converge even when it succeeds.
	depth := 1.0 / (1.0 + snap.AvgGenerations/10.0)
	snap.Score = 0.8*snap.SuccessRate + 0.2*depth
	return snap
}
