// Package registry tracks live capability providers and selects agents
// for subtasks using a capability, health and performance score.
//
// All state lives behind one exclusive lock: the registry is small, and
// read-after-write consistency between selection and result reporting
// matters more than read concurrency.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

var (
	// ErrNoCapableAgent indicates no registered agent can take the subtask.
	// This is a normal per-subtask condition, not a fatal error.
	ErrNoCapableAgent = errors.New("no capable agent")
	// ErrNotFound indicates an operation on an unknown agent ID.
	ErrNotFound = errors.New("agent not found")
	// ErrDuplicateID indicates a registration with an ID already in use.
	ErrDuplicateID = errors.New("duplicate agent id")
	// ErrInvalidID indicates a registration with an empty ID.
	ErrInvalidID = errors.New("invalid agent id")
)

// Weights are the scoring coefficients for agent selection.
type Weights struct {
	// Success weights the agent's success rate.
	Success float64
	// Speed weights the inverse of the agent's normalized average duration.
	Speed float64
	// Load weights the inverse of the agent's current load.
	Load float64
}

// DefaultWeights returns the default 0.5/0.3/0.2 scoring coefficients.
func DefaultWeights() Weights {
	return Weights{Success: 0.5, Speed: 0.3, Load: 0.2}
}

// entry pairs an agent record with its registration sequence number.
// The sequence breaks scoring ties deterministically: earliest wins.
type entry struct {
	rec *models.AgentRecord
	seq uint64
}

// Registry tracks all live capability providers.
type Registry struct {
	mu      sync.Mutex
	agents  map[string]*entry
	nextSeq uint64
	weights Weights
}

// New creates an empty registry with the given scoring weights.
func New(w Weights) *Registry {
	if w.Success == 0 && w.Speed == 0 && w.Load == 0 {
		w = DefaultWeights()
	}
	return &Registry{
		agents:  make(map[string]*entry),
		weights: w,
	}
}

// Register adds an agent record to the registry. The registry takes a
// copy; callers never share the stored record.
func (r *Registry) Register(rec *models.AgentRecord) error {
	if rec == nil || rec.AgentID == "" {
		return ErrInvalidID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[rec.AgentID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.AgentID)
	}
	cp := *rec
	cp.Capabilities = append([]string(nil), rec.Capabilities...)
	if cp.Status == "" {
		cp.Status = models.AgentStatusIdle
	}
	if cp.LastHeartbeat.IsZero() {
		cp.LastHeartbeat = time.Now()
	}
	r.nextSeq++
	r.agents[rec.AgentID] = &entry{rec: &cp, seq: r.nextSeq}
	return nil
}

// Unregister removes an agent from the registry.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agentID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	delete(r.agents, agentID)
	return nil
}

// Heartbeat updates an agent's liveness, status and load from a
// provider health report.
func (r *Registry) Heartbeat(agentID string, health models.AgentHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.agents[agentID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	e.rec.LastHeartbeat = time.Now()
	if health.Status.Valid() {
		e.rec.Status = health.Status
	}
	if health.Load >= 0 {
		e.rec.CurrentLoad = health.Load
	}
	return nil
}

// ReportDispatch records that a subtask was assigned to the agent,
// bumping its load and marking it working.
func (r *Registry) ReportDispatch(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.agents[agentID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	e.rec.CurrentLoad++
	if e.rec.Status == models.AgentStatusIdle {
		e.rec.Status = models.AgentStatusWorking
	}
	return nil
}

// ReportResult rolls an execution outcome into the agent's performance
// counters and releases the load the dispatch added.
func (r *Registry) ReportResult(agentID string, success bool, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.agents[agentID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	rec := e.rec
	if success {
		rec.SuccessCount++
	} else {
		rec.FailureCount++
	}
	// Rolling mean over all completed executions.
	total := rec.SuccessCount + rec.FailureCount
	rec.AvgDuration = time.Duration((int64(rec.AvgDuration)*int64(total-1) + int64(duration)) / int64(total))
	if rec.CurrentLoad > 0 {
		rec.CurrentLoad--
	}
	if rec.CurrentLoad == 0 && rec.Status == models.AgentStatusWorking {
		rec.Status = models.AgentStatusIdle
	}
	return nil
}

// Get returns a copy of the agent record.
func (r *Registry) Get(agentID string) (*models.AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.agents[agentID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	cp := *e.rec
	cp.Capabilities = append([]string(nil), e.rec.Capabilities...)
	return &cp, nil
}

// List returns copies of all agent records in registration order.
func (r *Registry) List() []*models.AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*models.AgentRecord, 0, len(entries))
	for _, e := range entries {
		cp := *e.rec
		cp.Capabilities = append([]string(nil), e.rec.Capabilities...)
		out = append(out, &cp)
	}
	return out
}

// SelectForTask returns the best agent offering every required
// capability. Candidates must be IDLE or WORKING; if any IDLE candidate
// exists only IDLE agents are scored. Given identical registry state,
// repeated calls return the same agent.
func (r *Registry) SelectForTask(required []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		if !e.rec.Status.Selectable() {
			continue
		}
		if !e.rec.HasCapabilities(required) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return "", ErrNoCapableAgent
	}

	// Prefer idle agents when at least one exists.
	idle := make([]*entry, 0, len(candidates))
	for _, e := range candidates {
		if e.rec.Status == models.AgentStatusIdle {
			idle = append(idle, e)
		}
	}
	if len(idle) > 0 {
		candidates = idle
	}

	// Sort by registration sequence so ties resolve to the earliest agent.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	maxAvg := maxAvgDuration(candidates)
	best := candidates[0]
	bestScore := r.score(best.rec, maxAvg)
	for _, e := range candidates[1:] {
		if s := r.score(e.rec, maxAvg); s > bestScore {
			best = e
			bestScore = s
		}
	}
	return best.rec.AgentID, nil
}

// score computes the weighted selection score for one candidate.
// Average durations are normalized against the slowest candidate so the
// slowest normalizes to 1.0; agents without history score neutrally.
func (r *Registry) score(rec *models.AgentRecord, maxAvg time.Duration) float64 {
	speed := 1.0
	if rec.AvgDuration > 0 && maxAvg > 0 {
		normalized := float64(rec.AvgDuration) / float64(maxAvg)
		speed = 1.0 / normalized
	}
	loadTerm := 1.0 / (1.0 + float64(rec.CurrentLoad))
	return r.weights.Success*rec.SuccessRate() +
		r.weights.Speed*speed +
		r.weights.Load*loadTerm
}

// maxAvgDuration returns the largest average duration among candidates.
func maxAvgDuration(candidates []*entry) time.Duration {
	var max time.Duration
	for _, e := range candidates {
		if e.rec.AvgDuration > max {
			max = e.rec.AvgDuration
		}
	}
	return max
}
