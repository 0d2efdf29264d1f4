// Package graph builds and validates the dependency graph of a task's
// subtasks. Dangling dependency references are dropped with a warning,
// cycles are broken by removing the back edge that closed them, and the
// surviving DAG is partitioned into generations of subtasks that may
// execute concurrently.
package graph

import (
	"log"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// Edge is a dependency edge: From depends on To.
type Edge struct {
	From string
	To   string
}

// Graph is the validated dependency graph of one task's subtasks.
// After Build returns the graph is guaranteed acyclic and every
// dependency ID referenced by a surviving subtask exists in the graph.
type Graph struct {
	// order preserves subtask insertion order for deterministic traversal.
	order []string
	nodes map[string]*models.Subtask
	// edges maps subtask ID to the IDs it depends on.
	edges map[string][]string

	generations     [][]string
	droppedDangling []Edge
	removedCycles   []Edge

	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// Build constructs and validates the graph from a subtask list.
// Validation never fails: dangling references are dropped, cycles are
// broken edge by edge, and each subtask's Generation field is assigned.
func Build(subtasks []*models.Subtask) *Graph {
	g := &Graph{
		nodes:    make(map[string]*models.Subtask, len(subtasks)),
		edges:    make(map[string][]string, len(subtasks)),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}

	// First pass: register all subtasks as nodes.
	for _, st := range subtasks {
		g.order = append(g.order, st.ID)
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	// Second pass: build edges, dropping references to unknown siblings.
	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				g.droppedDangling = append(g.droppedDangling, Edge{From: st.ID, To: depID})
				log.Printf("[graph] subtask %s depends on unknown subtask %s, dropping edge", st.ID, depID)
				continue
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	g.removeCycles()
	g.assignGenerations()

	// Sync each subtask's dependency list with the surviving edges so
	// callers see the validated view.
	for id, st := range g.nodes {
		st.DependsOn = append([]string(nil), g.edges[id]...)
	}

	return g
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// removeCycles repeatedly runs cycle detection, removing the back edge
// that closed each cycle until the graph is acyclic.
func (g *Graph) removeCycles() {
	for {
		back, found := g.findBackEdge()
		if !found {
			return
		}
		g.removeEdge(back)
		g.removedCycles = append(g.removedCycles, back)
		log.Printf("[graph] cycle detected, removed edge %s -> %s", back.From, back.To)
	}
}

// findBackEdge runs a three-color depth-first search and returns the
// first back edge found. Traversal follows insertion order so edge
// removal is deterministic for a given input.
func (g *Graph) findBackEdge() (Edge, bool) {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var back Edge
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1 // Mark as in progress.
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge closing a cycle.
				back = Edge{From: id, To: depID}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}
		colors[id] = 2 // Mark as done.
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if visit(id) {
				return back, true
			}
		}
	}
	return Edge{}, false
}

// removeEdge deletes one dependency edge.
func (g *Graph) removeEdge(e Edge) {
	deps := g.edges[e.From]
	for i, depID := range deps {
		if depID == e.To {
			g.edges[e.From] = append(deps[:i:i], deps[i+1:]...)
			return
		}
	}
}

// assignGenerations runs Kahn's algorithm over the acyclic graph,
// assigning each subtask a generation index of 1 + the maximum
// generation among its dependencies (0 for dependency-free subtasks).
func (g *Graph) assignGenerations() {
	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.edges[id])
		for _, depID := range g.edges[id] {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	gen := make(map[string]int, len(g.nodes))
	var queue []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
			gen[id] = 0
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, depnt := range dependents[id] {
			if gen[id]+1 > gen[depnt] {
				gen[depnt] = gen[id] + 1
			}
			indegree[depnt]--
			if indegree[depnt] == 0 {
				queue = append(queue, depnt)
			}
		}
	}
	if processed != len(g.nodes) {
		// Unreachable after removeCycles; keep the trace in case it isn't.
		g.debugLog("[graph] kahn processed %d of %d nodes", processed, len(g.nodes))
	}

	maxGen := -1
	for _, id := range g.order {
		g.nodes[id].Generation = gen[id]
		if gen[id] > maxGen {
			maxGen = gen[id]
		}
	}

	g.generations = make([][]string, maxGen+1)
	for _, id := range g.order {
		k := gen[id]
		g.generations[k] = append(g.generations[k], id)
	}
}

// Generations returns subtask IDs partitioned into ordered concurrency
// groups: group k contains only subtasks whose dependencies live in
// groups 0..k-1.
func (g *Graph) Generations() [][]string {
	out := make([][]string, len(g.generations))
	for i, gen := range g.generations {
		out[i] = append([]string(nil), gen...)
	}
	return out
}

// TopologicalSort returns subtask IDs in an order where dependencies
// come before the subtasks that depend on them.
func (g *Graph) TopologicalSort() []string {
	out := make([]string, 0, len(g.order))
	for _, gen := range g.generations {
		out = append(out, gen...)
	}
	return out
}

// Subtask returns the subtask for an ID, or nil if not found.
func (g *Graph) Subtask(id string) *models.Subtask {
	return g.nodes[id]
}

// Dependencies returns the validated dependency IDs of a subtask.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the IDs of subtasks that depend on the given one.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for _, from := range g.order {
		for _, depID := range g.edges[from] {
			if depID == id {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// Size returns the number of subtasks in the graph.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// RemovedCycleEdges returns the edges removed to break cycles.
func (g *Graph) RemovedCycleEdges() []Edge {
	return append([]Edge(nil), g.removedCycles...)
}

// DroppedDanglingEdges returns the dependency references dropped because
// they named unknown subtasks.
func (g *Graph) DroppedDanglingEdges() []Edge {
	return append([]Edge(nil), g.droppedDangling...)
}
