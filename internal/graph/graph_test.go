package graph

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

func subtask(id string, deps ...string) *models.Subtask {
	return &models.Subtask{ID: id, Type: "test", DependsOn: deps}
}

func TestBuildDiamond(t *testing.T) {
	// entropy and redundancy are independent, pattern needs entropy,
	// recommend needs all three.
	subtasks := []*models.Subtask{
		subtask("entropy"),
		subtask("redundancy"),
		subtask("pattern", "entropy"),
		subtask("recommend", "entropy", "redundancy", "pattern"),
	}

	g := Build(subtasks)

	want := [][]string{
		{"entropy", "redundancy"},
		{"pattern"},
		{"recommend"},
	}
	if got := g.Generations(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Generations() = %v, want %v", got, want)
	}

	for id, wantGen := range map[string]int{
		"entropy": 0, "redundancy": 0, "pattern": 1, "recommend": 2,
	} {
		if got := g.Subtask(id).Generation; got != wantGen {
			t.Errorf("subtask %s generation = %d, want %d", id, got, wantGen)
		}
	}
}

func TestBuildDropsDanglingDependency(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("a"),
		subtask("b", "a", "ghost"),
	}

	g := Build(subtasks)

	dropped := g.DroppedDanglingEdges()
	if len(dropped) != 1 || dropped[0].To != "ghost" {
		t.Fatalf("DroppedDanglingEdges() = %v, want one edge to ghost", dropped)
	}
	if got := g.Dependencies("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Dependencies(b) = %v, want [a]", got)
	}
	// The subtask's own view must match the validated graph.
	if got := g.Subtask("b").DependsOn; !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("subtask b DependsOn = %v, want [a]", got)
	}
}

func TestBuildBreaksCycleDeterministically(t *testing.T) {
	build := func() *Graph {
		return Build([]*models.Subtask{
			subtask("a", "c"),
			subtask("b", "a"),
			subtask("c", "b"),
		})
	}

	g := build()

	removed := g.RemovedCycleEdges()
	if len(removed) != 1 {
		t.Fatalf("RemovedCycleEdges() = %v, want exactly one edge", removed)
	}
	// DFS in insertion order finds the back edge b -> a.
	if removed[0] != (Edge{From: "b", To: "a"}) {
		t.Errorf("removed edge = %v, want {b a}", removed[0])
	}

	gens := g.Generations()
	if len(gens) != 3 {
		t.Fatalf("Generations() = %v, want 3 singleton generations", gens)
	}
	for i, gen := range gens {
		if len(gen) != 1 {
			t.Errorf("generation %d = %v, want a single subtask", i, gen)
		}
	}

	// Same input, same outcome.
	again := build()
	if !reflect.DeepEqual(again.Generations(), gens) {
		t.Errorf("rebuild produced %v, want %v", again.Generations(), gens)
	}
	if !reflect.DeepEqual(again.RemovedCycleEdges(), removed) {
		t.Errorf("rebuild removed %v, want %v", again.RemovedCycleEdges(), removed)
	}
}

func TestBuildSelfLoop(t *testing.T) {
	g := Build([]*models.Subtask{subtask("a", "a")})

	if removed := g.RemovedCycleEdges(); len(removed) != 1 {
		t.Fatalf("RemovedCycleEdges() = %v, want the self loop removed", removed)
	}
	if got := g.Generations(); !reflect.DeepEqual(got, [][]string{{"a"}}) {
		t.Errorf("Generations() = %v, want [[a]]", got)
	}
}

func TestTopologicalSortRespectsDependencies(t *testing.T) {
	subtasks := []*models.Subtask{
		subtask("d", "b", "c"),
		subtask("b", "a"),
		subtask("c", "a"),
		subtask("a"),
	}
	g := Build(subtasks)

	pos := make(map[string]int)
	for i, id := range g.TopologicalSort() {
		pos[id] = i
	}
	for _, st := range subtasks {
		for _, dep := range st.DependsOn {
			if pos[dep] >= pos[st.ID] {
				t.Errorf("dependency %s sorted after %s", dep, st.ID)
			}
		}
	}
}

func TestBuildRandomGraphsAlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(12)
		subtasks := make([]*models.Subtask, 0, n)
		for i := 0; i < n; i++ {
			st := subtask(fmt.Sprintf("n%d", i))
			// Random edges, cycles and dangling references included.
			for j := 0; j < rng.Intn(4); j++ {
				st.DependsOn = append(st.DependsOn, fmt.Sprintf("n%d", rng.Intn(n+2)))
			}
			subtasks = append(subtasks, st)
		}

		g := Build(subtasks)

		seen := 0
		for genIdx, gen := range g.Generations() {
			for _, id := range gen {
				seen++
				for _, dep := range g.Dependencies(id) {
					depGen := g.Subtask(dep).Generation
					if depGen >= genIdx {
						t.Fatalf("trial %d: %s in generation %d depends on %s in generation %d",
							trial, id, genIdx, dep, depGen)
					}
				}
			}
		}
		if seen != n {
			t.Fatalf("trial %d: generations cover %d of %d subtasks", trial, seen, n)
		}
	}
}
