package supervisor

import (
	"testing"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

func TestBuildTaskGraphLinearChain(t *testing.T) {
	tasks := []model.Task{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
	}

	g, err := buildTaskGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stages := g.Stages()
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages for a linear chain, got %d", len(stages))
	}
	for i, want := range []string{"a", "b", "c"} {
		if len(stages[i]) != 1 || stages[i][0] != want {
			t.Fatalf("stage %d = %v, want [%s]", i, stages[i], want)
		}
	}
}

func TestBuildTaskGraphFansOutIndependentTasks(t *testing.T) {
	tasks := []model.Task{
		{ID: "root"},
		{ID: "left", Dependencies: []string{"root"}},
		{ID: "right", Dependencies: []string{"root"}},
		{ID: "join", Dependencies: []string{"left", "right"}},
	}

	g, err := buildTaskGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stages := g.Stages()
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d: %v", len(stages), stages)
	}
	if len(stages[1]) != 2 {
		t.Fatalf("expected left/right to share a stage, got %v", stages[1])
	}
}

func TestBuildTaskGraphRejectsUnknownDependency(t *testing.T) {
	tasks := []model.Task{
		{ID: "a", Dependencies: []string{"missing"}},
	}
	if _, err := buildTaskGraph(tasks); err == nil {
		t.Fatal("expected an error for a dependency on an unknown task")
	}
}

func TestBuildTaskGraphRejectsCycle(t *testing.T) {
	tasks := []model.Task{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	if _, err := buildTaskGraph(tasks); err == nil {
		t.Fatal("expected an error for a dependency cycle")
	}
}

func TestBuildTaskGraphRejectsDuplicateID(t *testing.T) {
	tasks := []model.Task{
		{ID: "a"},
		{ID: "a"},
	}
	if _, err := buildTaskGraph(tasks); err == nil {
		t.Fatal("expected an error for a duplicate task id")
	}
}

func TestStagesReturnsDefensiveCopy(t *testing.T) {
	tasks := []model.Task{{ID: "a"}}
	g, err := buildTaskGraph(tasks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stages := g.Stages()
	stages[0][0] = "mutated"

	again := g.Stages()
	if again[0][0] != "a" {
		t.Fatalf("expected internal stage state untouched, got %v", again)
	}
}

func TestNilGraphStagesIsNil(t *testing.T) {
	var g *taskGraph
	if got := g.Stages(); got != nil {
		t.Fatalf("expected nil stages for a nil graph, got %v", got)
	}
}
