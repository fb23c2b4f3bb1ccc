package supervisor

import (
	"fmt"
	"sort"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// taskGraph is a stage-ordered execution plan over a Task DAG: tasks with
// the same dependency depth share a stage and may be dispatched
// concurrently, while a later stage only starts once every task in the
// stages before it has resolved.
type taskGraph struct {
	stages [][]string
}

// buildTaskGraph runs Kahn's algorithm over tasks' Dependencies, returning
// an error if a dependency refers to an unknown task or the graph contains
// a cycle. Both violate the planner's DAG contract.
func buildTaskGraph(tasks []model.Task) (*taskGraph, error) {
	byID := make(map[string]model.Task, len(tasks))
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, t := range tasks {
		if _, exists := byID[t.ID]; exists {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		byID[t.ID] = t
		indegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	processed := 0
	var stages [][]string
	for len(ready) > 0 {
		stage := append([]string(nil), ready...)
		stages = append(stages, stage)

		var next []string
		for _, id := range stage {
			processed++
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		ready = next
	}

	if processed != len(byID) {
		return nil, fmt.Errorf("task dependency cycle detected")
	}
	return &taskGraph{stages: stages}, nil
}

// Stages returns a defensive copy of the staged task ids, earliest first.
func (g *taskGraph) Stages() [][]string {
	if g == nil {
		return nil
	}
	out := make([][]string, len(g.stages))
	for i := range g.stages {
		out[i] = append([]string(nil), g.stages[i]...)
	}
	return out
}
