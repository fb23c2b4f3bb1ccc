package planner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

func TestPlan_SingleStep(t *testing.T) {
	p := NewPlanner()
	tasks := p.Plan(model.Request{Prompt: "fix the login bug"})
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Status != model.TaskReady {
		t.Fatalf("expected first task ready, got %s", tasks[0].Status)
	}
	if len(tasks[0].Dependencies) != 0 {
		t.Fatalf("expected no dependencies, got %v", tasks[0].Dependencies)
	}
}

func TestPlan_NumberedListChainsDependencies(t *testing.T) {
	p := NewPlanner()
	tasks := p.Plan(model.Request{Prompt: "1. write the tests\n2. implement the feature\n3. review the diff"})
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if len(tasks[1].Dependencies) != 1 || tasks[1].Dependencies[0] != tasks[0].ID {
		t.Fatalf("expected task 2 to depend on task 1, got %v", tasks[1].Dependencies)
	}
	if len(tasks[2].Dependencies) != 1 || tasks[2].Dependencies[0] != tasks[1].ID {
		t.Fatalf("expected task 3 to depend on task 2, got %v", tasks[2].Dependencies)
	}
}

func TestPlan_ThenClauses(t *testing.T) {
	p := NewPlanner()
	tasks := p.Plan(model.Request{Prompt: "write the design doc and then implement it"})
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestPlan_EmptyPromptYieldsSingletonTask(t *testing.T) {
	p := NewPlanner()
	tasks := p.Plan(model.Request{Prompt: ""})
	if len(tasks) != 1 {
		t.Fatalf("expected a singleton task for an empty prompt, got %d", len(tasks))
	}
	if tasks[0].Status != model.TaskReady {
		t.Fatalf("expected the singleton task ready, got %s", tasks[0].Status)
	}
}

func TestPlan_CapsStepCount(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= defaultMaxTasks+10; i++ {
		fmt.Fprintf(&b, "%d. step number %d\n", i, i)
	}
	p := NewPlanner()
	tasks := p.Plan(model.Request{Prompt: b.String()})
	if len(tasks) != defaultMaxTasks {
		t.Fatalf("expected %d tasks after capping, got %d", defaultMaxTasks, len(tasks))
	}
	last := tasks[len(tasks)-1].Description
	if !strings.Contains(last, fmt.Sprintf("step number %d", defaultMaxTasks+10)) {
		t.Fatalf("expected overflow steps folded into the final task, got %q", last)
	}
}

func TestClassifyComplexity(t *testing.T) {
	longArchitecture := "redesign the architecture of the data ingestion pipeline so that every consumer " +
		"in every region can tolerate the loss of an entire cloud provider without dropping events, " +
		"including active active replication across clouds, automated failover drills, partition aware " +
		"routing for every topic, and a staged rollout that lets each team migrate its consumers " +
		"independently without downtime or data loss anywhere"

	cases := []struct {
		desc string
		want string
	}{
		{"fix typo", "trivial"},
		{"update the dependency pins in the module", "simple"},
		{"audit the authentication flow for a production security vulnerability", "critical"},
		{longArchitecture, "complex"},
		{"update the README with the new install instructions please everyone", "moderate"},
	}
	for _, c := range cases {
		got := ClassifyComplexity(c.desc)
		if got != c.want {
			t.Errorf("ClassifyComplexity(%q) = %q, want %q", c.desc, got, c.want)
		}
	}
}
