package planner

import (
	"testing"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

func TestRouter_CriticalEscalatesToPrometheus(t *testing.T) {
	r := NewRouter()
	task := model.Task{Description: "implement a new feature", Complexity: model.ComplexityCritical}
	if got := r.Route(task); got != model.RolePrometheus {
		t.Fatalf("expected PROMETHEUS for critical complexity, got %s", got)
	}
}

func TestRouter_KeywordMatch(t *testing.T) {
	cases := []struct {
		desc string
		want model.Role
	}{
		{"please review this pull request", model.RoleReviewer},
		{"design the architecture for the new service", model.RoleArchitect},
		{"research the best caching strategy", model.RoleResearcher},
		{"deploy the service to kubernetes", model.RoleDevOps},
		{"implement the new endpoint", model.RoleCoder},
		{"do something entirely unrelated", model.RoleCoder},
	}
	r := NewRouter()
	for _, c := range cases {
		task := model.Task{Description: c.desc, Complexity: model.ComplexityModerate}
		if got := r.Route(task); got != c.want {
			t.Errorf("Route(%q) = %s, want %s", c.desc, got, c.want)
		}
	}
}

func TestRouter_FirstMatchWins(t *testing.T) {
	r := NewRouter()
	task := model.Task{Description: "review the architecture design doc", Complexity: model.ComplexityModerate}
	if got := r.Route(task); got != model.RoleReviewer {
		t.Fatalf("expected first matching rule (REVIEWER) to win, got %s", got)
	}
}

func TestRouter_ComplexComplexityEscalatesToPrometheus(t *testing.T) {
	r := NewRouter()
	task := model.Task{Description: "implement the new endpoint", Complexity: model.ComplexityComplex}
	if got := r.Route(task); got != model.RolePrometheus {
		t.Fatalf("expected PROMETHEUS for complex complexity, got %s", got)
	}
}

func TestRouter_MetaKeywordsEscalateToPrometheus(t *testing.T) {
	r := NewRouter()
	for _, desc := range []string{
		"plan the migration rollout",
		"simulate the failure scenario",
		"evolve the routing heuristics",
	} {
		task := model.Task{Description: desc, Complexity: model.ComplexityModerate}
		if got := r.Route(task); got != model.RolePrometheus {
			t.Errorf("Route(%q) = %s, want PROMETHEUS", desc, got)
		}
	}
}

func TestRouter_RouteIsDeterministic(t *testing.T) {
	r := NewRouter()
	task := model.Task{Description: "deploy the service to kubernetes", Complexity: model.ComplexityModerate}
	first := r.Route(task)
	task.EstimatedTokens = 9999
	task.ParentTaskID = "unrelated"
	if got := r.Route(task); got != first {
		t.Fatalf("routing changed after mutating unrelated fields: %s != %s", got, first)
	}
}

func TestRouter_RouteHealthyFallsBackWhenRoleUnhealthy(t *testing.T) {
	r := NewRouter()
	task := model.Task{Description: "implement the new endpoint", Complexity: model.ComplexityComplex}

	if got := r.RouteHealthy(task); got != model.RolePrometheus {
		t.Fatalf("expected healthy PROMETHEUS route, got %s", got)
	}

	for i := 0; i < consecutiveFailureThreshold; i++ {
		r.ReportOutcome(model.RolePrometheus, false)
	}
	if got := r.RouteHealthy(task); got != model.RoleArchitect {
		t.Fatalf("expected ARCHITECT fallback for unhealthy PROMETHEUS, got %s", got)
	}

	r.ReportOutcome(model.RolePrometheus, true)
	if got := r.RouteHealthy(task); got != model.RolePrometheus {
		t.Fatalf("expected PROMETHEUS again after recovery, got %s", got)
	}

	if r.Route(task) != model.RolePrometheus {
		t.Fatal("Route must stay pure regardless of health state")
	}
}
