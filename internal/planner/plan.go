package planner

import (
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Planner decomposes a Request into a Task DAG. Decomposition is
// deliberately simple and deterministic: a request is split into one task
// per step when the prompt enumerates steps (numbered list, or
// "then"/"and then" separated clauses), each depending on the one before
// it; otherwise the whole prompt becomes a single task.
type Planner struct {
	maxTasks int
}

// NewPlanner constructs a Planner with the default task cap.
func NewPlanner() *Planner {
	return &Planner{maxTasks: defaultMaxTasks}
}

// NewPlannerWithMax constructs a Planner capping decomposition at max tasks
// per request; a non-positive max falls back to the default.
func NewPlannerWithMax(max int) *Planner {
	if max <= 0 {
		max = defaultMaxTasks
	}
	return &Planner{maxTasks: max}
}

// defaultMaxTasks caps how many tasks a single request may decompose into;
// steps beyond the cap are folded into the final task.
const defaultMaxTasks = 20

// Plan decomposes req into an ordered task DAG, assigning each task an id,
// a complexity classification, and a linear dependency chain. Plan never
// fails: an empty or pathological prompt produces a singleton task carrying
// the raw input, and the step count is capped at the planner's maximum.
func (p *Planner) Plan(req model.Request) []model.Task {
	steps := splitSteps(req.Prompt)
	if len(steps) == 0 {
		steps = []string{req.Prompt}
	}
	max := p.maxTasks
	if max <= 0 {
		max = defaultMaxTasks
	}
	if len(steps) > max {
		steps[max-1] = strings.Join(steps[max-1:], "; ")
		steps = steps[:max]
	}

	tasks := make([]model.Task, 0, len(steps))
	var prevID string
	for _, step := range steps {
		t := model.Task{
			ID:          uuid.NewString(),
			Description: step,
			Complexity:  model.Complexity(ClassifyComplexity(step)),
			Status:      model.TaskPending,
		}
		if prevID != "" {
			t.Dependencies = []string{prevID}
		}
		tasks = append(tasks, t)
		prevID = t.ID
	}

	if len(tasks) > 0 {
		tasks[0].Status = model.TaskReady
	}
	return tasks
}

// splitSteps breaks a prompt into ordered steps. Numbered list items
// ("1. ...", "2. ...") take precedence; otherwise the prompt is split on
// "then"/"and then" clause boundaries; a prompt with neither is returned
// as a single step.
func splitSteps(prompt string) []string {
	if items := splitNumberedList(prompt); len(items) > 1 {
		return items
	}
	if items := splitThenClauses(prompt); len(items) > 1 {
		return items
	}
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return nil
	}
	return []string{trimmed}
}

func splitNumberedList(prompt string) []string {
	lines := strings.Split(prompt, "\n")
	var items []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rest, ok := trimNumberedPrefix(line)
		if !ok {
			return nil
		}
		items = append(items, rest)
	}
	return items
}

func trimNumberedPrefix(line string) (string, bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return "", false
	}
	if line[i] != '.' && line[i] != ')' {
		return "", false
	}
	return strings.TrimSpace(line[i+1:]), true
}

func splitThenClauses(prompt string) []string {
	replaced := strings.NewReplacer(" and then ", "\x00", " then ", "\x00").Replace(prompt)
	parts := strings.Split(replaced, "\x00")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}
