package model

// Complexity classifies the estimated difficulty of a task, as assigned by
// the planner.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// Role is a worker role from the closed routing set.
type Role string

const (
	RoleCoder      Role = "CODER"
	RoleReviewer   Role = "REVIEWER"
	RoleArchitect  Role = "ARCHITECT"
	RoleResearcher Role = "RESEARCHER"
	RoleDevOps     Role = "DEVOPS"
	RolePrometheus Role = "PROMETHEUS"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is a unit of work produced by the planner and carried through the
// supervisor's DAG execution.
//
// Status is monotonic except for two transitions the supervisor relies on:
// pending -> ready (dependency resolution) and a retry-induced
// failed -> in_progress.
type Task struct {
	// ID is unique within the owning session.
	ID string `json:"id"`

	Description string `json:"description"`

	Complexity Complexity `json:"complexity"`

	// AssignedRole is set by the router; empty until routed.
	AssignedRole Role `json:"assigned_role,omitempty"`

	// ParentTaskID is set when this task was spawned by another task.
	ParentTaskID string `json:"parent_task_id,omitempty"`

	// Dependencies are task ids that must be Completed before this task
	// becomes Ready.
	Dependencies []string `json:"dependencies,omitempty"`

	Status TaskStatus `json:"status"`

	// Result holds the task's output payload once terminal.
	Result any `json:"result,omitempty"`

	// EstimatedTokens is a budgeting hint, not an enforced limit.
	EstimatedTokens int `json:"estimated_tokens,omitempty"`
}

// CanTransition reports whether moving from the task's current status to
// `to` is permitted by the monotonicity invariant.
func (t *Task) CanTransition(to TaskStatus) bool {
	if t.Status == to {
		return true
	}
	switch {
	case t.Status == TaskPending && to == TaskReady:
		return true
	case t.Status == TaskFailed && to == TaskInProgress:
		return true
	}
	return taskRank(to) > taskRank(t.Status)
}

func taskRank(s TaskStatus) int {
	switch s {
	case TaskPending:
		return 0
	case TaskReady:
		return 1
	case TaskInProgress:
		return 2
	case TaskCompleted, TaskFailed, TaskCancelled:
		return 3
	default:
		return -1
	}
}
