package planner

import (
	"strings"
	"sync"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// roleRule is one entry in the deterministic routing table: if any of
// Keywords appears in the task description, Role is a candidate match.
type roleRule struct {
	Role     model.Role
	Keywords []string
}

// prometheusKeywords escalate a task to the PROMETHEUS meta-role regardless
// of its keyword routing, alongside complex/critical complexity.
var prometheusKeywords = []string{"plan", "complex", "evolve", "simulate"}

// routingTable is evaluated in order; the first rule whose keyword matches
// wins, mirroring the "first matching keyword wins" tie-break. It is
// consulted only after the PROMETHEUS escalation has been checked, since
// complexity escalation takes precedence over keyword routing.
var routingTable = []roleRule{
	{model.RoleReviewer, []string{"review", "audit", "critique"}},
	{model.RoleArchitect, []string{"architecture", "design", "redesign", "system design"}},
	{model.RoleResearcher, []string{"research", "investigate", "find out", "look into"}},
	{model.RoleDevOps, []string{"deploy", "infrastructure", "ci/cd", "pipeline", "kubernetes", "terraform"}},
	{model.RoleCoder, []string{"implement", "fix", "write", "code", "build", "refactor"}},
}

// fallbackChain maps a role to the role a task falls back to when the
// primary's worker is reported unhealthy. Roles absent from the chain fall
// back to CODER.
var fallbackChain = map[model.Role]model.Role{
	model.RolePrometheus: model.RoleArchitect,
	model.RoleArchitect:  model.RoleCoder,
	model.RoleReviewer:   model.RoleCoder,
	model.RoleResearcher: model.RoleCoder,
	model.RoleDevOps:     model.RoleCoder,
}

// Router assigns a Role to a task deterministically: complex- or
// critical-complexity tasks (and tasks using meta-planning vocabulary)
// escalate to PROMETHEUS ahead of any keyword evaluation, then the routing
// table is scanned in order and the first matching rule wins, and a task
// matching nothing falls back to CODER.
//
// Route itself is pure. Health tracking lives alongside it: the supervisor
// reports worker outcomes through ReportOutcome, and RouteHealthy applies
// the fallback chain on top of the pure decision without ever changing what
// Route returns for the same input.
type Router struct {
	mu        sync.RWMutex
	unhealthy map[model.Role]int
}

// consecutiveFailureThreshold is how many consecutive worker failures mark a
// role unhealthy for RouteHealthy's fallback.
const consecutiveFailureThreshold = 3

// NewRouter constructs a Router with all roles healthy.
func NewRouter() *Router {
	return &Router{unhealthy: make(map[model.Role]int)}
}

// Route assigns and returns the Role for t. It does not mutate t.
func (r *Router) Route(t model.Task) model.Role {
	lower := strings.ToLower(t.Description)

	if t.Complexity == model.ComplexityComplex || t.Complexity == model.ComplexityCritical {
		return model.RolePrometheus
	}
	for _, kw := range prometheusKeywords {
		if strings.Contains(lower, kw) {
			return model.RolePrometheus
		}
	}

	for _, rule := range routingTable {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Role
			}
		}
	}

	return model.RoleCoder
}

// RouteHealthy routes t, then walks the fallback chain past any role whose
// worker is currently unhealthy. A fully-unhealthy chain returns the last
// candidate rather than failing: routing never fails.
func (r *Router) RouteHealthy(t model.Task) model.Role {
	role := r.Route(t)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < len(fallbackChain); i++ {
		if r.unhealthy[role] < consecutiveFailureThreshold {
			return role
		}
		next, ok := fallbackChain[role]
		if !ok {
			return role
		}
		role = next
	}
	return role
}

// ReportOutcome records one worker dispatch outcome for role. A success
// resets the consecutive-failure count; enough consecutive failures mark
// the role unhealthy until its next success.
func (r *Router) ReportOutcome(role model.Role, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		delete(r.unhealthy, role)
		return
	}
	r.unhealthy[role]++
}

// Healthy reports whether role is currently considered healthy.
func (r *Router) Healthy(role model.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unhealthy[role] < consecutiveFailureThreshold
}
