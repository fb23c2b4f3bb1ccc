package autonomy

import (
	"strings"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Policy layers pattern-matched operator overrides on top of the static
// classification table: an allow pattern downgrades a match to L0
// regardless of its static level, a deny pattern always escalates to
// human-only, and a require-approval pattern forces L2 even for an
// otherwise-autonomous class.
type Policy struct {
	// AllowPatterns are substrings that, when found in the task description,
	// force the decision to L0Autonomous.
	AllowPatterns []string

	// DenyPatterns force L3HumanOnly.
	DenyPatterns []string

	// RequireApprovalPatterns force L2Approve.
	RequireApprovalPatterns []string
}

// resolve returns the effective level for description, starting from
// staticLevel and applying policy overrides in deny > require-approval >
// allow precedence, so an operator's explicit deny can never be downgraded
// by an allow pattern that also happens to match.
func (p Policy) resolve(description string, staticLevel model.AutonomyLevel) model.AutonomyLevel {
	lower := strings.ToLower(description)

	if matchesAny(lower, p.DenyPatterns) {
		return model.L3HumanOnly
	}
	if matchesAny(lower, p.RequireApprovalPatterns) {
		return model.L2Approve
	}
	if matchesAny(lower, p.AllowPatterns) {
		return model.L0Autonomous
	}
	return staticLevel
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
