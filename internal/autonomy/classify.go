// Package autonomy implements the bounded-autonomy gate: operation
// classification, the static L0-L3 level mapping, and the ApprovalRequest
// lifecycle that blocks L2/L3 tasks pending a human decision or timeout.
package autonomy

import (
	"strings"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// classRule is one entry in the deterministic operation-class table: the
// first rule whose keyword appears in the lowercased task description wins.
type classRule struct {
	Class    string
	Level    model.AutonomyLevel
	Keywords []string
}

// classificationTable maps task-description keywords to an operation_class
// and its static autonomy level, evaluated in order.
var classificationTable = []classRule{
	{"deploy_production", model.L2Approve, []string{"deploy to production", "production deploy", "deploy production"}},
	{"data_exfiltration", model.L3HumanOnly, []string{"exfiltrate", "exfiltration"}},
	{"delete_resource", model.L2Approve, []string{"delete database", "drop table", "delete all", "rm -rf"}},
	{"shell_exec", model.L2Approve, []string{"run shell", "execute command", "shell command"}},
	{"write_file", model.L1Notify, []string{"write file", "create file", "edit file", "modify file"}},
	{"read_file", model.L0Autonomous, []string{"read file", "list files", "view file", "list directory"}},
	{"network_call", model.L1Notify, []string{"http request", "api call", "fetch url"}},
	{"code_generation", model.L0Autonomous, []string{"implement", "write code", "fix bug", "refactor"}},
}

// defaultClass/defaultLevel are used when nothing in the table matches.
const defaultClass = "general"

var defaultLevel = model.L0Autonomous

// Classify assigns an operation_class and its static autonomy level to t by
// keyword matching on the lowercased description, mirroring the tie-break
// rule the planner/router use: the first matching rule wins.
func Classify(t model.Task) (class string, level model.AutonomyLevel) {
	lower := strings.ToLower(t.Description)
	for _, rule := range classificationTable {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Class, rule.Level
			}
		}
	}
	return defaultClass, defaultLevel
}

// capabilityLevels maps a tool capability class to the autonomy level a
// task must have been cleared at before the supervisor will dispatch a
// tool of that class. Unknown classes are held to L2.
var capabilityLevels = map[string]model.AutonomyLevel{
	"fs_read":    model.L0Autonomous,
	"fs_write":   model.L1Notify,
	"network":    model.L1Notify,
	"shell_exec": model.L2Approve,
}

// CapabilityLevel returns the autonomy level required to invoke a tool of
// the given capability class.
func CapabilityLevel(class string) model.AutonomyLevel {
	if lvl, ok := capabilityLevels[class]; ok {
		return lvl
	}
	return model.L2Approve
}
