package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// consoleGovernor implements both autonomy.Notifier and autonomy.Approver
// by talking to the operator's terminal. It is deliberately the only
// Notifier/Approver orchestratorctl wires in: a real deployment replaces
// it with a Slack/webhook adapter without touching the supervisor.
type consoleGovernor struct {
	gate decider
}

// decider is the narrow slice of *autonomy.Gate a consoleGovernor needs,
// declared locally so this file does not import internal/autonomy just to
// name the concrete type in a struct field.
type decider interface {
	Decide(requestID string, decision model.ApprovalDecision, decider string)
}

func (c *consoleGovernor) Notify(_ context.Context, task model.Task, operationClass string) {
	fmt.Fprintf(os.Stderr, "[notice] task %s (%s) proceeding at L1: %s\n", task.ID, operationClass, task.Description)
}

func (c *consoleGovernor) RequestApproval(_ context.Context, req model.ApprovalRequest) {
	fmt.Fprintf(os.Stderr, "\n[approval required] task %s: %s\nclass=%s level=%s\napprove? [y/N]: ",
		req.TaskID, req.Description, req.OperationClass, req.AutonomyLevel)

	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		line = strings.ToLower(strings.TrimSpace(line))

		decision := model.ApprovalRejected
		if line == "y" || line == "yes" {
			decision = model.ApprovalApproved
		}
		c.gate.Decide(req.ID, decision, "operator")
	}()
}
