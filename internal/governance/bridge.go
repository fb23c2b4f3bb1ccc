// Package governance implements the pre-task policy veto: a single
// bounded-time review call that runs before planning and can short-circuit
// an entire session.
package governance

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Reviewer is the judging sub-system the bridge consults. Any
// implementation - a static policy table, an external service call, an LLM
// judge - can satisfy this interface.
type Reviewer interface {
	Review(ctx context.Context, task model.Task, sessionContext map[string]any) (model.Verdict, error)
}

// ReviewerFunc adapts a plain function to Reviewer.
type ReviewerFunc func(ctx context.Context, task model.Task, sessionContext map[string]any) (model.Verdict, error)

func (f ReviewerFunc) Review(ctx context.Context, task model.Task, sessionContext map[string]any) (model.Verdict, error) {
	return f(ctx, task, sessionContext)
}

// Bridge runs the bounded pre-task review. A nil Reviewer means no governance
// sub-system is configured; Bridge then always returns the permissive
// default verdict.
type Bridge struct {
	reviewer Reviewer
	timeout  time.Duration
	log      *slog.Logger
}

// New constructs a Bridge. timeout <= 0 defaults to 5s.
func New(reviewer Reviewer, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		reviewer: reviewer,
		timeout:  timeout,
		log:      slog.Default().With("component", "governance.bridge"),
	}
}

// permissiveDefault is returned when no verdict arrives in time, or no
// reviewer is configured: absence of a verdict is treated as
// permissive-with-warning.
func permissiveDefault(governor string) model.Verdict {
	return model.Verdict{
		Approved:  true,
		Reasoning: "no verdict received within the review window; defaulting to permissive",
		RiskLevel: model.RiskLow,
		Governor:  governor,
	}
}

// Review runs the configured Reviewer within the bounded timeout. It never
// returns an error: a reviewer failure or timeout is folded into a
// permissive-with-warning verdict, logged for operator visibility.
func (b *Bridge) Review(ctx context.Context, task model.Task, sessionContext map[string]any) model.Verdict {
	if b.reviewer == nil {
		return permissiveDefault("none")
	}

	reviewCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resultCh := make(chan model.Verdict, 1)
	errCh := make(chan error, 1)

	go func() {
		verdict, err := b.reviewer.Review(reviewCtx, task, sessionContext)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- verdict
	}()

	select {
	case verdict := <-resultCh:
		return verdict
	case err := <-errCh:
		b.log.Warn("governance review failed, defaulting to permissive",
			"task_id", task.ID, "error", err)
		return permissiveDefault("none")
	case <-reviewCtx.Done():
		b.log.Warn("governance review timed out, defaulting to permissive",
			"task_id", task.ID, "timeout", b.timeout)
		return permissiveDefault("none")
	}
}
