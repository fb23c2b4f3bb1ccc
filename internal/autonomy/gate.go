package autonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator-core/internal/orcherr"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// Notifier is the capability L1 decisions invoke asynchronously. It must not
// block the caller; Gate itself fires it on its own goroutine regardless of
// how long Notify takes.
type Notifier interface {
	Notify(ctx context.Context, task model.Task, operationClass string)
}

// Approver is the capability L2/L3 decisions invoke to solicit a human
// decision. RequestApproval should return quickly (e.g. after enqueuing a
// notification); the eventual decision arrives out of band through the
// Gate's Decide method.
type Approver interface {
	RequestApproval(ctx context.Context, req model.ApprovalRequest)
}

// SpanRecorder is the narrow span interface the gate annotates with
// autonomy-decision events, satisfied by *internal/telemetry.ActiveSpan
// without the autonomy package importing telemetry.
type SpanRecorder interface {
	AddEvent(name string, attributes map[string]any)
}

// Gate implements the bounded-autonomy check: classify, decide L0-L3, and
// for L2/L3 block on an ApprovalRequest's decision or timeout.
type Gate struct {
	policy         Policy
	notifier       Notifier
	approver       Approver
	defaultTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan model.ApprovalRequest

	log *slog.Logger
}

// NewGate constructs a Gate. defaultTimeout is the L2 wait cap, 30s when
// non-positive.
func NewGate(policy Policy, notifier Notifier, approver Approver, defaultTimeout time.Duration) *Gate {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Gate{
		policy:         policy,
		notifier:       notifier,
		approver:       approver,
		defaultTimeout: defaultTimeout,
		pending:        make(map[string]chan model.ApprovalRequest),
		log:            slog.Default().With("component", "autonomy.gate"),
	}
}

// Level returns the effective autonomy level t resolves to under the
// gate's policy, without running the decision rules. The supervisor uses it
// to bound which tool capability classes a task's directives may invoke.
func (g *Gate) Level(t model.Task) model.AutonomyLevel {
	_, staticLevel := Classify(t)
	return g.policy.resolve(t.Description, staticLevel)
}

// Check classifies t and applies the L0-L3 decision rules. It returns
// whether execution may proceed and, for L2/L3, the terminal
// ApprovalRequest. span may be nil; when present, Check records the
// span-event-only trail L0 requires and annotates escalations.
func (g *Gate) Check(ctx context.Context, t model.Task, span SpanRecorder) (mayProceed bool, approval *model.ApprovalRequest, err error) {
	class, staticLevel := Classify(t)
	level := g.policy.resolve(t.Description, staticLevel)

	switch level {
	case model.L0Autonomous:
		if span != nil {
			span.AddEvent("autonomy.l0", map[string]any{"operation_class": class})
		}
		return true, nil, nil

	case model.L1Notify:
		if g.notifier != nil {
			go g.notifier.Notify(context.WithoutCancel(ctx), t, class)
		}
		if span != nil {
			span.AddEvent("autonomy.l1_notify", map[string]any{"operation_class": class})
		}
		return true, nil, nil

	case model.L2Approve:
		return g.awaitApproval(ctx, t, class, level, span, g.defaultTimeout)

	case model.L3HumanOnly:
		if g.approver == nil {
			return false, nil, orcherr.New(orcherr.KindGovernanceBlocked, "", fmt.Errorf("L3 operation %q has no approver configured", class))
		}
		return g.awaitApproval(ctx, t, class, level, span, g.defaultTimeout)

	default:
		return false, nil, orcherr.New(orcherr.KindInternal, "", fmt.Errorf("unknown autonomy level %v", level))
	}
}

// awaitApproval creates an ApprovalRequest, invokes the approver if one is
// configured, and blocks until a decision arrives, the caller's context is
// cancelled, or timeout elapses. A missing approver still waits out the
// timeout before conservatively rejecting.
func (g *Gate) awaitApproval(ctx context.Context, t model.Task, class string, level model.AutonomyLevel, span SpanRecorder, timeout time.Duration) (bool, *model.ApprovalRequest, error) {
	req := model.ApprovalRequest{
		ID:             uuid.NewString(),
		TaskID:         t.ID,
		OperationClass: class,
		AutonomyLevel:  level,
		Description:    t.Description,
		CreatedAt:      time.Now().UTC(),
		Decision:       model.ApprovalPending,
	}

	ch := make(chan model.ApprovalRequest, 1)
	g.mu.Lock()
	g.pending[req.ID] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
	}()

	if span != nil {
		span.AddEvent("autonomy.approval_requested", map[string]any{
			"operation_class": class,
			"approval_id":     req.ID,
		})
	}

	if g.approver != nil {
		g.approver.RequestApproval(ctx, req)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case decided := <-ch:
		// A grant that arrives after the caller's context was already
		// cancelled (e.g. the task was meanwhile cancelled) is discarded
		// rather than honored.
		if ctx.Err() != nil {
			return false, &decided, ctx.Err()
		}
		if decided.Decision == model.ApprovalApproved {
			if span != nil {
				span.AddEvent("autonomy.approved", map[string]any{"approval_id": req.ID, "decider": decided.Decider})
			}
			return true, &decided, nil
		}
		if span != nil {
			span.AddEvent("autonomy.rejected", map[string]any{"approval_id": req.ID})
		}
		return false, &decided, orcherr.New(orcherr.KindApprovalRejected, "", fmt.Errorf("approval %s rejected", req.ID))

	case <-timer.C:
		req.Decision = model.ApprovalTimedOut
		req.DecidedAt = time.Now().UTC()
		if span != nil {
			span.AddEvent("autonomy.timed_out", map[string]any{"approval_id": req.ID})
		}
		return false, &req, orcherr.New(orcherr.KindApprovalTimedOut, "", fmt.Errorf("approval %s timed out", req.ID))

	case <-ctx.Done():
		return false, &req, ctx.Err()
	}
}

// Decide resolves a pending ApprovalRequest by id. Called by the Approver's
// out-of-band decision channel (e.g. a CLI command or API handler) once a
// human has approved or rejected. Resolving an unknown or already-resolved
// id is a no-op.
func (g *Gate) Decide(requestID string, decision model.ApprovalDecision, decider string) {
	g.mu.Lock()
	ch, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return
	}

	decided := model.ApprovalRequest{
		ID:        requestID,
		Decision:  decision,
		DecidedAt: time.Now().UTC(),
		Decider:   decider,
	}

	select {
	case ch <- decided:
	default:
		g.log.Warn("approval decision dropped, no waiter", "approval_id", requestID)
	}
}
