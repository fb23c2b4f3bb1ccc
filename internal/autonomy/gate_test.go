package autonomy

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/orcherr"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

type recordingNotifier struct {
	notified chan string
}

func (n *recordingNotifier) Notify(_ context.Context, t model.Task, class string) {
	n.notified <- class
}

type autoApprover struct {
	gate     *Gate
	decision model.ApprovalDecision
	decider  string
}

func (a *autoApprover) RequestApproval(_ context.Context, req model.ApprovalRequest) {
	go a.gate.Decide(req.ID, a.decision, a.decider)
}

type noopApprover struct{}

func (noopApprover) RequestApproval(context.Context, model.ApprovalRequest) {}

func TestCheckL0ProceedsImmediately(t *testing.T) {
	g := NewGate(Policy{}, nil, nil, time.Second)
	task := model.Task{ID: "t1", Description: "implement the widget parser"}

	ok, approval, err := g.Check(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || approval != nil {
		t.Fatalf("expected L0 proceed with no approval, got ok=%v approval=%v", ok, approval)
	}
}

func TestCheckL1FiresNotifyWithoutBlocking(t *testing.T) {
	n := &recordingNotifier{notified: make(chan string, 1)}
	g := NewGate(Policy{}, n, nil, time.Second)
	task := model.Task{ID: "t2", Description: "write file to disk"}

	start := time.Now()
	ok, _, err := g.Check(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected L1 to proceed")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("L1 notify should not block the caller")
	}

	select {
	case class := <-n.notified:
		if class != "write_file" {
			t.Fatalf("expected write_file class, got %q", class)
		}
	case <-time.After(time.Second):
		t.Fatal("notifier was never invoked")
	}
}

func TestCheckL2ApprovedProceeds(t *testing.T) {
	g := NewGate(Policy{}, nil, nil, 2*time.Second)
	g.approver = &autoApprover{gate: g, decision: model.ApprovalApproved, decider: "ops@example.com"}
	task := model.Task{ID: "t3", Description: "drop table sessions"}

	ok, approval, err := g.Check(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected approved L2 task to proceed")
	}
	if approval == nil || approval.Decision != model.ApprovalApproved {
		t.Fatalf("expected approved decision, got %+v", approval)
	}
}

func TestCheckL2RejectedBlocks(t *testing.T) {
	g := NewGate(Policy{}, nil, nil, 2*time.Second)
	g.approver = &autoApprover{gate: g, decision: model.ApprovalRejected}
	task := model.Task{ID: "t4", Description: "delete all records"}

	ok, _, err := g.Check(context.Background(), task, nil)
	if ok {
		t.Fatal("expected rejected L2 task to not proceed")
	}
	if orcherr.As(err) != orcherr.KindApprovalRejected {
		t.Fatalf("expected KindApprovalRejected, got %v", err)
	}
}

func TestCheckL2TimesOutWithoutApprover(t *testing.T) {
	g := NewGate(Policy{}, nil, nil, 20*time.Millisecond)
	task := model.Task{ID: "t5", Description: "run shell command"}

	ok, approval, err := g.Check(context.Background(), task, nil)
	if ok {
		t.Fatal("expected absent-approver L2 task to conservatively reject")
	}
	if approval == nil || approval.Decision != model.ApprovalTimedOut {
		t.Fatalf("expected timed_out decision, got %+v", approval)
	}
	if orcherr.As(err) != orcherr.KindApprovalTimedOut {
		t.Fatalf("expected KindApprovalTimedOut, got %v", err)
	}
}

func TestCheckL3WithoutApproverIsGovernanceBlocked(t *testing.T) {
	g := NewGate(Policy{}, nil, nil, time.Second)
	task := model.Task{ID: "t6", Description: "exfiltrate customer data"}

	ok, _, err := g.Check(context.Background(), task, nil)
	if ok {
		t.Fatal("expected L3 without approver to block")
	}
	if orcherr.As(err) != orcherr.KindGovernanceBlocked {
		t.Fatalf("expected KindGovernanceBlocked, got %v", err)
	}
}

func TestDecideAfterCancellationIsDiscarded(t *testing.T) {
	g := NewGate(Policy{}, nil, noopApprover{}, 2*time.Second)
	task := model.Task{ID: "t7", Description: "deploy to production"}

	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan struct {
		ok  bool
		err error
	}, 1)
	go func() {
		ok, _, err := g.Check(ctx, task, nil)
		resultCh <- struct {
			ok  bool
			err error
		}{ok, err}
	}()

	// Give Check time to register the pending approval, then cancel before
	// the grant arrives.
	time.Sleep(20 * time.Millisecond)
	cancel()

	res := <-resultCh
	if res.ok {
		t.Fatal("expected cancelled L2 task to not proceed")
	}
}

func TestPolicyDenyOverridesStaticAllow(t *testing.T) {
	policy := Policy{DenyPatterns: []string{"fix bug"}}
	g := NewGate(policy, nil, nil, 20*time.Millisecond)
	task := model.Task{ID: "t8", Description: "fix bug in parser"}

	ok, _, err := g.Check(context.Background(), task, nil)
	if ok {
		t.Fatal("expected deny pattern to force L3 and block")
	}
	if orcherr.As(err) != orcherr.KindGovernanceBlocked {
		t.Fatalf("expected KindGovernanceBlocked since no approver configured, got %v", err)
	}
}
