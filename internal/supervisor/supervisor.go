package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/orchestrator-core/internal/autonomy"
	"github.com/haasonsaas/orchestrator-core/internal/governance"
	"github.com/haasonsaas/orchestrator-core/internal/orcherr"
	"github.com/haasonsaas/orchestrator-core/internal/outbox"
	"github.com/haasonsaas/orchestrator-core/internal/planner"
	"github.com/haasonsaas/orchestrator-core/internal/ports"
	"github.com/haasonsaas/orchestrator-core/internal/resilience"
	"github.com/haasonsaas/orchestrator-core/internal/sessionmgr"
	"github.com/haasonsaas/orchestrator-core/internal/telemetry"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// rootTaskID identifies the synthetic task the Governance Bridge reviews
// before planning has produced any real tasks: the bridge runs before the
// planner.
const rootTaskID = "__request__"

// OutputChunk is one unit of streamed output the caller receives from
// Execute, in the order the supervisor yields it: task topological order,
// and within a task, the worker's own emission order.
type OutputChunk struct {
	TaskID string
	Role   model.Role
	Text   string
}

// Options configures a Supervisor; zero values fall back to the documented
// defaults.
type Options struct {
	// MaxParallelTasksPerSession bounds fan-out within one session's DAG.
	MaxParallelTasksPerSession int

	// WorkerTimeout is the global deadline given to a single worker
	// dispatch; exceeding it cancels the worker and fails the task.
	WorkerTimeout time.Duration

	// SkipMemoryContext is the "fast mode" orchestration option: when
	// true, the supervisor does not issue MemoryStore recall calls before
	// dispatch. It never changes persistence or tracing semantics.
	SkipMemoryContext bool

	// RetryMaxAttempts bounds internal/resilience.RetryWithBackoff.
	RetryMaxAttempts int
	RetryPolicy      resilience.BackoffPolicy
}

func (o Options) withDefaults() Options {
	if o.MaxParallelTasksPerSession <= 0 {
		o.MaxParallelTasksPerSession = 5
	}
	if o.WorkerTimeout <= 0 {
		o.WorkerTimeout = 2 * time.Minute
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = 3
	}
	if o.RetryPolicy == (resilience.BackoffPolicy{}) {
		o.RetryPolicy = resilience.DefaultPolicy()
	}
	return o
}

// Supervisor drives the request pipeline: governance pre-check, planning,
// per-task autonomy gating, routing, resilient worker dispatch, handoff
// bookkeeping, span/metric emission, and session snapshotting. It is the
// control plane every other component is wired into.
type Supervisor struct {
	planner *planner.Planner
	router  *planner.Router
	gate    *autonomy.Gate
	bridge  *governance.Bridge

	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics

	outbox   *outbox.Outbox
	sessions *sessionmgr.Manager

	breakers *resilience.CircuitBreakerRegistry
	pool     *resilience.Pool

	workers map[model.Role]ports.ModelClient
	tools   *ports.ToolRegistry
	memory  ports.MemoryStore

	opts Options
	log  *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	handoffsMu sync.Mutex
	handoffs   map[string][]model.Handoff
}

// New constructs a Supervisor. workers maps a routed Role to the
// ModelClient that serves it; a role with no entry fails its tasks with
// orcherr.KindInternal rather than panicking. pool bounds outbound dispatch
// concurrency across every session. tools and memory may be nil.
func New(
	p *planner.Planner,
	r *planner.Router,
	gate *autonomy.Gate,
	bridge *governance.Bridge,
	tracer *telemetry.Tracer,
	metrics *telemetry.Metrics,
	ob *outbox.Outbox,
	sessions *sessionmgr.Manager,
	breakers *resilience.CircuitBreakerRegistry,
	pool *resilience.Pool,
	workers map[model.Role]ports.ModelClient,
	tools *ports.ToolRegistry,
	memory ports.MemoryStore,
	opts Options,
) *Supervisor {
	return &Supervisor{
		planner:  p,
		router:   r,
		gate:     gate,
		bridge:   bridge,
		tracer:   tracer,
		metrics:  metrics,
		outbox:   ob,
		sessions: sessions,
		breakers: breakers,
		pool:     pool,
		workers:  workers,
		tools:    tools,
		memory:   memory,
		opts:     opts.withDefaults(),
		log:      slog.Default().With("component", "supervisor"),
		locks:    make(map[string]*sync.Mutex),
		handoffs: make(map[string][]model.Handoff),
	}
}

// sessionLock returns the per-session mutex, creating it on first use.
// Concurrent Execute calls for the same session id block on this lock
// rather than being rejected: violations of single-flight are queued, not
// refused.
func (s *Supervisor) sessionLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Handoffs returns the ordered handoff log recorded for sessionID so far.
func (s *Supervisor) Handoffs(sessionID string) []model.Handoff {
	s.handoffsMu.Lock()
	defer s.handoffsMu.Unlock()
	out := make([]model.Handoff, len(s.handoffs[sessionID]))
	copy(out, s.handoffs[sessionID])
	return out
}

func (s *Supervisor) appendHandoff(sessionID string, h model.Handoff) {
	s.handoffsMu.Lock()
	defer s.handoffsMu.Unlock()
	s.handoffs[sessionID] = append(s.handoffs[sessionID], h)
}

// Execute runs the full pipeline for req and returns a channel of streamed
// output chunks, closed once the request terminates (success, failure, or
// cancellation). Execute itself never returns an error for pipeline
// failures: those surface as a terminal chunk and as outbox events, so the
// caller never sees a raised exception.
func (s *Supervisor) Execute(ctx context.Context, req model.Request) <-chan OutputChunk {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	out := make(chan OutputChunk, 16)
	lock := s.sessionLock(sessionID)

	go func() {
		lock.Lock()
		defer lock.Unlock()
		defer close(out)
		s.run(ctx, sessionID, req, out)
	}()

	return out
}

// Resume recovers a crashed session: the snapshot transitions to recovered,
// and every pending operation recorded before the crash is replayed as a
// fresh task through the normal gate/route/dispatch pipeline. Operations
// are reconstructed from their serialized records, never from live
// references into the previous process.
func (s *Supervisor) Resume(ctx context.Context, sessionID string) (<-chan OutputChunk, error) {
	snap, err := s.sessions.Resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ops := append([]model.PendingOperation(nil), snap.PendingOperations...)
	out := make(chan OutputChunk, 16)
	lock := s.sessionLock(sessionID)

	go func() {
		lock.Lock()
		defer lock.Unlock()
		defer close(out)

		lastRole := model.Role("")
		for _, op := range ops {
			if op.Kind != "task" {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			s.sessions.RemovePendingOperation(op.ID)

			desc, _ := op.Payload["description"].(string)
			task := model.Task{
				ID:          op.ID,
				Description: desc,
				Complexity:  model.Complexity(planner.ClassifyComplexity(desc)),
				Status:      model.TaskReady,
			}
			if c, ok := op.Payload["complexity"].(string); ok && c != "" {
				task.Complexity = model.Complexity(c)
			}
			lastRole = s.runTask(ctx, sessionID, &task, lastRole, out)
		}

		s.finalizeSession(ctx, snap)
		s.emitEvent(ctx, model.EventTaskCompleted, sessionID, map[string]any{"session_id": sessionID, "recovered": true})
	}()

	return out, nil
}

// run drives one request end to end: governance review, planning, staged
// DAG execution, and the final snapshot and completion event.
func (s *Supervisor) run(ctx context.Context, sessionID string, req model.Request, out chan<- OutputChunk) {
	snap := s.adoptSession(sessionID)
	s.sessions.AppendMessage(model.ConversationMessage{
		Role:      model.MessageUser,
		Content:   req.Prompt,
		Timestamp: time.Now().UTC(),
	})

	rootTask := model.Task{ID: rootTaskID, Description: req.Prompt, Complexity: model.ComplexityModerate}
	verdict := s.bridge.Review(ctx, rootTask, snap.Context)
	if !verdict.Approved {
		s.emitTaskFailed(ctx, rootTaskID, string(orcherr.KindGovernanceBlocked), verdict.Reasoning)
		s.finalizeSession(ctx, snap)
		return
	}

	tasks := s.planner.Plan(req)
	graph, err := buildTaskGraph(tasks)
	if err != nil {
		s.emitTaskFailed(ctx, rootTaskID, string(orcherr.KindInternal), err.Error())
		s.finalizeSession(ctx, snap)
		return
	}

	byID := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	lastRole := model.Role("")
	for _, stage := range graph.Stages() {
		if ctx.Err() != nil {
			s.cancelRemaining(stage, byID)
			s.cancelDependents(graph, byID, stage)
			continue
		}
		lastRole = s.runStage(ctx, sessionID, stage, byID, graph, out, lastRole)
	}

	s.finalizeSession(ctx, snap)
	s.emitEvent(ctx, model.EventTaskCompleted, sessionID, map[string]any{"session_id": sessionID})
}

// runStage dispatches every task in stage up to MaxParallelTasksPerSession
// concurrently, and returns the role of the last task dispatched (used only
// to seed the next stage's handoff "from" role in single-task chains).
func (s *Supervisor) runStage(
	ctx context.Context,
	sessionID string,
	stage []string,
	byID map[string]*model.Task,
	graph *taskGraph,
	out chan<- OutputChunk,
	lastRole model.Role,
) model.Role {
	sem := make(chan struct{}, s.opts.MaxParallelTasksPerSession)
	var wg sync.WaitGroup
	var mu sync.Mutex
	finalRole := lastRole

	for _, id := range stage {
		task := byID[id]
		if task.Status == model.TaskCancelled || task.Status == model.TaskFailed {
			continue
		}
		if !s.dependenciesSatisfied(*task, byID) {
			task.Status = model.TaskCancelled
			continue
		}
		task.Status = model.TaskReady

		wg.Add(1)
		go func(t *model.Task) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				t.Status = model.TaskCancelled
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			role := s.runTask(ctx, sessionID, t, lastRole, out)
			mu.Lock()
			finalRole = role
			mu.Unlock()
		}(task)
	}
	wg.Wait()

	s.cancelDependents(graph, byID, stage)
	return finalRole
}

// runTask executes a single task: gate check, routing, handoff record,
// resilient dispatch, and terminal status bookkeeping.
func (s *Supervisor) runTask(ctx context.Context, sessionID string, task *model.Task, fromRole model.Role, out chan<- OutputChunk) model.Role {
	task.Status = model.TaskInProgress

	spanCtx, span := s.tracer.Start(ctx, model.SpanAgent, "task."+task.ID)
	spanStatus := model.SpanStatusOK
	spanMessage := ""
	defer func() { s.tracer.End(span, spanStatus, spanMessage) }()

	mayProceed, _, err := s.gate.Check(spanCtx, *task, span)
	if !mayProceed {
		task.Status = model.TaskFailed
		reason := "rejected"
		kind := orcherr.As(err)
		if err != nil {
			reason = err.Error()
		}
		spanStatus, spanMessage = model.SpanStatusError, reason
		s.emitTaskFailed(ctx, task.ID, string(kind), reason)
		return fromRole
	}

	clearedLevel := s.gate.Level(*task)
	role := s.router.RouteHealthy(*task)
	task.AssignedRole = role

	span.SetAttribute(model.AttrGenAIAgentName, string(role))
	span.SetAttribute(model.AttrGenAIAgentID, task.ID)

	handoff := model.Handoff{
		FromRole:  fromRole,
		ToRole:    role,
		TaskID:    task.ID,
		Reason:    "routed",
		Timestamp: time.Now().UTC(),
	}
	s.appendHandoff(sessionID, handoff)

	s.sessions.AddPendingOperation(model.PendingOperation{
		ID:         task.ID,
		Kind:       "task",
		Payload:    map[string]any{"description": task.Description, "complexity": string(task.Complexity)},
		RecordedAt: time.Now().UTC(),
	})
	defer s.sessions.RemovePendingOperation(task.ID)

	result, err := s.dispatch(spanCtx, sessionID, *task, role, clearedLevel, out)
	s.router.ReportOutcome(role, err == nil)
	if err != nil {
		task.Status = model.TaskFailed
		spanStatus, spanMessage = model.SpanStatusError, err.Error()
		s.emitTaskFailed(ctx, task.ID, string(orcherr.As(err)), err.Error())
		return role
	}

	task.Status = model.TaskCompleted
	task.Result = result
	s.sessions.AppendMessage(model.ConversationMessage{
		Role:      model.MessageAssistant,
		Content:   result.Output,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]any{"task_id": task.ID, "role": string(role)},
	})
	return role
}

// dispatch wraps a worker call in the resilience layer: a circuit breaker
// keyed by (role, model) and bounded exponential-backoff retry. A backend
// that reports throttle pressure delays the
// dispatch first; one that supports streaming is consumed chunk by chunk.
func (s *Supervisor) dispatch(ctx context.Context, sessionID string, task model.Task, role model.Role, clearedLevel model.AutonomyLevel, out chan<- OutputChunk) (model.ExecutionResult, error) {
	client, ok := s.workers[role]
	if !ok {
		return model.ExecutionResult{}, orcherr.New(orcherr.KindInternal, "", fmt.Errorf("no worker configured for role %s", role))
	}

	if th, ok := client.(ports.Throttler); ok {
		if throttle, delay := th.ShouldThrottle(); throttle {
			s.log.Info("throttling dispatch", "task_id", task.ID, "model", client.Name(), "delay", delay)
			if err := resilience.SleepWithContext(ctx, delay); err != nil {
				return model.ExecutionResult{}, err
			}
		}
	}

	// The pool is shared across sessions: per-session fan-out is bounded by
	// runStage's semaphore, total outbound concurrency is bounded here. The
	// slot is held for the whole dispatch, tool directives included.
	if s.pool != nil {
		slot, err := s.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, resilience.ErrPoolExhausted) {
				return model.ExecutionResult{}, orcherr.New(orcherr.KindPoolExhausted, "", err)
			}
			return model.ExecutionResult{}, err
		}
		defer slot.Release()
	}

	cb := s.breakers.Get(resilience.BreakerKey(string(role), client.Name()))

	ctx, cancel := context.WithTimeout(ctx, s.opts.WorkerTimeout)
	defer cancel()

	start := time.Now()

	req := s.buildModelRequest(ctx, sessionID, task)

	result, err := resilience.ExecuteWithResult(cb, ctx, func(ctx context.Context) (model.ExecutionResult, error) {
		if sc, ok := client.(ports.StreamingModelClient); ok {
			return s.streamTask(ctx, task, role, clearedLevel, sc, req, start, out)
		}
		retryResult, err := resilience.RetryWithBackoff(ctx, s.opts.RetryPolicy, s.opts.RetryMaxAttempts, func(attempt int) (ports.ModelResponse, error) {
			return client.Complete(ctx, req)
		})
		if err != nil {
			return model.ExecutionResult{}, err
		}
		return s.finishTask(ctx, task, role, clearedLevel, client, retryResult.Value, start, out)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return model.ExecutionResult{}, orcherr.New(orcherr.KindCircuitOpen, "", err)
		}
		return model.ExecutionResult{}, err
	}
	return result, nil
}

// streamTask consumes a streaming backend chunk by chunk: each chunk runs
// through the directive scanner, recognized directives are dispatched before
// the following chunk is yielded, and the literal remainder streams to out
// in arrival order. Only the stream's initiation is retried; once output has
// been yielded a failure surfaces rather than replaying chunks the caller
// already saw.
func (s *Supervisor) streamTask(
	ctx context.Context,
	task model.Task,
	role model.Role,
	clearedLevel model.AutonomyLevel,
	client ports.StreamingModelClient,
	req ports.ModelRequest,
	start time.Time,
	out chan<- OutputChunk,
) (model.ExecutionResult, error) {
	retryResult, err := resilience.RetryWithBackoff(ctx, s.opts.RetryPolicy, s.opts.RetryMaxAttempts, func(attempt int) (<-chan ports.StreamChunk, error) {
		return client.Stream(ctx, req)
	})
	if err != nil {
		return model.ExecutionResult{}, err
	}

	scanner := NewDirectiveScanner()
	var output strings.Builder
	var toolsUsed []string
	var inputTokens, outputTokens int
	first := true

	for chunk := range retryResult.Value {
		if first && chunk.Text != "" {
			first = false
			if s.metrics != nil {
				s.metrics.TimeToFirstToken.WithLabelValues("task", client.Name()).Observe(time.Since(start).Seconds())
			}
		}
		if chunk.InputTokens > 0 {
			inputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			outputTokens = chunk.OutputTokens
		}

		literal, directives := scanner.Feed(chunk.Text)
		for _, d := range directives {
			toolsUsed = append(toolsUsed, d.Tool)
			s.invokeDirective(ctx, d, clearedLevel)
		}
		if literal == "" {
			continue
		}
		output.WriteString(literal)
		select {
		case out <- OutputChunk{TaskID: task.ID, Role: role, Text: literal}:
		case <-ctx.Done():
			return model.ExecutionResult{}, ctx.Err()
		}
	}

	if tail := scanner.Flush(); tail != "" {
		output.WriteString(tail)
		select {
		case out <- OutputChunk{TaskID: task.ID, Role: role, Text: tail}:
		case <-ctx.Done():
			return model.ExecutionResult{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return model.ExecutionResult{}, err
	}

	elapsed := time.Since(start).Seconds()
	s.recordDispatchMetrics(client.Name(), elapsed, inputTokens, outputTokens)
	s.rememberOutcome(ctx, task, output.String())

	return model.ExecutionResult{
		TaskID:         task.ID,
		Output:         output.String(),
		Success:        true,
		Score:          1.0,
		ToolsUsed:      toolsUsed,
		ElapsedSeconds: elapsed,
	}, nil
}

// buildModelRequest assembles the ModelClient request for task, recalling
// memory context first unless fast mode (SkipMemoryContext) is set.
func (s *Supervisor) buildModelRequest(ctx context.Context, sessionID string, task model.Task) ports.ModelRequest {
	messages := []ports.ModelMessage{{Role: "user", Content: task.Description}}

	if !s.opts.SkipMemoryContext && s.memory != nil {
		records, err := s.memory.RecallSimilar(ctx, task.Description, 5)
		if err == nil {
			for _, r := range records {
				messages = append([]ports.ModelMessage{{Role: "system", Content: r.Content}}, messages...)
			}
		}
	}

	return ports.ModelRequest{Messages: messages}
}

// recordDispatchMetrics records the duration and token-usage instruments for
// one completed worker dispatch.
func (s *Supervisor) recordDispatchMetrics(clientName string, elapsed float64, inputTokens, outputTokens int) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationDuration.WithLabelValues("task", clientName).Observe(elapsed)
	s.metrics.TokenUsage.WithLabelValues("task", clientName, "input").Add(float64(inputTokens))
	s.metrics.TokenUsage.WithLabelValues("task", clientName, "output").Add(float64(outputTokens))
}

// rememberOutcome stores the task's outcome as an episodic memory unless
// fast mode is set.
func (s *Supervisor) rememberOutcome(ctx context.Context, task model.Task, outcome string) {
	if s.opts.SkipMemoryContext || s.memory == nil {
		return
	}
	if _, err := s.memory.Remember(ctx, task.Description, outcome, map[string]any{"task_id": task.ID}, 0.5); err != nil {
		s.log.Warn("remember task outcome failed", "task_id", task.ID, "error", err)
	}
}

// finishTask parses inline tool directives out of the worker's response,
// dispatches them through the ToolRegistry, streams the literal remainder
// to out, records metrics, and returns the ExecutionResult.
func (s *Supervisor) finishTask(
	ctx context.Context,
	task model.Task,
	role model.Role,
	clearedLevel model.AutonomyLevel,
	client ports.ModelClient,
	resp ports.ModelResponse,
	start time.Time,
	out chan<- OutputChunk,
) (model.ExecutionResult, error) {
	scanner := NewDirectiveScanner()
	literal, directives := scanner.Feed(resp.Text)
	literal += scanner.Flush()

	var toolsUsed []string
	for _, d := range directives {
		toolsUsed = append(toolsUsed, d.Tool)
		s.invokeDirective(ctx, d, clearedLevel)
	}

	if literal != "" {
		select {
		case out <- OutputChunk{TaskID: task.ID, Role: role, Text: literal}:
		case <-ctx.Done():
			return model.ExecutionResult{}, ctx.Err()
		}
	}

	elapsed := time.Since(start).Seconds()
	s.recordDispatchMetrics(client.Name(), elapsed, resp.InputTokens, resp.OutputTokens)
	s.rememberOutcome(ctx, task, literal)

	return model.ExecutionResult{
		TaskID:         task.ID,
		Output:         literal,
		Success:        true,
		Score:          1.0,
		ToolsUsed:      toolsUsed,
		ElapsedSeconds: elapsed,
	}, nil
}

// invokeDirective validates and executes one parsed directive against the
// ToolRegistry under a nested tool span. The tool's capability class must
// not demand a higher autonomy level than the task was cleared at. With a nil
// registry the directive is skipped without a span or metric; an
// unknown/invalid/over-privileged tool is recorded in the error-count
// metric. Neither fails the owning task: tool directives are
// best-effort side effects of the worker's output, not the task's outcome.
func (s *Supervisor) invokeDirective(ctx context.Context, d Directive, clearedLevel model.AutonomyLevel) {
	if s.tools == nil {
		return
	}

	toolCtx, span := s.tracer.Start(ctx, model.SpanTool, "tool."+d.Tool)
	span.SetAttribute(model.AttrGenAIOperationName, "execute_tool")
	status, message := model.SpanStatusOK, ""
	defer func() { s.tracer.End(span, status, message) }()

	if tool, ok := s.tools.Get(d.Tool); ok {
		if required := autonomy.CapabilityLevel(string(tool.Capability())); required > clearedLevel {
			s.log.Warn("tool capability exceeds task autonomy level",
				"tool", d.Tool, "capability", tool.Capability(), "required", required, "cleared", clearedLevel)
			status, message = model.SpanStatusError, "capability not permitted at task autonomy level"
			if s.metrics != nil {
				s.metrics.ErrorCount.WithLabelValues("supervisor.directive", string(orcherr.KindGovernanceBlocked)).Inc()
			}
			return
		}
	}

	args, err := json.Marshal(d.Args)
	if err != nil {
		status, message = model.SpanStatusError, err.Error()
		return
	}
	if _, err := s.tools.Execute(toolCtx, d.Tool, args); err != nil {
		s.log.Warn("tool directive failed", "tool", d.Tool, "error", err)
		status, message = model.SpanStatusError, err.Error()
		if s.metrics != nil {
			s.metrics.ErrorCount.WithLabelValues("supervisor.directive", string(orcherr.KindSyntaxInvalid)).Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.ToolInvocations.WithLabelValues(d.Tool, "success").Inc()
	}
}

// dependenciesSatisfied reports whether every dependency of t has already
// completed, per the Task status invariant that a task becomes ready only
// once all dependencies are completed.
func (s *Supervisor) dependenciesSatisfied(t model.Task, byID map[string]*model.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := byID[dep]
		if !ok || d.Status != model.TaskCompleted {
			return false
		}
	}
	return true
}

// cancelRemaining marks every not-yet-terminal task in stage cancelled,
// used when the caller's context is already done before the stage starts.
func (s *Supervisor) cancelRemaining(stage []string, byID map[string]*model.Task) {
	for _, id := range stage {
		t := byID[id]
		if t.Status != model.TaskCompleted && t.Status != model.TaskFailed {
			t.Status = model.TaskCancelled
		}
	}
}

// cancelDependents marks the transitive dependents of any failed task in
// stage as cancelled: a gate rejection or dispatch failure propagates to
// everything downstream of it.
func (s *Supervisor) cancelDependents(graph *taskGraph, byID map[string]*model.Task, stage []string) {
	failed := map[string]bool{}
	for _, id := range stage {
		if byID[id].Status == model.TaskFailed || byID[id].Status == model.TaskCancelled {
			failed[id] = true
		}
	}
	if len(failed) == 0 {
		return
	}
	changed := true
	for changed {
		changed = false
		for _, s2 := range graph.Stages() {
			for _, id := range s2 {
				t := byID[id]
				if t.Status == model.TaskCompleted || t.Status == model.TaskFailed || t.Status == model.TaskCancelled {
					continue
				}
				for _, dep := range t.Dependencies {
					if failed[dep] {
						t.Status = model.TaskCancelled
						failed[id] = true
						changed = true
						break
					}
				}
			}
		}
	}
}

func (s *Supervisor) adoptSession(sessionID string) *model.SessionSnapshot {
	if existing, err := s.sessions.Load(sessionID); err == nil && existing != nil {
		// Continuing a prior session reactivates it; its messages, context,
		// and pending operations are merged in by virtue of being the same
		// snapshot.
		existing.State = model.SessionActive
		s.sessions.Adopt(existing)
		return existing
	}
	snap := &model.SessionSnapshot{
		SessionID: sessionID,
		State:     model.SessionActive,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions.Adopt(snap)
	return snap
}

func (s *Supervisor) finalizeSession(ctx context.Context, snap *model.SessionSnapshot) {
	if snap.State == model.SessionActive {
		snap.State = model.SessionCompleted
	}
	s.sessions.MarkDirty()
	if err := s.sessions.Save(ctx); err != nil {
		s.log.Error("session snapshot save failed", "session_id", snap.SessionID, "error", err)
	}
}

func (s *Supervisor) emitTaskFailed(ctx context.Context, taskID, errorType, reason string) {
	s.emitEvent(ctx, model.EventTaskFailed, taskID, map[string]any{
		"task_id":    taskID,
		"error_type": errorType,
		"reason":     reason,
	})
}

func (s *Supervisor) emitEvent(ctx context.Context, eventType, source string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	if _, err := s.outbox.Append(ctx, eventType, source, payload); err != nil {
		s.log.Error("outbox append failed", "event_type", eventType, "error", err)
	}
}
