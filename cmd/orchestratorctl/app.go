package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/autonomy"
	"github.com/haasonsaas/orchestrator-core/internal/config"
	"github.com/haasonsaas/orchestrator-core/internal/governance"
	"github.com/haasonsaas/orchestrator-core/internal/memory"
	"github.com/haasonsaas/orchestrator-core/internal/outbox"
	"github.com/haasonsaas/orchestrator-core/internal/planner"
	"github.com/haasonsaas/orchestrator-core/internal/ports"
	"github.com/haasonsaas/orchestrator-core/internal/providers"
	"github.com/haasonsaas/orchestrator-core/internal/resilience"
	"github.com/haasonsaas/orchestrator-core/internal/sessionmgr"
	"github.com/haasonsaas/orchestrator-core/internal/store"
	"github.com/haasonsaas/orchestrator-core/internal/supervisor"
	"github.com/haasonsaas/orchestrator-core/internal/telemetry"
	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

// app bundles every long-lived component orchestratorctl wires together,
// so each subcommand can open exactly what it needs and Close it on the
// way out.
type app struct {
	cfg        *config.Config
	store      *store.Store
	sessions   *sessionmgr.Manager
	tracer     *telemetry.Tracer
	metrics    *telemetry.Metrics
	outbox     *outbox.Outbox
	supervisor *supervisor.Supervisor
}

func (a *app) Close(ctx context.Context) {
	if a.sessions != nil {
		a.sessions.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp loads configPath (or defaults) and wires every component the
// supervisor needs: store, outbox, session manager, tracer, metrics,
// autonomy gate, governance bridge, circuit breakers, the sqlite-backed
// memory store, and a worker map backed by a single OpenAI client shared
// across every routed role.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	s, err := store.Open(ctx, cfg.PersistencePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := outbox.NewBus(256)
	ob := outbox.New(s, bus)
	if _, err := ob.ReplayPending(ctx); err != nil {
		slog.Warn("outbox replay failed", "error", err)
	}

	sessions, err := sessionmgr.New(sessionmgr.Options{
		Dir:                  cfg.SessionDir,
		MaxSessions:          cfg.MaxSessions,
		CompressionThreshold: cfg.CompressionThresholdBytes,
		AutoSaveInterval:     time.Duration(cfg.AutoSaveIntervalSeconds) * time.Second,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("new session manager: %w", err)
	}

	governor := &consoleGovernor{}
	gate := autonomy.NewGate(autonomy.Policy{}, governor, governor, time.Duration(cfg.ApprovalDefaultTimeoutSeconds)*time.Second)
	governor.gate = gate

	bridge := governance.New(nil, time.Duration(cfg.GovernanceReviewTimeoutSeconds)*time.Second)

	breakers := resilience.NewCircuitBreakerRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           cfg.Breaker.Window,
		Cooldown:         cfg.Breaker.Cooldown,
	})

	pool := resilience.NewPool(resilience.PoolConfig{
		MaxConnections: cfg.Pool.MaxConnections,
		MaxKeepalive:   cfg.Pool.MaxKeepalive,
		KeepaliveTTL:   cfg.Pool.KeepaliveTTL,
	})

	metrics := telemetry.NewMetrics()
	tracer := telemetry.NewTracer(cfg.Tracer.HeadSampleRate, cfg.Tracer.TailSampleErrors)

	backend := providers.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("ORCHESTRATOR_MODEL"))
	workers := map[model.Role]ports.ModelClient{
		model.RoleCoder:      backend,
		model.RoleReviewer:   backend,
		model.RoleArchitect:  backend,
		model.RoleResearcher: backend,
		model.RoleDevOps:     backend,
		model.RolePrometheus: backend,
	}

	sup := supervisor.New(
		planner.NewPlanner(),
		planner.NewRouter(),
		gate,
		bridge,
		tracer,
		metrics,
		ob,
		sessions,
		breakers,
		pool,
		workers,
		ports.NewToolRegistry(),
		memory.New(s),
		supervisor.Options{
			MaxParallelTasksPerSession: cfg.MaxParallelTasksPerSession,
			RetryMaxAttempts:           cfg.Retry.MaxAttempts,
			RetryPolicy:                resilience.PolicyFromConfig(cfg.Retry.BaseDelay, cfg.Retry.Cap),
		},
	)

	return &app{
		cfg:        cfg,
		store:      s,
		sessions:   sessions,
		tracer:     tracer,
		metrics:    metrics,
		outbox:     ob,
		supervisor: sup,
	}, nil
}
