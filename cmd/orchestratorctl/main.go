// Package main provides the CLI entry point for the orchestration core.
//
// orchestratorctl wires the supervisor pipeline together and exposes it to
// an operator terminal: run a request, inspect and resume sessions, and
// dump metrics or traces on demand.
//
// # Basic Usage
//
// Run a request through the pipeline:
//
//	orchestratorctl run "implement the widget parser"
//
// Inspect and recover sessions:
//
//	orchestratorctl sessions list
//	orchestratorctl sessions resume <session-id>
//
// Export observability data:
//
//	orchestratorctl metrics
//	orchestratorctl trace
//
// # Environment Variables
//
//   - OPENAI_API_KEY: OpenAI API key backing every worker role
//   - ORCHESTRATOR_MODEL: chat model override (default gpt-4o)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/orchestrator-core/pkg/model"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "orchestratorctl",
		Short:        "Multi-agent orchestration runtime control plane",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildSessionsCmd(),
		buildMetricsCmd(),
		buildTraceCmd(),
	)
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Execute a request through the supervisor pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd.Context(), sessionID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to continue (a new session is started when empty)")
	return cmd
}

func runRequest(ctx context.Context, sessionID, prompt string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	a.sessions.StartAutoSave(ctx)

	if crashed, err := a.sessions.RecoverCrashed(ctx); err == nil && crashed != nil {
		fmt.Fprintf(os.Stderr, "note: session %s from a previous run crashed; `sessions resume %s` recovers it\n",
			crashed.SessionID, crashed.SessionID)
	}

	out := a.supervisor.Execute(ctx, model.Request{SessionID: sessionID, Prompt: prompt})
	for chunk := range out {
		fmt.Print(chunk.Text)
	}
	fmt.Println()
	return nil
}

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and recover session snapshots",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsResumeCmd())
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained session snapshots, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			entries, err := a.sessions.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\t%s\t%s\n", e.SessionID, e.State, e.UpdatedAt.Format("2006-01-02 15:04:05"), e.Summary)
			}
			return nil
		},
	}
}

func buildSessionsResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Recover a crashed session and replay its pending operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			a.sessions.StartAutoSave(ctx)

			if _, err := a.sessions.RecoverCrashed(ctx); err != nil {
				return err
			}

			out, err := a.supervisor.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			for chunk := range out {
				fmt.Print(chunk.Text)
			}
			fmt.Println()
			return nil
		},
	}
}

func buildMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print metrics in Prometheus text exposition format",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			text, err := a.metrics.ExportPrometheusText()
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
}

func buildTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace",
		Short: "Print completed spans as OTLP-shaped JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			data, err := a.tracer.ExportOTLPJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
