package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyperos-labs/agent-core/internal/checkpoint"
	"github.com/hyperos-labs/agent-core/internal/ratelimit"
	"github.com/hyperos-labs/agent-core/internal/security"
	"github.com/hyperos-labs/agent-core/internal/version"
	"github.com/hyperos-labs/agent-core/pkg/breaker"
	"github.com/hyperos-labs/agent-core/pkg/telemetry"
	"github.com/hyperos-labs/agent-core/services/agent"
	"github.com/hyperos-labs/agent-core/services/agent/bridge"
	"github.com/hyperos-labs/agent-core/services/agent/config"
	"github.com/hyperos-labs/agent-core/services/agent/handler"
	"github.com/hyperos-labs/agent-core/services/agent/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", ":8080", "control API listen address")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")
	serveCmd.Flags().String("checkpoint-db", "data/checkpoints.db", "SQLite checkpoint database path")
	serveCmd.Flags().Duration("checkpoint-max-age", 24*time.Hour, "checkpoints older than this are swept")
	serveCmd.Flags().String("sweep-schedule", "@hourly", "cron schedule for the checkpoint sweep")
	serveCmd.Flags().String("audit-dir", "data/audit", "directory for audit log partitions")
	serveCmd.Flags().Int("screen-width", 1920, "screen width used by the coordinate safety zones")
	serveCmd.Flags().Int("screen-height", 1080, "screen height used by the coordinate safety zones")
	serveCmd.Flags().Int("max-steps", 20, "maximum steps per task before it times out")
	serveCmd.Flags().Duration("step-delay", time.Second, "pause between steps")
	serveCmd.Flags().Int("max-retries", 3, "retry attempts per oracle/capture call")
	serveCmd.Flags().Duration("base-delay", time.Second, "base backoff delay before the first retry")
	serveCmd.Flags().Int("rate-limit-requests", 10, "task submissions allowed per window")
	serveCmd.Flags().Duration("rate-limit-window", time.Minute, "sliding rate-limit window")
	serveCmd.Flags().Int("breaker-failure-threshold", 5, "consecutive oracle failures before the circuit opens")
	serveCmd.Flags().Duration("breaker-recovery-timeout", 60*time.Second, "how long the circuit stays open before probing")
	serveCmd.Flags().Int("breaker-success-threshold", 2, "probe successes required to close the circuit")
	serveCmd.Flags().String("bridge-url", "http://localhost:8700", "desktop bridge base URL (screen capture and input)")
	serveCmd.Flags().String("oracle-url", "http://localhost:8701/v1/decide", "decision oracle endpoint")
	serveCmd.Flags().Duration("oracle-timeout", 30*time.Second, "per-call oracle timeout")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_addr", serveCmd.Flags(), "http-addr")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("checkpoint_db", serveCmd.Flags(), "checkpoint-db")
	bindFlag("checkpoint_max_age", serveCmd.Flags(), "checkpoint-max-age")
	bindFlag("sweep_schedule", serveCmd.Flags(), "sweep-schedule")
	bindFlag("audit_dir", serveCmd.Flags(), "audit-dir")
	bindFlag("screen_width", serveCmd.Flags(), "screen-width")
	bindFlag("screen_height", serveCmd.Flags(), "screen-height")
	bindFlag("max_steps", serveCmd.Flags(), "max-steps")
	bindFlag("step_delay", serveCmd.Flags(), "step-delay")
	bindFlag("max_retries", serveCmd.Flags(), "max-retries")
	bindFlag("base_delay", serveCmd.Flags(), "base-delay")
	bindFlag("rate_limit_requests", serveCmd.Flags(), "rate-limit-requests")
	bindFlag("rate_limit_window", serveCmd.Flags(), "rate-limit-window")
	bindFlag("breaker_failure_threshold", serveCmd.Flags(), "breaker-failure-threshold")
	bindFlag("breaker_recovery_timeout", serveCmd.Flags(), "breaker-recovery-timeout")
	bindFlag("breaker_success_threshold", serveCmd.Flags(), "breaker-success-threshold")
	bindFlag("bridge_url", serveCmd.Flags(), "bridge-url")
	bindFlag("oracle_url", serveCmd.Flags(), "oracle-url")
	bindFlag("oracle_timeout", serveCmd.Flags(), "oracle-timeout")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "agent")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "agent", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	store, err := checkpoint.NewStore(cfg.CheckpointDB)
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	defer func() { _ = store.Close() }()

	audit, err := security.NewAuditLog(cfg.AuditDir)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		OnStateChange: func(from, to breaker.State) {
			telemetry.OracleCircuitState.Set(circuitGaugeValue(to))
			logger.Warn("oracle circuit state changed",
				slog.String("from", string(from)),
				slog.String("to", string(to)),
			)
		},
	})

	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)
	guard := security.NewCoordinateGuard(cfg.ScreenWidth, cfg.ScreenHeight)

	bridgeClient := bridge.NewClient(cfg.BridgeURL, logger)
	oracle := bridge.NewOracle(cfg.OracleURL, cfg.OracleTimeout)

	runner := agent.NewRunner(
		bridgeClient, oracle, bridgeClient, store, audit, limiter, brk,
		agent.WithLogger(logger),
		agent.WithMaxSteps(cfg.MaxSteps),
		agent.WithStepDelay(cfg.StepDelay),
		agent.WithRetries(cfg.MaxRetries),
		agent.WithBaseDelay(cfg.BaseDelay),
		agent.WithCoordinateGuard(guard),
	)

	restHandler := handler.NewREST(runner, audit, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", restHandler.Healthz)
	r.Get("/readyz", restHandler.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", restHandler.SubmitTask)
		r.Post("/tasks/cancel", restHandler.CancelTask)
		r.Get("/status", restHandler.GetStatus)
		r.Get("/audit", restHandler.GetAudit)
		r.Get("/audit/verify", restHandler.VerifyAudit)
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── checkpoint sweep ──────────────────────────────────────────────────────
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := store.Sweep(ctx, cfg.CheckpointMaxAge)
		if err != nil {
			logger.Error("checkpoint sweep failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			telemetry.CheckpointsSweptTotal.Add(float64(n))
			logger.Info("checkpoint sweep", slog.Int("removed", n))
		}
	})
	if err != nil {
		return fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.BuildInfo.WithLabelValues(version.Version, version.GitCommit).Set(1)
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	go func() {
		logger.Info("agent HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	logger.Info("agent ready",
		slog.Int("max_steps", cfg.MaxSteps),
		slog.Duration("step_delay", cfg.StepDelay),
		slog.String("bridge", cfg.BridgeURL),
	)

	<-quit
	logger.Info("shutting down...")

	// A running task is asked to stop at its next step boundary.
	runner.Cancel()
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}

func circuitGaugeValue(s breaker.State) float64 {
	switch s {
	case breaker.StateOpen:
		return 2
	case breaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
