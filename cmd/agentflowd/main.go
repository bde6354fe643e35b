// agentflowd is the orchestration engine's process entrypoint: it loads
// configuration, wires C1..C8 bottom-up, and serves the HTTP API until
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/agentflow/pkg/agentpool"
	"github.com/codeready-toolchain/agentflow/pkg/api"
	"github.com/codeready-toolchain/agentflow/pkg/config"
	agentctx "github.com/codeready-toolchain/agentflow/pkg/context"
	"github.com/codeready-toolchain/agentflow/pkg/coordination"
	"github.com/codeready-toolchain/agentflow/pkg/eventbus"
	"github.com/codeready-toolchain/agentflow/pkg/execution"
	"github.com/codeready-toolchain/agentflow/pkg/filelock"
	"github.com/codeready-toolchain/agentflow/pkg/hitl"
	"github.com/codeready-toolchain/agentflow/pkg/mcptool"
	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/slack"
	"github.com/codeready-toolchain/agentflow/pkg/storage"
	"github.com/codeready-toolchain/agentflow/pkg/telemetry"
	"github.com/codeready-toolchain/agentflow/pkg/version"
	"github.com/codeready-toolchain/agentflow/pkg/workflow"
)

// Exit codes: 0 success, 1 validation failure, 2 runtime failure,
// 130 interrupt.
const (
	exitOK               = 0
	exitValidationFailed = 1
	exitRuntimeFailure   = 2
	exitInterrupted      = 130
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment", "path", envPath)
	}

	if err := telemetry.Init(telemetry.Config{Level: slog.LevelInfo, JSON: false, ServiceID: version.AppName}); err != nil {
		slog.Error("telemetry init failed", "error", err)
		return exitRuntimeFailure
	}
	defer telemetry.Shutdown(context.Background())

	cfg, err := config.Load(filepath.Join(*configDir, "config.yaml"))
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		return exitValidationFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, storage.Config{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            5432,
		User:            getEnv("DB_USER", "agentflow"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnv("DB_NAME", "agentflow"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		slog.Error("checkpoint store unavailable", "error", err)
		return exitRuntimeFailure
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("error closing checkpoint store", "error", err)
		}
	}()

	pool := agentpool.New()
	llmClient := agentpool.NewLLMClient(cfg.LLM.Endpoint, cfg.LLM.Timeout())
	for _, spec := range cfg.Agents {
		pool.Register(agentpool.NewBaseAgent(spec, llmClient))
	}

	// The RAG/history retrieval backends are external collaborators this
	// module does not implement; a deployment wires concrete
	// pkg/collab.SmartRag/HistoryManager implementations here. Provider
	// tolerates either being nil.
	ctxProvider := agentctx.New(nil, nil, cfg.Rag.TokenBudget)

	locks := filelock.New()
	coord := coordination.New()

	var slackSvc *slack.Service
	if cfg.Slack.Enabled {
		slackSvc = slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Slack.DashboardURL,
		})
	}
	notifier := hitl.NewNotifier(slackSvc)
	assessor := hitl.NewAssessor(hitl.AssessorConfig{
		HighRiskKeywords:     cfg.Hitl.RiskKeywords,
		CriticalRiskKeywords: cfg.Hitl.CriticalKeywords,
		FileScopeMediumThreshold: 3,
	})
	gate := hitl.NewGate(assessor, hitl.GateConfig{Mode: cfg.Hitl.Mode, SampleRate: cfg.Hitl.SampleRate}, notifier)

	bus := eventbus.New(eventbus.Config{
		ActiveTTL:   cfg.Subscription.ActiveTTL(),
		InactiveTTL: cfg.Subscription.InactiveTTL(),
		HardCap:     cfg.Subscription.HardCap(),
		BufferCap:   cfg.Subscription.BufferCap,
	})
	bus.StartReaper(30 * time.Second)
	defer bus.StopReaper()

	predicates := workflow.NewPredicateRegistry()

	engine := workflow.New(workflow.Config{
		MaxParallelTasks:   cfg.Workflow.MaxParallelTasks,
		MaxRetries:         cfg.Workflow.MaxRetries,
		LockTimeout:        cfg.Workflow.LockTimeout(),
		TaskTimeout:        cfg.Workflow.TaskTimeout(),
		CheckpointInterval: workflow.CheckpointInterval(cfg.Workflow.CheckpointInterval),
	}, ctxProvider, pool, locks, coord, gate, bus, predicates, store)

	execMgr := execution.New(bus, engine)

	toolNames := make([]string, 0, len(cfg.Tools))
	for _, tc := range cfg.Tools {
		toolName := tc.Tool
		if toolName == "" {
			toolName = tc.Name
		}
		tool := mcptool.New(tc.Name, toolName, mcptool.Transport{Command: tc.Command, Args: tc.Args, URL: tc.URL}, 0)
		defer tool.Close()
		toolNames = append(toolNames, tool.Name())
	}

	agentTypes := []model.AgentType{model.AgentTypePlanning, model.AgentTypeCoding, model.AgentTypeWriting, model.AgentTypeEvaluator}
	server := api.New(execMgr, bus, coord, gate, agentTypes, toolNames)

	addr := fmt.Sprintf("%s:%d", cfg.ServerBind.Host, cfg.ServerBind.Port)
	slog.Info("starting agentflowd", "addr", addr, "version", version.Full())

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start(addr) }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
			return exitRuntimeFailure
		}
		return exitInterrupted
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "error", err)
			return exitRuntimeFailure
		}
		return exitOK
	}
}
