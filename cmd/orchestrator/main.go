package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"agent_orchestrator/internal/agent"
	"agent_orchestrator/internal/api"
	"agent_orchestrator/internal/config"
	"agent_orchestrator/internal/dispatch"
	"agent_orchestrator/internal/domain"
	"agent_orchestrator/internal/events"
	"agent_orchestrator/internal/history"
	sqlitehistory "agent_orchestrator/internal/history/sqlite"
	"agent_orchestrator/internal/logging"
	"agent_orchestrator/internal/metrics"
	"agent_orchestrator/internal/strategy"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.agent_orchestrator/config.toml)")
	addrFlag := flag.String("addr", "", "http listen address override")
	historyFlag := flag.String("history", "", "history backend override (memory|sqlite)")
	dbPathFlag := flag.String("db", "", "sqlite history database path override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agents := cfg.Agents
	if len(agents) == 0 {
		agents = config.Default().Agents
		logger.Warn("no agents configured, using local defaults")
	}
	dir := agent.DirectoryFromConfig(agents)
	client := agent.NewClient(dir, agent.ClientConfig{
		Timeout:       durationMS(cfg.Orchestrator.AgentTimeoutMS, agent.DefaultCallTimeout),
		HealthTimeout: durationMS(cfg.Orchestrator.HealthTimeoutMS, agent.DefaultHealthTimeout),
		Logger:        logger,
	})

	var invoker strategy.Invoker = client
	available := dir.Known
	if cfg.Breaker.MaxFailures > 0 {
		breaker := agent.NewBreakerInvoker(client, agent.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     durationMS(cfg.Breaker.OpenTimeoutMS, 30*time.Second),
			Interval:    durationMS(cfg.Breaker.IntervalMS, 60*time.Second),
		}, logger)
		invoker = breaker
		available = func(agentID string) bool {
			return dir.Known(agentID) && breaker.Available(agentID)
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(firstNonEmpty(cfg.Metrics.Namespace, "orchestrator"), promReg, logger)
	registry := metrics.NewRegistry(metrics.WithObserver(collector))
	registry.Ensure(dir.IDs()...)

	historyCfg := cfg.History
	historyCfg.Backend = firstNonEmpty(*historyFlag, historyCfg.Backend, "memory")
	historyCfg.DBPath = firstNonEmpty(*dbPathFlag, historyCfg.DBPath)
	store, closeStore, err := openHistory(ctx, historyCfg)
	if err != nil {
		logger.Fatal("open history", zap.Error(err))
	}
	defer closeStore()

	deps := strategy.Deps{
		Invoker:   invoker,
		Metrics:   registry,
		Available: available,
		Logger:    logger,
	}
	strategies := strategy.NewSet(deps)
	defaultStrategy := domain.StrategyName(firstNonEmpty(cfg.Orchestrator.DefaultStrategy, string(domain.StrategyParallel)))
	if _, ok := strategies.Lookup(defaultStrategy); !ok {
		logger.Fatal("unknown default strategy", zap.String("strategy", string(defaultStrategy)))
	}
	defaultAgents := cfg.Orchestrator.DefaultAgents
	if len(defaultAgents) == 0 {
		defaultAgents = dir.IDs()
	}
	for _, id := range defaultAgents {
		if !dir.Known(id) {
			logger.Warn("default agent has no configured address", zap.String("agent", id))
		}
	}

	bus := events.New(256)
	svc := dispatch.New(dispatch.Deps{
		Strategies:    strategies,
		Collaboration: strategy.NewCollaboration(deps),
		Invoker:       invoker,
		History:       store,
		Metrics:       registry,
		Directory:     dir,
		Prober:        client,
		Events:        bus,
		Observer:      collector,
		Logger:        logger,
	}, dispatch.Config{
		DefaultStrategy: defaultStrategy,
		DefaultAgents:   defaultAgents,
	})

	addr := firstNonEmpty(*addrFlag, cfg.Orchestrator.Addr, ":3000")
	apiServer := api.New(svc, bus, promReg, api.Config{
		Version:           version,
		RequestsPerSecond: cfg.Orchestrator.RequestsPerSecond,
		Burst:             intOrDefault(cfg.Orchestrator.Burst, 20),
	}, logger)
	server := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("orchestrator started",
		zap.String("addr", addr),
		zap.String("version", version),
		zap.Strings("agents", dir.IDs()),
		zap.String("default_strategy", string(defaultStrategy)),
		zap.String("history", historyCfg.Backend),
		zap.String("config", cfg.Path),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
	logger.Info("orchestrator stopped")
}

func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "sqlite":
		dbPath := strings.TrimSpace(cfg.DBPath)
		if dbPath != "" && dbPath != sqlitehistory.MemoryPath {
			dbPath = filepath.Clean(dbPath)
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		store, err := sqlitehistory.Open(dbPath, cfg.Capacity)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return history.NewMemoryStore(cfg.Capacity), func() {}, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func durationMS(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func intOrDefault(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
