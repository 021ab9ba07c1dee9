package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"agent_orchestrator/internal/config"
	"agent_orchestrator/internal/logging"
)

func main() {
	addr := flag.String("addr", ":3001", "http listen address")
	id := flag.String("id", "agent1", "agent id")
	name := flag.String("name", "Local AI Agent", "agent display name")
	model := flag.String("model", "stub", "model name reported to callers")
	latency := flag.Duration("latency", 150*time.Millisecond, "base processing delay")
	jitter := flag.Duration("jitter", 100*time.Millisecond, "random extra delay")
	confidence := flag.Float64("confidence", 0.8, "confidence reported with each answer")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests answered with 500")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: *logLevel})
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s := newStub(stubConfig{
		ID:         *id,
		Name:       *name,
		Model:      *model,
		Latency:    *latency,
		Jitter:     *jitter,
		Confidence: *confidence,
		FailRate:   *failRate,
	}, logger)

	server := &http.Server{
		Addr:              *addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("agent stub started",
		zap.String("addr", *addr),
		zap.String("agent", *id),
		zap.Duration("latency", *latency),
		zap.Float64("confidence", *confidence),
		zap.Float64("fail_rate", *failRate),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
