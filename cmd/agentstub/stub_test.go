package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agent_orchestrator/internal/agent"
	"agent_orchestrator/internal/domain"
)

func newTestStub(t *testing.T, cfg stubConfig, roll float64) (*agent.Client, *stub) {
	t.Helper()
	s := newStub(cfg, zap.NewNop())
	s.sleep = func(time.Duration) {}
	s.roll = func() float64 { return roll }
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)

	dir := agent.NewDirectory([]domain.Agent{{ID: cfg.ID, URL: srv.URL}})
	return agent.NewClient(dir, agent.ClientConfig{Timeout: time.Second}), s
}

func TestStubSpeaksAgentProtocol(t *testing.T) {
	client, _ := newTestStub(t, stubConfig{ID: "agent1", Name: "Stub", Model: "m", Confidence: 0.7}, 0.5)

	outcome := client.Invoke(context.Background(), "agent1", "hello", map[string]any{"taskId": "t1", "role": "solver"})
	require.True(t, outcome.Succeeded(), outcome.Error)
	assert.InDelta(t, 0.7, outcome.Confidence(), 1e-9)

	forwarded := outcome.ForwardContext()
	require.NotNil(t, forwarded)
	assert.Equal(t, "t1", forwarded["taskId"])
	assert.Equal(t, "agent1", forwarded["processedBy"])

	health := client.Health(context.Background(), "agent1")
	assert.Equal(t, domain.AgentStatusOnline, health.Status)
}

func TestStubSimulatedFailure(t *testing.T) {
	client, _ := newTestStub(t, stubConfig{ID: "agent2", Name: "Stub", FailRate: 0.5}, 0.1)

	outcome := client.Invoke(context.Background(), "agent2", "hello", nil)
	assert.False(t, outcome.Succeeded())
	assert.Contains(t, outcome.Error, "status=500")
}

func TestStubDelayIncludesJitter(t *testing.T) {
	s := newStub(stubConfig{Latency: 100 * time.Millisecond, Jitter: 50 * time.Millisecond}, nil)
	s.roll = func() float64 { return 0.5 }
	assert.Equal(t, 125*time.Millisecond, s.delay())
}

func TestStubAnswerMentionsRole(t *testing.T) {
	s := newStub(stubConfig{Name: "Stub"}, nil)
	assert.Equal(t, "Stub as reviewer: fix it", s.answer(domain.ProcessRequest{Message: "fix it", Context: map[string]any{"role": "reviewer"}}))
	assert.Equal(t, "Stub: fix it", s.answer(domain.ProcessRequest{Message: "fix it"}))
}
