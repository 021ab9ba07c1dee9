package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"agent_orchestrator/internal/domain"
)

func TestRenderAgentsMergesMetricsAndHealth(t *testing.T) {
	out := renderAgents(
		map[string]domain.AgentMetrics{
			"agent1": {AgentID: "agent1", TotalRequests: 4, SuccessfulRequests: 3, AverageResponseTimeMS: 120},
		},
		[]domain.AgentHealth{
			{Agent: domain.Agent{ID: "agent1"}, Status: domain.AgentStatusOnline},
			{Agent: domain.Agent{ID: "agent2"}, Status: domain.AgentStatusOffline},
		},
	)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 agent lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "online") || !strings.Contains(lines[0], "ok=75%") {
		t.Fatalf("unexpected agent1 line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "offline") || !strings.Contains(lines[1], "calls=0") {
		t.Fatalf("unexpected agent2 line: %q", lines[1])
	}
}

func TestRenderTaskDetailShowsOutcomes(t *testing.T) {
	ok := domain.SuccessOutcome("agent1", json.RawMessage(`{"response":{"confidence":0.9}}`), 42)
	rec := domain.TaskRecord{
		ID:        "0123456789",
		Task:      "check the logs",
		Strategy:  domain.StrategyConsensus,
		Agents:    []string{"agent1", "agent2"},
		CreatedAt: time.Now(),
		User:      "monitor",
		Result: domain.StrategyResult{
			Outcomes: []domain.CallOutcome{
				ok,
				domain.FailureOutcome("agent2", "agent agent2 timed out after 30s", 30000),
			},
			Consensus: &ok,
		},
	}
	out := renderTaskDetail(rec)
	for _, want := range []string{"consensus: agent1 (confidence 0.90)", "timed out", "agents: agent1, agent2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestNewestFirstDoesNotMutateInput(t *testing.T) {
	in := []domain.TaskRecord{{ID: "a"}, {ID: "b"}}
	out := newestFirst(in)
	if out[0].ID != "b" || in[0].ID != "a" {
		t.Fatalf("unexpected order: in=%v out=%v", in, out)
	}
}

func TestTrimLine(t *testing.T) {
	if got := trimLine("short", 10); got != "short" {
		t.Fatalf("trimLine short = %q", got)
	}
	if got := trimLine("a\nlonger line here", 10); got != "a longe..." {
		t.Fatalf("trimLine long = %q", got)
	}
}
