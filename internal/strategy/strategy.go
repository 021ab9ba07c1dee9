// Package strategy implements the fan-out policies that send one task to a set of
// agents and fold their outcomes into a single StrategyResult.
package strategy

import (
	"context"
	"errors"
	"maps"

	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

var ErrNoAvailableAgents = errors.New("no available agents")

// Invoker performs one task call. Implementations report every failure through
// the outcome and never return an error.
type Invoker interface {
	Invoke(ctx context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome
}

type Metrics interface {
	RecordOutcome(agentID string, elapsedMS float64, success bool) domain.AgentMetrics
	AverageResponseTime(agentID string) float64
}

type Request struct {
	TaskID  string
	Task    string
	Agents  []string
	Context map[string]any
}

type Executor interface {
	Name() domain.StrategyName
	Execute(ctx context.Context, req Request) (domain.StrategyResult, error)
}

type Deps struct {
	Invoker Invoker
	Metrics Metrics
	// Available filters load-balancing candidates; nil accepts every agent.
	Available func(agentID string) bool
	// MaxConcurrency caps parallel fan-out; 0 means one goroutine per agent.
	MaxConcurrency int
	Logger         *zap.Logger
}

// Set holds the executors addressable by name.
type Set struct {
	executors map[domain.StrategyName]Executor
}

func NewSet(deps Deps) *Set {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Available == nil {
		deps.Available = func(string) bool { return true }
	}
	c := &caller{invoker: deps.Invoker, metrics: deps.Metrics, logger: deps.Logger}
	parallel := &Parallel{caller: c, limit: deps.MaxConcurrency}
	return &Set{executors: map[domain.StrategyName]Executor{
		domain.StrategyParallel:     parallel,
		domain.StrategySequential:   &Sequential{caller: c},
		domain.StrategyConsensus:    &Consensus{parallel: parallel},
		domain.StrategyLoadBalanced: &LoadBalanced{caller: c, metrics: deps.Metrics, available: deps.Available},
	}}
}

func (s *Set) Lookup(name domain.StrategyName) (Executor, bool) {
	e, ok := s.executors[name]
	return e, ok
}

// caller pairs every invocation with exactly one metrics update.
type caller struct {
	invoker Invoker
	metrics Metrics
	logger  *zap.Logger
}

func (c *caller) call(ctx context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome {
	outcome := c.invoker.Invoke(ctx, agentID, task, taskContext)
	outcome.Agent = agentID
	c.metrics.RecordOutcome(agentID, outcome.ElapsedMS, outcome.Succeeded())
	return outcome
}

func outgoingContext(base map[string]any, taskID string, strategy domain.StrategyName) map[string]any {
	out := make(map[string]any, len(base)+2)
	maps.Copy(out, base)
	out["taskId"] = taskID
	out["strategy"] = string(strategy)
	return out
}

func successRate(outcomes []domain.CallOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	n := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return float64(n) / float64(len(outcomes))
}
