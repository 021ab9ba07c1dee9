package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

// LoadBalanced sends the task to the single candidate with the lowest average
// response time. Agents that were never called average 0 and therefore win over
// any agent with recorded latency.
type LoadBalanced struct {
	caller    *caller
	metrics   Metrics
	available func(agentID string) bool
}

func (l *LoadBalanced) Name() domain.StrategyName { return domain.StrategyLoadBalanced }

func (l *LoadBalanced) Execute(ctx context.Context, req Request) (domain.StrategyResult, error) {
	chosen, ok := l.choose(req.Agents)
	if !ok {
		return domain.StrategyResult{}, fmt.Errorf("load-balanced over %v: %w", req.Agents, ErrNoAvailableAgents)
	}

	l.caller.logger.Info("load balancer chose agent",
		zap.String("task_id", req.TaskID),
		zap.String("agent", chosen),
	)

	outcome := l.caller.call(ctx, chosen, req.Task, outgoingContext(req.Context, req.TaskID, domain.StrategyLoadBalanced))
	rate := 0.0
	if outcome.Succeeded() {
		rate = 1.0
	}
	return domain.StrategyResult{
		Strategy:       domain.StrategyLoadBalanced,
		Outcomes:       []domain.CallOutcome{outcome},
		Success:        outcome.Succeeded(),
		SuccessRate:    rate,
		TotalElapsedMS: outcome.ElapsedMS,
		ChosenAgent:    chosen,
	}, nil
}

func (l *LoadBalanced) choose(agents []string) (string, bool) {
	var chosen string
	var best float64
	found := false
	for _, id := range agents {
		if !l.available(id) {
			continue
		}
		avg := l.metrics.AverageResponseTime(id)
		if !found || avg < best {
			chosen, best, found = id, avg, true
		}
	}
	return chosen, found
}
