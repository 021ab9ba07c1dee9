package strategy

import (
	"context"

	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

// Sequential calls agents one at a time in request order, handing each agent the
// context returned by the previous one, and stops at the first failure.
type Sequential struct {
	caller *caller
}

func (s *Sequential) Name() domain.StrategyName { return domain.StrategySequential }

func (s *Sequential) Execute(ctx context.Context, req Request) (domain.StrategyResult, error) {
	outcomes := make([]domain.CallOutcome, 0, len(req.Agents))
	current := req.Context
	var total float64

	for _, agentID := range req.Agents {
		outcome := s.caller.call(ctx, agentID, req.Task, outgoingContext(current, req.TaskID, domain.StrategySequential))
		outcomes = append(outcomes, outcome)
		total += outcome.ElapsedMS
		if !outcome.Succeeded() {
			s.caller.logger.Info("sequential chain stopped",
				zap.String("task_id", req.TaskID),
				zap.String("agent", agentID),
				zap.Int("completed", len(outcomes)-1),
				zap.Int("requested", len(req.Agents)),
			)
			break
		}
		if next := outcome.ForwardContext(); next != nil {
			current = next
		}
	}

	successes := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			successes++
		}
	}

	return domain.StrategyResult{
		Strategy:       domain.StrategySequential,
		Outcomes:       outcomes,
		Success:        len(req.Agents) > 0 && successes == len(req.Agents),
		SuccessRate:    successRate(outcomes),
		TotalElapsedMS: total,
	}, nil
}
