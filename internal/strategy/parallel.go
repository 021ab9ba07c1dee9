package strategy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"agent_orchestrator/internal/domain"
)

// Parallel calls every agent concurrently and waits for all of them.
type Parallel struct {
	caller *caller
	limit  int
}

func (p *Parallel) Name() domain.StrategyName { return domain.StrategyParallel }

func (p *Parallel) Execute(ctx context.Context, req Request) (domain.StrategyResult, error) {
	return p.run(ctx, req, domain.StrategyParallel), nil
}

func (p *Parallel) run(ctx context.Context, req Request, label domain.StrategyName) domain.StrategyResult {
	outcomes := make([]domain.CallOutcome, len(req.Agents))
	taskContext := outgoingContext(req.Context, req.TaskID, label)

	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, agentID := range req.Agents {
		g.Go(func() error {
			outcomes[i] = p.caller.call(ctx, agentID, req.Task, taskContext)
			// nil keeps the group from cancelling siblings; failures live in the outcome.
			return nil
		})
	}
	_ = g.Wait()

	var maxElapsed float64
	successes := 0
	for _, o := range outcomes {
		if o.Succeeded() {
			successes++
		}
		if o.ElapsedMS > maxElapsed {
			maxElapsed = o.ElapsedMS
		}
	}

	return domain.StrategyResult{
		Strategy:       domain.StrategyParallel,
		Outcomes:       outcomes,
		Success:        successes > 0,
		SuccessRate:    successRate(outcomes),
		TotalElapsedMS: maxElapsed,
	}
}
