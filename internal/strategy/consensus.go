package strategy

import (
	"context"

	"agent_orchestrator/internal/domain"
)

// Consensus runs Parallel and picks the successful outcome reporting the highest
// confidence. The earliest outcome wins ties.
type Consensus struct {
	parallel *Parallel
}

func (c *Consensus) Name() domain.StrategyName { return domain.StrategyConsensus }

func (c *Consensus) Execute(ctx context.Context, req Request) (domain.StrategyResult, error) {
	result := c.parallel.run(ctx, req, domain.StrategyConsensus)
	if !result.Success {
		return result, nil
	}

	pick, ok := pickHighestConfidence(result.Outcomes)
	if !ok {
		return result, nil
	}

	return domain.StrategyResult{
		Strategy:       domain.StrategyConsensus,
		Outcomes:       result.Outcomes,
		Success:        true,
		SuccessRate:    result.SuccessRate,
		TotalElapsedMS: result.TotalElapsedMS,
		Consensus:      &pick,
	}, nil
}

func pickHighestConfidence(outcomes []domain.CallOutcome) (domain.CallOutcome, bool) {
	var best domain.CallOutcome
	var bestConfidence float64
	found := false
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}
		confidence := o.Confidence()
		if !found || confidence > bestConfidence {
			best, bestConfidence, found = o, confidence, true
		}
	}
	return best, found
}
