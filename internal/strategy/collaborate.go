package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

type collaborationStep struct {
	role    string
	agent   int
	message func(problem string, previous domain.CallOutcome) string
	context func(problem string, previous domain.CallOutcome) map[string]any
}

var collaborationSteps = []collaborationStep{
	{
		role:  "analyzer",
		agent: 0,
		message: func(problem string, _ domain.CallOutcome) string {
			return "Analyze this problem: " + problem
		},
		context: func(string, domain.CallOutcome) map[string]any {
			return map[string]any{"role": "analyzer"}
		},
	},
	{
		role:  "solver",
		agent: 1,
		message: func(_ string, previous domain.CallOutcome) string {
			return "Based on this analysis, propose a solution: " + string(previous.Response)
		},
		context: func(_ string, previous domain.CallOutcome) map[string]any {
			return map[string]any{"role": "solver", "previousAnalysis": previous.Response}
		},
	},
	{
		role:  "reviewer",
		agent: 0,
		message: func(_ string, previous domain.CallOutcome) string {
			return "Review and refine this solution: " + string(previous.Response)
		},
		context: func(problem string, _ domain.CallOutcome) map[string]any {
			return map[string]any{"role": "reviewer", "originalProblem": problem}
		},
	},
}

// Collaboration walks a problem through analyzer, solver and reviewer roles.
// The first agent analyzes and reviews and the second agent proposes the solution
// (a single agent plays every role). The chain stops at the first failed step and
// the reviewer's outcome is reported as the final answer.
type Collaboration struct {
	caller *caller
}

func NewCollaboration(deps Deps) *Collaboration {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Collaboration{caller: &caller{invoker: deps.Invoker, metrics: deps.Metrics, logger: deps.Logger}}
}

func (c *Collaboration) Name() domain.StrategyName { return domain.StrategyCollaborate }

func (c *Collaboration) Execute(ctx context.Context, req Request) (domain.StrategyResult, error) {
	if len(req.Agents) == 0 {
		return domain.StrategyResult{}, fmt.Errorf("collaborate: %w", ErrNoAvailableAgents)
	}

	outcomes := make([]domain.CallOutcome, 0, len(collaborationSteps))
	var previous domain.CallOutcome
	var total float64
	for _, step := range collaborationSteps {
		agentID := req.Agents[step.agent%len(req.Agents)]
		taskContext := outgoingContext(step.context(req.Task, previous), req.TaskID, domain.StrategyCollaborate)
		outcome := c.caller.call(ctx, agentID, step.message(req.Task, previous), taskContext)
		outcomes = append(outcomes, outcome)
		total += outcome.ElapsedMS
		if !outcome.Succeeded() {
			c.caller.logger.Warn("collaboration step failed",
				zap.String("task_id", req.TaskID),
				zap.String("role", step.role),
				zap.String("agent", agentID),
				zap.String("error", outcome.Error),
			)
			break
		}
		previous = outcome
	}

	result := domain.StrategyResult{
		Strategy:       domain.StrategyCollaborate,
		Outcomes:       outcomes,
		Success:        len(outcomes) == len(collaborationSteps) && outcomes[len(outcomes)-1].Succeeded(),
		SuccessRate:    successRate(outcomes),
		TotalElapsedMS: total,
	}
	if result.Success {
		final := outcomes[len(outcomes)-1]
		result.Consensus = &final
	}
	return result, nil
}
