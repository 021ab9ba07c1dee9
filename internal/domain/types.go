package domain

import (
	"encoding/json"
	"time"
)

type StrategyName string

const (
	StrategyParallel     StrategyName = "parallel"
	StrategySequential   StrategyName = "sequential"
	StrategyConsensus    StrategyName = "consensus"
	StrategyLoadBalanced StrategyName = "load-balanced"
	StrategyCollaborate  StrategyName = "collaborate"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

type AgentMetrics struct {
	AgentID               string  `json:"agent_id"`
	TotalRequests         int64   `json:"total_requests"`
	SuccessfulRequests    int64   `json:"successful_requests"`
	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
}

type AgentHealth struct {
	Agent
	Status    AgentStatus     `json:"status"`
	Health    json.RawMessage `json:"health,omitempty"`
	Error     string          `json:"error,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

// CallOutcome is the result of one invocation of one agent. Status is the tag:
// Response is only set for OutcomeSuccess and Error only for OutcomeFailure.
type CallOutcome struct {
	Agent     string          `json:"agent"`
	Status    OutcomeStatus   `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
	ElapsedMS float64         `json:"elapsed_ms"`
}

func SuccessOutcome(agentID string, response json.RawMessage, elapsedMS float64) CallOutcome {
	return CallOutcome{
		Agent:     agentID,
		Status:    OutcomeSuccess,
		Response:  response,
		ElapsedMS: elapsedMS,
	}
}

func FailureOutcome(agentID string, errMsg string, elapsedMS float64) CallOutcome {
	return CallOutcome{
		Agent:     agentID,
		Status:    OutcomeFailure,
		Error:     errMsg,
		ElapsedMS: elapsedMS,
	}
}

func (o CallOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// Confidence reads response.confidence from a successful payload, 0 when absent.
func (o CallOutcome) Confidence() float64 {
	if !o.Succeeded() || len(o.Response) == 0 {
		return 0
	}
	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(o.Response, &envelope); err != nil || len(envelope.Response) == 0 {
		return 0
	}
	var content ProcessContent
	if err := json.Unmarshal(envelope.Response, &content); err != nil || content.Confidence == nil {
		return 0
	}
	return *content.Confidence
}

// ForwardContext returns the context object an agent handed back, or nil.
func (o CallOutcome) ForwardContext() map[string]any {
	if !o.Succeeded() || len(o.Response) == 0 {
		return nil
	}
	var envelope struct {
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(o.Response, &envelope); err != nil {
		return nil
	}
	return envelope.Context
}

type StrategyResult struct {
	Strategy       StrategyName  `json:"strategy"`
	Outcomes       []CallOutcome `json:"results"`
	Success        bool          `json:"success"`
	SuccessRate    float64       `json:"success_rate"`
	TotalElapsedMS float64       `json:"total_response_time_ms"`
	ChosenAgent    string        `json:"chosen_agent,omitempty"`
	Consensus      *CallOutcome  `json:"consensus,omitempty"`
	Error          string        `json:"error,omitempty"`
}

func (r StrategyResult) SuccessCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

type TaskRecord struct {
	ID               string         `json:"id"`
	Task             string         `json:"task"`
	Strategy         StrategyName   `json:"strategy"`
	Agents           []string       `json:"agents"`
	Context          map[string]any `json:"context,omitempty"`
	Result           StrategyResult `json:"result"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
	CreatedAt        time.Time      `json:"timestamp"`
	User             string         `json:"user"`
}

type HistoryOverview struct {
	TotalTasks              int     `json:"total_tasks"`
	SuccessfulTasks         int     `json:"successful_tasks"`
	FailedTasks             int     `json:"failed_tasks"`
	SuccessRate             float64 `json:"success_rate"`
	AverageProcessingTimeMS float64 `json:"average_processing_time_ms"`
}

// ProcessRequest is the body sent to an agent's /api/process endpoint.
type ProcessRequest struct {
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// ProcessResponse is the subset of an agent reply the orchestrator reads.
type ProcessResponse struct {
	Response       *ProcessContent `json:"response"`
	Context        map[string]any  `json:"context,omitempty"`
	ProcessingTime float64         `json:"processingTime,omitempty"`
}

type ProcessContent struct {
	Content    json.RawMessage `json:"content,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
}
