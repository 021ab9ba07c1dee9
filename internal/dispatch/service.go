// Package dispatch validates incoming tasks, runs them through a strategy and
// keeps the resulting records.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agent_orchestrator/internal/domain"
	"agent_orchestrator/internal/events"
	"agent_orchestrator/internal/history"
	"agent_orchestrator/internal/strategy"
)

var (
	ErrTaskRequired    = errors.New("task is required")
	ErrInvalidStrategy = errors.New("invalid strategy")
	ErrUnknownAgent    = errors.New("agent not found")
)

type Strategies interface {
	Lookup(name domain.StrategyName) (strategy.Executor, bool)
}

type MetricsReader interface {
	Snapshot() map[string]domain.AgentMetrics
}

type Directory interface {
	List() []domain.Agent
	Known(agentID string) bool
}

type Prober interface {
	Health(ctx context.Context, agentID string) domain.AgentHealth
}

type Publisher interface {
	Publish(evt events.Event) int
}

// TaskObserver sees every record after it was stored.
type TaskObserver interface {
	ObserveTask(rec domain.TaskRecord)
}

type Config struct {
	DefaultStrategy domain.StrategyName
	DefaultAgents   []string
	// ProbeConcurrency caps simultaneous health probes; 0 probes every agent at once.
	ProbeConcurrency int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(string(c.DefaultStrategy)) == "" {
		c.DefaultStrategy = domain.StrategyParallel
	}
	if len(c.DefaultAgents) == 0 {
		c.DefaultAgents = []string{"agent1", "agent2"}
	}
	return c
}

type Deps struct {
	Strategies    Strategies
	Collaboration strategy.Executor
	Invoker       strategy.Invoker
	History       history.Store
	Metrics       MetricsReader
	Directory     Directory
	Prober        Prober
	Events        Publisher
	Observer      TaskObserver
	Logger        *zap.Logger
}

type Service struct {
	deps Deps
	cfg  Config
	log  *zap.Logger
	now  func() time.Time
}

func New(deps Deps, cfg Config) *Service {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps: deps,
		cfg:  cfg,
		log:  logger,
		now:  time.Now,
	}
}

type DispatchInput struct {
	Task     string
	Strategy domain.StrategyName
	Agents   []string
	Context  map[string]any
	User     string
}

type CollaborateInput struct {
	Problem string
	Agents  []string
	User    string
}

// Dispatch runs one task through the named strategy. When the strategy itself
// fails, the failed record is still stored and returned together with the error.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (domain.TaskRecord, error) {
	if strings.TrimSpace(in.Task) == "" {
		return domain.TaskRecord{}, ErrTaskRequired
	}
	name := domain.StrategyName(strings.TrimSpace(string(in.Strategy)))
	if name == "" {
		name = s.cfg.DefaultStrategy
	}
	exec, ok := s.deps.Strategies.Lookup(name)
	if !ok {
		return domain.TaskRecord{}, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
	return s.run(ctx, exec, name, in)
}

// Collaborate walks a problem through the analyzer, solver and reviewer roles.
func (s *Service) Collaborate(ctx context.Context, in CollaborateInput) (domain.TaskRecord, error) {
	if strings.TrimSpace(in.Problem) == "" {
		return domain.TaskRecord{}, ErrTaskRequired
	}
	if s.deps.Collaboration == nil {
		return domain.TaskRecord{}, fmt.Errorf("%w: %q", ErrInvalidStrategy, domain.StrategyCollaborate)
	}
	return s.run(ctx, s.deps.Collaboration, domain.StrategyCollaborate, DispatchInput{
		Task:     in.Problem,
		Strategy: domain.StrategyCollaborate,
		Agents:   in.Agents,
		User:     in.User,
	})
}

func (s *Service) run(ctx context.Context, exec strategy.Executor, name domain.StrategyName, in DispatchInput) (domain.TaskRecord, error) {
	agents := in.Agents
	if len(agents) == 0 {
		agents = slices.Clone(s.cfg.DefaultAgents)
	}
	user := strings.TrimSpace(in.User)
	if user == "" {
		user = "anonymous"
	}

	taskID := uuid.NewString()
	started := s.now()
	s.log.Info("task dispatched",
		zap.String("task_id", taskID),
		zap.String("strategy", string(name)),
		zap.Strings("agents", agents),
		zap.String("user", user),
	)

	result, runErr := exec.Execute(ctx, strategy.Request{
		TaskID:  taskID,
		Task:    in.Task,
		Agents:  agents,
		Context: in.Context,
	})
	elapsed := float64(s.now().Sub(started)) / float64(time.Millisecond)
	if runErr != nil {
		result = domain.StrategyResult{
			Strategy: name,
			Outcomes: []domain.CallOutcome{},
			Error:    runErr.Error(),
		}
	}

	rec := domain.TaskRecord{
		ID:               taskID,
		Task:             in.Task,
		Strategy:         name,
		Agents:           agents,
		Context:          in.Context,
		Result:           result,
		ProcessingTimeMS: elapsed,
		CreatedAt:        started.UTC(),
		User:             user,
	}

	// the record outlives a caller that hung up mid-task
	if err := s.deps.History.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Error("record task failed", zap.String("task_id", taskID), zap.Error(err))
		return rec, errors.Join(runErr, fmt.Errorf("record task %s: %w", taskID, err))
	}
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveTask(rec)
	}
	if s.deps.Events != nil {
		if dropped := s.deps.Events.Publish(events.ForRecord(rec)); dropped > 0 {
			s.log.Debug("event dropped by slow subscribers", zap.String("task_id", taskID), zap.Int("dropped", dropped))
		}
	}

	fields := []zap.Field{
		zap.String("task_id", taskID),
		zap.String("strategy", string(name)),
		zap.Bool("success", result.Success),
		zap.Float64("success_rate", result.SuccessRate),
		zap.Float64("elapsed_ms", elapsed),
	}
	if runErr != nil {
		s.log.Warn("task failed", append(fields, zap.Error(runErr))...)
		return rec, runErr
	}
	s.log.Info("task completed", fields...)
	return rec, nil
}

// SendMessage relays one message to a single agent outside of any strategy.
// The call is not recorded in history or agent metrics.
func (s *Service) SendMessage(ctx context.Context, agentID string, message string, taskContext map[string]any) (domain.CallOutcome, error) {
	if strings.TrimSpace(message) == "" {
		return domain.CallOutcome{}, ErrTaskRequired
	}
	if s.deps.Directory == nil || s.deps.Invoker == nil || !s.deps.Directory.Known(agentID) {
		return domain.CallOutcome{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	outcome := s.deps.Invoker.Invoke(ctx, agentID, message, taskContext)
	outcome.Agent = agentID
	s.log.Info("direct message sent",
		zap.String("agent", agentID),
		zap.Bool("success", outcome.Succeeded()),
		zap.Float64("elapsed_ms", outcome.ElapsedMS),
	)
	return outcome, nil
}

func (s *Service) GetTask(ctx context.Context, taskID string) (domain.TaskRecord, error) {
	return s.deps.History.Get(ctx, taskID)
}

// RecentTasks returns up to n records, oldest first.
func (s *Service) RecentTasks(ctx context.Context, n int) ([]domain.TaskRecord, error) {
	return s.deps.History.Recent(ctx, n)
}

func (s *Service) TaskCount(ctx context.Context) (int, error) {
	return s.deps.History.Len(ctx)
}

func (s *Service) Overview(ctx context.Context) (domain.HistoryOverview, error) {
	return s.deps.History.Overview(ctx)
}

func (s *Service) AgentMetrics() map[string]domain.AgentMetrics {
	if s.deps.Metrics == nil {
		return map[string]domain.AgentMetrics{}
	}
	return s.deps.Metrics.Snapshot()
}

func (s *Service) Agents() []domain.Agent {
	if s.deps.Directory == nil {
		return nil
	}
	return s.deps.Directory.List()
}

// AgentStatus probes every configured agent and returns their health in
// directory order. Probe failures are reported as offline agents.
func (s *Service) AgentStatus(ctx context.Context) ([]domain.AgentHealth, error) {
	agents := s.Agents()
	out := make([]domain.AgentHealth, len(agents))
	if s.deps.Prober == nil {
		for i, a := range agents {
			out[i] = domain.AgentHealth{Agent: a, Status: domain.AgentStatusOffline, Error: "no prober configured", LastCheck: s.now().UTC()}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.ProbeConcurrency > 0 {
		g.SetLimit(s.cfg.ProbeConcurrency)
	}
	for i, a := range agents {
		g.Go(func() error {
			out[i] = s.deps.Prober.Health(gctx, a.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probe agents: %w", err)
	}
	return out, nil
}
