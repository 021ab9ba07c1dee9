package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

const (
	defaultBreakerTimeout  = 30 * time.Second
	defaultBreakerInterval = 60 * time.Second
)

type Caller interface {
	Invoke(ctx context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome
}

type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed outcomes that opens an agent's circuit.
	MaxFailures uint32
	// Timeout is how long a circuit stays open before a single probe is let through.
	Timeout  time.Duration
	Interval time.Duration
}

// BreakerInvoker keeps one circuit per agent in front of an inner Caller.
// An open circuit produces a failed outcome without contacting the agent.
// It never retries.
type BreakerInvoker struct {
	inner  Caller
	cfg    BreakerConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[domain.CallOutcome]
}

func NewBreakerInvoker(inner Caller, cfg BreakerConfig, logger *zap.Logger) *BreakerInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultBreakerInterval
	}
	return &BreakerInvoker{
		inner:    inner,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "agent_breaker")),
		breakers: make(map[string]*gobreaker.CircuitBreaker[domain.CallOutcome]),
	}
}

func (b *BreakerInvoker) Invoke(ctx context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome {
	start := time.Now()
	outcome, err := b.breaker(agentID).Execute(func() (domain.CallOutcome, error) {
		o := b.inner.Invoke(ctx, agentID, task, taskContext)
		if !o.Succeeded() {
			return o, errors.New(o.Error)
		}
		return o, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.FailureOutcome(agentID, fmt.Sprintf("agent %s circuit open: %v", agentID, err), elapsedMS(start))
	}
	return outcome
}

// Available reports false while the agent's circuit is open.
func (b *BreakerInvoker) Available(agentID string) bool {
	b.mu.Lock()
	cb, ok := b.breakers[agentID]
	b.mu.Unlock()
	if !ok {
		return true
	}
	return cb.State() != gobreaker.StateOpen
}

func (b *BreakerInvoker) State(agentID string) gobreaker.State {
	return b.breaker(agentID).State()
}

func (b *BreakerInvoker) breaker(agentID string) *gobreaker.CircuitBreaker[domain.CallOutcome] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[agentID]; ok {
		return cb
	}
	maxFailures := b.cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[domain.CallOutcome](gobreaker.Settings{
		Name:        "agent:" + agentID,
		MaxRequests: 1,
		Interval:    b.cfg.Interval,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	b.breakers[agentID] = cb
	return cb
}
