// Package metrics tracks per-agent call statistics used for routing and monitoring.
package metrics

import (
	"sync"

	"agent_orchestrator/internal/domain"
)

// Observer is notified after every recorded outcome.
type Observer interface {
	ObserveOutcome(agentID string, elapsedMS float64, success bool)
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

type entry struct {
	mu sync.Mutex
	m  domain.AgentMetrics
}

// Registry maps agent id to running totals. The map is guarded by an RWMutex and
// every entry carries its own mutex, so updates for one agent are atomic without
// serializing updates for different agents.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	observer Observer
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordOutcome folds one completed call into the agent's totals and returns the
// updated values. The average is the cumulative mean over all recorded calls.
func (r *Registry) RecordOutcome(agentID string, elapsedMS float64, success bool) domain.AgentMetrics {
	e := r.entry(agentID)

	e.mu.Lock()
	e.m.TotalRequests++
	if success {
		e.m.SuccessfulRequests++
	}
	n := float64(e.m.TotalRequests)
	e.m.AverageResponseTimeMS = (e.m.AverageResponseTimeMS*(n-1) + elapsedMS) / n
	out := e.m
	e.mu.Unlock()

	if r.observer != nil {
		r.observer.ObserveOutcome(agentID, elapsedMS, success)
	}
	return out
}

func (r *Registry) Get(agentID string) (domain.AgentMetrics, bool) {
	r.mu.RLock()
	e, ok := r.entries[agentID]
	r.mu.RUnlock()
	if !ok {
		return domain.AgentMetrics{AgentID: agentID}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, true
}

// AverageResponseTime is 0 for agents that were never called.
func (r *Registry) AverageResponseTime(agentID string) float64 {
	m, _ := r.Get(agentID)
	return m.AverageResponseTimeMS
}

func (r *Registry) Snapshot() map[string]domain.AgentMetrics {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.entries))
	for id, e := range r.entries {
		entries[id] = e
	}
	r.mu.RUnlock()

	out := make(map[string]domain.AgentMetrics, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		out[id] = e.m
		e.mu.Unlock()
	}
	return out
}

// Ensure creates zeroed entries for ids that do not exist yet.
func (r *Registry) Ensure(agentIDs ...string) {
	for _, id := range agentIDs {
		r.entry(id)
	}
}

func (r *Registry) entry(agentID string) *entry {
	r.mu.RLock()
	e, ok := r.entries[agentID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[agentID]; ok {
		return e
	}
	e = &entry{m: domain.AgentMetrics{AgentID: agentID}}
	r.entries[agentID] = e
	return e
}
