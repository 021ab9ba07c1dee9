package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

func TestRecordOutcomeCumulativeMean(t *testing.T) {
	r := NewRegistry()

	var averages []float64
	for _, elapsed := range []float64{100, 200, 300} {
		m := r.RecordOutcome("a1", elapsed, true)
		averages = append(averages, m.AverageResponseTimeMS)
	}
	assert.Equal(t, []float64{100, 150, 200}, averages)

	m, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(3), m.SuccessfulRequests)
}

func TestRecordOutcomeCountsFailures(t *testing.T) {
	r := NewRegistry()
	r.RecordOutcome("a1", 50, false)
	r.RecordOutcome("a1", 150, true)

	m, _ := r.Get("a1")
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.Equal(t, int64(1), m.SuccessfulRequests)
	assert.Equal(t, 100.0, m.AverageResponseTimeMS)
}

func TestUnseenAgentIsZero(t *testing.T) {
	r := NewRegistry()
	m, ok := r.Get("ghost")
	assert.False(t, ok)
	assert.Equal(t, domain.AgentMetrics{AgentID: "ghost"}, m)
	assert.Zero(t, r.AverageResponseTime("ghost"))
	assert.Empty(t, r.Snapshot())

	r.Ensure("ghost")
	snap := r.Snapshot()
	require.Contains(t, snap, "ghost")
	assert.Zero(t, snap["ghost"].TotalRequests)
}

func TestConcurrentUpdatesSameAgent(t *testing.T) {
	r := NewRegistry()
	const n = 200

	var wg sync.WaitGroup
	var sum float64
	for i := 1; i <= n; i++ {
		sum += float64(i)
		wg.Add(1)
		go func(elapsed float64) {
			defer wg.Done()
			r.RecordOutcome("shared", elapsed, true)
		}(float64(i))
	}
	wg.Wait()

	m, _ := r.Get("shared")
	assert.Equal(t, int64(n), m.TotalRequests)
	assert.Equal(t, int64(n), m.SuccessfulRequests)
	assert.InDelta(t, sum/n, m.AverageResponseTimeMS, 1e-6)
}

func TestSuccessfulNeverExceedsTotal(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.RecordOutcome([]string{"a", "b"}[i%2], float64(i), i%3 == 0)
		}(i)
	}
	wg.Wait()
	for id, m := range r.Snapshot() {
		assert.LessOrEqual(t, m.SuccessfulRequests, m.TotalRequests, id)
	}
}

func TestCollectorObservesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("test", reg, zap.NewNop())
	r := NewRegistry(WithObserver(c))

	r.RecordOutcome("a1", 120, true)
	r.RecordOutcome("a1", 80, false)
	r.RecordOutcome("a2", 10, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentRequestsTotal.WithLabelValues("a1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentRequestsTotal.WithLabelValues("a1", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.agentResponseTime))

	c.ObserveTask(domain.TaskRecord{ID: "t1", Strategy: domain.StrategyParallel, Result: domain.StrategyResult{Success: true}, ProcessingTimeMS: 250})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksTotal.WithLabelValues("parallel", "success")))
}
