package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
	"agent_orchestrator/internal/metrics"
)

type scriptedCall struct {
	agent   string
	task    string
	context map[string]any
}

type reply struct {
	fail       bool
	confidence *float64
	context    map[string]any
	elapsedMS  float64
	delay      time.Duration
}

type fakeInvoker struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []scriptedCall
}

func newFakeInvoker(replies map[string]reply) *fakeInvoker {
	return &fakeInvoker{replies: replies}
}

func (f *fakeInvoker) Invoke(_ context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, scriptedCall{agent: agentID, task: task, context: taskContext})
	r, ok := f.replies[agentID]
	f.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if !ok || r.fail {
		return domain.FailureOutcome(agentID, "agent "+agentID+" unavailable", r.elapsedMS)
	}
	body := map[string]any{"response": map[string]any{"content": "from " + agentID}}
	if r.confidence != nil {
		body["response"].(map[string]any)["confidence"] = *r.confidence
	}
	if r.context != nil {
		body["context"] = r.context
	}
	raw, _ := json.Marshal(body)
	return domain.SuccessOutcome(agentID, raw, r.elapsedMS)
}

func (f *fakeInvoker) calledAgents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.agent)
	}
	return out
}

func conf(v float64) *float64 { return &v }

func newTestSet(inv Invoker, reg *metrics.Registry, available func(string) bool) *Set {
	return NewSet(Deps{Invoker: inv, Metrics: reg, Available: available, Logger: zap.NewNop()})
}

func mustExecutor(t *testing.T, s *Set, name domain.StrategyName) Executor {
	t.Helper()
	e, ok := s.Lookup(name)
	require.True(t, ok, "executor %s", name)
	require.Equal(t, name, e.Name())
	return e
}

func TestParallelKeepsInputOrderAndAggregates(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{
		"slow": {elapsedMS: 300, delay: 30 * time.Millisecond},
		"fast": {elapsedMS: 10},
		"down": {fail: true, elapsedMS: 50},
	})
	reg := metrics.NewRegistry()
	exec := mustExecutor(t, newTestSet(inv, reg, nil), domain.StrategyParallel)

	res, err := exec.Execute(context.Background(), Request{
		TaskID:  "t1",
		Task:    "job",
		Agents:  []string{"slow", "fast", "down"},
		Context: map[string]any{"user": "u"},
	})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "slow", res.Outcomes[0].Agent)
	assert.Equal(t, "fast", res.Outcomes[1].Agent)
	assert.Equal(t, "down", res.Outcomes[2].Agent)
	assert.True(t, res.Success)
	assert.Equal(t, 2.0/3.0, res.SuccessRate)
	assert.Equal(t, 300.0, res.TotalElapsedMS)
	assert.Equal(t, domain.StrategyParallel, res.Strategy)

	for _, c := range inv.calls {
		assert.Equal(t, "t1", c.context["taskId"])
		assert.Equal(t, "parallel", c.context["strategy"])
		assert.Equal(t, "u", c.context["user"])
	}
	for _, id := range []string{"slow", "fast", "down"} {
		m, ok := reg.Get(id)
		require.True(t, ok)
		assert.Equal(t, int64(1), m.TotalRequests)
	}
	down, _ := reg.Get("down")
	assert.Equal(t, int64(0), down.SuccessfulRequests)
	assert.Equal(t, 50.0, down.AverageResponseTimeMS)
}

func TestParallelAllFail(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{"a": {fail: true}, "b": {fail: true}})
	exec := mustExecutor(t, newTestSet(inv, metrics.NewRegistry(), nil), domain.StrategyParallel)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"a", "b"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.SuccessRate)
	assert.Len(t, res.Outcomes, 2)
}

func TestParallelEmptyAgents(t *testing.T) {
	exec := mustExecutor(t, newTestSet(newFakeInvoker(nil), metrics.NewRegistry(), nil), domain.StrategyParallel)
	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.SuccessRate)
	assert.Empty(t, res.Outcomes)
}

func TestSequentialStopsAtFirstFailure(t *testing.T) {
	for failAt := 0; failAt < 3; failAt++ {
		t.Run(fmt.Sprintf("fail at %d", failAt+1), func(t *testing.T) {
			agents := []string{"a", "b", "c"}
			replies := map[string]reply{"a": {elapsedMS: 10}, "b": {elapsedMS: 20}, "c": {elapsedMS: 30}}
			replies[agents[failAt]] = reply{fail: true, elapsedMS: 5}
			inv := newFakeInvoker(replies)
			reg := metrics.NewRegistry()
			exec := mustExecutor(t, newTestSet(inv, reg, nil), domain.StrategySequential)

			res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: agents})
			require.NoError(t, err)

			assert.Len(t, res.Outcomes, failAt+1)
			assert.Equal(t, agents[:failAt+1], inv.calledAgents())
			assert.False(t, res.Success)
			assert.False(t, res.Outcomes[failAt].Succeeded())
			for _, skipped := range agents[failAt+1:] {
				_, seen := reg.Get(skipped)
				assert.False(t, seen, "agent %s must not be called", skipped)
			}
		})
	}
}

func TestSequentialForwardsContext(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{
		"a": {elapsedMS: 10, context: map[string]any{"stage": "one"}},
		"b": {elapsedMS: 20},
		"c": {elapsedMS: 30},
	})
	exec := mustExecutor(t, newTestSet(inv, metrics.NewRegistry(), nil), domain.StrategySequential)

	res, err := exec.Execute(context.Background(), Request{
		TaskID:  "t9",
		Task:    "x",
		Agents:  []string{"a", "b", "c"},
		Context: map[string]any{"stage": "zero", "origin": "caller"},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1.0, res.SuccessRate)
	assert.Equal(t, 60.0, res.TotalElapsedMS)

	require.Len(t, inv.calls, 3)
	assert.Equal(t, "zero", inv.calls[0].context["stage"])
	assert.Equal(t, "caller", inv.calls[0].context["origin"])
	assert.Equal(t, "one", inv.calls[1].context["stage"])
	assert.NotContains(t, inv.calls[1].context, "origin")
	// b returned no context, so c keeps a's.
	assert.Equal(t, "one", inv.calls[2].context["stage"])
	assert.Equal(t, "sequential", inv.calls[2].context["strategy"])
	assert.Equal(t, "t9", inv.calls[2].context["taskId"])
}

func TestConsensusPicksFirstHighestConfidence(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{
		"a": {confidence: conf(0.4), elapsedMS: 10},
		"b": {confidence: conf(0.9), elapsedMS: 20},
		"c": {confidence: conf(0.9), elapsedMS: 30},
	})
	exec := mustExecutor(t, newTestSet(inv, metrics.NewRegistry(), nil), domain.StrategyConsensus)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"a", "b", "c"}})
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyConsensus, res.Strategy)
	assert.True(t, res.Success)
	require.NotNil(t, res.Consensus)
	assert.Equal(t, "b", res.Consensus.Agent)
	assert.Equal(t, 1.0, res.SuccessRate)
	assert.Equal(t, 30.0, res.TotalElapsedMS)
	for _, c := range inv.calls {
		assert.Equal(t, "consensus", c.context["strategy"])
	}
}

func TestConsensusIgnoresFailuresAndMissingConfidence(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{
		"down": {fail: true},
		"a":    {},
		"b":    {},
	})
	exec := mustExecutor(t, newTestSet(inv, metrics.NewRegistry(), nil), domain.StrategyConsensus)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"down", "a", "b"}})
	require.NoError(t, err)
	require.NotNil(t, res.Consensus)
	assert.Equal(t, "a", res.Consensus.Agent)
	assert.Equal(t, 2.0/3.0, res.SuccessRate)
}

func TestConsensusPropagatesParallelFailure(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{"a": {fail: true}, "b": {fail: true}})
	exec := mustExecutor(t, newTestSet(inv, metrics.NewRegistry(), nil), domain.StrategyConsensus)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"a", "b"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Consensus)
	assert.Equal(t, domain.StrategyParallel, res.Strategy)
	assert.Len(t, res.Outcomes, 2)
}

func TestLoadBalancedPrefersNeverCalledAgent(t *testing.T) {
	reg := metrics.NewRegistry()
	for i := 0; i < 5; i++ {
		reg.RecordOutcome("A", 120, true)
	}
	inv := newFakeInvoker(map[string]reply{"A": {elapsedMS: 1}, "B": {elapsedMS: 40}})
	exec := mustExecutor(t, newTestSet(inv, reg, nil), domain.StrategyLoadBalanced)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"A", "B"}})
	require.NoError(t, err)

	assert.Equal(t, "B", res.ChosenAgent)
	assert.Equal(t, []string{"B"}, inv.calledAgents())
	assert.True(t, res.Success)
	assert.Equal(t, 1.0, res.SuccessRate)
	assert.Equal(t, 40.0, res.TotalElapsedMS)
	require.Len(t, res.Outcomes, 1)

	b, _ := reg.Get("B")
	assert.Equal(t, 40.0, b.AverageResponseTimeMS)
}

func TestLoadBalancedTiesGoToFirst(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.RecordOutcome("A", 50, true)
	reg.RecordOutcome("B", 50, true)
	reg.RecordOutcome("C", 70, true)
	inv := newFakeInvoker(map[string]reply{"A": {}, "B": {}, "C": {}})
	exec := mustExecutor(t, newTestSet(inv, reg, nil), domain.StrategyLoadBalanced)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"C", "B", "A"}})
	require.NoError(t, err)
	assert.Equal(t, "B", res.ChosenAgent)
}

func TestLoadBalancedFailureAndFiltering(t *testing.T) {
	reg := metrics.NewRegistry()
	inv := newFakeInvoker(map[string]reply{"known": {fail: true, elapsedMS: 15}})
	known := func(id string) bool { return id == "known" }
	exec := mustExecutor(t, newTestSet(inv, reg, known), domain.StrategyLoadBalanced)

	res, err := exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"ghost", "known"}})
	require.NoError(t, err)
	assert.Equal(t, "known", res.ChosenAgent)
	assert.False(t, res.Success)
	assert.Zero(t, res.SuccessRate)
	assert.Equal(t, 15.0, res.TotalElapsedMS)

	_, err = exec.Execute(context.Background(), Request{TaskID: "t", Task: "x", Agents: []string{"ghost"}})
	require.ErrorIs(t, err, ErrNoAvailableAgents)
	assert.Equal(t, []string{"known"}, inv.calledAgents())
}

func TestConcurrentParallelRunsKeepAveragesExact(t *testing.T) {
	reg := metrics.NewRegistry()
	inv := newFakeInvoker(map[string]reply{"shared": {elapsedMS: 0}})
	set := newTestSet(&elapsedByTask{inner: inv}, reg, nil)
	exec := mustExecutor(t, set, domain.StrategyParallel)

	const n = 50
	var wg sync.WaitGroup
	var sum float64
	for i := 1; i <= n; i++ {
		sum += float64(i * 10)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := exec.Execute(context.Background(), Request{
				TaskID: fmt.Sprintf("t%d", i),
				Task:   fmt.Sprintf("%d", i*10),
				Agents: []string{"shared"},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	m, _ := reg.Get("shared")
	assert.Equal(t, int64(n), m.TotalRequests)
	assert.Equal(t, int64(n), m.SuccessfulRequests)
	assert.InDelta(t, sum/n, m.AverageResponseTimeMS, 1e-6)
}

// elapsedByTask reports the task text, parsed as a number, as the call latency.
type elapsedByTask struct {
	inner *fakeInvoker
}

func (e *elapsedByTask) Invoke(ctx context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome {
	o := e.inner.Invoke(ctx, agentID, task, taskContext)
	var ms float64
	_, _ = fmt.Sscanf(task, "%g", &ms)
	o.ElapsedMS = ms
	return o
}

func TestCollaborationRunsThreeRoles(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{"a1": {elapsedMS: 10}, "a2": {elapsedMS: 20}})
	reg := metrics.NewRegistry()
	collab := NewCollaboration(Deps{Invoker: inv, Metrics: reg})

	res, err := collab.Execute(context.Background(), Request{TaskID: "t", Task: "why?", Agents: []string{"a1", "a2"}})
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyCollaborate, res.Strategy)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"a1", "a2", "a1"}, inv.calledAgents())
	assert.Equal(t, 40.0, res.TotalElapsedMS)
	require.NotNil(t, res.Consensus)
	assert.Equal(t, "a1", res.Consensus.Agent)

	assert.Equal(t, "Analyze this problem: why?", inv.calls[0].task)
	assert.Equal(t, "analyzer", inv.calls[0].context["role"])
	assert.Equal(t, "solver", inv.calls[1].context["role"])
	assert.Equal(t, "why?", inv.calls[2].context["originalProblem"])

	m, _ := reg.Get("a1")
	assert.Equal(t, int64(2), m.TotalRequests)
}

func TestCollaborationStopsOnFailure(t *testing.T) {
	inv := newFakeInvoker(map[string]reply{"a1": {}, "a2": {fail: true}})
	collab := NewCollaboration(Deps{Invoker: inv, Metrics: metrics.NewRegistry()})

	res, err := collab.Execute(context.Background(), Request{TaskID: "t", Task: "p", Agents: []string{"a1", "a2"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Len(t, res.Outcomes, 2)
	assert.Nil(t, res.Consensus)
	assert.Equal(t, 0.5, res.SuccessRate)

	_, err = collab.Execute(context.Background(), Request{TaskID: "t", Task: "p"})
	require.ErrorIs(t, err, ErrNoAvailableAgents)
}
