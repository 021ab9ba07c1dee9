package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_orchestrator/internal/domain"
)

func record(id string, success bool, ms float64) domain.TaskRecord {
	return domain.TaskRecord{
		ID:               id,
		Task:             "task " + id,
		Strategy:         domain.StrategyParallel,
		Agents:           []string{"agent1"},
		Result:           domain.StrategyResult{Strategy: domain.StrategyParallel, Success: success},
		ProcessingTimeMS: ms,
		CreatedAt:        time.Now().UTC(),
		User:             "anonymous",
	}
}

func TestMemoryStoreEvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	for i := range 5 {
		require.NoError(t, s.Append(ctx, record(fmt.Sprintf("t%d", i), i%2 == 0, float64(i*10))))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.Get(ctx, "t0")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
	_, err = s.Get(ctx, "t1")
	assert.True(t, errors.Is(err, ErrTaskNotFound))

	got, err := s.Get(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, "task t3", got.Task)

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(recent))
	for _, r := range recent {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"t2", "t3", "t4"}, ids)

	// retained: t2 ok 20ms, t3 fail 30ms, t4 ok 40ms
	rate, err := s.AggregateSuccessRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)

	ov, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.TotalTasks)
	assert.Equal(t, 2, ov.SuccessfulTasks)
	assert.Equal(t, 1, ov.FailedTasks)
	assert.InDelta(t, 200.0/3.0, ov.SuccessRate, 1e-9)
	assert.InDelta(t, 30.0, ov.AverageProcessingTimeMS, 1e-9)
}

func TestMemoryStoreRecentReturnsNewestTail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	for i := range 6 {
		require.NoError(t, s.Append(ctx, record(fmt.Sprintf("t%d", i), true, 1)))
	}
	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t4", recent[0].ID)
	assert.Equal(t, "t5", recent[1].ID)

	all, err := s.Recent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestMemoryStoreEmptyAggregates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	rate, err := s.AggregateSuccessRate(ctx)
	require.NoError(t, err)
	assert.Zero(t, rate)

	ov, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.HistoryOverview{}, ov)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryStoreRejectsBadIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)
	require.Error(t, s.Append(ctx, record("", true, 1)))
	require.NoError(t, s.Append(ctx, record("dup", true, 1)))
	require.Error(t, s.Append(ctx, record("dup", false, 1)))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultCapacity)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, record(fmt.Sprintf("c%d", i), i%4 != 0, 5)); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	ov, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, ov.TotalTasks)
	assert.Equal(t, 75, ov.SuccessfulTasks)
	assert.InDelta(t, 5.0, ov.AverageProcessingTimeMS, 1e-9)
}
