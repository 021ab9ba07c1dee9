package history

import (
	"context"
	"fmt"
	"sync"

	"agent_orchestrator/internal/domain"
)

// MemoryStore is a fixed-capacity ring of task records. Once full, each append
// evicts the oldest record; aggregates cover retained records only.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []domain.TaskRecord
	start    int
	count    int
	index    map[string]int
	capacity int

	successes int
	totalTime float64
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		records:  make([]domain.TaskRecord, capacity),
		index:    make(map[string]int, capacity),
		capacity: capacity,
	}
}

func (s *MemoryStore) Append(_ context.Context, rec domain.TaskRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("append task record: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[rec.ID]; exists {
		return fmt.Errorf("append task record %s: duplicate id", rec.ID)
	}

	if s.count == s.capacity {
		evicted := s.records[s.start]
		delete(s.index, evicted.ID)
		s.forget(evicted)
		s.records[s.start] = domain.TaskRecord{}
		s.start = (s.start + 1) % s.capacity
		s.count--
	}

	pos := (s.start + s.count) % s.capacity
	s.records[pos] = rec
	s.index[rec.ID] = pos
	s.count++
	if rec.Result.Success {
		s.successes++
	}
	s.totalTime += rec.ProcessingTimeMS
	return nil
}

func (s *MemoryStore) forget(rec domain.TaskRecord) {
	if rec.Result.Success {
		s.successes--
	}
	s.totalTime -= rec.ProcessingTimeMS
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[taskID]
	if !ok {
		return domain.TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return s.records[pos], nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]domain.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]domain.TaskRecord, 0, n)
	for i := s.count - n; i < s.count; i++ {
		out = append(out, s.records[(s.start+i)%s.capacity])
	}
	return out, nil
}

func (s *MemoryStore) AggregateSuccessRate(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return 0, nil
	}
	return float64(s.successes) / float64(s.count), nil
}

func (s *MemoryStore) Overview(_ context.Context) (domain.HistoryOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := domain.HistoryOverview{
		TotalTasks:      s.count,
		SuccessfulTasks: s.successes,
		FailedTasks:     s.count - s.successes,
	}
	if s.count > 0 {
		out.SuccessRate = float64(s.successes) / float64(s.count) * 100
		out.AverageProcessingTimeMS = s.totalTime / float64(s.count)
	}
	return out, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}
