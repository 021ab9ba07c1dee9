// Package events fans task lifecycle notifications out to in-process subscribers.
package events

import (
	"sync"

	"github.com/google/uuid"

	"agent_orchestrator/internal/domain"
)

type Type string

const (
	TaskCompleted Type = "task.completed"
	TaskFailed    Type = "task.failed"
)

type Event struct {
	Type   Type              `json:"type"`
	TaskID string            `json:"task_id"`
	Record domain.TaskRecord `json:"record"`
}

// ForRecord picks TaskCompleted or TaskFailed from the record's result.
func ForRecord(rec domain.TaskRecord) Event {
	t := TaskCompleted
	if !rec.Result.Success {
		t = TaskFailed
	}
	return Event{Type: t, TaskID: rec.ID, Record: rec}
}

// Bus delivers each published event to every subscriber. A subscriber whose
// queue is full misses the event; Publish never blocks.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its id and queue.
func (b *Bus) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}

// Publish returns how many subscribers dropped the event.
func (b *Bus) Publish(evt Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			dropped++
		}
	}
	return dropped
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
