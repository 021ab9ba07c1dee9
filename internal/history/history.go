// Package history keeps completed task records.
package history

import (
	"context"
	"errors"

	"agent_orchestrator/internal/domain"
)

const DefaultCapacity = 1000

var ErrTaskNotFound = errors.New("task not found")

type Store interface {
	Append(ctx context.Context, rec domain.TaskRecord) error
	Get(ctx context.Context, taskID string) (domain.TaskRecord, error)
	// Recent returns up to n records, oldest first.
	Recent(ctx context.Context, n int) ([]domain.TaskRecord, error)
	AggregateSuccessRate(ctx context.Context) (float64, error)
	Overview(ctx context.Context) (domain.HistoryOverview, error)
	Len(ctx context.Context) (int, error)
}
