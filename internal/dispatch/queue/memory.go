package queue

import (
	"context"
	"sync"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

// MemoryQueue is a process-local JobQueue.
type MemoryQueue struct {
	mu    sync.Mutex
	seq   int64
	items map[string]model.Descriptor
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string]model.Descriptor)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, d model.Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.items[d.ID]; exists {
		return appErr.New(appErr.DuplicateJob).WithDetail("job_id", d.ID)
	}
	q.seq++
	d.Seq = q.seq
	q.items[d.ID] = d
	return nil
}

func (q *MemoryQueue) ClaimAllPending(ctx context.Context) ([]model.Descriptor, error) {
	q.mu.Lock()
	claimed := q.items
	q.items = make(map[string]model.Descriptor)
	q.mu.Unlock()

	out := make([]model.Descriptor, 0, len(claimed))
	for _, d := range claimed {
		out = append(out, d)
	}
	sortArrival(out)
	return out, nil
}

func (q *MemoryQueue) ListPending(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	out := make([]model.Descriptor, 0, len(q.items))
	for _, d := range q.items {
		out = append(out, d)
	}
	q.mu.Unlock()
	sortArrival(out)
	return ids(out), nil
}
