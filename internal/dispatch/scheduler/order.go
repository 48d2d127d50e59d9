package scheduler

import (
	"container/heap"

	"fuzdispatch/internal/dispatch/model"
)

type queued struct {
	desc  model.Descriptor
	index int
}

// jobHeap is a max-heap on priority. Equal priorities keep arrival order.
type jobHeap []queued

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.desc.Priority != b.desc.Priority {
		return a.desc.Priority > b.desc.Priority
	}
	if a.desc.Seq != b.desc.Seq {
		return a.desc.Seq < b.desc.Seq
	}
	return a.index < b.index
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Order returns ds sorted by non-increasing priority, ties broken by
// arrival sequence and then by position in ds.
func Order(ds []model.Descriptor) []model.Descriptor {
	h := make(jobHeap, 0, len(ds))
	for i, d := range ds {
		h = append(h, queued{desc: d, index: i})
	}
	heap.Init(&h)
	out := make([]model.Descriptor, 0, len(ds))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(queued).desc)
	}
	return out
}
