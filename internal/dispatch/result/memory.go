package result

import (
	"context"
	"sync"
	"time"

	"fuzdispatch/internal/dispatch/model"
)

type slot struct {
	verdict model.Verdict
	set     bool
	ready   chan struct{}
}

// MemoryChannel is a process-local Channel. Discarded ids are remembered
// for a while so that a late publish for them is dropped instead of
// occupying a slot nobody reads.
type MemoryChannel struct {
	mu        sync.Mutex
	slots     map[string]*slot
	discarded map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewMemoryChannel creates an empty channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		slots:     make(map[string]*slot),
		discarded: make(map[string]time.Time),
		ttl:       defaultTTL,
		now:       time.Now,
	}
}

func (c *MemoryChannel) slot(jobID string) *slot {
	s, ok := c.slots[jobID]
	if !ok {
		s = &slot{ready: make(chan struct{})}
		c.slots[jobID] = s
	}
	return s
}

func (c *MemoryChannel) Publish(ctx context.Context, jobID string, v model.Verdict) error {
	if err := checkPublish(jobID, v); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if until, gone := c.discarded[jobID]; gone && c.now().Before(until) {
		return nil
	}
	s := c.slot(jobID)
	if s.set {
		return alreadyPublished(jobID)
	}
	s.verdict = v
	s.set = true
	close(s.ready)
	return nil
}

func (c *MemoryChannel) TryRead(ctx context.Context, jobID string) (model.Verdict, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[jobID]
	if !ok || !s.set {
		return "", false, nil
	}
	return s.verdict, true, nil
}

func (c *MemoryChannel) Wait(ctx context.Context, jobID string) (model.Verdict, error) {
	c.mu.Lock()
	s := c.slot(jobID)
	c.mu.Unlock()

	select {
	case <-s.ready:
		c.mu.Lock()
		defer c.mu.Unlock()
		return s.verdict, nil
	case <-ctx.Done():
		return "", waitAborted(ctx, jobID)
	}
}

func (c *MemoryChannel) Discard(ctx context.Context, jobIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, until := range c.discarded {
		if !now.Before(until) {
			delete(c.discarded, id)
		}
	}
	for _, id := range jobIDs {
		delete(c.slots, id)
		c.discarded[id] = now.Add(c.ttl)
	}
	return nil
}
