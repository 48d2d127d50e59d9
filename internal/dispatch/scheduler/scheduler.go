// Package scheduler drains the job queue and runs each descriptor with the
// handler registered for its kind.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/queue"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/contextkey"
	"fuzdispatch/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultPollInterval = time.Second

// Handler runs one claimed descriptor to completion.
type Handler interface {
	Handle(ctx context.Context, d model.Descriptor) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d model.Descriptor) error

func (f HandlerFunc) Handle(ctx context.Context, d model.Descriptor) error {
	return f(ctx, d)
}

// Config controls the claim loop.
type Config struct {
	// PollInterval is how long the loop idles after a cycle that found nothing.
	PollInterval time.Duration
	// Spawn starts a handler. Defaults to a new goroutine per job.
	Spawn func(func())
}

// Scheduler is the single claim loop of a dispatcher process.
type Scheduler struct {
	queue        queue.JobQueue
	pollInterval time.Duration
	spawn        func(func())

	mu       sync.RWMutex
	handlers map[model.Kind]Handler

	inflight sync.WaitGroup
}

// New creates a scheduler over q.
func New(q queue.JobQueue, cfg Config) (*Scheduler, error) {
	if q == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Spawn == nil {
		cfg.Spawn = func(f func()) { go f() }
	}
	return &Scheduler{
		queue:        q,
		pollInterval: cfg.PollInterval,
		spawn:        cfg.Spawn,
		handlers:     make(map[model.Kind]Handler),
	}, nil
}

// Register binds h to kind, replacing any previous handler.
func (s *Scheduler) Register(kind model.Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *Scheduler) handler(kind model.Kind) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

// Run claims and dispatches until ctx is canceled. Jobs already dispatched
// keep running after Run returns; use Wait to drain them.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx, "scheduler started", zap.Duration("poll_interval", s.pollInterval))
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "scheduler stopped")
			return nil
		}
		n, err := s.Cycle(ctx)
		if err != nil {
			logger.Error(ctx, "claim pending jobs failed",
				zap.Int("code", int(appErr.GetCode(err))),
				zap.Error(err),
			)
		}
		if n > 0 && err == nil {
			continue
		}

		timer.Reset(s.pollInterval)
		select {
		case <-ctx.Done():
			logger.Info(ctx, "scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Cycle performs one claim, order and dispatch pass and reports how many
// descriptors were claimed.
func (s *Scheduler) Cycle(ctx context.Context) (int, error) {
	claimed, err := s.queue.ClaimAllPending(ctx)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	ordered := Order(claimed)
	logger.Debug(ctx, "dispatching claimed jobs", zap.Int("count", len(ordered)))

	// Claimed jobs are gone from the queue; they must not die with the loop.
	base := context.WithoutCancel(ctx)
	for _, d := range ordered {
		s.dispatch(base, d)
	}
	return len(ordered), nil
}

// Wait blocks until every dispatched handler has returned.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) dispatch(ctx context.Context, d model.Descriptor) {
	jobCtx := context.WithValue(ctx, contextkey.JobID, d.ID)
	jobCtx = context.WithValue(jobCtx, contextkey.JobKind, string(d.Kind))
	if sub := d.SubmissionID(); sub != "" {
		jobCtx = context.WithValue(jobCtx, contextkey.SubmissionID, sub)
	}

	h, ok := s.handler(d.Kind)
	if !ok {
		err := appErr.UnknownKindError(d.ID, string(d.Kind))
		logger.Warn(jobCtx, "discard job with unknown kind",
			zap.Int("code", int(err.Code)),
			zap.String("kind", string(d.Kind)),
		)
		return
	}

	s.inflight.Add(1)
	s.spawn(func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error(jobCtx, "job handler panicked",
					zap.Int("code", int(appErr.HandlerPanic)),
					zap.Any("panic", r),
				)
			}
		}()
		if err := h.Handle(jobCtx, d); err != nil {
			logger.Error(jobCtx, "job handler failed",
				zap.Int("code", int(appErr.GetCode(err))),
				zap.Error(err),
			)
		}
	})
}
