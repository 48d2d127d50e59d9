package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fuzdispatch/internal/dispatch/model"
)

// Default outcome split used by RandomExecutor.
const (
	DefaultAcceptRate = 0.8
	DefaultWrongRate  = 0.1
)

// RandomExecutor draws verdicts at random: AC with AcceptRate, WA with
// WrongRate and TLE otherwise. It never touches the runnable.
type RandomExecutor struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	accept float64
	wrong  float64
	delay  time.Duration
}

// RandomOption configures a RandomExecutor.
type RandomOption func(*RandomExecutor)

// WithSeed makes the verdict sequence reproducible.
func WithSeed(seed int64) RandomOption {
	return func(e *RandomExecutor) { e.rnd = rand.New(rand.NewSource(seed)) }
}

// WithRates overrides the AC and WA probabilities.
func WithRates(accept, wrong float64) RandomOption {
	return func(e *RandomExecutor) {
		e.accept = accept
		e.wrong = wrong
	}
}

// WithDelay simulates per-checkpoint run time.
func WithDelay(d time.Duration) RandomOption {
	return func(e *RandomExecutor) { e.delay = d }
}

// NewRandomExecutor creates a random executor.
func NewRandomExecutor(opts ...RandomOption) *RandomExecutor {
	e := &RandomExecutor{
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		accept: DefaultAcceptRate,
		wrong:  DefaultWrongRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RandomExecutor) Run(ctx context.Context, req Request) (model.Verdict, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.VerdictTLE, nil
		case <-timer.C:
		}
	}
	e.mu.Lock()
	x := e.rnd.Float64()
	e.mu.Unlock()
	switch {
	case x < e.accept:
		return model.VerdictAC, nil
	case x < e.accept+e.wrong:
		return model.VerdictWA, nil
	default:
		return model.VerdictTLE, nil
	}
}
