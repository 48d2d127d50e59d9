package master

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// DefaultPriorityBound is the exclusive upper bound of random priorities.
const DefaultPriorityBound = 1000

// PriorityAssigner picks the priority shared by one submission's worker jobs.
type PriorityAssigner interface {
	Assign() int
}

// FixedPriority assigns the same priority to every submission.
type FixedPriority int

func (p FixedPriority) Assign() int { return int(p) }

// RandomPriority draws priorities uniformly from [0, bound).
type RandomPriority struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	bound int
}

// NewRandomPriority creates a random assigner. seed 0 seeds from the clock.
func NewRandomPriority(bound int, seed int64) *RandomPriority {
	if bound <= 0 {
		bound = DefaultPriorityBound
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomPriority{rnd: rand.New(rand.NewSource(seed)), bound: bound}
}

func (p *RandomPriority) Assign() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(p.bound)
}

// NewPriorityAssigner builds an assigner from its configured name.
func NewPriorityAssigner(kind string, fixed int) (PriorityAssigner, error) {
	switch kind {
	case "", "random":
		return NewRandomPriority(DefaultPriorityBound, 0), nil
	case "fixed":
		return FixedPriority(fixed), nil
	default:
		return nil, fmt.Errorf("unknown priority assigner %q", kind)
	}
}
