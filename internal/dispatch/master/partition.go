package master

import (
	"fmt"
	"math/rand"
)

// Policy names a checkpoint partitioning strategy.
type Policy string

const (
	// PolicyRoundRobin deals checkpoint i to partition (i-1) mod W.
	PolicyRoundRobin Policy = "round_robin"
	// PolicyBalanced gives each partition a contiguous block whose sizes
	// differ by at most one.
	PolicyBalanced Policy = "balanced"
	// PolicyRandom assigns each checkpoint to a uniformly random partition.
	PolicyRandom Policy = "random"
)

// ParsePolicy maps a configured name to a Policy. Empty means round robin.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRoundRobin:
		return PolicyRoundRobin, nil
	case PolicyBalanced, PolicyRandom:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown partition policy %q", s)
	}
}

// Partition splits checkpoints 1..n across at most w partitions. Every
// checkpoint lands in exactly one partition and empty partitions are
// dropped. rnd is only used by PolicyRandom.
func Partition(n, w int, policy Policy, rnd *rand.Rand) ([][]int, error) {
	if w <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", w)
	}
	if n <= 0 {
		return nil, nil
	}
	parts := make([][]int, w)
	switch policy {
	case "", PolicyRoundRobin:
		for c := 1; c <= n; c++ {
			i := (c - 1) % w
			parts[i] = append(parts[i], c)
		}
	case PolicyBalanced:
		base, extra := n/w, n%w
		next := 1
		for i := 0; i < w; i++ {
			size := base
			if i < extra {
				size++
			}
			for j := 0; j < size; j++ {
				parts[i] = append(parts[i], next)
				next++
			}
		}
	case PolicyRandom:
		if rnd == nil {
			return nil, fmt.Errorf("random partition requires a source")
		}
		for c := 1; c <= n; c++ {
			i := rnd.Intn(w)
			parts[i] = append(parts[i], c)
		}
	default:
		return nil, fmt.Errorf("unknown partition policy %q", policy)
	}

	out := parts[:0]
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}
