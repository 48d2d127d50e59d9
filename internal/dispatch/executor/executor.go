// Package executor runs a single checkpoint of a compiled submission.
package executor

import (
	"context"

	"fuzdispatch/internal/dispatch/model"
)

// Request describes one checkpoint execution.
type Request struct {
	RunnablePath string
	ProblemID    string
	Checkpoint   int
	Limits       model.ResourceLimits
}

// Executor produces the verdict of one checkpoint. The error return is
// reserved for failures that leave the checkpoint without a verdict.
type Executor interface {
	Run(ctx context.Context, req Request) (model.Verdict, error)
}
