// Package worker runs the checkpoint slice of a WorkerJob and reports one
// verdict for it.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fuzdispatch/internal/dispatch/executor"
	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/result"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"
)

// Executor handles WorkerJob descriptors.
type Executor struct {
	exec    executor.Executor
	results result.Channel
}

// NewExecutor creates a worker executor.
func NewExecutor(exec executor.Executor, results result.Channel) (*Executor, error) {
	if exec == nil {
		return nil, fmt.Errorf("checkpoint executor is required")
	}
	if results == nil {
		return nil, fmt.Errorf("result channel is required")
	}
	return &Executor{exec: exec, results: results}, nil
}

// Handle runs every assigned checkpoint and publishes the most severe
// verdict under the job id. It never retries; when a checkpoint cannot be
// run nothing is published.
func (e *Executor) Handle(ctx context.Context, d model.Descriptor) error {
	if d.Kind != model.KindWorker || d.Worker == nil {
		return appErr.ValidationError("kind", "worker_job_required")
	}
	w := d.Worker
	verdicts := make([]model.Verdict, 0, len(w.CheckpointSet))
	for _, cp := range w.CheckpointSet {
		v, err := e.exec.Run(ctx, executor.Request{
			RunnablePath: w.RunnablePath,
			ProblemID:    w.ProblemID,
			Checkpoint:   cp,
			Limits:       w.Limits,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				v = model.VerdictTLE
			} else {
				logger.Error(ctx, "checkpoint execution failed",
					zap.Int("checkpoint", cp),
					zap.Int("code", int(appErr.GetCode(err))),
					zap.Error(err),
				)
				return appErr.Wrapf(err, appErr.ExecutorError, "run checkpoint %d failed", cp)
			}
		}
		verdicts = append(verdicts, v)
	}

	local := model.MostSevere(verdicts...)
	if err := e.results.Publish(ctx, d.ID, local); err != nil {
		return err
	}
	logger.Info(ctx, "worker verdict published",
		zap.String("owner_job_id", w.OwnerJobID),
		zap.Ints("checkpoints", w.CheckpointSet),
		zap.String("verdict", string(local)),
	)
	return nil
}
