// Package problem loads the judging metadata of problems.
package problem

import (
	"context"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

// Store reads problem metadata. Absent problems yield ProblemNotFound.
type Store interface {
	Get(ctx context.Context, problemID string) (*model.ProblemMeta, error)
}

func notFound(problemID string) error {
	return appErr.New(appErr.ProblemNotFound).WithMessage("problem metadata not found").WithDetail("problem_id", problemID)
}

func validMeta(meta *model.ProblemMeta) error {
	if meta.CheckpointCount <= 0 {
		return appErr.ValidationError("checkpoint_count", "must_be_positive")
	}
	if err := meta.Limits().Check(); err != nil {
		return appErr.ValidationError("resource", err.Error())
	}
	return nil
}

func isNotFound(err error) bool {
	return appErr.Is(err, appErr.ProblemNotFound)
}
