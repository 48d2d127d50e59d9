// Package result carries per-job verdicts from workers back to their master.
package result

import (
	"context"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

// Channel is a write-once verdict store keyed by job id.
type Channel interface {
	// Publish records v for jobID. Only the first publish for an id succeeds;
	// later ones fail with VerdictAlreadyPublished.
	Publish(ctx context.Context, jobID string, v model.Verdict) error

	// TryRead returns the verdict for jobID without blocking. ok is false
	// when nothing was published yet.
	TryRead(ctx context.Context, jobID string) (v model.Verdict, ok bool, err error)

	// Wait blocks until jobID has a verdict or ctx is done.
	Wait(ctx context.Context, jobID string) (model.Verdict, error)

	// Discard drops stored verdicts once their reader is done with them.
	Discard(ctx context.Context, jobIDs ...string) error
}

func alreadyPublished(jobID string) error {
	return appErr.New(appErr.VerdictAlreadyPublished).WithDetail("job_id", jobID)
}

func waitAborted(ctx context.Context, jobID string) error {
	cause := ctx.Err()
	if cause == nil {
		// the deadline passed but the context timer has not fired yet
		cause = context.DeadlineExceeded
	}
	return appErr.Wrapf(cause, appErr.Timeout, "wait for verdict of %s aborted", jobID).
		WithDetail("job_id", jobID)
}

func checkPublish(jobID string, v model.Verdict) error {
	if jobID == "" {
		return appErr.ValidationError("job_id", "required")
	}
	if !v.Valid() {
		return appErr.ValidationError("verdict", "unknown verdict "+string(v))
	}
	return nil
}
