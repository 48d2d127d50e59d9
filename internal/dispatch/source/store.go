// Package source stores and retrieves submission source artifacts.
package source

import (
	"context"
	"strings"

	appErr "fuzdispatch/pkg/errors"
)

// SourceExt is the extension of stored submission sources.
const SourceExt = ".cpp"

// Store fetches a submission's source into a local directory.
type Store interface {
	// Fetch materializes the source under dstDir and returns its path.
	// An absent source yields SourceNotFound.
	Fetch(ctx context.Context, submissionID, dstDir string) (string, error)
	// Put stores the source of a submission.
	Put(ctx context.Context, submissionID string, code []byte) error
}

func validID(submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if strings.ContainsAny(submissionID, `/\`) || submissionID == "." || submissionID == ".." {
		return appErr.ValidationError("submission_id", "invalid")
	}
	return nil
}

func sourceNotFound(submissionID string) error {
	return appErr.New(appErr.SourceNotFound).WithMessage("submission source not found").WithDetail("submission_id", submissionID)
}
