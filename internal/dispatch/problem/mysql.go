package problem

import (
	"context"
	"errors"

	"fuzdispatch/internal/dispatch/dbmodel"
	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

// MySQLStore reads the problem_judge_meta table.
type MySQLStore struct {
	problems dbmodel.ProblemsModel
}

// NewMySQLStore creates a database backed store.
func NewMySQLStore(problems dbmodel.ProblemsModel) *MySQLStore {
	return &MySQLStore{problems: problems}
}

func (s *MySQLStore) Get(ctx context.Context, problemID string) (*model.ProblemMeta, error) {
	if problemID == "" {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	row, err := s.problems.FindOne(ctx, problemID)
	if err != nil {
		if errors.Is(err, dbmodel.ErrNotFound) {
			return nil, notFound(problemID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem metadata failed")
	}
	meta := &model.ProblemMeta{
		ProblemID:       row.ProblemId,
		CheckpointCount: int(row.CheckpointCount),
		TimeLimit:       float64(row.TimeLimitMs),
		MemoryLimit:     float64(row.MemoryLimitMb),
	}
	if err := validMeta(meta); err != nil {
		return nil, err
	}
	return meta, nil
}
