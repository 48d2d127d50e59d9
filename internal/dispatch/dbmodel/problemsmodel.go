package dbmodel

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ ProblemsModel = (*defaultProblemsModel)(nil)

type (
	// ProblemsModel reads the judging metadata of problems.
	ProblemsModel interface {
		FindOne(ctx context.Context, problemID string) (*Problems, error)
	}

	defaultProblemsModel struct {
		conn  sqlx.SqlConn
		table string
	}

	Problems struct {
		ProblemId       string `db:"problem_id"`
		CheckpointCount int64  `db:"checkpoint_count"`
		TimeLimitMs     int64  `db:"time_limit_ms"`
		MemoryLimitMb   int64  `db:"memory_limit_mb"`
	}
)

const problemsRows = "`problem_id`,`checkpoint_count`,`time_limit_ms`,`memory_limit_mb`"

// NewProblemsModel returns a model for the problem_judge_meta table.
func NewProblemsModel(conn sqlx.SqlConn) ProblemsModel {
	return &defaultProblemsModel{
		conn:  conn,
		table: "`problem_judge_meta`",
	}
}

func (m *defaultProblemsModel) FindOne(ctx context.Context, problemID string) (*Problems, error) {
	var resp Problems
	query := fmt.Sprintf("select %s from %s where `problem_id` = ? limit 1", problemsRows, m.table)
	err := m.conn.QueryRowCtx(ctx, &resp, query, problemID)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}
