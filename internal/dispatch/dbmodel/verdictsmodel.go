package dbmodel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ VerdictsModel = (*defaultVerdictsModel)(nil)

type (
	// VerdictsModel persists terminal verdict records, one row per submission.
	VerdictsModel interface {
		Upsert(ctx context.Context, row *Verdicts) (sql.Result, error)
		FindOne(ctx context.Context, submissionID string) (*Verdicts, error)
	}

	defaultVerdictsModel struct {
		conn  sqlx.SqlConn
		table string
	}

	Verdicts struct {
		SubmissionId string       `db:"submission_id"`
		ProblemId    string       `db:"problem_id"`
		MasterJobId  string       `db:"master_job_id"`
		Status       string       `db:"status"`
		Verdict      string       `db:"verdict"`
		Payload      string       `db:"payload"`
		FinishedAt   sql.NullTime `db:"finished_at"`
		UpdatedAt    time.Time    `db:"updated_at"`
	}
)

const verdictsRows = "`submission_id`,`problem_id`,`master_job_id`,`status`,`verdict`,`payload`,`finished_at`,`updated_at`"

// NewVerdictsModel returns a model for the submission_verdicts table.
func NewVerdictsModel(conn sqlx.SqlConn) VerdictsModel {
	return &defaultVerdictsModel{
		conn:  conn,
		table: "`submission_verdicts`",
	}
}

func (m *defaultVerdictsModel) Upsert(ctx context.Context, row *Verdicts) (sql.Result, error) {
	query := fmt.Sprintf("insert into %s (%s) values (?, ?, ?, ?, ?, ?, ?, ?) "+
		"on duplicate key update `problem_id` = values(`problem_id`), `master_job_id` = values(`master_job_id`), "+
		"`status` = values(`status`), `verdict` = values(`verdict`), `payload` = values(`payload`), "+
		"`finished_at` = values(`finished_at`), `updated_at` = values(`updated_at`)", m.table, verdictsRows)
	return m.conn.ExecCtx(ctx, query, row.SubmissionId, row.ProblemId, row.MasterJobId,
		row.Status, row.Verdict, row.Payload, row.FinishedAt, row.UpdatedAt)
}

func (m *defaultVerdictsModel) FindOne(ctx context.Context, submissionID string) (*Verdicts, error) {
	var resp Verdicts
	query := fmt.Sprintf("select %s from %s where `submission_id` = ? limit 1", verdictsRows, m.table)
	err := m.conn.QueryRowCtx(ctx, &resp, query, submissionID)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}
