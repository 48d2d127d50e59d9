package controller

import (
	"context"
	"strings"
	"time"

	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/queue"
	"fuzdispatch/internal/dispatch/source"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"
	"fuzdispatch/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerdictStore reads and records submission verdicts.
type VerdictStore interface {
	Get(ctx context.Context, submissionID string) (model.VerdictRecord, error)
	Save(ctx context.Context, rec model.VerdictRecord) error
}

// JudgeController is the upstream entry point of the dispatcher.
type JudgeController struct {
	queue    queue.JobQueue
	sources  source.Store
	verdicts VerdictStore
}

// NewJudgeController creates a new controller. sources may be nil when
// submissions never carry inline source.
func NewJudgeController(q queue.JobQueue, sources source.Store, verdicts VerdictStore) *JudgeController {
	return &JudgeController{queue: q, sources: sources, verdicts: verdicts}
}

// Register mounts the judge routes on r.
func (h *JudgeController) Register(r gin.IRouter) {
	g := r.Group("/api/v1/judge")
	g.POST("/submissions", h.Submit)
	g.GET("/submissions/:id", h.GetVerdict)
	g.GET("/queue", h.ListQueue)
}

// Submit enqueues a MasterJob for one submission.
func (h *JudgeController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	req.ProblemID = strings.TrimSpace(req.ProblemID)
	req.SubmissionID = strings.TrimSpace(req.SubmissionID)
	if req.ProblemID == "" {
		response.Error(c, appErr.ValidationError("problem_id", "required"))
		return
	}
	ctx := c.Request.Context()
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	} else if err := h.checkNewSubmission(ctx, req.SubmissionID); err != nil {
		response.Error(c, err)
		return
	}

	if req.Source != "" {
		if h.sources == nil {
			response.Error(c, appErr.New(appErr.ServiceUnavailable).WithMessage("source upload is not enabled"))
			return
		}
		if err := h.sources.Put(ctx, req.SubmissionID, []byte(req.Source)); err != nil {
			response.Error(c, err)
			return
		}
	}

	job := model.NewMasterJob(model.NewJobID(), req.ProblemID, req.SubmissionID)
	pending := model.VerdictRecord{
		SubmissionID: req.SubmissionID,
		ProblemID:    req.ProblemID,
		MasterJobID:  job.ID,
		Status:       model.StatusPending,
		ReceivedAt:   time.Now().UnixMilli(),
	}
	if h.verdicts != nil {
		if err := h.verdicts.Save(ctx, pending); err != nil {
			logger.Warn(ctx, "record pending status failed", zap.Error(err))
		}
	}
	if err := h.queue.Enqueue(ctx, job); err != nil {
		response.Error(c, err)
		return
	}
	logger.Info(ctx, "master job enqueued",
		zap.String("job_id", job.ID),
		zap.String("submission_id", req.SubmissionID),
		zap.String("problem_id", req.ProblemID),
	)
	response.Accepted(c, SubmitResponse{
		JobID:        job.ID,
		SubmissionID: req.SubmissionID,
		Status:       string(pending.Status),
		ReceivedAt:   pending.ReceivedAt,
	})
}

// checkNewSubmission rejects ids that already have a record: a submission
// is judged once and its record is never reset to Pending.
func (h *JudgeController) checkNewSubmission(ctx context.Context, submissionID string) error {
	if h.verdicts == nil {
		return nil
	}
	rec, err := h.verdicts.Get(ctx, submissionID)
	if err == nil {
		return appErr.New(appErr.RecordAlreadyExists).
			WithMessage("submission already exists").
			WithDetail("submission_id", submissionID).
			WithDetail("status", string(rec.Status))
	}
	if appErr.Is(err, appErr.VerdictNotFound) {
		return nil
	}
	return err
}

// GetVerdict returns the verdict record of one submission.
func (h *JudgeController) GetVerdict(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	if h.verdicts == nil {
		response.Error(c, appErr.New(appErr.ServiceUnavailable).WithMessage("verdict store is not configured"))
		return
	}
	rec, err := h.verdicts.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// ListQueue returns the ids of pending jobs.
func (h *JudgeController) ListQueue(c *gin.Context) {
	ids, err := h.queue.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.Success(c, QueueResponse{Pending: ids, Count: len(ids)})
}
