package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	cachex "fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/dispatch/dbmodel"
	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"

	"github.com/zeromicro/go-zero/core/logx"
)

const verdictKeyPrefix = "dispatch:verdict:"
const (
	defaultVerdictCacheTTL      = 30 * time.Minute
	defaultVerdictCacheEmptyTTL = time.Minute
)

// VerdictRepository stores the judging state of submissions. Non-terminal
// states live only in the cache. Terminal states are additionally
// persisted, either through the event publisher or directly to the database.
// With neither cache nor database configured records are kept in process.
type VerdictRepository struct {
	cache         cachex.Cache
	verdictsModel dbmodel.VerdictsModel
	publisher     VerdictEventPublisher
	ttl           time.Duration
	emptyTTL      time.Duration

	local sync.Map
}

// NewVerdictRepository creates a new repository. Any dependency may be nil.
func NewVerdictRepository(cacheClient cachex.Cache, verdictsModel dbmodel.VerdictsModel, ttl, emptyTTL time.Duration, publisher VerdictEventPublisher) *VerdictRepository {
	if ttl <= 0 {
		ttl = defaultVerdictCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultVerdictCacheEmptyTTL
	}
	return &VerdictRepository{
		cache:         cacheClient,
		verdictsModel: verdictsModel,
		publisher:     publisher,
		ttl:           ttl,
		emptyTTL:      emptyTTL,
	}
}

func (r *VerdictRepository) inProcess() bool {
	return r.cache == nil && r.verdictsModel == nil
}

// Get returns the record of a submission.
func (r *VerdictRepository) Get(ctx context.Context, submissionID string) (model.VerdictRecord, error) {
	logger := logx.WithContext(ctx)
	if submissionID == "" {
		return model.VerdictRecord{}, appErr.ValidationError("submission_id", "required")
	}
	if r.inProcess() {
		if v, ok := r.local.Load(submissionID); ok {
			return v.(model.VerdictRecord), nil
		}
		return model.VerdictRecord{}, appErr.New(appErr.VerdictNotFound).WithMessage("submission verdict not found")
	}
	if r.cache == nil {
		rec, err := r.getFromDB(ctx, submissionID)
		if err != nil {
			return model.VerdictRecord{}, err
		}
		if rec == nil {
			return model.VerdictRecord{}, appErr.New(appErr.VerdictNotFound).WithMessage("submission verdict not found")
		}
		return *rec, nil
	}

	rec, err := cachex.GetWithCached[*model.VerdictRecord](
		ctx,
		r.cache,
		verdictKeyPrefix+submissionID,
		cachex.JitterTTL(r.ttl),
		cachex.JitterTTL(r.emptyTTL),
		func(rec *model.VerdictRecord) bool { return rec == nil },
		marshalRecord,
		unmarshalRecord,
		func(ctx context.Context) (*model.VerdictRecord, error) {
			return r.getFromDB(ctx, submissionID)
		},
	)
	if err != nil {
		logger.Errorf("get verdict failed submission_id=%s: %v", submissionID, err)
		return model.VerdictRecord{}, err
	}
	if rec == nil {
		return model.VerdictRecord{}, appErr.New(appErr.VerdictNotFound).WithMessage("submission verdict not found")
	}
	return *rec, nil
}

// Save records the current state of a submission. Terminal records are
// published for persistence, or persisted directly when no publisher is set.
func (r *VerdictRepository) Save(ctx context.Context, rec model.VerdictRecord) error {
	logger := logx.WithContext(ctx)
	if rec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	logger.Infof("save verdict submission_id=%s status=%s verdict=%s", rec.SubmissionID, rec.Status, rec.Verdict)

	if r.inProcess() {
		r.local.Store(rec.SubmissionID, rec)
		return nil
	}

	if rec.Status.Terminal() {
		switch {
		case r.publisher != nil:
			if err := r.publisher.PublishFinal(ctx, rec); err != nil {
				logger.Errorf("publish final verdict failed: %v", err)
				return err
			}
		case r.verdictsModel != nil:
			if err := r.PersistFinal(ctx, rec); err != nil {
				return err
			}
		}
	}

	if r.cache != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal verdict failed: %w", err)
		}
		if err := r.cache.Set(ctx, verdictKeyPrefix+rec.SubmissionID, string(data), cachex.JitterTTL(r.ttl)); err != nil {
			logger.Errorf("store verdict failed: %v", err)
			return appErr.Wrapf(err, appErr.CacheError, "store verdict failed")
		}
	}
	return nil
}

// PersistFinal writes a terminal record into the database.
func (r *VerdictRepository) PersistFinal(ctx context.Context, rec model.VerdictRecord) error {
	logger := logx.WithContext(ctx)
	if rec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if !rec.Status.Terminal() {
		return appErr.ValidationError("status", "final_required")
	}
	if r.verdictsModel == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdicts model is not configured")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal final verdict failed: %w", err)
	}
	finishedAt := time.Now()
	if rec.FinishedAt > 0 {
		finishedAt = time.UnixMilli(rec.FinishedAt)
	}
	_, err = r.verdictsModel.Upsert(ctx, &dbmodel.Verdicts{
		SubmissionId: rec.SubmissionID,
		ProblemId:    rec.ProblemID,
		MasterJobId:  rec.MasterJobID,
		Status:       string(rec.Status),
		Verdict:      string(rec.Verdict),
		Payload:      string(payload),
		FinishedAt:   sql.NullTime{Time: finishedAt, Valid: true},
		UpdatedAt:    time.Now(),
	})
	if err != nil {
		logger.Errorf("persist final verdict failed submission_id=%s: %v", rec.SubmissionID, err)
		return appErr.Wrapf(err, appErr.DatabaseError, "persist final verdict failed")
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, verdictKeyPrefix+rec.SubmissionID)
	}
	return nil
}

func (r *VerdictRepository) getFromDB(ctx context.Context, submissionID string) (*model.VerdictRecord, error) {
	if r.verdictsModel == nil {
		return nil, nil
	}
	row, err := r.verdictsModel.FindOne(ctx, submissionID)
	if err != nil {
		if errors.Is(err, dbmodel.ErrNotFound) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get final verdict failed")
	}
	rec, err := unmarshalRecord(row.Payload)
	if err != nil {
		logx.WithContext(ctx).Errorf("decode final verdict failed: %v", err)
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "decode final verdict failed")
	}
	return rec, nil
}

func marshalRecord(rec *model.VerdictRecord) string {
	if rec == nil {
		return ""
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalRecord(data string) (*model.VerdictRecord, error) {
	var rec model.VerdictRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
