// Package master coordinates the judging of one submission: it compiles the
// source, fans checkpoint slices out to worker jobs and folds their verdicts.
package master

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"fuzdispatch/internal/dispatch/compiler"
	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/problem"
	"fuzdispatch/internal/dispatch/queue"
	"fuzdispatch/internal/dispatch/result"
	"fuzdispatch/internal/dispatch/source"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"
)

const (
	defaultWorkerCount    = 2
	defaultCollectTimeout = 5 * time.Minute
	defaultStatusTimeout  = 5 * time.Second

	// backoff between Wait attempts while the result channel is failing
	minCollectBackoff = 50 * time.Millisecond
	maxCollectBackoff = 2 * time.Second
)

// Recorder stores the judging state of submissions.
type Recorder interface {
	Save(ctx context.Context, rec model.VerdictRecord) error
}

// Config holds coordinator dependencies and settings.
type Config struct {
	Queue    queue.JobQueue
	Results  result.Channel
	Problems problem.Store
	Sources  source.Store
	Compiler compiler.Compiler
	Recorder Recorder
	Priority PriorityAssigner

	// WorkRoot receives one directory per master job holding the fetched
	// source and the runnable. It must be visible to the workers.
	WorkRoot       string
	WorkerCount    int
	Policy         Policy
	CollectTimeout time.Duration
	StatusTimeout  time.Duration
	// KeepWorkDir leaves the per-job directory in place after collection.
	KeepWorkDir bool
	// Seed drives PolicyRandom; 0 seeds from the clock.
	Seed int64
}

// Coordinator handles MasterJob descriptors.
type Coordinator struct {
	queue    queue.JobQueue
	results  result.Channel
	problems problem.Store
	sources  source.Store
	compiler compiler.Compiler
	recorder Recorder
	priority PriorityAssigner

	workRoot       string
	workerCount    int
	policy         Policy
	collectTimeout time.Duration
	statusTimeout  time.Duration
	keepWorkDir    bool

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewCoordinator creates a master coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result channel is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem store is required")
	}
	if cfg.Sources == nil {
		return nil, fmt.Errorf("source store is required")
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("compiler is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("verdict recorder is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	if cfg.Priority == nil {
		cfg.Priority = NewRandomPriority(DefaultPriorityBound, cfg.Seed)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = defaultCollectTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Coordinator{
		queue:          cfg.Queue,
		results:        cfg.Results,
		problems:       cfg.Problems,
		sources:        cfg.Sources,
		compiler:       cfg.Compiler,
		recorder:       cfg.Recorder,
		priority:       cfg.Priority,
		workRoot:       cfg.WorkRoot,
		workerCount:    cfg.WorkerCount,
		policy:         policy,
		collectTimeout: cfg.CollectTimeout,
		statusTimeout:  cfg.StatusTimeout,
		keepWorkDir:    cfg.KeepWorkDir,
		rnd:            rand.New(rand.NewSource(seed)),
	}, nil
}

// Handle judges the submission named by a MasterJob.
func (c *Coordinator) Handle(ctx context.Context, d model.Descriptor) error {
	if d.Kind != model.KindMaster || d.Master == nil {
		return appErr.ValidationError("kind", "master_job_required")
	}
	p := d.Master
	rec := model.VerdictRecord{
		SubmissionID: p.SubmissionID,
		ProblemID:    p.ProblemID,
		MasterJobID:  d.ID,
		Status:       model.StatusRunning,
		ReceivedAt:   time.Now().UnixMilli(),
	}
	if err := c.save(ctx, rec); err != nil {
		logger.Warn(ctx, "record running status failed", zap.Error(err))
	}

	meta, err := c.problems.Get(ctx, p.ProblemID)
	if err != nil {
		return c.fail(ctx, rec, err)
	}
	logger.Info(ctx, "judging submission",
		zap.String("problem_id", p.ProblemID),
		zap.Int("checkpoints", meta.CheckpointCount),
		zap.Float64("time_limit", meta.TimeLimit),
		zap.Float64("memory_limit", meta.MemoryLimit),
	)

	workDir := filepath.Join(c.workRoot, d.ID)
	if !c.keepWorkDir {
		defer os.RemoveAll(workDir)
	}

	runnable, ok, err := c.compile(ctx, p.SubmissionID, workDir)
	if err != nil {
		return c.fail(ctx, rec, err)
	}
	if !ok {
		logger.Warn(ctx, "compilation failed", zap.Int("code", int(appErr.CompilationError)))
		return c.finish(ctx, rec, model.VerdictCE, nil)
	}

	c.rndMu.Lock()
	parts, err := Partition(meta.CheckpointCount, c.workerCount, c.policy, c.rnd)
	c.rndMu.Unlock()
	if err != nil {
		return c.fail(ctx, rec, appErr.Wrapf(err, appErr.JudgeSystemError, "partition checkpoints failed"))
	}

	priority := c.priority.Assign()
	outcomes := make([]model.WorkerOutcome, 0, len(parts))
	for _, part := range parts {
		w := model.NewWorkerJob(model.NewJobID(), priority, model.WorkerPayload{
			RunnablePath:  runnable,
			ProblemID:     p.ProblemID,
			CheckpointSet: part,
			OwnerJobID:    d.ID,
			Limits:        meta.Limits(),
		})
		if err := c.queue.Enqueue(ctx, w); err != nil {
			// Workers already enqueued still run and publish; nobody collects them.
			return c.fail(ctx, rec, appErr.Wrapf(err, appErr.WorkerDispatchErr, "enqueue worker job failed"))
		}
		outcomes = append(outcomes, model.WorkerOutcome{JobID: w.ID, Checkpoints: part})
	}
	logger.Info(ctx, "worker jobs dispatched",
		zap.Int("workers", len(outcomes)),
		zap.Int("priority", priority),
		zap.String("policy", string(c.policy)),
	)

	collectErr := c.collect(ctx, outcomes)

	verdicts := make([]model.Verdict, len(outcomes))
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		verdicts[i] = o.Verdict
		ids[i] = o.JobID
	}
	if err := c.results.Discard(ctx, ids...); err != nil {
		logger.Warn(ctx, "discard worker verdicts failed", zap.Error(err))
	}
	if collectErr != nil {
		return c.fail(ctx, rec, collectErr)
	}
	return c.finish(ctx, rec, model.MostSevere(verdicts...), outcomes)
}

// compile fetches and compiles the source. ok is false when the submission
// earns CE: the source is missing or does not compile.
func (c *Coordinator) compile(ctx context.Context, submissionID, workDir string) (string, bool, error) {
	srcPath, err := c.sources.Fetch(ctx, submissionID, workDir)
	if err != nil {
		if appErr.Is(err, appErr.SourceNotFound) {
			logger.Warn(ctx, "submission source not found")
			return "", false, nil
		}
		return "", false, err
	}
	res, err := c.compiler.Compile(ctx, srcPath)
	if err != nil {
		return "", false, err
	}
	if !res.OK {
		if res.Log != "" {
			logger.Debug(ctx, "compiler output", zap.String("log", res.Log))
		}
		return "", false, nil
	}
	return res.RunnablePath, true, nil
}

// collect waits for every worker verdict until the collect deadline.
// Workers that never report count as TLE. If the result channel itself is
// still failing when the deadline passes, collect returns that error and
// no verdict is derived.
func (c *Coordinator) collect(ctx context.Context, outcomes []model.WorkerOutcome) error {
	collectCtx, cancel := context.WithTimeout(ctx, c.collectTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range outcomes {
		wg.Add(1)
		go func(o *model.WorkerOutcome) {
			defer wg.Done()
			v, err := c.waitVerdict(collectCtx, o.JobID)
			if err == nil {
				o.Verdict = v
				return
			}
			if isWaitTimeout(err) {
				o.Verdict = model.VerdictTLE
				o.TimedOut = true
				logger.Warn(ctx, "worker did not report",
					zap.String("worker_job_id", o.JobID),
					zap.Int("code", int(appErr.WorkerTimeout)),
				)
				return
			}
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}(&outcomes[i])
	}
	wg.Wait()
	return firstErr
}

// waitVerdict retries Wait with backoff while the channel reports errors.
// It returns the last channel error if the deadline passes during an outage.
func (c *Coordinator) waitVerdict(ctx context.Context, jobID string) (model.Verdict, error) {
	backoff := minCollectBackoff
	for {
		v, err := c.results.Wait(ctx, jobID)
		if err == nil {
			return v, nil
		}
		if cause := ctx.Err(); cause != nil {
			return "", cause
		}
		logger.Warn(ctx, "wait for worker verdict failed",
			zap.String("worker_job_id", jobID),
			zap.Int("code", int(appErr.GetCode(err))),
			zap.Duration("retry_in", backoff),
			zap.Error(err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", appErr.Wrapf(err, appErr.GetCode(err), "result channel unavailable for worker job %s", jobID)
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxCollectBackoff {
			backoff = maxCollectBackoff
		}
	}
}

func isWaitTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (c *Coordinator) finish(ctx context.Context, rec model.VerdictRecord, v model.Verdict, outcomes []model.WorkerOutcome) error {
	rec.Status = model.StatusFinished
	rec.Verdict = v
	rec.Workers = outcomes
	rec.FinishedAt = time.Now().UnixMilli()
	logger.Info(ctx, "submission judged", zap.String("verdict", string(v)))
	if err := c.save(ctx, rec); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "record final verdict failed")
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, rec model.VerdictRecord, err error) error {
	rec.Status = model.StatusFailed
	rec.Verdict = ""
	rec.ErrorCode = int(appErr.GetCode(err))
	rec.ErrorMessage = err.Error()
	rec.FinishedAt = time.Now().UnixMilli()
	if saveErr := c.save(ctx, rec); saveErr != nil {
		logger.Warn(ctx, "record failure status failed", zap.Error(saveErr))
	}
	return err
}

func (c *Coordinator) save(ctx context.Context, rec model.VerdictRecord) error {
	ctxStatus, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()
	return c.recorder.Save(ctxStatus, rec)
}
