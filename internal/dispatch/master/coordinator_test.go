package master

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fuzdispatch/internal/dispatch/compiler"
	"fuzdispatch/internal/dispatch/executor"
	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/problem"
	"fuzdispatch/internal/dispatch/queue"
	"fuzdispatch/internal/dispatch/result"
	"fuzdispatch/internal/dispatch/scheduler"
	"fuzdispatch/internal/dispatch/source"
	"fuzdispatch/internal/dispatch/worker"
	appErr "fuzdispatch/pkg/errors"
)

type memoryRecorder struct {
	mu      sync.Mutex
	history map[string][]model.VerdictRecord
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{history: make(map[string][]model.VerdictRecord)}
}

func (r *memoryRecorder) Save(ctx context.Context, rec model.VerdictRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[rec.SubmissionID] = append(r.history[rec.SubmissionID], rec)
	return nil
}

func (r *memoryRecorder) last(id string) (model.VerdictRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history[id]
	if len(h) == 0 {
		return model.VerdictRecord{}, false
	}
	return h[len(h)-1], true
}

type fixture struct {
	root     string
	queue    *queue.MemoryQueue
	results  *result.MemoryChannel
	recorder *memoryRecorder
	sources  *source.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	writeProblem(t, root, "1", 5)
	sources, err := source.NewLocalStore(filepath.Join(root, "submission"))
	if err != nil {
		t.Fatalf("source store: %v", err)
	}
	return &fixture{
		root:     root,
		queue:    queue.NewMemoryQueue(),
		results:  result.NewMemoryChannel(),
		recorder: newMemoryRecorder(),
		sources:  sources,
	}
}

func writeProblem(t *testing.T, root, id string, checkpoints int) {
	t.Helper()
	dir := filepath.Join(root, "data", "problem-"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := []byte("checkpoints: " + strconv.Itoa(checkpoints) + "\ntimelimit: 1000\nmemorylimit: 256\n")
	if err := os.WriteFile(filepath.Join(dir, "meta.txt"), content, 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
}

func (f *fixture) coordinator(t *testing.T, mutate func(*Config)) *Coordinator {
	t.Helper()
	problems, err := problem.NewDirStore(filepath.Join(f.root, "data"))
	if err != nil {
		t.Fatalf("problem store: %v", err)
	}
	cfg := Config{
		Queue:          f.queue,
		Results:        f.results,
		Problems:       problems,
		Sources:        f.sources,
		Compiler:       compiler.NewFakeCompiler(),
		Recorder:       f.recorder,
		Priority:       FixedPriority(7),
		WorkRoot:       filepath.Join(f.root, "work"),
		WorkerCount:    2,
		CollectTimeout: 2 * time.Second,
		KeepWorkDir:    true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func TestCoordinatorCompileFailureShortCircuits(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, nil)
	ctx := context.Background()

	// no source stored for s-1
	if err := c.Handle(ctx, model.NewMasterJob("m-1", "1", "s-1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec, ok := f.recorder.last("s-1")
	if !ok || rec.Status != model.StatusFinished || rec.Verdict != model.VerdictCE {
		t.Fatalf("expected finished CE, got %+v", rec)
	}
	if len(rec.Workers) != 0 {
		t.Fatalf("expected zero workers, got %+v", rec.Workers)
	}
	pending, _ := f.queue.ListPending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected no worker jobs, got %v", pending)
	}
}

type failingCompiler struct{}

func (failingCompiler) Compile(ctx context.Context, sourcePath string) (compiler.Result, error) {
	return compiler.Result{OK: false, Log: "syntax error"}, nil
}

func TestCoordinatorCompilerRejection(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, func(cfg *Config) { cfg.Compiler = failingCompiler{} })
	ctx := context.Background()
	if err := f.sources.Put(ctx, "s-2", []byte("int main(")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Handle(ctx, model.NewMasterJob("m-2", "1", "s-2")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec, _ := f.recorder.last("s-2")
	if rec.Verdict != model.VerdictCE {
		t.Fatalf("expected CE, got %+v", rec)
	}
	if pending, _ := f.queue.ListPending(ctx); len(pending) != 0 {
		t.Fatalf("expected no worker jobs, got %v", pending)
	}
}

func TestCoordinatorMissingMetadata(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, nil)
	ctx := context.Background()

	err := c.Handle(ctx, model.NewMasterJob("m-3", "404", "s-3"))
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
	rec, _ := f.recorder.last("s-3")
	if rec.Status != model.StatusFailed || rec.Verdict != "" || rec.ErrorCode != int(appErr.ProblemNotFound) {
		t.Fatalf("expected failed record without verdict, got %+v", rec)
	}
}

func TestCoordinatorWorkerTimeoutIsTLE(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, func(cfg *Config) { cfg.CollectTimeout = 100 * time.Millisecond })
	ctx := context.Background()
	if err := f.sources.Put(ctx, "s-4", []byte("print('Hello world')")); err != nil {
		t.Fatalf("put: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Handle(ctx, model.NewMasterJob("m-4", "1", "s-4")) }()

	// Answer only the first worker job; the second never reports.
	var jobs []model.Descriptor
	deadline := time.Now().Add(time.Second)
	for len(jobs) < 2 && time.Now().Before(deadline) {
		claimed, err := f.queue.ClaimAllPending(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		jobs = append(jobs, claimed...)
		time.Sleep(5 * time.Millisecond)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 worker jobs, got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.Kind != model.KindWorker || j.Priority != 7 || j.Worker.OwnerJobID != "m-4" {
			t.Fatalf("unexpected worker job %+v", j)
		}
		if j.Worker.Limits.TimeLimit != 1000 || j.Worker.Limits.MemoryLimit != 256 {
			t.Fatalf("expected limits from metadata, got %+v", j.Worker.Limits)
		}
	}
	if err := f.results.Publish(ctx, jobs[0].ID, model.VerdictWA); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec, _ := f.recorder.last("s-4")
	if rec.Status != model.StatusFinished || rec.Verdict != model.VerdictTLE {
		t.Fatalf("expected TLE, got %+v", rec)
	}
	timedOut := 0
	for _, w := range rec.Workers {
		if w.TimedOut {
			timedOut++
			if w.JobID != jobs[1].ID {
				t.Fatalf("wrong worker marked as timed out: %+v", w)
			}
		}
	}
	if timedOut != 1 {
		t.Fatalf("expected one timed out worker, got %+v", rec.Workers)
	}
}

// flakyChannel fails the first failures Wait calls with a cache error, or
// every call when down is set.
type flakyChannel struct {
	*result.MemoryChannel
	down     bool
	failures int32
	calls    int32
}

func (c *flakyChannel) Wait(ctx context.Context, jobID string) (model.Verdict, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.down || atomic.AddInt32(&c.failures, -1) >= 0 {
		return "", appErr.New(appErr.CacheError).WithDetail("job_id", jobID)
	}
	return c.MemoryChannel.Wait(ctx, jobID)
}

func (f *fixture) answerWorkers(t *testing.T, n int, v model.Verdict) {
	t.Helper()
	ctx := context.Background()
	answered := 0
	deadline := time.Now().Add(time.Second)
	for answered < n && time.Now().Before(deadline) {
		claimed, err := f.queue.ClaimAllPending(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		for _, j := range claimed {
			if err := f.results.Publish(ctx, j.ID, v); err != nil {
				t.Fatalf("publish: %v", err)
			}
			answered++
		}
		time.Sleep(5 * time.Millisecond)
	}
	if answered != n {
		t.Fatalf("expected %d worker jobs, answered %d", n, answered)
	}
}

func TestCoordinatorRetriesFailingResultChannel(t *testing.T) {
	f := newFixture(t)
	ch := &flakyChannel{MemoryChannel: f.results, failures: 3}
	c := f.coordinator(t, func(cfg *Config) { cfg.Results = ch })
	ctx := context.Background()
	if err := f.sources.Put(ctx, "s-6", []byte("print('Hello world')")); err != nil {
		t.Fatalf("put: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Handle(ctx, model.NewMasterJob("m-6", "1", "s-6")) }()
	f.answerWorkers(t, 2, model.VerdictAC)

	if err := <-done; err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec, _ := f.recorder.last("s-6")
	if rec.Status != model.StatusFinished || rec.Verdict != model.VerdictAC {
		t.Fatalf("expected AC once the channel recovers, got %+v", rec)
	}
	for _, w := range rec.Workers {
		if w.TimedOut {
			t.Fatalf("no worker should time out: %+v", rec.Workers)
		}
	}
	if calls := atomic.LoadInt32(&ch.calls); calls <= 2 {
		t.Fatalf("expected Wait to be retried, got %d calls", calls)
	}
}

func TestCoordinatorResultChannelDownFailsSubmission(t *testing.T) {
	f := newFixture(t)
	ch := &flakyChannel{MemoryChannel: f.results, down: true}
	collectTimeout := 300 * time.Millisecond
	c := f.coordinator(t, func(cfg *Config) {
		cfg.Results = ch
		cfg.CollectTimeout = collectTimeout
	})
	ctx := context.Background()
	if err := f.sources.Put(ctx, "s-7", []byte("print('Hello world')")); err != nil {
		t.Fatalf("put: %v", err)
	}

	start := time.Now()
	err := c.Handle(ctx, model.NewMasterJob("m-7", "1", "s-7"))
	elapsed := time.Since(start)
	if !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}
	if elapsed < collectTimeout {
		t.Fatalf("gave up after %v, before the collect deadline", elapsed)
	}
	if calls := atomic.LoadInt32(&ch.calls); calls <= 2 {
		t.Fatalf("expected Wait to be retried, got %d calls", calls)
	}
	rec, _ := f.recorder.last("s-7")
	if rec.Status != model.StatusFailed || rec.Verdict != "" || rec.ErrorCode != int(appErr.CacheError) {
		t.Fatalf("expected failed record without verdict, got %+v", rec)
	}
}

type failingQueue struct {
	*queue.MemoryQueue
	allow int
	mu    sync.Mutex
}

func (q *failingQueue) Enqueue(ctx context.Context, d model.Descriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.allow == 0 {
		return errors.New("queue down")
	}
	q.allow--
	return q.MemoryQueue.Enqueue(ctx, d)
}

func TestCoordinatorEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	fq := &failingQueue{MemoryQueue: f.queue, allow: 1}
	c := f.coordinator(t, func(cfg *Config) { cfg.Queue = fq })
	ctx := context.Background()
	if err := f.sources.Put(ctx, "s-5", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := c.Handle(ctx, model.NewMasterJob("m-5", "1", "s-5"))
	if !appErr.Is(err, appErr.WorkerDispatchErr) {
		t.Fatalf("expected WorkerDispatchErr, got %v", err)
	}
	if pending, _ := f.queue.ListPending(ctx); len(pending) != 1 {
		t.Fatalf("expected the first sibling to stay enqueued, got %v", pending)
	}
	rec, _ := f.recorder.last("s-5")
	if rec.Status != model.StatusFailed {
		t.Fatalf("expected failed record, got %+v", rec)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(t, func(cfg *Config) { cfg.KeepWorkDir = false })
	w, err := worker.NewExecutor(executor.NewRandomExecutor(executor.WithRates(1, 0)), f.results)
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	s, err := scheduler.New(f.queue, scheduler.Config{PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	s.Register(model.KindMaster, c)
	s.Register(model.KindWorker, w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i, sub := range []string{"s-10", "s-11", "s-12"} {
		if err := f.sources.Put(ctx, sub, []byte("print('Hello world')")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := f.queue.Enqueue(ctx, model.NewMasterJob("m-"+strconv.Itoa(10+i), "1", sub)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := f.queue.Enqueue(ctx, model.NewMasterJob("m-13", "1", "s-13")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(runDone)
	}()

	want := map[string]model.Verdict{"s-10": model.VerdictAC, "s-11": model.VerdictAC, "s-12": model.VerdictAC, "s-13": model.VerdictCE}
	deadline := time.Now().Add(5 * time.Second)
	for {
		finished := 0
		for sub := range want {
			if rec, ok := f.recorder.last(sub); ok && rec.Status == model.StatusFinished {
				finished++
			}
		}
		if finished == len(want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-runDone
	s.Wait()

	for sub, v := range want {
		rec, _ := f.recorder.last(sub)
		if rec.Verdict != v {
			t.Fatalf("%s: got %s want %s", sub, rec.Verdict, v)
		}
		if v == model.VerdictAC {
			covered := 0
			for _, wo := range rec.Workers {
				covered += len(wo.Checkpoints)
			}
			if covered != 5 || len(rec.Workers) != 2 {
				t.Fatalf("%s: unexpected workers %+v", sub, rec.Workers)
			}
		}
	}
	if _, err := os.Stat(filepath.Join(f.root, "work", "m-10")); !os.IsNotExist(err) {
		t.Fatalf("expected work dir to be removed, stat err=%v", err)
	}
}
