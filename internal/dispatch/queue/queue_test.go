package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type backend struct {
	name string
	new  func(t *testing.T) JobQueue
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) JobQueue { return NewMemoryQueue() }},
		{"redis", func(t *testing.T) JobQueue { q, _ := newRedisQueue(t); return q }},
		{"dir", func(t *testing.T) JobQueue { return newDirQueue(t, t.TempDir()) }},
	}
}

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	q, err := NewRedisQueue(c, "test:queue")
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	return q, mr
}

func newDirQueue(t *testing.T, dir string) *DirQueue {
	t.Helper()
	q, err := NewDirQueue(dir)
	if err != nil {
		t.Fatalf("create dir queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func masterJob(id string) model.Descriptor {
	return model.NewMasterJob(id, "1", "sub-"+id)
}

func TestQueueClaimReturnsArrivalOrderAndEmpties(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.new(t)

			for _, id := range []string{"c", "a", "b"} {
				if err := q.Enqueue(ctx, masterJob(id)); err != nil {
					t.Fatalf("enqueue %s: %v", id, err)
				}
				// the directory backend orders by enqueue timestamp
				time.Sleep(time.Millisecond)
			}

			pending, err := q.ListPending(ctx)
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if fmt.Sprint(pending) != "[c a b]" {
				t.Fatalf("expected pending [c a b], got %v", pending)
			}

			claimed, err := q.ClaimAllPending(ctx)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if got := fmt.Sprint(ids(claimed)); got != "[c a b]" {
				t.Fatalf("expected claim order [c a b], got %s", got)
			}

			again, err := q.ClaimAllPending(ctx)
			if err != nil {
				t.Fatalf("second claim: %v", err)
			}
			if len(again) != 0 {
				t.Fatalf("expected empty queue after claim, got %v", ids(again))
			}
		})
	}
}

func TestQueueRejectsDuplicateAndInvalid(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.new(t)

			if err := q.Enqueue(ctx, masterJob("dup")); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if err := q.Enqueue(ctx, masterJob("dup")); !appErr.Is(err, appErr.DuplicateJob) {
				t.Fatalf("expected DuplicateJob, got %v", err)
			}
			if err := q.Enqueue(ctx, model.NewMasterJob("bad", "", "")); !appErr.Is(err, appErr.MalformedDescriptor) {
				t.Fatalf("expected MalformedDescriptor, got %v", err)
			}
			if err := q.Enqueue(ctx, model.Descriptor{Kind: "CleanupJob", ID: "other"}); !appErr.Is(err, appErr.UnknownJobKind) {
				t.Fatalf("expected UnknownJobKind, got %v", err)
			}
			if pending, _ := q.ListPending(ctx); fmt.Sprint(pending) != "[dup]" {
				t.Fatalf("rejected descriptors must not be stored, pending=%v", pending)
			}
		})
	}
}

func TestQueueConcurrentClaimIsAtMostOnce(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.new(t)

			const total = 10
			for i := 0; i < total; i++ {
				if err := q.Enqueue(ctx, masterJob(fmt.Sprintf("job-%d", i))); err != nil {
					t.Fatalf("enqueue: %v", err)
				}
			}

			var (
				start   = make(chan struct{})
				wg      sync.WaitGroup
				results [2][]model.Descriptor
				errs    [2]error
			)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i], errs[i] = q.ClaimAllPending(ctx)
				}(i)
			}
			close(start)
			wg.Wait()

			seen := make(map[string]int)
			for i := 0; i < 2; i++ {
				if errs[i] != nil {
					t.Fatalf("claimer %d: %v", i, errs[i])
				}
				for _, d := range results[i] {
					seen[d.ID]++
				}
			}
			if len(seen) != total {
				t.Fatalf("expected %d distinct jobs, got %d", total, len(seen))
			}
			for id, n := range seen {
				if n != 1 {
					t.Fatalf("job %s claimed %d times", id, n)
				}
			}
		})
	}
}

func TestQueueConcurrentEnqueueAndClaimLosesNothing(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			q := b.new(t)

			const producers, perProducer = 4, 25
			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < perProducer; i++ {
						if err := q.Enqueue(ctx, masterJob(fmt.Sprintf("p%d-%d", p, i))); err != nil {
							t.Errorf("enqueue: %v", err)
						}
					}
				}(p)
			}

			var mu sync.Mutex
			seen := make(map[string]int)
			done := make(chan struct{})
			var claimers sync.WaitGroup
			for c := 0; c < 2; c++ {
				claimers.Add(1)
				go func() {
					defer claimers.Done()
					for {
						claimed, err := q.ClaimAllPending(ctx)
						if err != nil {
							t.Errorf("claim: %v", err)
							return
						}
						mu.Lock()
						for _, d := range claimed {
							seen[d.ID]++
						}
						mu.Unlock()
						select {
						case <-done:
							if len(claimed) == 0 {
								return
							}
						default:
						}
					}
				}()
			}

			wg.Wait()
			close(done)
			claimers.Wait()

			if len(seen) != producers*perProducer {
				t.Fatalf("expected %d jobs, got %d", producers*perProducer, len(seen))
			}
			for id, n := range seen {
				if n != 1 {
					t.Fatalf("job %s claimed %d times", id, n)
				}
			}
		})
	}
}

func TestRedisQueueSkipsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	q, mr := newRedisQueue(t)

	if err := q.Enqueue(ctx, masterJob("good")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	mr.HSet("test:queue:jobs", "broken", "type: job\nkind: MasterJob\nid: broken\n")

	claimed, err := q.ClaimAllPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "good" {
		t.Fatalf("expected only the good job, got %v", ids(claimed))
	}
	if mr.Exists("test:queue:jobs") {
		t.Fatalf("malformed entry should be removed with the claim")
	}
}

func TestDirQueueSkipsMalformedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newDirQueue(t, dir)

	if err := q.Enqueue(ctx, masterJob("good")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage"), []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	claimed, err := q.ClaimAllPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "good" {
		t.Fatalf("expected only the good job, got %v", ids(claimed))
	}
	if _, err := os.Stat(filepath.Join(dir, "garbage")); !os.IsNotExist(err) {
		t.Fatalf("malformed file should be consumed, stat err=%v", err)
	}
}

func TestDirQueueSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	producer := newDirQueue(t, dir)
	consumer := newDirQueue(t, dir)

	if err := producer.Enqueue(ctx, masterJob("x")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := consumer.ClaimAllPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Master.SubmissionID != "sub-x" {
		t.Fatalf("unexpected claim %+v", claimed)
	}
}

func TestDirQueueClaimKeepsEntriesItCannotMove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := newDirQueue(t, dir)

	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(ctx, masterJob(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	// A non-empty directory in the way makes the rename of b fail.
	blocker := filepath.Join(q.claimDir, "b")
	if err := os.MkdirAll(filepath.Join(blocker, "busy"), 0o755); err != nil {
		t.Fatalf("mkdir blocker: %v", err)
	}

	claimed, err := q.ClaimAllPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := fmt.Sprint(ids(claimed)); got != "[a]" {
		t.Fatalf("expected a to be claimed, got %s", got)
	}
	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if fmt.Sprint(pending) != "[b]" {
		t.Fatalf("expected b to stay pending, got %v", pending)
	}

	if err := os.RemoveAll(blocker); err != nil {
		t.Fatalf("remove blocker: %v", err)
	}
	claimed, err = q.ClaimAllPending(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if got := fmt.Sprint(ids(claimed)); got != "[b]" {
		t.Fatalf("expected b on the next cycle, got %s", got)
	}
}
