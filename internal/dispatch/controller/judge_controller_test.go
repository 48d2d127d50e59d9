package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fuzdispatch/internal/common/http/middleware"
	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/queue"
	"fuzdispatch/internal/dispatch/repository"
	"fuzdispatch/internal/dispatch/source"
	appErr "fuzdispatch/pkg/errors"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	TraceID string           `json:"trace_id"`
}

type testServer struct {
	router   *gin.Engine
	queue    *queue.MemoryQueue
	sources  *source.LocalStore
	verdicts *repository.VerdictRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	q := queue.NewMemoryQueue()
	sources, err := source.NewLocalStore(filepath.Join(t.TempDir(), "submission"))
	if err != nil {
		t.Fatalf("source store: %v", err)
	}
	verdicts := repository.NewVerdictRepository(nil, nil, 0, 0, nil)
	r := gin.New()
	r.Use(middleware.TraceContext())
	NewJudgeController(q, sources, verdicts).Register(r)
	return &testServer{router: r, queue: q, sources: sources, verdicts: verdicts}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, env
}

func TestSubmitEnqueuesMasterJob(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/v1/judge/submissions", SubmitRequest{
		ProblemID:    "1",
		SubmissionID: "42",
		Source:       "print('Hello world')",
	})
	if w.Code != http.StatusAccepted || env.Code != appErr.Success {
		t.Fatalf("unexpected response %d %+v", w.Code, env)
	}
	if env.TraceID == "" || w.Header().Get("X-Trace-Id") != env.TraceID {
		t.Fatalf("expected trace id in body and header, got %q", env.TraceID)
	}
	var resp SubmitResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.SubmissionID != "42" || resp.JobID == "" || resp.Status != string(model.StatusPending) {
		t.Fatalf("unexpected data %+v", resp)
	}

	claimed, err := s.queue.ClaimAllPending(context.Background())
	if err != nil || len(claimed) != 1 {
		t.Fatalf("expected one job, got %v err=%v", claimed, err)
	}
	job := claimed[0]
	if job.Kind != model.KindMaster || job.ID != resp.JobID || job.Master.ProblemID != "1" || job.Master.SubmissionID != "42" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Priority != 0 {
		t.Fatalf("upstream must not set a priority, got %d", job.Priority)
	}

	if _, err := s.sources.Fetch(context.Background(), "42", t.TempDir()); err != nil {
		t.Fatalf("expected stored source: %v", err)
	}
}

func TestSubmitGeneratesSubmissionID(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/v1/judge/submissions", map[string]string{"problem_id": "2"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", w.Code)
	}
	var resp SubmitResponse
	_ = json.Unmarshal(env.Data, &resp)
	if resp.SubmissionID == "" {
		t.Fatalf("expected generated submission id")
	}
}

func TestSubmitRejectsMissingProblem(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/v1/judge/submissions", map[string]string{"submission_id": "1"})
	if w.Code != http.StatusBadRequest || env.Code == appErr.Success {
		t.Fatalf("expected 400, got %d %+v", w.Code, env)
	}
	pending, _ := s.queue.ListPending(context.Background())
	if len(pending) != 0 {
		t.Fatalf("nothing must be enqueued, got %v", pending)
	}
}

func TestSubmitRejectsExistingSubmission(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	judged := model.VerdictRecord{SubmissionID: "9", ProblemID: "1", Status: model.StatusFinished, Verdict: model.VerdictAC}
	if err := s.verdicts.Save(ctx, judged); err != nil {
		t.Fatalf("save: %v", err)
	}

	w, env := s.do(t, http.MethodPost, "/api/v1/judge/submissions", SubmitRequest{ProblemID: "1", SubmissionID: "9", Source: "x"})
	if w.Code != http.StatusConflict || env.Code != appErr.RecordAlreadyExists {
		t.Fatalf("expected 409 RecordAlreadyExists, got %d %+v", w.Code, env)
	}
	if pending, _ := s.queue.ListPending(ctx); len(pending) != 0 {
		t.Fatalf("nothing must be enqueued, got %v", pending)
	}
	rec, err := s.verdicts.Get(ctx, "9")
	if err != nil || rec.Status != model.StatusFinished || rec.Verdict != model.VerdictAC {
		t.Fatalf("judged record must stay untouched, got %+v err=%v", rec, err)
	}
	if _, err := s.sources.Fetch(ctx, "9", t.TempDir()); !appErr.Is(err, appErr.SourceNotFound) {
		t.Fatalf("source must not be stored for a rejected submission, got %v", err)
	}

	// a submission that is still pending is rejected as well
	if w, _ := s.do(t, http.MethodPost, "/api/v1/judge/submissions", SubmitRequest{ProblemID: "1", SubmissionID: "10"}); w.Code != http.StatusAccepted {
		t.Fatalf("first submit: unexpected status %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodPost, "/api/v1/judge/submissions", SubmitRequest{ProblemID: "1", SubmissionID: "10"}); w.Code != http.StatusConflict {
		t.Fatalf("second submit: expected 409, got %d", w.Code)
	}
	if pending, _ := s.queue.ListPending(ctx); len(pending) != 1 {
		t.Fatalf("expected exactly one master job, got %v", pending)
	}
}

func TestGetVerdict(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/api/v1/judge/submissions/none", nil)
	if w.Code != http.StatusNotFound || env.Code != appErr.VerdictNotFound {
		t.Fatalf("expected 404 VerdictNotFound, got %d %+v", w.Code, env)
	}

	rec := model.VerdictRecord{SubmissionID: "7", ProblemID: "1", Status: model.StatusFinished, Verdict: model.VerdictTLE}
	if err := s.verdicts.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	w, env = s.do(t, http.MethodGet, "/api/v1/judge/submissions/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	var got model.VerdictRecord
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Verdict != model.VerdictTLE || got.Status != model.StatusFinished {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestListQueue(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, http.MethodGet, "/api/v1/judge/queue", nil)
	var resp QueueResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || resp.Pending == nil {
		t.Fatalf("expected empty list, got %+v", resp)
	}

	for _, id := range []string{"a", "b"} {
		if err := s.queue.Enqueue(context.Background(), model.NewMasterJob(id, "1", "s-"+id)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	_, env = s.do(t, http.MethodGet, "/api/v1/judge/queue", nil)
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 pending, got %+v", resp)
	}
}
