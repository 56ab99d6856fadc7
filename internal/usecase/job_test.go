package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/clock"
	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/generation"
	"github.com/cardotrejos/babypeek-sub000/internal/infrastructure/memory"
	"github.com/cardotrejos/babypeek-sub000/internal/lifecycle"
	"github.com/cardotrejos/babypeek-sub000/internal/retry"
)

// ---- fakes ----

type fakeGenerator struct {
	generate func(ctx context.Context, req generation.Request) (*generation.Result, error)
	calls    int
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	g.calls++
	return g.generate(ctx, req)
}

// ---- helpers ----

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Multiplier: 2,
		Timeout:    5 * time.Second,
	}
}

// newUsecase runs the pipeline inline so tests can assert on the final job
// state right after StartGeneration returns.
func newUsecase(gen *fakeGenerator) (*JobUsecase, *lifecycle.Machine) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	machine := lifecycle.NewMachine(memory.NewJobStore(), clk, slog.Default())
	u := NewJobUsecase(machine, gen, testPolicy(), slog.Default())
	u.sync = true
	return u, machine
}

func createJob(t *testing.T, u *JobUsecase) *domain.Job {
	t.Helper()
	job, err := u.CreateJob(context.Background(), CreateJobInput{InputRef: "uploads/scan-1.png", Style: "watercolor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return job
}

// ---- StartGeneration ----

func TestStartGeneration_SuccessCompletesJob(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(_ context.Context, req generation.Request) (*generation.Result, error) {
			if req.InputRef != "uploads/scan-1.png" {
				t.Errorf("input ref = %q", req.InputRef)
			}
			if req.RunID == "" {
				t.Error("no run id passed upstream")
			}
			return &generation.Result{OutputRef: "results/peek-1.png"}, nil
		},
	}
	u, _ := newUsecase(gen)
	job := createJob(t, u)

	if _, err := u.StartGeneration(context.Background(), job.ID); err != nil {
		t.Fatalf("start generation: %v", err)
	}

	final, err := u.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.Progress != 100 {
		t.Errorf("progress = %d, want 100", final.Progress)
	}
	if final.ResultRef == nil || *final.ResultRef != "results/peek-1.png" {
		t.Errorf("result ref = %v", final.ResultRef)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestStartGeneration_TerminalFailureNoRetry(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(context.Context, generation.Request) (*generation.Result, error) {
			return nil, &generation.Error{Cause: generation.CauseContentPolicy, Message: "rejected"}
		},
	}
	u, _ := newUsecase(gen)
	job := createJob(t, u)

	if _, err := u.StartGeneration(context.Background(), job.ID); err != nil {
		t.Fatalf("start generation: %v", err)
	}

	final, _ := u.GetJob(context.Background(), job.ID)
	if final.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1 (terminal must not retry)", gen.calls)
	}
	if final.ErrorMessage == nil || !strings.Contains(*final.ErrorMessage, "content_policy") {
		t.Errorf("error message = %v, want the classified cause", final.ErrorMessage)
	}
}

func TestStartGeneration_TransientRecovers(t *testing.T) {
	gen := &fakeGenerator{}
	gen.generate = func(context.Context, generation.Request) (*generation.Result, error) {
		if gen.calls < 3 {
			return nil, &generation.Error{Cause: generation.CauseTransient, Message: "upstream 503"}
		}
		return &generation.Result{OutputRef: "results/peek-1.png"}, nil
	}
	u, _ := newUsecase(gen)
	job := createJob(t, u)

	if _, err := u.StartGeneration(context.Background(), job.ID); err != nil {
		t.Fatalf("start generation: %v", err)
	}

	final, _ := u.GetJob(context.Background(), job.ID)
	if final.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed after recovery", final.Status)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
}

func TestStartGeneration_ExhaustionFailsJob(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(context.Context, generation.Request) (*generation.Result, error) {
			return nil, &generation.Error{Cause: generation.CauseTransient, Message: "upstream 503"}
		},
	}
	u, _ := newUsecase(gen)
	job := createJob(t, u)

	if _, err := u.StartGeneration(context.Background(), job.ID); err != nil {
		t.Fatalf("start generation: %v", err)
	}

	final, _ := u.GetJob(context.Background(), job.ID)
	if final.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want maxRetries+1 = 3", gen.calls)
	}
	if final.ErrorMessage == nil || !strings.Contains(*final.ErrorMessage, "after 3 attempts") {
		t.Errorf("error message = %v, want attempt count", final.ErrorMessage)
	}
}

func TestStartGeneration_ConflictWhileProcessing(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(context.Context, generation.Request) (*generation.Result, error) {
			return &generation.Result{OutputRef: "results/x.png"}, nil
		},
	}
	u, machine := newUsecase(gen)
	job := createJob(t, u)

	// Someone else already holds the job.
	if _, err := machine.StartProcessing(context.Background(), job.ID, "run-other"); err != nil {
		t.Fatalf("start processing: %v", err)
	}

	_, err := u.StartGeneration(context.Background(), job.ID)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Status != domain.StatusProcessing {
		t.Errorf("conflict status = %s, want processing", conflict.Status)
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0 — duplicate start must not reach upstream", gen.calls)
	}
}

// ---- RetryJob ----

func TestRetryJob_OnlyAfterFailure(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(context.Context, generation.Request) (*generation.Result, error) {
			return &generation.Result{OutputRef: "results/x.png"}, nil
		},
	}
	u, _ := newUsecase(gen)
	job := createJob(t, u)

	_, err := u.RetryJob(context.Background(), job.ID)
	var invalid *domain.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("retry on pending: err = %v, want ValidationError", err)
	}
}

func TestRetryJob_ResetsAndRuns(t *testing.T) {
	gen := &fakeGenerator{}
	gen.generate = func(context.Context, generation.Request) (*generation.Result, error) {
		// First run fails terminally; the retry succeeds.
		if gen.calls == 1 {
			return nil, &generation.Error{Cause: generation.CauseInvalidInput, Message: "bad upload"}
		}
		return &generation.Result{OutputRef: "results/peek-2.png"}, nil
	}
	u, _ := newUsecase(gen)
	job := createJob(t, u)
	ctx := context.Background()

	if _, err := u.StartGeneration(ctx, job.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if j, _ := u.GetJob(ctx, job.ID); j.Status != domain.StatusFailed {
		t.Fatalf("first run status = %s, want failed", j.Status)
	}

	if _, err := u.RetryJob(ctx, job.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}

	final, _ := u.GetJob(ctx, job.ID)
	if final.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.ErrorMessage != nil {
		t.Errorf("error message = %v, want cleared", *final.ErrorMessage)
	}
	if final.ResultRef == nil || *final.ResultRef != "results/peek-2.png" {
		t.Errorf("result ref = %v", final.ResultRef)
	}
}
