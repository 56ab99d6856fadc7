package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/generation"
	"github.com/cardotrejos/babypeek-sub000/internal/lifecycle"
	"github.com/cardotrejos/babypeek-sub000/internal/metrics"
	"github.com/cardotrejos/babypeek-sub000/internal/retry"
)

// Generator is one attempt against the upstream. Satisfied by
// *generation.Client; tests pass a fake.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

type JobUsecase struct {
	machine   *lifecycle.Machine
	generator Generator
	policy    retry.Policy
	logger    *slog.Logger

	// sync forces the generation pipeline to run inline instead of in a
	// goroutine. Tests only.
	sync bool
}

func NewJobUsecase(machine *lifecycle.Machine, generator Generator, policy retry.Policy, logger *slog.Logger) *JobUsecase {
	return &JobUsecase{
		machine:   machine,
		generator: generator,
		policy:    policy,
		logger:    logger.With("component", "job_usecase"),
	}
}

type CreateJobInput struct {
	InputRef string
	Style    string
}

func (u *JobUsecase) CreateJob(ctx context.Context, input CreateJobInput) (*domain.Job, error) {
	return u.machine.Create(ctx, lifecycle.CreateInput{
		InputRef: input.InputRef,
		Style:    input.Style,
	})
}

func (u *JobUsecase) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return u.machine.Get(ctx, id)
}

// StartGeneration performs the guarded start and kicks off the generation
// pipeline. The returned job is already in processing; the caller polls for
// the outcome. Conflict and not-found errors surface synchronously so a
// racing duplicate request gets an answer it can act on.
func (u *JobUsecase) StartGeneration(ctx context.Context, id string) (*domain.Job, error) {
	runID := lifecycle.NewRunID()

	job, err := u.machine.StartProcessing(ctx, id, runID)
	if err != nil {
		return nil, err
	}

	// Detach from the request context so a client disconnect does not
	// abandon a run that is already billed; log/request-id values survive.
	pipelineCtx := context.WithoutCancel(ctx)
	if u.sync {
		u.runPipeline(pipelineCtx, job, runID)
	} else {
		go u.runPipeline(pipelineCtx, job, runID)
	}
	return job, nil
}

// RetryJob resets a failed job to pending and starts it again. Any other
// status is refused with a ValidationError.
func (u *JobUsecase) RetryJob(ctx context.Context, id string) (*domain.Job, error) {
	if _, err := u.machine.ResetForRetry(ctx, id); err != nil {
		return nil, err
	}
	return u.StartGeneration(ctx, id)
}

func (u *JobUsecase) runPipeline(ctx context.Context, job *domain.Job, runID string) {
	id := job.ID

	if _, err := u.machine.UpdateStage(ctx, id, domain.StageValidating, 10); err != nil {
		u.abort(ctx, id, fmt.Errorf("validating stage: %w", err))
		return
	}
	if _, err := u.machine.UpdateStage(ctx, id, domain.StageGenerating, 25); err != nil {
		u.abort(ctx, id, fmt.Errorf("generating stage: %w", err))
		return
	}

	start := time.Now()
	result, err := retry.Do(ctx, u.policy, generation.Classify,
		func(ctx context.Context) (*generation.Result, error) {
			return u.generator.Generate(ctx, generation.Request{
				JobID:    id,
				RunID:    runID,
				InputRef: job.InputRef,
				Style:    job.Style,
			})
		},
		u.observeAttempt(ctx, id),
	)
	if err != nil {
		metrics.GenerationDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		metrics.RetryOutcomesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		u.abort(ctx, id, err)
		return
	}
	metrics.GenerationDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	metrics.RetryOutcomesTotal.WithLabelValues("success").Inc()

	if _, err := u.machine.UpdateStage(ctx, id, domain.StageStoring, 90); err != nil {
		u.abort(ctx, id, fmt.Errorf("storing stage: %w", err))
		return
	}
	if _, err := u.machine.Complete(ctx, id, result.OutputRef); err != nil {
		u.logger.ErrorContext(ctx, "record completion", "job_id", id, "error", err)
	}
}

// abort records the terminal failure on the job so job state stays the
// source of truth even when the triggering request got no response.
func (u *JobUsecase) abort(ctx context.Context, id string, cause error) {
	if _, err := u.machine.Fail(ctx, id, failureMessage(cause)); err != nil {
		u.logger.ErrorContext(ctx, "record failure", "job_id", id, "error", err, "cause", cause)
	}
}

func (u *JobUsecase) observeAttempt(ctx context.Context, id string) retry.Observer {
	return func(a retry.Attempt) {
		metrics.RetryAttemptsTotal.WithLabelValues(generation.CauseOf(a.Err).String()).Inc()
		u.logger.WarnContext(ctx, "generation attempt failed",
			"job_id", id,
			"attempt", a.Number,
			"cause", generation.CauseOf(a.Err).String(),
			"elapsed", a.Elapsed,
			"next_delay", a.Delay,
			"error", a.Err,
		)
	}
}

// failureMessage keeps the recorded error specific: timeout, exhaustion and
// terminal causes each read differently so monitoring can tell an upstream
// outage from a content rejection.
func failureMessage(err error) string {
	var timeout *retry.TimeoutError
	if errors.As(err, &timeout) {
		return fmt.Sprintf("generation timed out after %d attempts", timeout.Attempts)
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Sprintf("generation failed after %d attempts: %s (%v)",
			exhausted.Attempts, generation.CauseOf(exhausted.Last), exhausted.Last)
	}
	return fmt.Sprintf("generation failed: %s (%v)", generation.CauseOf(err), err)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, retry.ErrTimeout):
		return "timeout"
	default:
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return "exhausted"
		}
		return "terminal"
	}
}
