// Package lifecycle owns every transition of a job record. All writes go
// through the store's conditional update, so concurrent transitions on one
// id are serialized by the persistence layer, not by this package.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardotrejos/babypeek-sub000/internal/clock"
	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/metrics"
	"github.com/cardotrejos/babypeek-sub000/internal/repository"
	"github.com/google/uuid"
)

type Machine struct {
	store  repository.JobStore
	clock  clock.Clock
	logger *slog.Logger
}

func NewMachine(store repository.JobStore, clk clock.Clock, logger *slog.Logger) *Machine {
	return &Machine{
		store:  store,
		clock:  clk,
		logger: logger.With("component", "lifecycle"),
	}
}

type CreateInput struct {
	InputRef string
	Style    string
}

// Create inserts a fresh pending job. Storage failures are the only way this
// fails.
func (m *Machine) Create(ctx context.Context, input CreateInput) (*domain.Job, error) {
	now := m.clock.Now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Status:    domain.StatusPending,
		Progress:  0,
		InputRef:  input.InputRef,
		Style:     input.Style,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.JobTransitionsTotal.WithLabelValues(string(domain.StatusPending)).Inc()
	return job, nil
}

func (m *Machine) Get(ctx context.Context, id string) (*domain.Job, error) {
	return m.store.Get(ctx, id)
}

// StartProcessing is the guarded pending→processing transition. At most one
// of any number of concurrent callers wins; every loser gets a ConflictError
// carrying the status it lost to. This is what prevents a flaky client retry
// from kicking off a second upstream run for the same job.
func (m *Machine) StartProcessing(ctx context.Context, id, externalRunID string) (*domain.Job, error) {
	zero := 0
	job, ok, err := m.store.ConditionalUpdate(ctx, id, domain.StatusPending, repository.Patch{
		Status:        domain.StatusProcessing,
		Progress:      &zero,
		ExternalRunID: &externalRunID,
		UpdatedAt:     m.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("start processing: %w", err)
	}
	if !ok {
		current, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		m.logger.WarnContext(ctx, "refused duplicate start", "job_id", id, "status", current.Status)
		return nil, &domain.ConflictError{Status: current.Status}
	}

	metrics.JobTransitionsTotal.WithLabelValues(string(domain.StatusProcessing)).Inc()
	return job, nil
}

// UpdateStage records sub-progress within processing. Progress never moves
// backwards; the store clamps it.
func (m *Machine) UpdateStage(ctx context.Context, id, stage string, progress int) (*domain.Job, error) {
	if progress < 0 || progress > 100 {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("progress %d out of range", progress)}
	}

	job, ok, err := m.store.ConditionalUpdate(ctx, id, domain.StatusProcessing, repository.Patch{
		Status:    domain.StatusProcessing,
		Stage:     &stage,
		Progress:  &progress,
		UpdatedAt: m.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	if !ok {
		return nil, m.transitionRefused(ctx, id, "update stage on")
	}
	return job, nil
}

// Complete is the processing→completed transition. Progress is pinned to 100
// and any error message is cleared. The last stage label is kept for
// observability.
func (m *Machine) Complete(ctx context.Context, id, resultRef string) (*domain.Job, error) {
	full := 100
	job, ok, err := m.store.ConditionalUpdate(ctx, id, domain.StatusProcessing, repository.Patch{
		Status:     domain.StatusCompleted,
		Progress:   &full,
		ResultRef:  &resultRef,
		ClearError: true,
		UpdatedAt:  m.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	if !ok {
		return nil, m.transitionRefused(ctx, id, "complete")
	}

	metrics.JobTransitionsTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
	m.logger.InfoContext(ctx, "job completed", "job_id", id)
	return job, nil
}

// Fail records a terminal failure from processing, or from pending when the
// job never got off the ground.
func (m *Machine) Fail(ctx context.Context, id, message string) (*domain.Job, error) {
	stage := domain.StageFailed
	patch := repository.Patch{
		Status:       domain.StatusFailed,
		Stage:        &stage,
		ErrorMessage: &message,
		UpdatedAt:    m.clock.Now(),
	}

	for _, from := range []domain.Status{domain.StatusProcessing, domain.StatusPending} {
		job, ok, err := m.store.ConditionalUpdate(ctx, id, from, patch)
		if err != nil {
			return nil, fmt.Errorf("fail job: %w", err)
		}
		if ok {
			metrics.JobTransitionsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
			m.logger.WarnContext(ctx, "job failed", "job_id", id, "error", message)
			return job, nil
		}
	}
	return nil, m.transitionRefused(ctx, id, "fail")
}

// ResetForRetry is the failed→pending transition. Retries are only permitted
// from a terminal failure, never from pending, processing or completed.
func (m *Machine) ResetForRetry(ctx context.Context, id string) (*domain.Job, error) {
	zero := 0
	job, ok, err := m.store.ConditionalUpdate(ctx, id, domain.StatusFailed, repository.Patch{
		Status:     domain.StatusPending,
		Progress:   &zero,
		ClearStage: true,
		ClearRunID: true,
		ClearError: true,
		UpdatedAt:  m.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("reset for retry: %w", err)
	}
	if !ok {
		current, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("only failed jobs can be retried, status is %q", current.Status),
		}
	}

	metrics.JobTransitionsTotal.WithLabelValues(string(domain.StatusPending)).Inc()
	m.logger.InfoContext(ctx, "job reset for retry", "job_id", id)
	return job, nil
}

// transitionRefused turns a guard miss into the right typed error: the id is
// either unknown or in a status the transition does not accept.
func (m *Machine) transitionRefused(ctx context.Context, id, op string) error {
	current, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return &domain.ValidationError{
		Reason: fmt.Sprintf("cannot %s job in status %q", op, current.Status),
	}
}

// NewRunID generates a fresh external run handle.
func NewRunID() string { return uuid.NewString() }
