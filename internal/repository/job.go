package repository

import (
	"context"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/domain"
)

// Patch describes the field changes of one transition. Pointer fields left
// nil are untouched; the Clear flags null a column out explicitly. Status
// and UpdatedAt are always applied.
type Patch struct {
	Status    domain.Status
	UpdatedAt time.Time

	Stage      *string
	ClearStage bool

	Progress *int

	ExternalRunID *string
	ClearRunID    bool

	ResultRef *string

	ErrorMessage *string
	ClearError   bool
}

// The lifecycle machine depends on this interface, not a concrete store.
// This way the postgres store can be swapped for the in-memory one in tests
// and single-process deployments without touching the machine.
type JobStore interface {
	Insert(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)

	// ConditionalUpdate applies patch only if the job's current status equals
	// expected, and reports whether the guard matched. ok == false means the
	// job either does not exist or is in a different status — the caller
	// re-reads to tell the two apart. While a job stays in processing the
	// store never lets Progress decrease.
	ConditionalUpdate(ctx context.Context, id string, expected domain.Status, patch Patch) (*domain.Job, bool, error)

	// ListStaleProcessing returns processing jobs whose last update is older
	// than cutoff. Used by monitoring sweeps only; never mutates.
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Job, error)
}
