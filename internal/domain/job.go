package domain

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible except an
// explicit retry reset (failed only).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage labels used while a job moves through processing.
const (
	StageValidating = "validating"
	StageGenerating = "generating"
	StageStoring    = "storing"
	StageFailed     = "failed"
)

type Job struct {
	ID       string
	Status   Status
	Stage    *string // nil outside processing
	Progress int     // 0–100, non-decreasing while processing

	// InputRef and Style are set at creation and never change.
	InputRef string
	Style    string

	ExternalRunID *string // handle of the in-flight upstream run
	ResultRef     *string // set on completion
	ErrorMessage  *string // set on failure, cleared on retry reset

	CreatedAt time.Time
	UpdatedAt time.Time
}

var ErrJobNotFound = errors.New("job not found")

// ConflictError reports a refused pending→processing transition. It carries
// the status observed at the time of the attempt so a client can switch from
// starting the job to polling it.
type ConflictError struct {
	Status Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("job already started: status is %q", e.Status)
}

// ValidationError reports an illegal transition request, e.g. retrying a job
// that has not failed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
