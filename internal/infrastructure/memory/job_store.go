// Package memory holds the in-process JobStore used by tests and
// single-instance deployments. The mutex plays the role postgres'
// conditional UPDATE plays in the real store: transitions on one id are
// serialized, so racing callers still produce exactly one guard winner.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/repository"
)

type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

func (s *JobStore) Insert(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *JobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (s *JobStore) ConditionalUpdate(_ context.Context, id string, expected domain.Status, patch repository.Patch) (*domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != expected {
		return nil, false, nil
	}

	if patch.Progress != nil {
		progress := *patch.Progress
		if j.Status == domain.StatusProcessing && patch.Status == domain.StatusProcessing && j.Progress > progress {
			progress = j.Progress
		}
		j.Progress = progress
	}
	switch {
	case patch.ClearStage:
		j.Stage = nil
	case patch.Stage != nil:
		j.Stage = copyStr(patch.Stage)
	}
	switch {
	case patch.ClearRunID:
		j.ExternalRunID = nil
	case patch.ExternalRunID != nil:
		j.ExternalRunID = copyStr(patch.ExternalRunID)
	}
	switch {
	case patch.ClearError:
		j.ErrorMessage = nil
	case patch.ErrorMessage != nil:
		j.ErrorMessage = copyStr(patch.ErrorMessage)
	}
	if patch.ResultRef != nil {
		j.ResultRef = copyStr(patch.ResultRef)
	}
	j.Status = patch.Status
	j.UpdatedAt = patch.UpdatedAt

	return copyJob(j), true, nil
}

func (s *JobStore) ListStaleProcessing(_ context.Context, cutoff time.Time, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*domain.Job
	for _, j := range s.jobs {
		if j.Status == domain.StatusProcessing && j.UpdatedAt.Before(cutoff) {
			stale = append(stale, copyJob(j))
		}
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].UpdatedAt.Before(stale[b].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// copyJob keeps callers from mutating store-owned records through aliased
// pointers.
func copyJob(j *domain.Job) *domain.Job {
	out := *j
	out.Stage = copyStr(j.Stage)
	out.ExternalRunID = copyStr(j.ExternalRunID)
	out.ResultRef = copyStr(j.ResultRef)
	out.ErrorMessage = copyStr(j.ErrorMessage)
	return &out
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
