// Package sweeper runs the periodic housekeeping the request path never
// does: dropping expired rate windows and flagging jobs stuck in processing.
// Stuck jobs are reported, never mutated — resolving them is an operator
// decision.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/clock"
	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/metrics"
	"github.com/robfig/cron/v3"
)

// WindowSweeper is implemented by the in-process rate-limit store. Nil when
// the redis store is in use: its windows expire on their own.
type WindowSweeper interface {
	Sweep(ctx context.Context) int
}

type StaleLister interface {
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Job, error)
}

type Sweeper struct {
	cron       *cron.Cron
	windows    WindowSweeper
	jobs       StaleLister
	clock      clock.Clock
	logger     *slog.Logger
	staleAfter time.Duration
}

func New(windows WindowSweeper, jobs StaleLister, clk clock.Clock, logger *slog.Logger, interval, staleAfter time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		cron:       cron.New(),
		windows:    windows,
		jobs:       jobs,
		clock:      clk,
		logger:     logger.With("component", "sweeper"),
		staleAfter: staleAfter,
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweeper started", "stale_after", s.staleAfter)
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.windows != nil {
		removed := s.windows.Sweep(ctx)
		if removed > 0 {
			metrics.RateWindowsSwept.Add(float64(removed))
			s.logger.Debug("swept expired rate windows", "count", removed)
		}
	}

	cutoff := s.clock.Now().Add(-s.staleAfter)
	stale, err := s.jobs.ListStaleProcessing(ctx, cutoff, 100)
	if err != nil {
		s.logger.Error("list stale jobs", "error", err)
		return
	}

	metrics.StaleProcessingJobs.Set(float64(len(stale)))
	for _, j := range stale {
		s.logger.Warn("job stuck in processing",
			"job_id", j.ID,
			"stage", stageLabel(j),
			"since", j.UpdatedAt,
		)
	}
}

func stageLabel(j *domain.Job) string {
	if j.Stage == nil {
		return ""
	}
	return *j.Stage
}
