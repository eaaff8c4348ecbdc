/*
scheduler.go - Cron-driven batch runs

PURPOSE:
  Runs the configured batch on a cron schedule, for a service that keeps
  a fresh set of realizations on hand as the dataset is updated.

SCHEDULE:
  The expression uses the six-field form with seconds, e.g.
  "0 0 2 * * *" runs at 02:00 every day.

IDEMPOTENCY:
  Every tick creates a new run with a new ID. A tick that fires while the
  previous batch is still running is skipped rather than queued.

SEE ALSO:
  - handlers.go: Execute, shared with POST /api/runs
  - cmd/server/main.go: Starts the scheduler
*/
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// BatchScheduler runs the default batch on a cron schedule.
type BatchScheduler struct {
	Cron    *cron.Cron
	Handler *Handler
	Logger  zerolog.Logger

	ctx     context.Context
	mu      sync.Mutex
	running bool
}

// NewBatchScheduler creates a scheduler for h. ctx bounds every batch.
func NewBatchScheduler(ctx context.Context, h *Handler, logger zerolog.Logger) *BatchScheduler {
	return &BatchScheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Handler: h,
		Logger:  logger.With().Str("component", "scheduler").Logger(),
		ctx:     ctx,
	}
}

// Register adds the batch task at spec.
func (s *BatchScheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register batch task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *BatchScheduler) Start() {
	s.Cron.Start()
	s.Logger.Info().Int("entries", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running batch to finish.
func (s *BatchScheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info().Msg("scheduler stopped")
}

// RunNow runs one scheduled batch immediately. It returns false when a
// batch was already running.
func (s *BatchScheduler) RunNow() (RunDTO, bool, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return RunDTO{}, false, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	dto, err := s.Handler.Execute(s.ctx, CreateRunRequest{}, "cron")
	return dto, true, err
}

func (s *BatchScheduler) tick() {
	dto, ran, err := s.RunNow()
	switch {
	case err != nil:
		s.Logger.Error().Err(err).Msg("scheduled batch failed")
	case !ran:
		s.Logger.Warn().Msg("previous batch still running, skipping tick")
	default:
		s.Logger.Info().Str("run_id", dto.ID).Int("failed", dto.Failed).Msg("scheduled batch stored")
	}
}
