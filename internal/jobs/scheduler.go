package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// Scheduler enqueues the fallback global scan on a cron cadence. The
// per-room activity triggers are the primary path; this sweep catches
// slow-burn discussions that never crossed a threshold.
type Scheduler struct {
	queue    *Queue
	cronExpr string
	logger   zerolog.Logger
}

// NewScheduler validates the cron expression and builds a scheduler.
func NewScheduler(queue *Queue, cronExpr string, logger zerolog.Logger) (*Scheduler, error) {
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid cron expression: %q", cronExpr)
	}
	return &Scheduler{
		queue:    queue,
		cronExpr: cronExpr,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start launches the scheduling loop in a goroutine. It computes the next
// cron tick, sleeps until it, and enqueues a global scan, until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Str("cron", s.cronExpr).Msg("starting fallback scan scheduler")
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(s.cronExpr, time.Now(), false)
		if err != nil {
			s.logger.Error().Err(err).Str("cron", s.cronExpr).Msg("failed to compute next tick")
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			if err := s.queue.EnqueueGlobalScan(ctx); err != nil {
				s.logger.Error().Err(err).Msg("failed to enqueue scheduled scan")
			}
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return
		}
	}
}
