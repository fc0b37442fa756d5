package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// SweepScheduler runs detection passes periodically
type SweepScheduler struct {
	sweep    *Sweep
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweepScheduler creates a new sweep scheduler
func NewSweepScheduler(sweep *Sweep, interval time.Duration, log *logger.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweep:    sweep,
		interval: interval,
		logger:   log.WithComponent("sweep-scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. The first pass
// runs immediately.
func (s *SweepScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("sweep scheduler started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("sweep scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler and waits for a running pass to notice
func (s *SweepScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *SweepScheduler) runCycle(ctx context.Context) {
	_, err := s.sweep.RunDetectionPass(ctx)
	switch {
	case err == nil:
	case stderrors.Is(err, ErrSweepInProgress):
		s.logger.Debug().Msg("previous detection pass still running, skipping tick")
	case ctx.Err() != nil:
	default:
		s.logger.Error().Err(err).Msg("scheduled detection pass failed")
	}
}
