package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one full cycle over the watch set.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the recurring price-check cycle. It alternates
// between idle (waiting for the next tick) and running (one cycle in
// progress); a tick arriving mid-cycle is dropped, never queued, so
// cycles cannot overlap.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled. Tick errors are logged; only cancellation ends the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		started := time.Now()
		s.logger.Info().Msg("executing scheduled cycle")
		if err := tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("cycle failed")
		}
		s.logger.Debug().Dur("elapsed", time.Since(started)).Msg("cycle finished")

		// Drop the tick that may have fired while the cycle ran;
		// otherwise a slow cycle would be followed immediately by
		// another one.
		select {
		case <-ticker.C:
		default:
		}
	}
}
