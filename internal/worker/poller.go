package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

// PollResult describes one poll.
type PollResult struct {
	// Started is false when a load was already in flight and the poll was
	// skipped.
	Started bool

	// Cleared is true when a reset dropped the refresh before delivery.
	Cleared bool

	Count     int
	Strongest *earthquake.Display
	Duration  time.Duration
}

// PollStats tracks poller statistics.
type PollStats struct {
	TotalPolls   int64
	Delivered    int64
	Skipped      int64
	Cleared      int64
	TimedOut     int64
	LastPollAt   time.Time
	LastDuration time.Duration
	LastCount    int
}

// Poller refreshes a board on a fixed interval and logs each delivery.
type Poller struct {
	board  FeedBoard
	config PollerConfig
	clock  clockwork.Clock
	logger zerolog.Logger

	mu    sync.RWMutex
	stats PollStats
}

// PollerOptions holds the dependencies of a Poller.
type PollerOptions struct {
	Board  FeedBoard
	Config PollerConfig
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// NewPoller creates a poller. A nil clock uses the real clock.
func NewPoller(opts PollerOptions) *Poller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Poller{
		board:  opts.Board,
		config: opts.Config.withDefaults(),
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// Run polls on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.config.Interval).Msg("starting earthquake poller")

	if p.config.RefreshOnStart {
		p.pollAndLog(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("earthquake poller stopped")
			return ctx.Err()
		case <-ticker.Chan():
			p.pollAndLog(ctx)
		}
	}
}

// Poll starts one refresh with the board's current query and waits for it
// to be delivered.
func (p *Poller) Poll(ctx context.Context) (PollResult, error) {
	start := p.clock.Now()

	if !p.board.Refresh(earthquake.QueryConfig{}) {
		p.record(start, func(s *PollStats) { s.Skipped++ })
		return PollResult{}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.config.DeliveryTimeout)
	defer cancel()

	err := p.board.WaitDelivered(waitCtx)
	if errors.Is(err, feed.ErrReset) {
		p.record(start, func(s *PollStats) { s.Cleared++ })
		return PollResult{Started: true, Cleared: true, Duration: p.clock.Since(start)}, nil
	}
	if err != nil {
		p.record(start, func(s *PollStats) { s.TimedOut++ })
		return PollResult{Started: true, Duration: p.clock.Since(start)}, fmt.Errorf("waiting for delivery: %w", err)
	}

	snap := p.board.Snapshot()
	result := PollResult{
		Started:   true,
		Count:     len(snap.Quakes),
		Strongest: snap.Strongest(),
		Duration:  p.clock.Since(start),
	}
	p.record(start, func(s *PollStats) {
		s.Delivered++
		s.LastDuration = result.Duration
		s.LastCount = result.Count
	})
	return result, nil
}

func (p *Poller) pollAndLog(ctx context.Context) {
	result, err := p.Poll(ctx)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		return
	case err != nil:
		p.logger.Warn().Err(err).Msg("earthquake poll did not complete")
	case !result.Started:
		p.logger.Debug().Msg("earthquake load already in flight, skipping poll")
	case result.Cleared:
		p.logger.Info().Dur("duration", result.Duration).Msg("earthquake poll cleared by reset before delivery")
	case result.Strongest == nil:
		p.logger.Info().Dur("duration", result.Duration).Msg("earthquake poll delivered no events")
	default:
		p.logger.Info().
			Int("count", result.Count).
			Str("strongest_magnitude", result.Strongest.MagnitudeText).
			Str("strongest_place", result.Strongest.Place).
			Str("strongest_date", result.Strongest.DateText).
			Dur("duration", result.Duration).
			Msg("earthquake poll delivered")
	}
}

func (p *Poller) record(start time.Time, update func(*PollStats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.TotalPolls++
	p.stats.LastPollAt = start
	update(&p.stats)
}

// Stats returns a copy of the poller statistics.
func (p *Poller) Stats() PollStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}
