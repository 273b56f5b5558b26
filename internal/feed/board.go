// Package feed keeps the presentation-side list of earthquakes: it owns a
// loader, runs its primary context, and holds the last delivered rows.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/observability"
)

// StateDraining is reported while a load dropped by Reset is still
// finishing. No new load can start until it has.
const StateDraining = "draining"

// ErrReset is returned by WaitDelivered when the refresh it waited for was
// cleared by Reset instead of delivered.
var ErrReset = errors.New("refresh cleared by reset")

// BoardConfig holds configuration for a Board.
type BoardConfig struct {
	BaseURL   string
	Query     earthquake.QueryConfig
	Fetcher   earthquake.Fetcher
	Formatter earthquake.Formatter

	// Context is the parent context of every fetch.
	Context context.Context

	Clock   clockwork.Clock
	Logger  zerolog.Logger
	Metrics *observability.FeedMetrics
}

// Snapshot is a copy of the board's state.
type Snapshot struct {
	Quakes          []earthquake.Display   `json:"earthquakes"`
	Query           earthquake.QueryConfig `json:"-"`
	State           string                 `json:"state"`
	Loading         bool                   `json:"loading"`
	Delivered       bool                   `json:"delivered"`
	LastDeliveredAt *time.Time             `json:"lastDeliveredAt,omitempty"`
}

// Empty reports whether the board has no rows.
func (s Snapshot) Empty() bool {
	return len(s.Quakes) == 0
}

// Strongest returns the row with the highest magnitude, or nil.
func (s Snapshot) Strongest() *earthquake.Display {
	var best *earthquake.Display
	for i := range s.Quakes {
		if best == nil || s.Quakes[i].Magnitude > best.Magnitude {
			best = &s.Quakes[i]
		}
	}
	return best
}

// Board is the consumer side of a Loader. Callbacks run on the board's own
// queue, which Run drives. Refresh and Reset run on that queue too, so they
// never interleave with a delivery.
type Board struct {
	loader    *earthquake.Loader
	queue     *earthquake.MainQueue
	formatter earthquake.Formatter
	clock     clockwork.Clock
	logger    zerolog.Logger

	// runMu guards running. Control calls made while Run is not active
	// execute inline under it.
	runMu   sync.Mutex
	running bool
	stopped chan struct{}

	mu              sync.RWMutex
	quakes          []earthquake.Display
	pending         bool
	cycle           uint64 // refreshes started
	deliveredCycle  uint64 // cycle of the last delivered refresh
	delivered       bool
	lastDeliveredAt *time.Time
	changed         chan struct{}
}

// NewBoard creates a board and its loader.
func NewBoard(cfg BoardConfig) (*Board, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Formatter == (earthquake.Formatter{}) {
		cfg.Formatter = earthquake.DefaultFormatter
	}

	queue := earthquake.NewMainQueue()
	loader, err := earthquake.NewLoader(earthquake.LoaderConfig{
		BaseURL:    cfg.BaseURL,
		Query:      cfg.Query,
		Fetcher:    cfg.Fetcher,
		Dispatcher: queue,
		Context:    cfg.Context,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	b := &Board{
		loader:    loader,
		queue:     queue,
		formatter: cfg.Formatter,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		changed:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	loader.OnResult(b.onResult)
	loader.OnCleared(b.onCleared)
	return b, nil
}

// Run drives the board's primary context until ctx is cancelled. It must
// be called at most once.
func (b *Board) Run(ctx context.Context) error {
	b.runMu.Lock()
	b.running = true
	b.runMu.Unlock()

	defer func() {
		b.runMu.Lock()
		b.running = false
		close(b.stopped)
		b.runMu.Unlock()
	}()
	return b.queue.Run(ctx)
}

// do runs fn on the board's queue and waits for it. Before Run starts, fn
// runs inline; after Run has stopped, fn is dropped and do returns false.
func (b *Board) do(fn func()) bool {
	b.runMu.Lock()
	if !b.running {
		defer b.runMu.Unlock()
		select {
		case <-b.stopped:
			return false
		default:
		}
		fn()
		return true
	}
	b.runMu.Unlock()

	done := make(chan struct{})
	b.queue.Dispatch(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return true
	case <-b.stopped:
		// The queue may have run fn just before stopping.
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Refresh starts a load with q, or with the last query when q is the zero
// value. Returns false when a load is already outstanding, including one
// still draining after a reset.
func (b *Board) Refresh(q earthquake.QueryConfig) bool {
	started := false
	b.do(func() {
		if b.loader.Loading() {
			return
		}
		if q != (earthquake.QueryConfig{}) {
			b.loader.Configure(q)
		}
		b.mu.Lock()
		b.pending = true
		b.cycle++
		b.mu.Unlock()

		started = b.loader.Start()
		if !started {
			b.mu.Lock()
			b.pending = false
			b.cycle--
			b.mu.Unlock()
		}
	})
	return started
}

// WaitDelivered blocks until the refresh started last has been delivered or
// reset. It returns nil at once when nothing is pending, and ErrReset when
// the refresh was cleared before its result arrived.
func (b *Board) WaitDelivered(ctx context.Context) error {
	b.mu.RLock()
	waiting := b.pending
	cycle := b.cycle
	b.mu.RUnlock()
	if !waiting {
		return nil
	}

	for {
		b.mu.RLock()
		pending, current, delivered, changed := b.pending, b.cycle, b.deliveredCycle, b.changed
		b.mu.RUnlock()

		if !pending || current != cycle {
			if delivered >= cycle {
				return nil
			}
			return ErrReset
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Reset clears the rows and drops any pending result.
func (b *Board) Reset() {
	if !b.do(b.loader.Reset) {
		// Nothing drives the queue any more, so no delivery can race.
		b.loader.Reset()
	}
}

// Changed returns a channel closed at the next delivery or reset.
func (b *Board) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	quakes := make([]earthquake.Display, len(b.quakes))
	copy(quakes, b.quakes)

	state := b.loader.State()
	loading := b.loader.Loading()
	stateText := state.String()
	if loading && state != earthquake.StateLoading {
		stateText = earthquake.StateLoading.String()
		if !b.pending {
			stateText = StateDraining
		}
	}

	return Snapshot{
		Quakes:          quakes,
		Query:           b.loader.Query(),
		State:           stateText,
		Loading:         loading,
		Delivered:       b.delivered,
		LastDeliveredAt: b.lastDeliveredAt,
	}
}

// Ready reports whether at least one result has been delivered.
func (b *Board) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.delivered
}

func (b *Board) onResult(quakes []earthquake.Earthquake) {
	rows := b.formatter.FormatAll(quakes)
	now := b.clock.Now()

	b.mu.Lock()
	if !b.pending {
		b.mu.Unlock()
		b.logger.Debug().Msg("dropping result delivered after reset")
		return
	}
	b.quakes = rows
	b.pending = false
	b.deliveredCycle = b.cycle
	b.delivered = true
	b.lastDeliveredAt = &now
	b.notifyLocked()
	b.mu.Unlock()

	if len(rows) == 0 {
		b.logger.Info().Msg("no earthquakes delivered")
		return
	}
	b.logger.Info().Int("count", len(rows)).Msg("earthquakes delivered")
}

func (b *Board) onCleared() {
	b.mu.Lock()
	b.quakes = nil
	b.pending = false
	b.notifyLocked()
	b.mu.Unlock()

	b.logger.Info().Msg("earthquake list cleared")
}

func (b *Board) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}
