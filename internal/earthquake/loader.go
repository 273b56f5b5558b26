package earthquake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quakewatch/quakewatch/internal/observability"
)

const tracerName = "github.com/quakewatch/quakewatch/internal/earthquake"

// Loader errors.
var (
	ErrNoFetcher    = errors.New("loader requires a fetcher")
	ErrNoDispatcher = errors.New("loader requires a dispatcher")
)

// Fetcher retrieves the raw feed body for a request URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, url string) (string, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// State is the lifecycle state of a Loader.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateDelivered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LoaderConfig holds configuration for a Loader.
type LoaderConfig struct {
	// BaseURL is the feed query endpoint (default: DefaultBaseURL).
	BaseURL string

	// Query is the initial query (default: DefaultQueryConfig).
	Query QueryConfig

	// Fetcher performs the HTTP request (required).
	Fetcher Fetcher

	// Dispatcher is the primary context results are delivered on (required).
	Dispatcher Dispatcher

	// Context is the parent of every fetch (default: context.Background).
	Context context.Context

	Logger  zerolog.Logger
	Metrics *observability.FeedMetrics
}

// Loader runs the fetch and parse pipeline in the background, one cycle at
// a time, and delivers each result on the Dispatcher.
//
// Failures are logged and delivered as a nil result; callers cannot tell an
// unreachable feed from an empty one.
type Loader struct {
	baseURL    string
	fetcher    Fetcher
	dispatcher Dispatcher
	ctx        context.Context
	logger     zerolog.Logger
	metrics    *observability.FeedMetrics
	tracer     trace.Tracer

	// inFlight is held from Start until the cycle's delivery has run on the
	// dispatcher, whether or not the result was discarded.
	inFlight atomic.Bool

	mu         sync.Mutex
	state      State
	generation uint64
	query      QueryConfig
	onResult   func([]Earthquake)
	onCleared  func()
}

// NewLoader creates a Loader. The base URL is validated up front.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	if cfg.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if cfg.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	query := cfg.Query
	if query == (QueryConfig{}) {
		query = DefaultQueryConfig()
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return &Loader{
		baseURL:    baseURL,
		fetcher:    cfg.Fetcher,
		dispatcher: cfg.Dispatcher,
		ctx:        ctx,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer(tracerName),
		query:      query,
	}, nil
}

// Configure sets the query used by the next Start.
func (l *Loader) Configure(q QueryConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = q
}

// Query returns the configured query.
func (l *Loader) Query() QueryConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// OnResult registers the callback that receives each delivered result.
// The result is nil when the cycle failed or the feed was empty.
func (l *Loader) OnResult(fn func([]Earthquake)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onResult = fn
}

// OnCleared registers the callback invoked by Reset.
func (l *Loader) OnCleared(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCleared = fn
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Loading reports whether a cycle is outstanding.
func (l *Loader) Loading() bool {
	return l.inFlight.Load()
}

// Start begins a load cycle for the configured query. See StartURL.
func (l *Loader) Start() bool {
	u, err := BuildURL(l.baseURL, l.Query())
	if err != nil {
		l.logger.Error().Err(err).Msg("problem building the feed url")
		return false
	}
	return l.StartURL(u)
}

// StartURL begins a load cycle for url and returns immediately. It is a
// no-op returning false while another cycle is outstanding.
func (l *Loader) StartURL(url string) bool {
	if !l.inFlight.CompareAndSwap(false, true) {
		l.logger.Debug().Str("url", url).Msg("load already in flight, ignoring start")
		return false
	}

	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.state = StateLoading
	l.mu.Unlock()

	l.metrics.LoadStarted()
	go l.run(gen, url)
	return true
}

// Reset returns the loader to idle, drops any result not yet delivered and
// invokes the cleared callback. An in-flight request is left to finish and
// its response is discarded.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.generation++
	l.state = StateIdle
	cleared := l.onCleared
	l.mu.Unlock()

	if cleared != nil {
		cleared()
	}
}

func (l *Loader) run(gen uint64, url string) {
	start := time.Now()
	ctx, span := l.tracer.Start(l.ctx, "earthquake.load",
		trace.WithAttributes(attribute.String("url.full", url)),
	)

	quakes, outcome := l.load(ctx, url)

	span.SetAttributes(
		attribute.String("earthquake.outcome", outcome),
		attribute.Int("earthquake.count", len(quakes)),
	)
	if outcome != observability.OutcomeDelivered {
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	l.metrics.LoadFinished(time.Since(start))

	l.dispatcher.Dispatch(func() {
		l.deliver(gen, quakes, outcome)
	})
}

func (l *Loader) load(ctx context.Context, url string) (quakes []Earthquake, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Str("url", url).Msg("feed pipeline panicked")
			quakes, outcome = nil, observability.OutcomeFetchError
		}
	}()

	body, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.logger.Error().Err(err).Str("url", url).Msg("problem fetching the earthquake feed")
		return nil, observability.OutcomeFetchError
	}

	quakes, err = Parse(body)
	if err != nil {
		l.logger.Error().Err(err).Str("url", url).Msg("problem parsing the earthquake feed")
		return nil, observability.OutcomeParseError
	}

	l.logger.Debug().Int("count", len(quakes)).Msg("parsed earthquake feed")
	return quakes, observability.OutcomeDelivered
}

// deliver runs on the dispatcher.
func (l *Loader) deliver(gen uint64, quakes []Earthquake, outcome string) {
	l.mu.Lock()
	if gen != l.generation || l.state != StateLoading {
		l.mu.Unlock()
		l.inFlight.Store(false)
		l.metrics.ObserveCycle(observability.OutcomeDiscarded, 0)
		l.logger.Debug().Msg("discarding result of reset load cycle")
		return
	}
	l.state = StateDelivered
	callback := l.onResult
	l.mu.Unlock()

	l.inFlight.Store(false)
	l.metrics.ObserveCycle(outcome, len(quakes))

	if callback != nil {
		callback(quakes)
	}
}
