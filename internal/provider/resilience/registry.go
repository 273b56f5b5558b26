package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
)

// Health statuses reported for an upstream.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// UpstreamHealth is a point-in-time view of one upstream client.
type UpstreamHealth struct {
	// Name is the client name.
	Name string

	// BreakerEnabled is false when the client sends requests without a breaker.
	BreakerEnabled bool

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// Status maps the breaker state to StatusHealthy, StatusDegraded or
// StatusUnhealthy.
func (h *UpstreamHealth) Status() string {
	switch h.CircuitState {
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	case gobreaker.StateOpen:
		return StatusUnhealthy
	default:
		return StatusHealthy
	}
}

// IsHealthy returns true if the circuit is closed.
func (h *UpstreamHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// Registry tracks upstream clients and when they last succeeded or failed.
type Registry struct {
	clock clockwork.Clock

	mu        sync.RWMutex
	upstreams map[string]*registeredUpstream
}

type registeredUpstream struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates a registry using the real clock.
func NewRegistry() *Registry {
	return NewRegistryWithClock(clockwork.NewRealClock())
}

// NewRegistryWithClock creates a registry that timestamps reports with clock.
func NewRegistryWithClock(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:     clock,
		upstreams: make(map[string]*registeredUpstream),
	}
}

// Register adds a client. Registering a name again replaces the client and
// clears its history.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreams[name] = &registeredUpstream{client: client}
}

// Unregister removes a client.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.upstreams, name)
}

// RecordSuccess records a successful request.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := r.clock.Now()
		u.lastSuccessAt = &now
	}
}

// RecordFailure records a failed request.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := r.clock.Now()
		u.lastFailureAt = &now
		if err != nil {
			u.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of one upstream, or nil if unknown.
func (r *Registry) GetHealth(name string) *UpstreamHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.upstreams[name]
	if !ok {
		return nil
	}
	return u.health(name)
}

// GetAllHealth returns the health of every upstream, sorted by name.
func (r *Registry) GetAllHealth() []*UpstreamHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*UpstreamHealth, 0, len(r.upstreams))
	for name, u := range r.upstreams {
		health = append(health, u.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

// Count returns the number of registered upstreams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.upstreams)
}

func (u *registeredUpstream) health(name string) *UpstreamHealth {
	return &UpstreamHealth{
		Name:           name,
		BreakerEnabled: u.client.CircuitBreakerEnabled(),
		CircuitState:   u.client.CircuitBreakerState(),
		Counts:         u.client.CircuitBreakerCounts(),
		LastSuccessAt:  u.lastSuccessAt,
		LastFailureAt:  u.lastFailureAt,
		LastError:      u.lastError,
	}
}
