package resilience

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client in the registry and breaker.
	Name string

	// ConnectTimeout bounds connection setup.
	// Default: 15 seconds
	ConnectTimeout time.Duration

	// ReadTimeout bounds every wait for response data, headers and body alike.
	// Default: 10 seconds
	ReadTimeout time.Duration

	// DialContext opens connections before timeouts are applied.
	// Default: a zero net.Dialer
	DialContext DialFunc

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// DisableCircuitBreaker sends every request straight through.
	DisableCircuitBreaker bool

	// Registry, if set, has the client registered under Name and receives
	// success and failure reports.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults for a feed client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:           name,
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    10 * time.Second,
		CircuitBreaker: &cbConfig,
	}
}

// Client is an HTTP client with phase timeouts and an optional circuit
// breaker. It never retries.
type Client struct {
	name           string
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	registry       *Registry
	logger         zerolog.Logger
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.DialContext == nil {
		cfg.DialContext = (&net.Dialer{}).DialContext
	}

	c := &Client{
		name:     cfg.Name,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         dialer(cfg.DialContext, cfg.ConnectTimeout, cfg.ReadTimeout),
				TLSHandshakeTimeout: cfg.ConnectTimeout,
				DisableKeepAlives:   true,
			},
		},
	}

	if !cfg.DisableCircuitBreaker {
		cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
		if cfg.CircuitBreaker != nil {
			cbConfig = *cfg.CircuitBreaker
		}
		onChange := cbConfig.OnStateChange
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if onChange != nil {
				onChange(name, from, to)
			}
		}
		c.circuitBreaker = NewCircuitBreaker[*http.Response](cbConfig) //nolint:bodyclose // type param, not response
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do executes req once. A response with any status is returned without error;
// 5xx responses and transport errors count as breaker failures. Returns
// ErrCircuitOpen without sending when the breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.circuitBreaker == nil {
		resp, err := c.httpClient.Do(req)
		c.report(resp, err)
		return resp, err
	}

	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		// 5xx trips the breaker but is still handed back to the caller.
		if r.StatusCode >= 500 {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.report(nil, ErrCircuitOpen)
		return nil, ErrCircuitOpen
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) && resp != nil {
		c.report(resp, nil)
		return resp, nil
	}

	c.report(resp, err)
	return resp, err
}

func (c *Client) report(resp *http.Response, err error) {
	if c.registry == nil {
		return
	}
	switch {
	case err != nil:
		c.registry.RecordFailure(c.name, err)
	case resp.StatusCode >= 500:
		c.registry.RecordFailure(c.name, &ServerError{StatusCode: resp.StatusCode})
	default:
		c.registry.RecordSuccess(c.name)
	}
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerEnabled reports whether requests pass through a breaker.
func (c *Client) CircuitBreakerEnabled() bool {
	return c.circuitBreaker != nil
}

// CircuitBreakerState returns the current state of the circuit breaker.
// A client without a breaker always reports StateClosed.
func (c *Client) CircuitBreakerState() gobreaker.State {
	if c.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	if c.circuitBreaker == nil {
		return gobreaker.Counts{}
	}
	return c.circuitBreaker.Counts()
}
