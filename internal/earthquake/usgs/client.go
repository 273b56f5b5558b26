// Package usgs fetches raw earthquake feed bodies from the USGS FDSN event
// service or any server speaking the same protocol.
package usgs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quakewatch/quakewatch/internal/observability"
	"github.com/quakewatch/quakewatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider in the resilience registry.
	ProviderName = "usgs"

	userAgent = "quakewatch/1.0"
)

// ClientConfig holds configuration for the USGS client.
type ClientConfig struct {
	// HTTPClient executes requests. If nil, a resilience client is created
	// from the fields below.
	HTTPClient HTTPDoer

	// ConnectTimeout bounds connection setup (default: 15s).
	ConnectTimeout time.Duration

	// ReadTimeout bounds each wait for response data (default: 10s).
	ReadTimeout time.Duration

	// DisableCircuitBreaker turns off the breaker on the default client.
	DisableCircuitBreaker bool

	// Registry receives health reports from the default client.
	Registry *resilience.Registry

	Logger  zerolog.Logger
	Metrics *observability.FeedMetrics
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs single GET requests against the feed.
type Client struct {
	httpClient HTTPDoer
	logger     zerolog.Logger
	metrics    *observability.FeedMetrics
	tracer     trace.Tracer
}

// NewClient creates a new USGS client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.ConnectTimeout > 0 {
			rc.ConnectTimeout = cfg.ConnectTimeout
		}
		if cfg.ReadTimeout > 0 {
			rc.ReadTimeout = cfg.ReadTimeout
		}
		rc.DisableCircuitBreaker = cfg.DisableCircuitBreaker
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		httpClient: httpClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer("github.com/quakewatch/quakewatch/internal/earthquake/usgs"),
	}
}

// Fetch performs one GET of url and returns the body as text. Only status
// 200 yields a body; every failure is a *FetchError.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "usgs.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer span.End()

	start := time.Now()
	body, err := c.fetch(ctx, url)
	elapsed := time.Since(start)

	if err != nil {
		var fe *FetchError
		result := KindNetwork.String()
		if errors.As(err, &fe) {
			result = fe.Kind.String()
			if fe.StatusCode != 0 {
				span.SetAttributes(attribute.Int("http.response.status_code", fe.StatusCode))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		c.metrics.ObserveFetch(result, elapsed)

		c.logger.Warn().
			Err(err).
			Str("url", url).
			Str("kind", result).
			Dur("elapsed", elapsed).
			Msg("feed request failed")
		return "", err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", http.StatusOK),
		attribute.Int("http.response.body.size", len(body)),
	)
	c.metrics.ObserveFetch("ok", elapsed)

	c.logger.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Dur("elapsed", elapsed).
		Msg("fetched feed")
	return body, nil
}

func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be released.
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &FetchError{Kind: KindHTTPStatus, URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(url, fmt.Errorf("read body: %w", err))
	}

	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

func classify(url string, err error) *FetchError {
	kind := KindNetwork
	switch {
	case errors.Is(err, resilience.ErrConnectTimeout):
		kind = KindConnectTimeout
	case errors.Is(err, resilience.ErrReadTimeout):
		kind = KindReadTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
