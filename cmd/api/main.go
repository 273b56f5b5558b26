// Package main provides the entrypoint for the quakewatch API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/api"
	"github.com/quakewatch/quakewatch/internal/api/middleware"
	"github.com/quakewatch/quakewatch/internal/auth"
	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/earthquake/usgs"
	"github.com/quakewatch/quakewatch/internal/feed"
	"github.com/quakewatch/quakewatch/internal/observability"
	"github.com/quakewatch/quakewatch/internal/provider/resilience"
	"github.com/quakewatch/quakewatch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "quakewatch-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.FromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting quakewatch API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetricsWithMeter(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	feedMetrics := observability.NewFeedMetrics(reg)

	registry := resilience.NewRegistry()
	fetcher := usgs.NewClient(usgs.ClientConfig{
		ConnectTimeout:        cfg.Feed.ConnectTimeout,
		ReadTimeout:           cfg.Feed.ReadTimeout,
		DisableCircuitBreaker: !cfg.Feed.BreakerEnabled,
		Registry:              registry,
		Logger:                log,
		Metrics:               feedMetrics,
	})

	board, err := feed.NewBoard(feed.BoardConfig{
		BaseURL:   cfg.Feed.BaseURL,
		Query:     cfg.Feed.Query,
		Fetcher:   fetcher,
		Formatter: earthquake.Formatter{Location: cfg.Feed.Location, NearLabel: earthquake.NearTheLabel},
		Context:   ctx,
		Logger:    log,
		Metrics:   feedMetrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create earthquake board")
	}
	go func() {
		if runErr := board.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error().Err(runErr).Msg("earthquake board stopped")
		}
	}()
	board.Refresh(earthquake.QueryConfig{})

	var tokens middleware.TokenValidator
	if cfg.AdminJWTSigningKey != "" {
		jwtService, jwtErr := auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.AdminJWTSigningKey,
			Issuer:     cfg.AdminJWTIssuer,
		})
		if jwtErr != nil {
			log.Fatal().Err(jwtErr).Msg("failed to initialize admin tokens")
		}
		tokens = jwtService
	} else {
		log.Warn().Msg("ADMIN_JWT_SIGNING_KEY not set, refresh and reset endpoints are disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		ServiceName: serviceName,
		Logger:      log,
		Board:       board,
		Registry:    registry,
		Tokens:      tokens,
		Metrics:     httpMetrics,
		Gatherer:    reg,
		RequireTLS:  cfg.IsProduction(),
		Clock:       clockwork.NewRealClock(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
