package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/earthquake/usgs"
	"github.com/quakewatch/quakewatch/internal/feed"
	"github.com/quakewatch/quakewatch/internal/observability"
	"github.com/quakewatch/quakewatch/internal/provider/resilience"
	"github.com/quakewatch/quakewatch/internal/telemetry"
	"github.com/quakewatch/quakewatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "quakewatch-worker"

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
	log.Info().Str("build_time", BuildTime).Msg("starting quakewatch worker")

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

	reg := prometheus.NewRegistry()
	feedMetrics := observability.NewFeedMetrics(reg)
	registry := resilience.NewRegistry()

	board, err := feed.NewBoard(feed.BoardConfig{
		BaseURL: cfg.Feed.BaseURL,
		Query:   cfg.Feed.Query,
		Fetcher: usgs.NewClient(usgs.ClientConfig{
			ConnectTimeout:        cfg.Feed.ConnectTimeout,
			ReadTimeout:           cfg.Feed.ReadTimeout,
			DisableCircuitBreaker: !cfg.Feed.BreakerEnabled,
			Registry:              registry,
			Logger:                log,
			Metrics:               feedMetrics,
		}),
		Formatter: earthquake.Formatter{Location: cfg.Feed.Location, NearLabel: earthquake.NearTheLabel},
		Context:   ctx,
		Logger:    log,
		Metrics:   feedMetrics,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create earthquake board")
	}
	go func() { _ = board.Run(ctx) }()

	poller := worker.NewPoller(worker.PollerOptions{
		Board: board,
		Config: worker.PollerConfig{
			Interval:        cfg.PollInterval,
			DeliveryTimeout: time.Minute,
			RefreshOnStart:  true,
		},
		Logger: log,
	})
	go func() {
		if runErr := poller.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error().Err(runErr).Msg("poller stopped")
		}
	}()

	if cfg.PubSubProjectID != "" {
		handler, psErr := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Jobs:             worker.NewJobHandler(board, time.Minute, log),
			Logger:           log,
		})
		if psErr != nil {
			log.Fatal().Err(psErr).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()
		go func() {
			if runErr := handler.Start(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error().Err(runErr).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set, feed jobs disabled")
	}

	// The worker also serves health and metrics for the platform's probes.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		stats := poller.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "OK",
			"version":    Version,
			"polls":      stats.TotalPolls,
			"delivered":  stats.Delivered,
			"lastPollAt": stats.LastPollAt,
		})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
