package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sardanna/roundrobin-lb/config"
	"github.com/sardanna/roundrobin-lb/internal/dispatcher"
	"github.com/sardanna/roundrobin-lb/internal/endpoint"
	"github.com/sardanna/roundrobin-lb/internal/healthcheck"
	"github.com/sardanna/roundrobin-lb/internal/httpserver"
	"github.com/sardanna/roundrobin-lb/internal/metrics"
	"github.com/sardanna/roundrobin-lb/internal/registry"
	"github.com/sardanna/roundrobin-lb/internal/weight"
	"github.com/sardanna/roundrobin-lb/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	endpoints, err := initializeEndpoints(cfg, log)
	if err != nil {
		log.Error("Failed to initialize endpoints", slog.Any("err", err))
		os.Exit(1)
	}

	healthInterval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		log.Error("Invalid health check interval", slog.Any("err", err))
		os.Exit(1)
	}

	resetWindow, err := time.ParseDuration(cfg.Balancer.FailureResetWindow)
	if err != nil {
		log.Error("Invalid failure reset window", slog.Any("err", err))
		os.Exit(1)
	}

	requestTimeout, err := time.ParseDuration(cfg.Balancer.RequestTimeout)
	if err != nil {
		log.Error("Invalid request timeout", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	pool := registry.NewPool(
		endpoints,
		weight.NewSystemScorer(time.Now().UnixNano()),
		registry.Options{
			WeightThreshold:    cfg.Balancer.WeightThreshold,
			FailureThreshold:   cfg.Balancer.FailureThreshold,
			FailureResetWindow: resetWindow,
		},
		log,
		collector,
	)

	monitor := healthcheck.NewMonitor(pool, healthInterval, log)
	go monitor.Run(ctx)

	disp := dispatcher.New(log, pool, collector, requestTimeout, cfg.Balancer.MaxBackendFailures)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(disp, collector))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Load balancer started",
		slog.String("address", cfg.Server.Address),
		slog.Int("endpoints", len(endpoints)))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func initializeEndpoints(cfg *config.Config, log *slog.Logger) ([]*endpoint.Endpoint, error) {
	var endpoints []*endpoint.Endpoint

	for _, backend := range cfg.Backends {
		ep, err := endpoint.New(backend.Address, backend.MaxConcurrent)
		if err != nil {
			log.Error("Skipping invalid backend",
				slog.String("address", backend.Address),
				slog.String("error", err.Error()))
			continue
		}

		endpoints = append(endpoints, ep)
	}

	if len(endpoints) == 0 {
		return nil, os.ErrInvalid
	}

	return endpoints, nil
}
