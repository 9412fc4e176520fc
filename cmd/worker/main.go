package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patient-records/internal/config"
	"github.com/jwalitptl/patient-records/internal/worker"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/messaging/redis"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

// setupHealthCheck serves liveness, readiness and metrics for the worker.
func setupHealthCheck(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	healthAddr := flag.String("health-addr", ":8081", "address for health and metrics endpoints")
	flag.Parse()

	if err := run(*configPath, *healthAddr); err != nil {
		log.Error().Err(err).Msg("worker failed")
		os.Exit(1)
	}
}

func run(configPath, healthAddr string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.Redis.URL == "" {
		return errors.New("redis.url (or REDIS_URL) is required by the event worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{URL: cfg.Redis.URL}, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	m := metrics.New("patient_events_worker")
	srv := setupHealthCheck(healthAddr, m)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	consumer := worker.NewEventConsumer(broker, cfg.Redis.Channel, nil, m, log.Logger)
	return consumer.Start(ctx)
}
