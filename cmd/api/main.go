package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/patient-records/internal/config"
	"github.com/jwalitptl/patient-records/internal/handler/health"
	patientHandler "github.com/jwalitptl/patient-records/internal/handler/patient"
	"github.com/jwalitptl/patient-records/internal/middleware"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/repository/memory"
	"github.com/jwalitptl/patient-records/internal/repository/mongodb"
	"github.com/jwalitptl/patient-records/internal/router"
	"github.com/jwalitptl/patient-records/internal/seed"
	eventService "github.com/jwalitptl/patient-records/internal/service/event"
	patientService "github.com/jwalitptl/patient-records/internal/service/patient"
	"github.com/jwalitptl/patient-records/pkg/logger"
	"github.com/jwalitptl/patient-records/pkg/messaging"
	"github.com/jwalitptl/patient-records/pkg/messaging/redis"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

const metricsNamespace = "patient_records"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "patient-records",
		Short:         "Patient records API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(seedCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, demo)
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "use the in-memory store seeded with sample patients (data is lost on exit)")
	return cmd
}

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample patients into an empty collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, coll, err := connectMongo(ctx, cfg.Mongo)
			if err != nil {
				return err
			}
			defer disconnect(client)

			repo := mongodb.NewPatientRepository(coll, nil)
			n, err := seed.Run(ctx, repo, time.Now().UTC(), log.Logger)
			if err != nil {
				return err
			}
			log.Info().Int("inserted", n).Msg("seeding completed")
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func connectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Collection, error) {
	client, err := mongodb.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	if err := mongodb.EnsureIndexes(ctx, coll); err != nil {
		disconnect(client)
		return nil, nil, err
	}
	log.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("connected to MongoDB")
	return client, coll, nil
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to disconnect from MongoDB")
	}
}

func runServer(cfg *config.Config, demo bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metricsNamespace)

	// Initialize store
	var repo repository.PatientRepository
	if demo {
		repo = memory.NewPatientRepository()
		if _, err := seed.Run(ctx, repo, time.Now().UTC(), log.Logger); err != nil {
			return err
		}
		log.Warn().Msg("demo mode: using the in-memory store, data is lost on exit")
	} else {
		client, coll, err := connectMongo(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer disconnect(client)
		repo = mongodb.NewPatientRepository(coll, m)
	}

	// Initialize message broker
	broker, err := newBroker(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer broker.Close()

	// Initialize services
	events := eventService.NewEventService(broker, cfg.Redis.Channel, m, log.Logger)
	patientSvc := patientService.NewService(repo, events,
		patientService.WithStatsCache(cfg.Cache.StatsTTL, cfg.Cache.CleanupInterval),
		patientService.WithMetrics(m),
		patientService.WithLogger(log.Logger.With().Str("component", "patients").Logger()),
	)

	// Setup router
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r := router.NewRouter(
		patientHandler.NewHandler(patientSvc),
		health.NewHandler(repo),
		m,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       cors,
			RequestTimeout:   cfg.Server.RequestTimeout,
			StaticDir:        cfg.Server.StaticDir,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Bool("demo", demo).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

// newBroker connects to Redis when configured. Without a URL events are
// dropped.
func newBroker(ctx context.Context, cfg config.RedisConfig) (messaging.Broker, error) {
	if cfg.URL == "" {
		log.Info().Msg("redis.url not set, change events disabled")
		return messaging.NopBroker{}, nil
	}
	broker, err := redis.NewRedisBroker(ctx, redis.Config{URL: cfg.URL}, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return broker, nil
}
