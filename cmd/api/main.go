package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartqueue/smartqueue-api/internal/config"
	"github.com/smartqueue/smartqueue-api/internal/handler"
	authHandler "github.com/smartqueue/smartqueue-api/internal/handler/auth"
	patientHandler "github.com/smartqueue/smartqueue-api/internal/handler/patient"
	queueHandler "github.com/smartqueue/smartqueue-api/internal/handler/queue"
	settingsHandler "github.com/smartqueue/smartqueue-api/internal/handler/settings"
	streamHandler "github.com/smartqueue/smartqueue-api/internal/handler/stream"
	"github.com/smartqueue/smartqueue-api/internal/middleware"
	"github.com/smartqueue/smartqueue-api/internal/repository/postgres"
	"github.com/smartqueue/smartqueue-api/internal/router"
	authService "github.com/smartqueue/smartqueue-api/internal/service/auth"
	patientService "github.com/smartqueue/smartqueue-api/internal/service/patient"
	queueService "github.com/smartqueue/smartqueue-api/internal/service/queue"
	settingsService "github.com/smartqueue/smartqueue-api/internal/service/settings"
	syncService "github.com/smartqueue/smartqueue-api/internal/service/sync"
	"github.com/smartqueue/smartqueue-api/pkg/logger"
	"github.com/smartqueue/smartqueue-api/pkg/messaging/redis"
	"github.com/smartqueue/smartqueue-api/pkg/metrics"
	"github.com/smartqueue/smartqueue-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	queueRepo := postgres.NewQueueRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	appMetrics := metrics.New("smartqueue")

	settingsSvc := settingsService.NewService(settingsRepo, broker, appLogger)
	queueSvc := queueService.NewService(queueRepo, settingsSvc).WithMetrics(appMetrics)
	patientSvc := patientService.NewService(patientRepo)
	authSvc := authService.NewService(cfg.Auth)
	syncSvc := syncService.NewService(broker, queueSvc, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := settingsSvc.StartInvalidation(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start settings invalidation")
	}

	// The API process runs its own outbox drain so a single-binary deploy
	// still delivers notifications. The standalone worker can take over in
	// larger setups; SKIP LOCKED keeps the two from double-claiming.
	outboxProcessor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval(),
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay(),
	}, appLogger, appMetrics)
	go outboxProcessor.Start(ctx)

	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	h := handler.NewHandler()
	authH := authHandler.NewHandler(authSvc)
	patientH := patientHandler.NewHandler(patientSvc, queueSvc)
	queueH := queueHandler.NewHandler(queueSvc, time.Duration(cfg.Auth.SessionTTLMinutes)*time.Minute)
	settingsH := settingsHandler.NewHandler(settingsSvc)
	streamH := streamHandler.NewHandler(syncSvc, appLogger)

	r := router.NewRouter(
		authMiddleware,
		authH,
		patientH,
		queueH,
		settingsH,
		streamH,
		h,
		router.RouterConfig{
			RateLimit:     100,
			RateBurst:     200,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "smartqueue_http",
			Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
