package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-service/config"
	"rental-service/internal/api"
	"rental-service/internal/auth"
	"rental-service/internal/broker"
	"rental-service/internal/redisclient"
	"rental-service/internal/scheduler"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/util"
	"rental-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting rental service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, store.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	readiness := map[string]api.Pinger{"database": db}

	// The listing lock only shortens contention; bookings stay correct without it.
	var locker service.Locker
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, booking without listing lock", zap.Error(err))
	} else {
		defer redisClient.Close()
		locker = redisClient
		readiness["redis"] = redisClient
		logger.Info("Redis connected")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var producer *broker.Producer
	var historyWorker *worker.HistoryWorker
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicBooking))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
		historyWorker = worker.NewHistoryWorker(consumer, db)
		go func() {
			if err := historyWorker.Start(workerCtx); err != nil {
				logger.Error("History worker error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("Kafka disabled, booking events are not published")
	}
	eventPublisher := broker.NewEventPublisher(producer)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	accountService := service.NewAccountService(db, tokens)
	listingService := service.NewListingService(db)
	bookingService := service.NewBookingService(db, locker, eventPublisher, service.BookingOptions{
		Location:              cfg.Business.Location,
		PermissiveTransitions: !cfg.Business.StrictTransitions,
		ListingLockTTL:        cfg.Business.ListingLockTTL,
	})

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(accountService, listingService, bookingService, tokens, api.Options{
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		RateLimitPerSec: cfg.HTTP.RateLimitPerSec,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
		ListingCacheTTL: cfg.HTTP.ListingCacheTTL,
		Readiness:       readiness,
	})
	handler.SetupRoutes(router)

	reconciler := service.NewReconciler(db, handler.FlushCache)
	jobs := scheduler.NewScheduler()
	if err := jobs.Register("reconcile-availability", cfg.Business.ReconcileSchedule, reconciler); err != nil {
		logger.Fatal("Failed to schedule availability reconciliation", zap.Error(err))
	}
	jobs.RunNow("reconcile-availability", reconciler)
	jobs.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	jobs.Stop()
	workerCancel()
	if historyWorker != nil {
		if err := historyWorker.Stop(); err != nil {
			logger.Error("Error stopping history worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
