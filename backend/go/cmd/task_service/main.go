package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jaqpot/backend/go/internal/config"
	"jaqpot/backend/go/internal/database/kafka"
	"jaqpot/backend/go/internal/database/mongo"
	"jaqpot/backend/go/internal/database/redis"
	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/dispatcher/kafkaqueue"
	"jaqpot/backend/go/internal/dispatcher/redisqueue"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_service/api"
	"jaqpot/backend/go/internal/task_service/consumer"
	"jaqpot/backend/go/internal/task_service/service"
	"jaqpot/backend/go/internal/task_service/store"
	"jaqpot/backend/go/pkg/logger"
	"jaqpot/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultConfigPath = "backend/go/internal/config/config.yaml"

func main() {
	// Load configuration
	configPath := defaultConfigPath
	if p := os.Getenv("JAQPOT_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.InitFromString(cfg.Logger.Level)
	serviceLogger := logger.New("TaskService", "", "")

	// Connect to MongoDB using the singleton GetClient
	db, err := mongo.GetDatabase(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to connect to MongoDB")
	}
	serviceLogger.Info("Successfully connected to MongoDB")

	manager := entitymanager.New(db, entitymanager.DefaultRegistry(), entitymanager.NewBSONCodec())
	indexCtx, indexCancel := context.WithTimeout(context.Background(), config.Duration(cfg.TaskService.RequestTimeout))
	if err := manager.EnsureIndexes(indexCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Warn("Failed to ensure indexes")
	}
	indexCancel()

	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to connect to Kafka")
	}

	queue, err := newWorkQueue(cfg, kafkaClient)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to create work queue")
	}

	// Create components with logger injection
	taskStore, err := store.NewEntityTaskStore(manager)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to create task store")
	}
	notificationStore, err := store.NewEntityNotificationStore(manager)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to create notification store")
	}
	taskDispatcher := dispatcher.New(taskStore.Repository(), queue, serviceLogger,
		dispatcher.WithDelay(config.Duration(cfg.Queue.DeliveryDelay)))
	taskService := service.NewTaskService(taskStore, taskDispatcher, serviceLogger)
	notificationService := service.NewNotificationService(notificationStore, serviceLogger)
	connManager := service.NewConnectionManager()
	relay := service.NewEventRelay(connManager, serviceLogger)

	// Every replica reads the full event stream for its own websocket clients.
	eventGroup := cfg.TaskService.EventsGroupID + "-" + uuid.NewString()[:8]
	eventConsumer := consumer.NewEventConsumer(kafkaClient.NewTailReader(cfg.TaskService.EventsTopic, eventGroup), serviceLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go eventConsumer.Start(ctx, relay.HandleEvent)
	serviceLogger.Info("Kafka task event consumer started")

	var limiter *ratelimiter.KeyedLimiter
	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		limiter = ratelimiter.NewKeyedLimiter(rl.Rate, rl.Capacity)
		go pruneLimiter(ctx, limiter)
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiHandler := api.NewAPI(taskService, notificationService, connManager, cfg.TaskService.DefaultPageSize, serviceLogger)
	api.RegisterRoutes(router, apiHandler, cfg.Auth, limiter, serviceLogger)

	srv := &http.Server{
		Addr:    cfg.TaskService.ServerAddress,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Duration(cfg.TaskService.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Server forced to shutdown")
	}

	cancel()
	if err := queue.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing work queue")
	}
	if err := eventConsumer.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Kafka consumer")
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Kafka connection")
	}
	if cfg.Queue.Driver == "redis" {
		if err := redis.Close(); err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Redis client")
		}
	}
	if err := mongo.Close(shutdownCtx); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error disconnecting from MongoDB")
	}

	serviceLogger.Info("Server gracefully stopped")
}

func newWorkQueue(cfg *config.AppConfig, kafkaClient *kafka.KafkaClient) (dispatcher.MessageQueue, error) {
	if cfg.Queue.Driver == "redis" {
		rdb, err := redis.GetClient(context.Background(), &cfg.Databases.Redis)
		if err != nil {
			return nil, err
		}
		return redisqueue.New(rdb, cfg.Queue.Topic), nil
	}
	return kafkaqueue.New(kafkaClient.NewWriter(cfg.Queue.Topic)), nil
}

func pruneLimiter(ctx context.Context, limiter *ratelimiter.KeyedLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
