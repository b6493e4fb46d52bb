package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jaqpot/backend/go/internal/config"
	"jaqpot/backend/go/internal/database/kafka"
	"jaqpot/backend/go/internal/database/mongo"
	"jaqpot/backend/go/internal/database/redis"
	"jaqpot/backend/go/internal/dispatcher/kafkaqueue"
	"jaqpot/backend/go/internal/dispatcher/redisqueue"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_worker/consumer"
	"jaqpot/backend/go/internal/task_worker/publisher"
	"jaqpot/backend/go/internal/task_worker/runner"
	"jaqpot/backend/go/internal/task_worker/service"
	"jaqpot/backend/go/internal/task_worker/store"
	jhttp "jaqpot/backend/go/pkg/http"
	"jaqpot/backend/go/pkg/logger"

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
	workerID := "worker-" + uuid.NewString()
	serviceLogger := logger.New("TaskWorker", "", "").WithField("worker_id", workerID)

	db, err := mongo.GetDatabase(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to connect to MongoDB")
	}
	serviceLogger.Info("Successfully connected to MongoDB")
	manager := entitymanager.New(db, entitymanager.DefaultRegistry(), entitymanager.NewBSONCodec())

	entityStore, err := store.NewEntityStore(manager)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to create entity store")
	}

	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to connect to Kafka")
	}
	events := publisher.NewKafkaEventPublisher(kafkaClient.NewWriter(cfg.TaskWorker.EventsTopic), serviceLogger)

	client, err := jhttp.NewClient(cfg.Middleware.CircuitBreaker, config.Duration(cfg.TaskWorker.TaskTimeout))
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to create compute client")
	}
	worker := service.NewWorker(
		entityStore, entityStore,
		runner.NewHTTPRunner(client, cfg.TaskWorker.ComputeEndpoint),
		events,
		service.Config{TaskTimeout: config.Duration(cfg.TaskWorker.TaskTimeout), WorkerID: workerID},
		serviceLogger)

	sources, closers, err := newSources(cfg, kafkaClient, serviceLogger)
	if err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Fatal("Failed to create work sources")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serviceLogger.WithField("concurrency", len(sources)).Info("Task worker started")
	if err := consumer.NewWorkConsumer(serviceLogger, sources...).Run(ctx, worker.Handle); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Work consumer stopped with error")
	}

	for _, c := range closers {
		if err := c(); err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing work source")
		}
	}
	if err := events.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing event publisher")
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Kafka connection")
	}
	if cfg.Queue.Driver == "redis" {
		if err := redis.Close(); err != nil {
			serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error closing Redis client")
		}
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.NewErrorInfo(err)).Error("Error disconnecting from MongoDB")
	}
	serviceLogger.Info("Task worker gracefully stopped")
}

// newSources creates one work source per unit of concurrency. Kafka readers
// share a consumer group and split partitions; redis consumers poll the same
// queue and claim messages atomically.
func newSources(cfg *config.AppConfig, kafkaClient *kafka.KafkaClient, log *logger.Logger) ([]consumer.Source, []func() error, error) {
	n := cfg.TaskWorker.Concurrency
	sources := make([]consumer.Source, 0, n)
	closers := make([]func() error, 0, n)

	if cfg.Queue.Driver == "redis" {
		rdb, err := redis.GetClient(context.Background(), &cfg.Databases.Redis)
		if err != nil {
			return nil, nil, err
		}
		q := redisqueue.New(rdb, cfg.Queue.Topic)
		for i := 0; i < n; i++ {
			sources = append(sources, redisqueue.NewConsumer(q, config.Duration(cfg.Queue.PollInterval), log))
		}
		return sources, append(closers, q.Close), nil
	}

	for i := 0; i < n; i++ {
		c := kafkaqueue.NewConsumer(kafkaClient.NewReader(cfg.Queue.Topic, cfg.TaskWorker.GroupID), log)
		sources = append(sources, c)
		closers = append(closers, c.Close)
	}
	return sources, closers, nil
}
