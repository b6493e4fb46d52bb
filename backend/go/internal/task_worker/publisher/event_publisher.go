package publisher

import (
	"context"
	"encoding/json"

	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// EventPublisher announces task state changes.
type EventPublisher interface {
	Publish(ctx context.Context, event models.TaskEvent) error
	Close() error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher is responsible for publishing task events to Kafka.
// Events are keyed by task id so one task's events stay ordered.
type KafkaEventPublisher struct {
	writer MessageWriter
	logger *logger.Logger
}

// NewKafkaEventPublisher creates a new KafkaEventPublisher.
func NewKafkaEventPublisher(writer MessageWriter, logger *logger.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer, logger: logger}
}

// Publish sends a task event to the Kafka topic.
func (p *KafkaEventPublisher) Publish(ctx context.Context, event models.TaskEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(models.NewErrorInfo(err)).Error("Failed to marshal task event for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.NewErrorInfo(err)).
			WithPayload(map[string]interface{}{"task_id": event.TaskID, "status": event.Status}).
			Error("Failed to write task event to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
