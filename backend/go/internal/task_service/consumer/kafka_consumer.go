package consumer

import (
	"context"
	"errors"

	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer is responsible for consuming task events from Kafka.
type EventConsumer struct {
	reader MessageReader
	logger *logger.Logger
}

// NewEventConsumer creates a new EventConsumer.
func NewEventConsumer(reader MessageReader, logger *logger.Logger) *EventConsumer {
	return &EventConsumer{reader: reader, logger: logger}
}

// Start consumes until ctx is cancelled. Handler errors are logged and the
// message is committed anyway; events are best-effort notifications.
func (c *EventConsumer) Start(ctx context.Context, handler func([]byte) error) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Stopping Kafka event consumer...")
				return
			}
			c.logger.WithError(models.NewErrorInfo(err)).Error("Error fetching message from Kafka")
			continue
		}

		if err := handler(msg.Value); err != nil {
			c.logger.WithError(models.NewErrorInfo(err)).WithPayload(map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Error handling Kafka message")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithError(models.NewErrorInfo(err)).Error("Failed to commit Kafka message")
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *EventConsumer) Close() error {
	return c.reader.Close()
}
