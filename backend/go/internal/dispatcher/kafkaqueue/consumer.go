package kafkaqueue

import (
	"context"
	"errors"
	"time"

	"jaqpot/backend/go/internal/dispatcher"
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

// Consumer reads work messages and hands them to a dispatcher.Handler once
// their delivery delay has elapsed.
type Consumer struct {
	reader  MessageReader
	log     *logger.Logger
	now     func() time.Time
	backoff func(attempt int) time.Duration
}

func NewConsumer(r MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, log: log, now: time.Now, backoff: dispatcher.RetryDelay}
}

// Start blocks until ctx is cancelled or the reader fails. A message is
// committed once the handler has returned nil or a non-retryable error; a
// retryable error is retried in place with backoff and the offset stays
// uncommitted until then. A malformed message is committed and dropped.
func (c *Consumer) Start(ctx context.Context, handle dispatcher.Handler) error {
	c.log.Info("work consumer started")
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("work consumer stopping")
				return nil
			}
			c.log.WithError(models.NewErrorInfo(err)).Error("failed to fetch work message")
			return err
		}

		msg, err := decode(km)
		if err != nil {
			c.log.WithError(models.NewErrorInfo(err)).
				WithField("offset", km.Offset).
				Warn("dropping malformed work message")
			c.commit(ctx, km)
			continue
		}

		if err := c.waitUntil(ctx, msg.NotBefore); err != nil {
			// Not committed: the group redelivers it after restart.
			return nil
		}

		if err := c.handle(ctx, handle, msg); err != nil {
			// Not committed: the group redelivers it after restart.
			return nil
		}
		c.commit(ctx, km)
	}
}

// handle runs the handler until it stops returning retryable errors. It
// returns an error only when ctx ends first.
func (c *Consumer) handle(ctx context.Context, handle dispatcher.Handler, msg dispatcher.WorkMessage) error {
	for attempt := 1; ; attempt++ {
		err := handle(ctx, msg)
		if err == nil {
			return nil
		}
		if !dispatcher.Retryable(err) {
			c.log.WithError(models.NewErrorInfo(err)).
				WithField("task_id", msg.TaskID).
				Error("work handler failed")
			return nil
		}
		delay := c.backoff(attempt)
		c.log.WithError(models.NewErrorInfo(err)).
			WithPayload(map[string]interface{}{"task_id": msg.TaskID, "attempt": attempt, "retry_in": delay.String()}).
			Warn("work handler failed, retrying")
		if err := c.waitUntil(ctx, c.now().Add(delay)); err != nil {
			return err
		}
	}
}

func (c *Consumer) waitUntil(ctx context.Context, at time.Time) error {
	wait := at.Sub(c.now())
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Consumer) commit(ctx context.Context, km kafka.Message) {
	if err := c.reader.CommitMessages(context.WithoutCancel(ctx), km); err != nil {
		c.log.WithError(models.NewErrorInfo(err)).
			WithField("offset", km.Offset).
			Error("failed to commit work message")
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
