// Package kafkaqueue carries work messages over a Kafka topic. The delivery
// delay travels in a header and is honoured by Consumer.
package kafkaqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"jaqpot/backend/go/internal/dispatcher"

	"github.com/segmentio/kafka-go"
)

// HeaderDeliverAfter holds the unix-millisecond instant before which the
// message must not be handled.
const HeaderDeliverAfter = "deliver-after"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue implements dispatcher.MessageQueue.
type Queue struct {
	writer MessageWriter
}

func New(w MessageWriter) *Queue {
	return &Queue{writer: w}
}

func (q *Queue) Enqueue(ctx context.Context, msg dispatcher.WorkMessage) error {
	km, err := encode(msg)
	if err != nil {
		return err
	}
	if err := q.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.writer.Close()
}

func encode(msg dispatcher.WorkMessage) (kafka.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode work message: %w", err)
	}
	km := kafka.Message{
		Key:   []byte(msg.TaskID),
		Value: value,
	}
	if !msg.NotBefore.IsZero() {
		km.Headers = append(km.Headers, kafka.Header{
			Key:   HeaderDeliverAfter,
			Value: []byte(strconv.FormatInt(msg.NotBefore.UnixMilli(), 10)),
		})
	}
	return km, nil
}

func decode(km kafka.Message) (dispatcher.WorkMessage, error) {
	msg, err := dispatcher.Decode(km.Value)
	if err != nil {
		return msg, err
	}
	for _, h := range km.Headers {
		if h.Key != HeaderDeliverAfter {
			continue
		}
		ms, err := strconv.ParseInt(string(h.Value), 10, 64)
		if err != nil {
			return msg, fmt.Errorf("%w: bad %s header %q", dispatcher.ErrMalformed, HeaderDeliverAfter, h.Value)
		}
		msg.NotBefore = time.UnixMilli(ms).UTC()
	}
	return msg, nil
}
