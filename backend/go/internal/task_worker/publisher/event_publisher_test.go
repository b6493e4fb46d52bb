package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	err     error
	written []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishKeysByTaskID(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaEventPublisher(w, logger.NewWithOutput("test", io.Discard))

	task := models.NewTask("T1", models.TaskTypeValidation, "alice")
	require.NoError(t, task.Start())
	require.NoError(t, p.Publish(context.Background(), models.NewTaskEvent(task, "started")))

	require.Len(t, w.written, 1)
	require.Equal(t, "T1", string(w.written[0].Key))

	var event models.TaskEvent
	require.NoError(t, json.Unmarshal(w.written[0].Value, &event))
	require.Equal(t, models.TaskStatusRunning, event.Status)
	require.Equal(t, "alice", event.Owner)
	require.NotNil(t, event.PercentageCompleted)
	require.Zero(t, *event.PercentageCompleted)
}

func TestPublishReturnsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaEventPublisher(&fakeWriter{err: boom}, logger.NewWithOutput("test", io.Discard))

	err := p.Publish(context.Background(), models.TaskEvent{TaskID: "T1"})
	require.ErrorIs(t, err, boom)
}
