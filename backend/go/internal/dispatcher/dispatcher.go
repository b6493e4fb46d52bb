package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"
)

// DefaultDeliveryDelay gives the persisted task time to become visible
// before a worker can observe the message.
const DefaultDeliveryDelay = time.Second

// MessageQueue is the broker boundary.
type MessageQueue interface {
	Enqueue(ctx context.Context, msg WorkMessage) error
	Close() error
}

// Handler processes one delivered work message.
type Handler func(ctx context.Context, msg WorkMessage) error

// TaskStore is the slice of the task repository the dispatcher needs.
type TaskStore interface {
	Persist(ctx context.Context, task *models.Task) error
	RemoveByID(ctx context.Context, id string) (bool, error)
}

// Dispatcher persists tasks and hands their ids to the work queue.
type Dispatcher struct {
	store TaskStore
	queue MessageQueue
	delay time.Duration
	now   func() time.Time
	log   *logger.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDelay overrides DefaultDeliveryDelay. Negative values are treated as zero.
func WithDelay(d time.Duration) Option {
	return func(ds *Dispatcher) {
		if d < 0 {
			d = 0
		}
		ds.delay = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ds *Dispatcher) { ds.now = now }
}

func New(store TaskStore, queue MessageQueue, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store: store,
		queue: queue,
		delay: DefaultDeliveryDelay,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch persists task and enqueues a work message for it. params must
// carry a "type" discriminator. If the enqueue fails the task is removed
// again so no QUEUED record is left without a message.
func (d *Dispatcher) Dispatch(ctx context.Context, task *models.Task, params Params) (WorkMessage, error) {
	msg, err := d.buildMessage(task, params)
	if err != nil {
		return WorkMessage{}, err
	}

	if err := d.store.Persist(ctx, task); err != nil {
		return WorkMessage{}, fmt.Errorf("persist task %s: %w", task.ID, err)
	}

	if err := d.queue.Enqueue(ctx, msg); err != nil {
		enqueueErr := fmt.Errorf("enqueue task %s: %w", task.ID, err)
		if _, rmErr := d.store.RemoveByID(context.WithoutCancel(ctx), task.ID); rmErr != nil {
			d.log.WithError(models.NewErrorInfo(rmErr)).
				WithField("task_id", task.ID).
				Error("failed to remove task after enqueue failure")
			return WorkMessage{}, errors.Join(enqueueErr, rmErr)
		}
		return WorkMessage{}, enqueueErr
	}

	d.log.WithPayload(map[string]interface{}{
		"task_id":    msg.TaskID,
		"type":       msg.Type,
		"not_before": msg.NotBefore,
	}).Info("task dispatched")
	return msg, nil
}

func (d *Dispatcher) buildMessage(task *models.Task, params Params) (WorkMessage, error) {
	if task == nil || task.ID == "" {
		return WorkMessage{}, fmt.Errorf("%w: task has no id", ErrInvalidParams)
	}
	if task.Status != models.TaskStatusQueued {
		return WorkMessage{}, fmt.Errorf("%w: task %s is %s", ErrTaskNotQueued, task.ID, task.Status)
	}
	var typ WorkType
	switch v := params[keyType].(type) {
	case string:
		typ = WorkType(v)
	case WorkType:
		typ = v
	}
	if !typ.Valid() {
		return WorkMessage{}, fmt.Errorf("%w: %v", ErrMissingType, params[keyType])
	}

	rest := make(Params, len(params))
	for k, v := range params {
		if k == keyType || k == keyTaskID {
			continue
		}
		rest[k] = v
	}
	if err := rest.Validate(); err != nil {
		return WorkMessage{}, err
	}
	return WorkMessage{
		TaskID:    task.ID,
		Type:      typ,
		Params:    rest,
		NotBefore: d.now().Add(d.delay),
	}, nil
}
