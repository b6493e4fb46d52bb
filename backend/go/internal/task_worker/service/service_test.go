package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_worker/runner"
	"jaqpot/backend/go/pkg/logger"

	"github.com/stretchr/testify/require"
)

// memStore keeps copies of tasks and applies the terminal guard the way the
// entity store does.
type memStore struct {
	mu            sync.Mutex
	tasks         map[string]models.Task
	history       []models.Task
	reports       []*models.ErrorReport
	notifications []*models.Notification
	getErr        error
	// stale, when set, is returned by Get instead of the stored record.
	stale *models.Task
}

func newMemStore(tasks ...*models.Task) *memStore {
	s := &memStore{tasks: map[string]models.Task{}}
	for _, t := range tasks {
		s.tasks[t.ID] = *t
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.stale != nil && s.stale.ID == id {
		cp := *s.stale
		return &cp, nil
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, entitymanager.ErrNotFound
	}
	return &t, nil
}

func (s *memStore) Claim(_ context.Context, task *models.Task) error {
	return s.merge(task, func(stored models.Task) bool { return stored.Status == models.TaskStatusQueued })
}

func (s *memStore) Save(_ context.Context, task *models.Task) error {
	return s.merge(task, func(stored models.Task) bool { return !stored.Status.IsTerminal() })
}

func (s *memStore) merge(task *models.Task, guard func(models.Task) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[task.ID]
	if !ok {
		return entitymanager.ErrNotFound
	}
	if !guard(stored) {
		return entitymanager.ErrPreconditionFailed
	}
	cp := *task
	if task.PercentageCompleted != nil {
		pct := *task.PercentageCompleted
		cp.PercentageCompleted = &pct
	}
	s.tasks[task.ID] = cp
	s.history = append(s.history, cp)
	return nil
}

func (s *memStore) SaveErrorReport(_ context.Context, r *models.ErrorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *memStore) SaveNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

type fakeRunner struct {
	runFn func(ctx context.Context, task *models.Task, msg dispatcher.WorkMessage, progress runner.ProgressFunc) (runner.Outcome, error)
}

func (f *fakeRunner) Run(ctx context.Context, task *models.Task, msg dispatcher.WorkMessage, progress runner.ProgressFunc) (runner.Outcome, error) {
	return f.runFn(ctx, task, msg, progress)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.TaskEvent
}

func (f *fakeEvents) Publish(_ context.Context, e models.TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEvents) Close() error { return nil }

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func newTestWorker(s *memStore, r runner.Runner, events *fakeEvents, cfg Config) *Worker {
	w := NewWorker(s, s, r, events, cfg, logger.NewWithOutput("test", io.Discard))
	w.now = steppingClock(842 * time.Millisecond)
	return w
}

func TestHandleSplitScenario(t *testing.T) {
	task := models.NewTask("T1", models.TaskTypeValidation, "alice")
	s := newMemStore(task)
	events := &fakeEvents{}

	r := &fakeRunner{runFn: func(ctx context.Context, task *models.Task, msg dispatcher.WorkMessage, progress runner.ProgressFunc) (runner.Outcome, error) {
		ratio, ok := msg.Params.Float("split_ratio")
		if !ok || ratio != 0.3 {
			return runner.Outcome{}, errors.New("missing split_ratio")
		}
		if err := progress(ctx, 10); err != nil {
			return runner.Outcome{}, err
		}
		return runner.Outcome{Result: "report/R1"}, nil
	}}

	w := newTestWorker(s, r, events, Config{WorkerID: "worker-1"})
	msg := dispatcher.WorkMessage{TaskID: "T1", Type: dispatcher.WorkSplit, Params: dispatcher.Params{"split_ratio": 0.3}}
	require.NoError(t, w.Handle(context.Background(), msg))

	require.Len(t, s.history, 3)
	require.Equal(t, models.TaskStatusRunning, s.history[0].Status)
	require.Equal(t, 0.0, *s.history[0].PercentageCompleted)
	require.Equal(t, models.TaskStatusRunning, s.history[1].Status)
	require.Equal(t, 10.0, *s.history[1].PercentageCompleted)

	final, err := s.Get(context.Background(), "T1")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, final.Status)
	require.Equal(t, 100.0, *final.PercentageCompleted)
	require.Equal(t, int64(842), *final.Duration)
	require.Equal(t, http.StatusOK, final.HTTPStatus)
	require.Equal(t, "report/R1", final.Result)

	require.Len(t, events.events, 3)
	require.Equal(t, models.TaskStatusCompleted, events.events[2].Status)

	require.Len(t, s.notifications, 1)
	n := s.notifications[0]
	require.Equal(t, "alice", n.Owner)
	require.Equal(t, models.NotificationTypeTaskCompleted, n.Type)
	require.Equal(t, "T1", n.Resolution)
	require.True(t, strings.HasPrefix(n.ID, models.NotificationIDPrefix))
	require.Len(t, n.ID, len(models.NotificationIDPrefix)+24)

	// A redelivered message must not touch the terminal record.
	require.NoError(t, w.Handle(context.Background(), msg))
	require.Len(t, s.history, 3)
}

func TestHandleFailurePersistsErrorReport(t *testing.T) {
	s := newMemStore(models.NewTask("T2", models.TaskTypeValidation, "alice"))
	r := &fakeRunner{runFn: func(ctx context.Context, _ *models.Task, _ dispatcher.WorkMessage, progress runner.ProgressFunc) (runner.Outcome, error) {
		if err := progress(ctx, 40); err != nil {
			return runner.Outcome{}, err
		}
		return runner.Outcome{}, &runner.Failure{Code: "ComputeFailed", Message: "bad dataset", HTTPStatus: http.StatusBadRequest}
	}}

	w := newTestWorker(s, r, &fakeEvents{}, Config{WorkerID: "worker-1"})
	require.NoError(t, w.Handle(context.Background(), dispatcher.WorkMessage{TaskID: "T2", Type: dispatcher.WorkCross}))

	final, _ := s.Get(context.Background(), "T2")
	require.Equal(t, models.TaskStatusError, final.Status)
	require.Equal(t, http.StatusBadRequest, final.HTTPStatus)
	require.Equal(t, 40.0, *final.PercentageCompleted, "percentage is frozen on failure")
	require.NotNil(t, final.Duration)

	require.Len(t, s.reports, 1)
	require.Equal(t, s.reports[0].ID, final.ErrorReport)
	require.Equal(t, "ComputeFailed", s.reports[0].Code)
	require.Equal(t, "worker-1", s.reports[0].Actor)

	require.Len(t, s.notifications, 1)
	require.Equal(t, models.NotificationTypeTaskFailed, s.notifications[0].Type)
}

func TestHandleUnexpectedErrorDefaultsTo500(t *testing.T) {
	s := newMemStore(models.NewTask("T3", models.TaskTypeTraining, "alice"))
	r := &fakeRunner{runFn: func(context.Context, *models.Task, dispatcher.WorkMessage, runner.ProgressFunc) (runner.Outcome, error) {
		return runner.Outcome{}, errors.New("segfault in solver")
	}}

	w := newTestWorker(s, r, &fakeEvents{}, Config{})
	require.NoError(t, w.Handle(context.Background(), dispatcher.WorkMessage{TaskID: "T3", Type: dispatcher.WorkTrain}))

	final, _ := s.Get(context.Background(), "T3")
	require.Equal(t, models.TaskStatusError, final.Status)
	require.Equal(t, http.StatusInternalServerError, final.HTTPStatus)
	require.Equal(t, "InternalError", s.reports[0].Code)
}

func TestHandleTimeoutCancelsTask(t *testing.T) {
	s := newMemStore(models.NewTask("T4", models.TaskTypeTraining, "alice"))
	r := &fakeRunner{runFn: func(ctx context.Context, _ *models.Task, _ dispatcher.WorkMessage, progress runner.ProgressFunc) (runner.Outcome, error) {
		if err := progress(ctx, 20); err != nil {
			return runner.Outcome{}, err
		}
		<-ctx.Done()
		return runner.Outcome{}, progress(ctx, 50)
	}}

	w := newTestWorker(s, r, &fakeEvents{}, Config{TaskTimeout: 20 * time.Millisecond})
	require.NoError(t, w.Handle(context.Background(), dispatcher.WorkMessage{TaskID: "T4", Type: dispatcher.WorkTrain}))

	final, _ := s.Get(context.Background(), "T4")
	require.Equal(t, models.TaskStatusCancelled, final.Status)
	require.Equal(t, 20.0, *final.PercentageCompleted)
	require.Equal(t, http.StatusOK, final.HTTPStatus)
	require.Empty(t, s.reports)
}

func TestHandleShutdownCancelsTask(t *testing.T) {
	s := newMemStore(models.NewTask("T5", models.TaskTypeTraining, "alice"))
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRunner{runFn: func(ctx context.Context, _ *models.Task, _ dispatcher.WorkMessage, _ runner.ProgressFunc) (runner.Outcome, error) {
		cancel()
		return runner.Outcome{}, ctx.Err()
	}}

	w := newTestWorker(s, r, &fakeEvents{}, Config{})
	require.NoError(t, w.Handle(ctx, dispatcher.WorkMessage{TaskID: "T5", Type: dispatcher.WorkTrain}))

	final, _ := s.Get(context.Background(), "T5")
	require.Equal(t, models.TaskStatusCancelled, final.Status)
}

func TestHandleSkips(t *testing.T) {
	running := models.NewTask("T6", models.TaskTypeTraining, "alice")
	require.NoError(t, running.Start())
	done := models.NewTask("T7", models.TaskTypeTraining, "alice")
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete(1, ""))

	s := newMemStore(running, done)
	r := &fakeRunner{runFn: func(context.Context, *models.Task, dispatcher.WorkMessage, runner.ProgressFunc) (runner.Outcome, error) {
		t.Error("runner must not be invoked")
		return runner.Outcome{}, nil
	}}
	w := newTestWorker(s, r, &fakeEvents{}, Config{})

	for _, id := range []string{"missing", "T6", "T7"} {
		require.NoError(t, w.Handle(context.Background(), dispatcher.WorkMessage{TaskID: id, Type: dispatcher.WorkTrain}))
	}
	require.Empty(t, s.history)
	require.Empty(t, s.notifications)
}

func TestHandleStoreFailureIsReturned(t *testing.T) {
	s := newMemStore()
	s.getErr = entitymanager.ErrStoreUnavailable
	w := newTestWorker(s, &fakeRunner{}, &fakeEvents{}, Config{})

	err := w.Handle(context.Background(), dispatcher.WorkMessage{TaskID: "T8", Type: dispatcher.WorkTrain})
	require.ErrorIs(t, err, entitymanager.ErrStoreUnavailable)
}

func TestHandleDuplicateDeliveryDoesNotReclaim(t *testing.T) {
	claimed := models.NewTask("T9", models.TaskTypeValidation, "alice")
	require.NoError(t, claimed.Start())
	require.NoError(t, claimed.UpdateProgress(40))

	s := newMemStore(claimed)
	// The second delivery read the record before the first worker claimed it.
	s.stale = models.NewTask("T9", models.TaskTypeValidation, "alice")

	r := &fakeRunner{runFn: func(context.Context, *models.Task, dispatcher.WorkMessage, runner.ProgressFunc) (runner.Outcome, error) {
		t.Error("runner must not be invoked for a task claimed elsewhere")
		return runner.Outcome{}, nil
	}}
	events := &fakeEvents{}
	w := newTestWorker(s, r, events, Config{})

	require.NoError(t, w.Handle(context.Background(), dispatcher.WorkMessage{TaskID: "T9", Type: dispatcher.WorkSplit}))
	require.Empty(t, s.history)
	require.Empty(t, events.events)

	s.stale = nil
	stored, err := s.Get(context.Background(), "T9")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusRunning, stored.Status)
	require.Equal(t, 40.0, *stored.PercentageCompleted)
}
