package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakeTaskStore struct {
	getFn   func(ctx context.Context, id string) (*models.Task, error)
	listFn  func(ctx context.Context, owner string, status models.TaskStatus, offset, limit int) ([]*models.Task, error)
	countFn func(ctx context.Context, owner string, status models.TaskStatus) (int64, error)
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return f.getFn(ctx, id)
}

func (f *fakeTaskStore) ListByOwner(ctx context.Context, owner string, status models.TaskStatus, offset, limit int) ([]*models.Task, error) {
	return f.listFn(ctx, owner, status, offset, limit)
}

func (f *fakeTaskStore) CountByOwner(ctx context.Context, owner string, status models.TaskStatus) (int64, error) {
	return f.countFn(ctx, owner, status)
}

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, task *models.Task, params dispatcher.Params) (dispatcher.WorkMessage, error)
	task       *models.Task
	params     dispatcher.Params
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, task *models.Task, params dispatcher.Params) (dispatcher.WorkMessage, error) {
	f.task, f.params = task, params
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, task, params)
	}
	return dispatcher.WorkMessage{TaskID: task.ID}, nil
}

func newTaskService(store *fakeTaskStore, d *fakeDispatcher) *TaskService {
	if store == nil {
		store = &fakeTaskStore{}
	}
	return NewTaskService(store, d, logger.NewWithOutput("test", io.Discard))
}

func TestGetTaskChecksOwner(t *testing.T) {
	stored := models.NewTask("T1", models.TaskTypeValidation, "alice")
	s := newTaskService(&fakeTaskStore{getFn: func(context.Context, string) (*models.Task, error) { return stored, nil }}, nil)

	got, err := s.GetTask(context.Background(), "T1", "alice")
	require.NoError(t, err)
	require.Equal(t, stored, got)

	_, err = s.GetTask(context.Background(), "T1", "mallory")
	require.ErrorIs(t, err, entitymanager.ErrNotFound)
}

func TestListTasksReturnsTotal(t *testing.T) {
	s := newTaskService(&fakeTaskStore{
		listFn: func(_ context.Context, owner string, status models.TaskStatus, offset, limit int) ([]*models.Task, error) {
			require.Equal(t, "alice", owner)
			require.Equal(t, models.TaskStatusRunning, status)
			require.Equal(t, 5, offset)
			require.Equal(t, 10, limit)
			return []*models.Task{models.NewTask("T1", models.TaskTypeValidation, "alice")}, nil
		},
		countFn: func(context.Context, string, models.TaskStatus) (int64, error) { return 42, nil },
	}, nil)

	tasks, total, err := s.ListTasks(context.Background(), "alice", models.TaskStatusRunning, 5, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.EqualValues(t, 42, total)

	_, _, err = s.ListTasks(context.Background(), "alice", "DONE", 0, 10)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitSplitBuildsQueuedTask(t *testing.T) {
	d := &fakeDispatcher{}
	s := newTaskService(nil, d)

	task, err := s.SubmitSplit(context.Background(), "alice", SplitValidation{
		TrainingValidation: TrainingValidation{
			AlgorithmURI:       "http://algo/mlr",
			TrainingDatasetURI: "http://data/corona",
			PredictionFeature:  "http://feature/tox",
		},
		SplitRatio: 0.3,
	})
	require.NoError(t, err)

	require.Len(t, task.ID, 12)
	require.Equal(t, models.TaskStatusQueued, task.Status)
	require.Equal(t, models.TaskTypeValidation, task.Type)
	require.Equal(t, 202, task.HTTPStatus)
	require.True(t, task.Visible)
	require.Nil(t, task.PercentageCompleted)
	require.Equal(t, "alice", task.CreatedBy)
	require.Equal(t, []string{"Validation on algorithm: http://algo/mlr"}, task.Meta.Titles)
	require.Equal(t, []string{"Validation task created"}, task.Meta.Comments)
	require.Equal(t, []string{"alice"}, task.Meta.Creators)
	require.False(t, task.Meta.Date.IsZero())

	require.Same(t, task, d.task)
	require.Equal(t, dispatcher.Params{
		"type":               "SPLIT",
		"algorithm_uri":      "http://algo/mlr",
		"dataset_uri":        "http://data/corona",
		"prediction_feature": "http://feature/tox",
		"subjectId":          "alice",
		"split_ratio":        0.3,
	}, d.params)
}

func TestSubmitCrossAndExternal(t *testing.T) {
	d := &fakeDispatcher{}
	s := newTaskService(nil, d)
	seed := 7

	_, err := s.SubmitCross(context.Background(), "alice", CrossValidation{
		TrainingValidation: TrainingValidation{
			AlgorithmURI:       "http://algo/mlr",
			TrainingDatasetURI: "http://data/corona",
			PredictionFeature:  "http://feature/tox",
			Scaling:            "http://algo/scaling",
		},
		Folds:    10,
		Stratify: "normal",
		Seed:     &seed,
	})
	require.NoError(t, err)
	require.Equal(t, "CROSS", d.params["type"])
	require.Equal(t, 10, d.params["folds"])
	require.Equal(t, 7, d.params["seed"])
	require.Equal(t, "http://algo/scaling", d.params["scaling"])
	require.NotContains(t, d.params, "transformations")

	task, err := s.SubmitExternal(context.Background(), "alice", ExternalValidation{ModelURI: "http://model/1", TestDatasetURI: "http://data/test"})
	require.NoError(t, err)
	require.Equal(t, "EXTERNAL", d.params["type"])
	require.Equal(t, "http://model/1", d.params["model_uri"])
	require.Equal(t, []string{"Validation on model: http://model/1"}, task.Meta.Titles)
}

func TestSubmitValidatesInput(t *testing.T) {
	s := newTaskService(nil, &fakeDispatcher{})
	ctx := context.Background()
	base := TrainingValidation{AlgorithmURI: "a", TrainingDatasetURI: "d", PredictionFeature: "f"}

	_, err := s.SubmitExternal(ctx, "alice", ExternalValidation{ModelURI: "m"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.ErrorContains(t, err, "test_dataset_uri")

	_, err = s.SubmitCross(ctx, "alice", CrossValidation{TrainingValidation: base, Folds: 1})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.SubmitSplit(ctx, "alice", SplitValidation{TrainingValidation: base, SplitRatio: 1})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.SubmitSplit(ctx, "alice", SplitValidation{SplitRatio: 0.5})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSubmitPropagatesDispatchError(t *testing.T) {
	boom := errors.New("broker down")
	s := newTaskService(nil, &fakeDispatcher{dispatchFn: func(context.Context, *models.Task, dispatcher.Params) (dispatcher.WorkMessage, error) {
		return dispatcher.WorkMessage{}, boom
	}})

	_, err := s.SubmitExternal(context.Background(), "alice", ExternalValidation{ModelURI: "m", TestDatasetURI: "d"})
	require.ErrorIs(t, err, boom)
}
