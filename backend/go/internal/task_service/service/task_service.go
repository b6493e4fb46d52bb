package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/idgen"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_service/store"
	"jaqpot/backend/go/pkg/logger"
)

// ErrInvalidRequest is returned when submitted parameters are incomplete or out of range.
var ErrInvalidRequest = errors.New("invalid request")

// TaskDispatcher hands a new task to the worker queue.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task *models.Task, params dispatcher.Params) (dispatcher.WorkMessage, error)
}

// ExternalValidation validates an existing model against a test dataset.
type ExternalValidation struct {
	ModelURI       string `json:"model_uri" form:"model_uri"`
	TestDatasetURI string `json:"test_dataset_uri" form:"test_dataset_uri"`
	BaseURI        string `json:"-" form:"-"`
}

// TrainingValidation holds the parameters shared by cross and split validation.
type TrainingValidation struct {
	AlgorithmURI       string `json:"algorithm_uri" form:"algorithm_uri"`
	TrainingDatasetURI string `json:"training_dataset_uri" form:"training_dataset_uri"`
	AlgorithmParams    string `json:"algorithm_params" form:"algorithm_params"`
	PredictionFeature  string `json:"prediction_feature" form:"prediction_feature"`
	Transformations    string `json:"transformations" form:"transformations"`
	Scaling            string `json:"scaling" form:"scaling"`
}

// CrossValidation is k-fold cross validation of an algorithm.
type CrossValidation struct {
	TrainingValidation
	Folds    int    `json:"folds" form:"folds"`
	Stratify string `json:"stratify" form:"stratify"`
	Seed     *int   `json:"seed" form:"seed"`
}

// SplitValidation trains on a fraction of the dataset and tests on the rest.
type SplitValidation struct {
	TrainingValidation
	SplitRatio float64 `json:"split_ratio" form:"split_ratio"`
}

// TaskService provides task polling, listing and validation submission.
type TaskService struct {
	store      store.TaskStore
	dispatcher TaskDispatcher
	ids        *idgen.Generator
	logger     *logger.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(store store.TaskStore, dispatcher TaskDispatcher, logger *logger.Logger) *TaskService {
	return &TaskService{
		store:      store,
		dispatcher: dispatcher,
		ids:        idgen.MustNew(idgen.DefaultLength),
		logger:     logger,
	}
}

// GetTask returns the task if principal owns it. Tasks of other users are
// reported as not found.
func (s *TaskService) GetTask(ctx context.Context, id, principal string) (*models.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, entitymanager.ErrNotFound) {
			s.logger.WithError(models.NewErrorInfo(err)).WithPayload(map[string]interface{}{"taskID": id}).Error("Failed to get task by ID from store")
		}
		return nil, err
	}
	if task.CreatedBy != principal {
		s.logger.WithPayload(map[string]interface{}{"taskID": id, "requestingUserID": principal}).Warn("User attempted to access unauthorized task")
		return nil, fmt.Errorf("%w: task %q", entitymanager.ErrNotFound, id)
	}
	return task, nil
}

// ListTasks returns one page of the principal's visible tasks and the total count.
func (s *TaskService) ListTasks(ctx context.Context, principal string, status models.TaskStatus, start, limit int) ([]*models.Task, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	tasks, err := s.store.ListByOwner(ctx, principal, status, start, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountByOwner(ctx, principal, status)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// SubmitExternal creates an EXTERNAL validation task.
func (s *TaskService) SubmitExternal(ctx context.Context, principal string, req ExternalValidation) (*models.Task, error) {
	if err := required(map[string]string{"model_uri": req.ModelURI, "test_dataset_uri": req.TestDatasetURI}); err != nil {
		return nil, err
	}
	task := s.newValidationTask(principal,
		"Validation on model: "+req.ModelURI,
		"Validation task using model "+req.ModelURI+" and dataset "+req.TestDatasetURI)

	params := dispatcher.Params{
		"type":        string(dispatcher.WorkExternal),
		"model_uri":   req.ModelURI,
		"dataset_uri": req.TestDatasetURI,
		"subjectId":   principal,
	}
	if req.BaseURI != "" {
		params["base_uri"] = req.BaseURI
	}
	return s.submit(ctx, task, params)
}

// SubmitCross creates a CROSS validation task.
func (s *TaskService) SubmitCross(ctx context.Context, principal string, req CrossValidation) (*models.Task, error) {
	if err := req.TrainingValidation.validate(); err != nil {
		return nil, err
	}
	if req.Folds < 2 {
		return nil, fmt.Errorf("%w: folds must be at least 2", ErrInvalidRequest)
	}
	task := s.newValidationTask(principal,
		"Validation on algorithm: "+req.AlgorithmURI,
		"Validation task using algorithm "+req.AlgorithmURI+" and dataset "+req.TrainingDatasetURI)

	params := req.TrainingValidation.params(dispatcher.WorkCross, principal)
	params["folds"] = req.Folds
	if req.Stratify != "" {
		params["stratify"] = req.Stratify
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	return s.submit(ctx, task, params)
}

// SubmitSplit creates a SPLIT validation task.
func (s *TaskService) SubmitSplit(ctx context.Context, principal string, req SplitValidation) (*models.Task, error) {
	if err := req.TrainingValidation.validate(); err != nil {
		return nil, err
	}
	if req.SplitRatio <= 0 || req.SplitRatio >= 1 {
		return nil, fmt.Errorf("%w: split_ratio must be in (0, 1)", ErrInvalidRequest)
	}
	task := s.newValidationTask(principal,
		"Validation on algorithm: "+req.AlgorithmURI,
		"Validation task using algorithm "+req.AlgorithmURI+" and dataset "+req.TrainingDatasetURI)

	params := req.TrainingValidation.params(dispatcher.WorkSplit, principal)
	params["split_ratio"] = req.SplitRatio
	return s.submit(ctx, task, params)
}

func (s *TaskService) newValidationTask(principal, title, description string) *models.Task {
	task := models.NewTask(s.ids.Next(), models.TaskTypeValidation, principal)
	task.Meta = models.NewMetaInfoBuilder().
		SetCurrentDate().
		AddTitles(title).
		AddComments("Validation task created").
		AddDescriptions(description).
		AddCreators(principal).
		Build()
	return task
}

func (s *TaskService) submit(ctx context.Context, task *models.Task, params dispatcher.Params) (*models.Task, error) {
	if _, err := s.dispatcher.Dispatch(ctx, task, params); err != nil {
		s.logger.WithError(models.NewErrorInfo(err)).WithPayload(map[string]interface{}{"taskID": task.ID}).Error("Failed to dispatch task")
		return nil, err
	}
	return task, nil
}

func (v TrainingValidation) validate() error {
	return required(map[string]string{
		"algorithm_uri":        v.AlgorithmURI,
		"training_dataset_uri": v.TrainingDatasetURI,
		"prediction_feature":   v.PredictionFeature,
	})
}

func (v TrainingValidation) params(typ dispatcher.WorkType, principal string) dispatcher.Params {
	p := dispatcher.Params{
		"type":               string(typ),
		"algorithm_uri":      v.AlgorithmURI,
		"dataset_uri":        v.TrainingDatasetURI,
		"prediction_feature": v.PredictionFeature,
		"subjectId":          principal,
	}
	for k, val := range map[string]string{
		"algorithm_params": v.AlgorithmParams,
		"transformations":  v.Transformations,
		"scaling":          v.Scaling,
	} {
		if val != "" {
			p[k] = val
		}
	}
	return p
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
}
