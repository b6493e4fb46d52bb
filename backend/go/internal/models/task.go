package models

import (
	"errors"
	"fmt"
	"net/http"
)

// TaskStatus 定义了任务的状态。
// QUEUED → RUNNING → {COMPLETED | ERROR | CANCELLED}，终止状态不可再迁移。
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "QUEUED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusError     TaskStatus = "ERROR"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// TerminalTaskStatuses 列出所有终止状态。
var TerminalTaskStatuses = []TaskStatus{TaskStatusCompleted, TaskStatusError, TaskStatusCancelled}

// Valid 判断状态是否为已知的取值。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusError, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal 判断状态是否为终止状态。
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError || s == TaskStatusCancelled
}

// CanTransitionTo 判断从当前状态是否可以迁移到 next。
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusError || next == TaskStatusCancelled
	}
	return false
}

// TaskType 定义了任务所请求的工作类型。
type TaskType string

const (
	TaskTypeTraining    TaskType = "TRAINING"
	TaskTypePrediction  TaskType = "PREDICTION"
	TaskTypeValidation  TaskType = "VALIDATION"
	TaskTypePreparation TaskType = "PREPARATION"
)

const (
	// MinTaskProgress 和 MaxTaskProgress 定义 PercentageCompleted 的取值范围（百分制）。
	MinTaskProgress = 0.0
	MaxTaskProgress = 100.0
)

var (
	ErrInvalidTransition  = errors.New("invalid task status transition")
	ErrTaskTerminal       = errors.New("task is in a terminal state")
	ErrProgressRegression = errors.New("task progress cannot decrease")
	ErrProgressOutOfRange = errors.New("task progress out of range")
)

// Task 代表一个异步执行的长任务。
type Task struct {
	ID                  string     `bson:"_id" json:"_id"`
	Type                TaskType   `bson:"type,omitempty" json:"type,omitempty"`
	Status              TaskStatus `bson:"status" json:"status"`
	HTTPStatus          int        `bson:"httpStatus" json:"httpStatus"`
	PercentageCompleted *float64   `bson:"percentageCompleted,omitempty" json:"percentageCompleted,omitempty"` // 百分制，任务开始前为空
	Duration            *int64     `bson:"duration,omitempty" json:"duration,omitempty"`                       // 毫秒，终止时写入一次
	Visible             bool       `bson:"visible" json:"visible"`
	CreatedBy           string     `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	Result              string     `bson:"result,omitempty" json:"result,omitempty"`
	ErrorReport         string     `bson:"errorReport,omitempty" json:"errorReport,omitempty"`
	Meta                *MetaInfo  `bson:"meta,omitempty" json:"meta,omitempty"`
}

// NewTask 创建一个处于 QUEUED 状态的任务。
func NewTask(id string, taskType TaskType, createdBy string) *Task {
	return &Task{
		ID:         id,
		Type:       taskType,
		Status:     TaskStatusQueued,
		HTTPStatus: http.StatusAccepted,
		Visible:    true,
		CreatedBy:  createdBy,
	}
}

func (t *Task) GetID() string { return t.ID }

func (Task) Kind() Kind { return KindTask }

// Progress 返回当前进度，任务未开始时返回 false。
func (t *Task) Progress() (float64, bool) {
	if t.PercentageCompleted == nil {
		return 0, false
	}
	return *t.PercentageCompleted, true
}

func (t *Task) transition(next TaskStatus) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTaskTerminal, t.Status)
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	return nil
}

// Start 把任务从 QUEUED 迁移到 RUNNING，进度从 0 开始。
func (t *Task) Start() error {
	if err := t.transition(TaskStatusRunning); err != nil {
		return err
	}
	start := MinTaskProgress
	t.PercentageCompleted = &start
	t.HTTPStatus = http.StatusAccepted
	return nil
}

// UpdateProgress 更新运行中任务的进度，进度只能单调不减。
func (t *Task) UpdateProgress(pct float64) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTaskTerminal, t.Status)
	}
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("%w: progress reported while %s", ErrInvalidTransition, t.Status)
	}
	if pct < MinTaskProgress || pct > MaxTaskProgress {
		return fmt.Errorf("%w: %v", ErrProgressOutOfRange, pct)
	}
	if cur, ok := t.Progress(); ok && pct < cur {
		return fmt.Errorf("%w: %v < %v", ErrProgressRegression, pct, cur)
	}
	t.PercentageCompleted = &pct
	return nil
}

// Complete 正常结束任务，状态、耗时和 100% 进度同时写入。
func (t *Task) Complete(durationMs int64, result string) error {
	if err := t.transition(TaskStatusCompleted); err != nil {
		return err
	}
	done := MaxTaskProgress
	t.PercentageCompleted = &done
	t.Duration = &durationMs
	t.HTTPStatus = http.StatusOK
	t.Result = result
	return nil
}

// Fail 异常结束任务，进度冻结在当前值。httpStatus 为 0 时使用 500。
func (t *Task) Fail(durationMs int64, errorReportID string, httpStatus int) error {
	if err := t.transition(TaskStatusError); err != nil {
		return err
	}
	if httpStatus == 0 {
		httpStatus = http.StatusInternalServerError
	}
	t.Duration = &durationMs
	t.HTTPStatus = httpStatus
	t.ErrorReport = errorReportID
	return nil
}

// Cancel 在检查点观察到取消请求后结束任务，进度冻结在当前值。
func (t *Task) Cancel(durationMs int64) error {
	if err := t.transition(TaskStatusCancelled); err != nil {
		return err
	}
	t.Duration = &durationMs
	t.HTTPStatus = http.StatusOK
	return nil
}
