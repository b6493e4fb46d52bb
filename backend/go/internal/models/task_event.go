package models

import "time"

// TaskEvent 是 worker 在任务状态变化时发布到 Kafka 的事件。
type TaskEvent struct {
	TaskID              string     `json:"taskId"`
	Owner               string     `json:"owner"`
	Status              TaskStatus `json:"status"`
	PercentageCompleted *float64   `json:"percentageCompleted,omitempty"`
	HTTPStatus          int        `json:"httpStatus"`
	Message             string     `json:"message,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
}

// NewTaskEvent 根据任务当前状态生成事件。
func NewTaskEvent(task *Task, message string) TaskEvent {
	return TaskEvent{
		TaskID:              task.ID,
		Owner:               task.CreatedBy,
		Status:              task.Status,
		PercentageCompleted: task.PercentageCompleted,
		HTTPStatus:          task.HTTPStatus,
		Message:             message,
		Timestamp:           time.Now().UTC(),
	}
}
