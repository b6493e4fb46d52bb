package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/idgen"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_worker/publisher"
	"jaqpot/backend/go/internal/task_worker/runner"
	"jaqpot/backend/go/internal/task_worker/store"
	"jaqpot/backend/go/pkg/logger"
)

// notificationIDLength 是通知 ID 随机部分的长度。
const notificationIDLength = 24

// Config 是 Worker 的运行参数。
type Config struct {
	// TaskTimeout 为单个任务的最长执行时间，超时的任务进入 CANCELLED。0 表示不限制。
	TaskTimeout time.Duration
	// WorkerID 标识当前 worker 实例，写入错误报告和通知。
	WorkerID string
}

// Worker 领取工作消息并驱动任务状态机。
type Worker struct {
	tasks   store.TaskUpdater
	reports store.ReportWriter
	runner  runner.Runner
	events  publisher.EventPublisher
	cfg     Config
	now     func() time.Time
	logger  *logger.Logger
}

// NewWorker 创建一个新的 Worker 实例。
func NewWorker(tasks store.TaskUpdater, reports store.ReportWriter, r runner.Runner, events publisher.EventPublisher, cfg Config, logger *logger.Logger) *Worker {
	return &Worker{
		tasks:   tasks,
		reports: reports,
		runner:  r,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// Handle 处理一条工作消息，满足 dispatcher.Handler。
// 未知任务和非 QUEUED 状态的任务会被记录并确认，不会重新入队。
// 领取由带 status=QUEUED 条件的写入决定，重复投递的消息不会覆盖其他 worker 的记录。
func (w *Worker) Handle(ctx context.Context, msg dispatcher.WorkMessage) error {
	log := w.logger.WithPayload(map[string]interface{}{"task_id": msg.TaskID, "type": msg.Type})

	task, err := w.tasks.Get(ctx, msg.TaskID)
	if errors.Is(err, entitymanager.ErrNotFound) {
		log.Warn("work message references an unknown task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %s: %w", msg.TaskID, err)
	}
	if task.Status != models.TaskStatusQueued {
		log.WithField("status", task.Status).Info("skipping task that is not queued")
		return nil
	}

	if err := task.Start(); err != nil {
		return err
	}
	if err := w.tasks.Claim(ctx, task); err != nil {
		if errors.Is(err, entitymanager.ErrPreconditionFailed) {
			log.Info("task was claimed elsewhere or finished before it could start")
			return nil
		}
		return fmt.Errorf("start task %s: %w", task.ID, err)
	}
	w.publish(ctx, task, "task started")
	log.Info("task started")

	runCtx, cancel := w.runContext(ctx)
	defer cancel()

	started := w.now()
	outcome, runErr := w.runner.Run(runCtx, task, msg, w.progress(task))
	elapsed := w.now().Sub(started).Milliseconds()

	// 终止状态必须写入，即使上游已经取消。
	return w.finish(context.WithoutCancel(ctx), runCtx, task, outcome, runErr, elapsed, log)
}

func (w *Worker) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.TaskTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.TaskTimeout)
	}
	return context.WithCancel(ctx)
}

// progress 返回传给 Runner 的进度回调，同时作为取消检查点。
func (w *Worker) progress(task *models.Task) runner.ProgressFunc {
	return func(ctx context.Context, pct float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task.UpdateProgress(pct); err != nil {
			return err
		}
		if err := w.tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		w.publish(ctx, task, "")
		return nil
	}
}

func (w *Worker) finish(ctx, runCtx context.Context, task *models.Task, outcome runner.Outcome, runErr error, elapsed int64, log *logger.Logger) error {
	var (
		notifType models.NotificationType
		body      string
	)

	switch {
	case runErr == nil:
		if err := task.Complete(elapsed, outcome.Result); err != nil {
			return err
		}
		notifType, body = models.NotificationTypeTaskCompleted, "Task completed"

	case runCtx.Err() != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)):
		if err := task.Cancel(elapsed); err != nil {
			return err
		}
		notifType, body = models.NotificationTypeSimple, "Task cancelled"

	case errors.Is(runErr, entitymanager.ErrPreconditionFailed):
		log.Info("task was finished elsewhere while running")
		return nil

	default:
		report := w.errorReport(task, runErr)
		reportID := report.ID
		if err := w.reports.SaveErrorReport(ctx, report); err != nil {
			log.WithError(models.NewErrorInfo(err)).Error("failed to persist error report")
			reportID = ""
		}
		if err := task.Fail(elapsed, reportID, report.HTTPStatus); err != nil {
			return err
		}
		notifType, body = models.NotificationTypeTaskFailed, "Task failed: "+report.Message
	}

	if err := w.tasks.Save(ctx, task); err != nil {
		if errors.Is(err, entitymanager.ErrPreconditionFailed) {
			log.Info("task was finished elsewhere while running")
			return nil
		}
		return fmt.Errorf("finish task %s: %w", task.ID, err)
	}

	w.publish(ctx, task, body)
	w.notify(ctx, task, notifType, body)
	log.WithPayload(map[string]interface{}{
		"status":      task.Status,
		"duration_ms": elapsed,
	}).Info("task finished")
	return nil
}

func (w *Worker) errorReport(task *models.Task, runErr error) *models.ErrorReport {
	report := &models.ErrorReport{
		ID:         idgen.Random(idgen.DefaultLength),
		Code:       "InternalError",
		Message:    runErr.Error(),
		HTTPStatus: http.StatusInternalServerError,
		Actor:      w.cfg.WorkerID,
		Meta: models.NewMetaInfoBuilder().
			AddComments("task " + task.ID).
			AddCreators(w.cfg.WorkerID).
			SetCurrentDate().
			Build(),
	}
	var f *runner.Failure
	if errors.As(runErr, &f) {
		report.Code = f.Code
		report.Message = f.Message
		report.Details = f.Details
		if f.HTTPStatus > 0 {
			report.HTTPStatus = f.HTTPStatus
		}
	}
	return report
}

func (w *Worker) publish(ctx context.Context, task *models.Task, message string) {
	if w.events == nil {
		return
	}
	if err := w.events.Publish(ctx, models.NewTaskEvent(task, message)); err != nil {
		w.logger.WithError(models.NewErrorInfo(err)).WithField("task_id", task.ID).Warn("failed to publish task event")
	}
}

func (w *Worker) notify(ctx context.Context, task *models.Task, typ models.NotificationType, body string) {
	if task.CreatedBy == "" {
		return
	}
	n := &models.Notification{
		ID:         models.NotificationIDPrefix + idgen.Random(notificationIDLength),
		Owner:      task.CreatedBy,
		From:       w.cfg.WorkerID,
		Type:       typ,
		Body:       body,
		Resolution: task.ID,
		Meta:       models.NewMetaInfoBuilder().SetCurrentDate().Build(),
	}
	if err := w.reports.SaveNotification(ctx, n); err != nil {
		w.logger.WithError(models.NewErrorInfo(err)).WithField("task_id", task.ID).Warn("failed to persist notification")
	}
}
