package store

import (
	"context"

	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
)

// TaskUpdater defines the worker's access to task records.
type TaskUpdater interface {
	Get(ctx context.Context, id string) (*models.Task, error)
	// Claim saves the QUEUED to RUNNING transition only if the stored task
	// is still QUEUED; otherwise it fails with
	// entitymanager.ErrPreconditionFailed.
	Claim(ctx context.Context, task *models.Task) error
	// Save replaces the stored task unless it has already reached a
	// terminal status; in that case it fails with
	// entitymanager.ErrPreconditionFailed.
	Save(ctx context.Context, task *models.Task) error
}

// ReportWriter persists the side records a finished task produces.
type ReportWriter interface {
	SaveErrorReport(ctx context.Context, report *models.ErrorReport) error
	SaveNotification(ctx context.Context, n *models.Notification) error
}

// NotTerminal matches tasks that can still change.
func NotTerminal() entitymanager.Criteria {
	return entitymanager.Criteria{entitymanager.NotIn("status", models.TerminalTaskStatuses...)}
}

// Queued matches tasks no worker has claimed yet.
func Queued() entitymanager.Criteria {
	return entitymanager.Criteria{entitymanager.Eq("status", models.TaskStatusQueued)}
}

// EntityStore implements TaskUpdater and ReportWriter on the entity manager.
type EntityStore struct {
	tasks         *entitymanager.Repository[models.Task, *models.Task]
	reports       *entitymanager.Repository[models.ErrorReport, *models.ErrorReport]
	notifications *entitymanager.Repository[models.Notification, *models.Notification]
}

// NewEntityStore creates a new EntityStore.
func NewEntityStore(m *entitymanager.Manager) (*EntityStore, error) {
	tasks, err := entitymanager.NewRepository[models.Task](m)
	if err != nil {
		return nil, err
	}
	reports, err := entitymanager.NewRepository[models.ErrorReport](m)
	if err != nil {
		return nil, err
	}
	notifications, err := entitymanager.NewRepository[models.Notification](m)
	if err != nil {
		return nil, err
	}
	return &EntityStore{tasks: tasks, reports: reports, notifications: notifications}, nil
}

func (s *EntityStore) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.tasks.Find(ctx, id)
}

func (s *EntityStore) Claim(ctx context.Context, task *models.Task) error {
	_, err := s.tasks.MergeIf(ctx, task, Queued())
	return err
}

func (s *EntityStore) Save(ctx context.Context, task *models.Task) error {
	_, err := s.tasks.MergeIf(ctx, task, NotTerminal())
	return err
}

func (s *EntityStore) SaveErrorReport(ctx context.Context, report *models.ErrorReport) error {
	return s.reports.Persist(ctx, report)
}

func (s *EntityStore) SaveNotification(ctx context.Context, n *models.Notification) error {
	return s.notifications.Persist(ctx, n)
}
