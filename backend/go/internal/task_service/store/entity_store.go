package store

import (
	"context"

	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/models"
)

// TaskStore defines the read side of task persistence used by the API.
type TaskStore interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ListByOwner(ctx context.Context, owner string, status models.TaskStatus, offset, limit int) ([]*models.Task, error)
	CountByOwner(ctx context.Context, owner string, status models.TaskStatus) (int64, error)
}

// NotificationStore defines persistence for owner notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// Update replaces a notification and returns the previous version.
	Update(ctx context.Context, n *models.Notification) (*models.Notification, error)
	ListByOwner(ctx context.Context, owner string, query models.NotificationQuery, offset, limit int) ([]*models.Notification, error)
	CountByOwner(ctx context.Context, owner string, query models.NotificationQuery) (int64, error)
}

// EntityTaskStore is an implementation of TaskStore on the entity manager.
type EntityTaskStore struct {
	repo *entitymanager.Repository[models.Task, *models.Task]
}

// NewEntityTaskStore creates a new EntityTaskStore.
func NewEntityTaskStore(m *entitymanager.Manager) (*EntityTaskStore, error) {
	repo, err := entitymanager.NewRepository[models.Task](m)
	if err != nil {
		return nil, err
	}
	return &EntityTaskStore{repo: repo}, nil
}

// Repository exposes the underlying repository, used by the dispatcher.
func (s *EntityTaskStore) Repository() *entitymanager.Repository[models.Task, *models.Task] {
	return s.repo
}

func (s *EntityTaskStore) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.Find(ctx, id)
}

func (s *EntityTaskStore) ListByOwner(ctx context.Context, owner string, status models.TaskStatus, offset, limit int) ([]*models.Task, error) {
	return s.repo.FindBy(ctx, taskCriteria(owner, status), offset, limit)
}

func (s *EntityTaskStore) CountByOwner(ctx context.Context, owner string, status models.TaskStatus) (int64, error) {
	return s.repo.Count(ctx, taskCriteria(owner, status))
}

// taskCriteria selects the owner's visible tasks, optionally by status.
func taskCriteria(owner string, status models.TaskStatus) entitymanager.Criteria {
	c := entitymanager.Criteria{
		entitymanager.Eq("createdBy", owner),
		entitymanager.Eq("visible", true),
	}
	if status != "" {
		c = c.And(entitymanager.Eq("status", status))
	}
	return c
}

// EntityNotificationStore is an implementation of NotificationStore on the entity manager.
type EntityNotificationStore struct {
	repo *entitymanager.Repository[models.Notification, *models.Notification]
}

// NewEntityNotificationStore creates a new EntityNotificationStore.
func NewEntityNotificationStore(m *entitymanager.Manager) (*EntityNotificationStore, error) {
	repo, err := entitymanager.NewRepository[models.Notification](m)
	if err != nil {
		return nil, err
	}
	return &EntityNotificationStore{repo: repo}, nil
}

func (s *EntityNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	return s.repo.Persist(ctx, n)
}

func (s *EntityNotificationStore) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	return s.repo.Find(ctx, id)
}

func (s *EntityNotificationStore) Update(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	return s.repo.Merge(ctx, n)
}

func (s *EntityNotificationStore) ListByOwner(ctx context.Context, owner string, query models.NotificationQuery, offset, limit int) ([]*models.Notification, error) {
	return s.repo.FindBy(ctx, notificationCriteria(owner, query), offset, limit)
}

func (s *EntityNotificationStore) CountByOwner(ctx context.Context, owner string, query models.NotificationQuery) (int64, error) {
	return s.repo.Count(ctx, notificationCriteria(owner, query))
}

func notificationCriteria(owner string, query models.NotificationQuery) entitymanager.Criteria {
	c := entitymanager.Criteria{entitymanager.Eq("owner", owner)}
	if query == models.NotificationQueryUnread {
		c = c.And(entitymanager.Eq("viewed", false))
	}
	return c
}
