package service

import (
	"context"
	"fmt"

	"jaqpot/backend/go/internal/entitymanager"
	"jaqpot/backend/go/internal/idgen"
	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/internal/task_service/store"
	"jaqpot/backend/go/pkg/logger"
)

// notificationIDLength is the random part of a notification id.
const notificationIDLength = 24

// NotificationService manages owner notifications.
type NotificationService struct {
	store  store.NotificationStore
	logger *logger.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store store.NotificationStore, logger *logger.Logger) *NotificationService {
	return &NotificationService{store: store, logger: logger}
}

// List returns one page of principal's notifications and the total count
// for the same query.
func (s *NotificationService) List(ctx context.Context, principal string, query models.NotificationQuery, start, limit int) ([]*models.Notification, int64, error) {
	switch query {
	case "":
		query = models.NotificationQueryUnread
	case models.NotificationQueryUnread, models.NotificationQueryAll:
	default:
		return nil, 0, fmt.Errorf("%w: unknown query %q", ErrInvalidRequest, query)
	}
	nots, err := s.store.ListByOwner(ctx, principal, query, start, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountByOwner(ctx, principal, query)
	if err != nil {
		return nil, 0, err
	}
	return nots, total, nil
}

// Create assigns a fresh id and stores the notification with principal as sender.
func (s *NotificationService) Create(ctx context.Context, principal string, n *models.Notification) (*models.Notification, error) {
	if n.Owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidRequest)
	}
	if n.Type == "" {
		n.Type = models.NotificationTypeSimple
	}
	n.ID = models.NotificationIDPrefix + idgen.Random(notificationIDLength)
	n.From = principal
	n.Viewed = false
	n.Meta = models.MetaInfoBuilderFrom(n.Meta).SetCurrentDate().Build()

	if err := s.store.Create(ctx, n); err != nil {
		s.logger.WithError(models.NewErrorInfo(err)).WithField("owner", n.Owner).Error("Failed to create notification")
		return nil, err
	}
	return n, nil
}

// Update replaces one of principal's notifications, typically to mark it
// viewed. The owner and sender cannot be changed.
func (s *NotificationService) Update(ctx context.Context, principal string, n *models.Notification) (*models.Notification, error) {
	if n.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	current, err := s.store.GetByID(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	if current.Owner != principal {
		return nil, fmt.Errorf("%w: notification %q", entitymanager.ErrNotFound, n.ID)
	}
	n.Owner = current.Owner
	n.From = current.From
	if n.Type == "" {
		n.Type = current.Type
	}
	if _, err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
