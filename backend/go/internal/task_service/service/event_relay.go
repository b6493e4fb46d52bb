package service

import (
	"encoding/json"
	"fmt"

	"jaqpot/backend/go/internal/models"
	"jaqpot/backend/go/pkg/logger"
)

// EventRelay forwards task events to the owner's websocket connections.
type EventRelay struct {
	connManager *ConnectionManager
	logger      *logger.Logger
}

// NewEventRelay creates a new EventRelay.
func NewEventRelay(connManager *ConnectionManager, logger *logger.Logger) *EventRelay {
	return &EventRelay{connManager: connManager, logger: logger}
}

// HandleEvent decodes a task event and pushes the raw payload to its owner.
func (r *EventRelay) HandleEvent(value []byte) error {
	var event models.TaskEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode task event: %w", err)
	}
	if event.Owner == "" {
		return nil
	}
	sent := r.connManager.SendMessage(event.Owner, value)
	r.logger.WithPayload(map[string]interface{}{
		"taskID": event.TaskID,
		"status": event.Status,
		"sent":   sent,
	}).Debug("Relayed task event")
	return nil
}
