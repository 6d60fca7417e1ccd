package services

import (
	"context"
	"log/slog"

	"fintrack/internal/core"
)

// EventPublisher pushes notification events onto the asynchronous lane.
// Implemented by the AMQP client.
type EventPublisher interface {
	PublishNotification(ctx context.Context, ownerID, notificationType, title, message string) error
}

// NotificationService turns domain events into persisted notifications.
// With a publisher configured, events go through the message queue and a
// worker persists them off the calling path; without one they are persisted
// directly. Either way delivery is at-least-once and Dispatch never fails
// the caller: notifications are informational and losing one is preferable
// to aborting a job batch.
type NotificationService struct {
	store     NotificationStore
	publisher EventPublisher
}

func NewNotificationService(store NotificationStore, publisher EventPublisher) *NotificationService {
	return &NotificationService{
		store:     store,
		publisher: publisher,
	}
}

// Dispatch records a notification event for the owner. Publish failures fall
// back to direct persistence; persistence failures are logged and swallowed.
func (s *NotificationService) Dispatch(ctx context.Context, ownerID string, typ core.NotificationType, title, message string) {
	if s.publisher != nil {
		err := s.publisher.PublishNotification(ctx, ownerID, string(typ), title, message)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "Failed to publish notification event, persisting directly",
			"owner_id", ownerID,
			"type", typ,
			"error", err)
	}

	n := core.NewNotification(ownerID, typ, title, message)
	if err := s.store.SaveNotification(ctx, &n); err != nil {
		slog.ErrorContext(ctx, "Failed to persist notification",
			"owner_id", ownerID,
			"type", typ,
			"title", title,
			"error", err)
	}
}
