package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

// NotificationWorker persists notification events consumed from the queue.
// Returning an error nacks the delivery back for redelivery, so persistence
// stays at-least-once.
type NotificationWorker struct {
	store services.NotificationStore
}

func NewNotificationWorker(store services.NotificationStore) *NotificationWorker {
	return &NotificationWorker{store: store}
}

func (w *NotificationWorker) Handle(ctx context.Context, msg *amqp.NotificationMessage) error {
	n := core.NewNotification(msg.OwnerID, core.NotificationType(msg.Type), msg.Title, msg.Message)
	if !msg.Timestamp.IsZero() {
		n.CreatedAt = msg.Timestamp
	}

	if err := w.store.SaveNotification(ctx, &n); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}

	slog.DebugContext(ctx, "Notification persisted",
		"owner_id", n.OwnerID,
		"type", n.Type)
	return nil
}
