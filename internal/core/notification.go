package core

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationRecurringPosted NotificationType = "recurring_posted"
	NotificationBudgetAlert     NotificationType = "budget_alert"
	NotificationGoalMilestone   NotificationType = "goal_milestone"
	NotificationGoalCompleted   NotificationType = "goal_completed"
	NotificationMonthlySummary  NotificationType = "monthly_summary"
)

type (
	NotificationType string

	// Notification is an append-only user-facing record. Only the Read flag
	// is ever mutated after creation.
	Notification struct {
		ID        string
		OwnerID   string
		Type      NotificationType
		Title     string
		Message   string
		Read      bool
		CreatedAt time.Time
	}
)

func NewNotification(ownerID string, typ NotificationType, title, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}
