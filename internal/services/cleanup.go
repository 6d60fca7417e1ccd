package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CleanupJob purges read notifications older than the retention window.
// Unread notifications are kept regardless of age.
type CleanupJob struct {
	store     NotificationPurger
	retention time.Duration
}

func NewCleanupJob(store NotificationPurger, retention time.Duration) *CleanupJob {
	return &CleanupJob{
		store:     store,
		retention: retention,
	}
}

// Run deletes read notifications created before now minus the retention
// window and returns how many were removed.
func (j *CleanupJob) Run(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-j.retention)

	purged, err := j.store.PurgeReadNotifications(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge read notifications: %w", err)
	}

	slog.InfoContext(ctx, "Notification cleanup complete",
		"cutoff", cutoff.Format(time.RFC3339),
		"purged", purged)

	return purged, nil
}
