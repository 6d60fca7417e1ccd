package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
)

func saveMovementFor(t *testing.T, mem *memory.Store, ownerID string, kind core.MovementKind, amount int64, date time.Time) {
	t.Helper()
	m := core.NewMovement(ownerID, kind, decimal.NewFromInt(amount), date)
	switch kind {
	case core.Expense:
		m.CategoryID = "misc"
	case core.Income:
		m.SourceID = "salary"
	}
	if err := mem.SaveMovement(context.Background(), &m); err != nil {
		t.Fatalf("save movement: %v", err)
	}
}

func TestMonthlySummaryJob_Run(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	job := NewMonthlySummaryJob(mem, mem, NewNotificationService(mem, nil), nil)

	// February activity, summarized on March 1st.
	saveMovementFor(t, mem, "owner-1", core.Income, 3000, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	saveMovementFor(t, mem, "owner-1", core.Expense, 1200, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	saveMovementFor(t, mem, "owner-1", core.Savings, 400, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC))
	// March activity must not leak into the February digest.
	saveMovementFor(t, mem, "owner-1", core.Expense, 9999, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	saveMovementFor(t, mem, "owner-2", core.Expense, 75, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))

	sent, err := job.Run(ctx, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("Run() sent = %d, want 2", sent)
	}

	got := notificationsOfType(t, mem, "owner-1", core.NotificationMonthlySummary)
	if len(got) != 1 {
		t.Fatalf("got %d summaries for owner-1, want 1", len(got))
	}
	if !strings.Contains(got[0].Title, "2026-02") {
		t.Errorf("summary title = %q, want the closed period in it", got[0].Title)
	}
	for _, fragment := range []string{"3000.00", "1200.00", "400.00", "3 movements"} {
		if !strings.Contains(got[0].Message, fragment) {
			t.Errorf("summary message = %q, missing %q", got[0].Message, fragment)
		}
	}

	if got := notificationsOfType(t, mem, "owner-2", core.NotificationMonthlySummary); len(got) != 1 {
		t.Errorf("got %d summaries for owner-2, want 1", len(got))
	}
}

func TestMonthlySummaryJob_Run_FlagsUnusualExpenses(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	analytics := NewAnalyticsEngine(mem, mem, time.Minute)
	job := NewMonthlySummaryJob(mem, mem, NewNotificationService(mem, nil), analytics)

	// A steady baseline with one clear outlier inside the month.
	for day := 1; day <= 20; day++ {
		saveMovementFor(t, mem, "owner-1", core.Expense, 10, time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC))
	}
	saveMovementFor(t, mem, "owner-1", core.Expense, 900, time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC))

	if _, err := job.Run(ctx, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := notificationsOfType(t, mem, "owner-1", core.NotificationMonthlySummary)
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	if !strings.Contains(got[0].Message, "1 unusual expenses flagged") {
		t.Errorf("summary message = %q, want the flagged-expense count in it", got[0].Message)
	}
}

func TestMonthlySummaryJob_Run_NoActivity(t *testing.T) {
	mem := memory.New()
	job := NewMonthlySummaryJob(mem, mem, NewNotificationService(mem, nil), nil)

	sent, err := job.Run(context.Background(), time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sent != 0 {
		t.Errorf("Run() sent = %d, want 0 with no movements", sent)
	}
}

func TestCleanupJob_Run(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	job := NewCleanupJob(mem, 90*24*time.Hour)

	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)

	saveNotification := func(t *testing.T, age time.Duration, read bool) core.Notification {
		t.Helper()
		n := core.NewNotification("owner-1", core.NotificationBudgetAlert, "old alert", "stale")
		n.CreatedAt = now.Add(-age)
		n.Read = read
		if err := mem.SaveNotification(ctx, &n); err != nil {
			t.Fatalf("save notification: %v", err)
		}
		return n
	}

	oldRead := saveNotification(t, 120*24*time.Hour, true)
	oldUnread := saveNotification(t, 120*24*time.Hour, false)
	recentRead := saveNotification(t, 10*24*time.Hour, true)

	purged, err := job.Run(ctx, now)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if purged != 1 {
		t.Errorf("Run() purged = %d, want 1", purged)
	}

	remaining, err := mem.Notifications(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	ids := map[string]bool{}
	for _, n := range remaining {
		ids[n.ID] = true
	}
	if ids[oldRead.ID] {
		t.Error("old read notification should have been purged")
	}
	if !ids[oldUnread.ID] {
		t.Error("unread notification must survive regardless of age")
	}
	if !ids[recentRead.ID] {
		t.Error("recent read notification must survive the retention window")
	}
}
