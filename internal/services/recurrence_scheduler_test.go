package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
)

func newTestScheduler(store RecurrenceStore, mem *memory.Store) *RecurrenceScheduler {
	notifier := NewNotificationService(mem, nil)
	goals := NewGoalLedger(mem, notifier)
	budgets := NewBudgetMonitor(mem, notifier, DefaultSweepRatio)
	return NewRecurrenceScheduler(store, notifier, goals, budgets)
}

func mustSaveDefinition(t *testing.T, mem *memory.Store, def core.RecurrenceDefinition) {
	t.Helper()
	if err := mem.SaveRecurrenceDefinition(context.Background(), &def); err != nil {
		t.Fatalf("save definition: %v", err)
	}
}

func notificationsOfType(t *testing.T, mem *memory.Store, ownerID string, typ core.NotificationType) []core.Notification {
	t.Helper()
	all, err := mem.Notifications(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var out []core.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestRecurrenceScheduler_Run_PostsAndAdvances(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	mustSaveDefinition(t, mem, def)

	now := time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)
	posted, err := scheduler.Run(ctx, now)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if posted != 1 {
		t.Fatalf("Run() posted = %d, want 1", posted)
	}

	movements, err := mem.MovementsInWindow(ctx, "owner-1", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("got %d movements, want 1", len(movements))
	}
	if !movements[0].Automated {
		t.Error("posted movement should be tagged automated")
	}

	updated, err := mem.RecurrenceDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("reload definition: %v", err)
	}
	wantNext := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	if !updated.NextDueDate.Equal(wantNext) {
		t.Errorf("NextDueDate = %v, want %v", updated.NextDueDate, wantNext)
	}
	if updated.LastRunAt == nil {
		t.Error("LastRunAt should be set after a run")
	}
	if !updated.Active {
		t.Error("definition should stay active without an end date")
	}

	if got := notificationsOfType(t, mem, "owner-1", core.NotificationRecurringPosted); len(got) != 1 {
		t.Errorf("got %d recurring-posted notifications, want 1", len(got))
	}
}

func TestRecurrenceScheduler_Run_IdempotentSameDay(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	mustSaveDefinition(t, mem, def)

	now := time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)
	if _, err := scheduler.Run(ctx, now); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	posted, err := scheduler.Run(ctx, now.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if posted != 0 {
		t.Errorf("second same-day Run() posted = %d, want 0", posted)
	}

	movements, err := mem.MovementsInWindow(ctx, "owner-1", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 1 {
		t.Errorf("got %d movements after re-run, want exactly 1", len(movements))
	}
}

func TestRecurrenceScheduler_Run_RetryAfterPartialRunOverwrites(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	mustSaveDefinition(t, mem, def)

	now := time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)
	if _, err := scheduler.Run(ctx, now); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	// Roll the schedule back as if the process died after posting the
	// movement but before persisting the advance.
	stale, err := mem.RecurrenceDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("reload definition: %v", err)
	}
	stale.NextDueDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	stale.LastRunAt = nil
	mustSaveDefinition(t, mem, *stale)

	posted, err := scheduler.Run(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("retry Run() error: %v", err)
	}
	if posted != 1 {
		t.Fatalf("retry Run() posted = %d, want 1", posted)
	}

	// Same occurrence, same movement ID: the retry overwrites, never
	// duplicates.
	movements, err := mem.MovementsInWindow(ctx, "owner-1", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 1 {
		t.Errorf("got %d movements after retry, want exactly 1", len(movements))
	}
}

func TestRecurrenceScheduler_Run_CatchesUpMissedRuns(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	// Due three days ago; the run was missed but must not be skipped.
	def := testDefinition(t, core.Weekly, time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC))
	mustSaveDefinition(t, mem, def)

	posted, err := scheduler.Run(ctx, time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if posted != 1 {
		t.Errorf("Run() posted = %d, want 1 (catch-up)", posted)
	}
}

func TestRecurrenceScheduler_Run_DeactivatesPastEndDate(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	def.EndDate = &end
	mustSaveDefinition(t, mem, def)

	posted, err := scheduler.Run(ctx, time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if posted != 1 {
		t.Fatalf("Run() posted = %d, want 1 (final run before lapse)", posted)
	}

	updated, err := mem.RecurrenceDefinition(ctx, def.ID)
	if err != nil {
		t.Fatalf("reload definition: %v", err)
	}
	if updated.Active {
		t.Error("definition should be deactivated once the schedule passes its end date")
	}
}

// failingMovementStore rejects movements for one owner to exercise failure
// isolation.
type failingMovementStore struct {
	*memory.Store
	failOwner string
}

func (s *failingMovementStore) SaveMovement(ctx context.Context, m *core.Movement) error {
	if m.OwnerID == s.failOwner {
		return errors.New("store unavailable")
	}
	return s.Store.SaveMovement(ctx, m)
}

func TestRecurrenceScheduler_Run_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	store := &failingMovementStore{Store: mem, failOwner: "owner-broken"}
	scheduler := newTestScheduler(store, mem)

	good := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	mustSaveDefinition(t, mem, good)

	tpl := core.MovementTemplate{Kind: core.Expense, Amount: decimal.NewFromInt(9), Description: "doomed"}
	bad, err := core.NewRecurrenceDefinition("owner-broken", tpl, core.Daily, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	mustSaveDefinition(t, mem, bad)

	now := time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)
	posted, err := scheduler.Run(ctx, now)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if posted != 1 {
		t.Errorf("Run() posted = %d, want 1 (one good, one failing)", posted)
	}

	// The failing definition's schedule must not advance so the next tick
	// retries it.
	reloaded, err := mem.RecurrenceDefinition(ctx, bad.ID)
	if err != nil {
		t.Fatalf("reload definition: %v", err)
	}
	if !IsDue(*reloaded, now) {
		t.Error("failed definition should remain due for the next tick")
	}
}

func TestRecurrenceScheduler_Run_SavingsContributesToGoal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	g, err := core.NewGoal("owner-1", "vacation", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("setup goal: %v", err)
	}
	if err := mem.SaveGoal(ctx, g); err != nil {
		t.Fatalf("save goal: %v", err)
	}

	tpl := core.MovementTemplate{
		Kind:        core.Savings,
		Amount:      decimal.NewFromInt(200),
		Description: "vacation fund",
		GoalID:      g.ID,
	}
	def, err := core.NewRecurrenceDefinition("owner-1", tpl, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	mustSaveDefinition(t, mem, def)

	if _, err := scheduler.Run(ctx, time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	updated, err := mem.Goal(ctx, g.ID)
	if err != nil {
		t.Fatalf("reload goal: %v", err)
	}
	if !updated.CurrentAmount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("goal CurrentAmount = %s, want 200", updated.CurrentAmount)
	}
}

func TestRecurrenceScheduler_Run_ExpenseRefreshesBudget(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	scheduler := newTestScheduler(mem, mem)

	b, err := core.NewBudget("owner-1", "utilities", decimal.NewFromInt(60), "2026-01")
	if err != nil {
		t.Fatalf("setup budget: %v", err)
	}
	if err := mem.SaveBudget(ctx, b); err != nil {
		t.Fatalf("save budget: %v", err)
	}

	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	mustSaveDefinition(t, mem, def)

	if _, err := scheduler.Run(ctx, time.Date(2026, 1, 15, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	updated, err := mem.Budget(ctx, "owner-1", "utilities", "2026-01")
	if err != nil {
		t.Fatalf("reload budget: %v", err)
	}
	if updated == nil {
		t.Fatal("budget disappeared")
	}
	if !updated.Consumed.Equal(decimal.NewFromInt(50)) {
		t.Errorf("budget Consumed = %s, want 50", updated.Consumed)
	}
	// 50/60 is past the soft threshold.
	if !updated.AlertSent {
		t.Error("budget alert should have fired for the automated expense")
	}
}
