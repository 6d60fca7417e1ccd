package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

// RecurrenceScheduler materializes movements from due recurrence
// definitions. One failing definition never aborts the rest of the batch;
// its schedule stays unadvanced so the next tick retries it.
//
// The job is idempotent under same-day re-entry: advancing NextDueDate is
// part of the posting step, so a definition that already ran today is no
// longer due when the job runs again.
type RecurrenceScheduler struct {
	store    RecurrenceStore
	notifier *NotificationService
	goals    *GoalLedger
	budgets  *BudgetMonitor
}

// NewRecurrenceScheduler wires the scheduler. goals and budgets are
// optional; when present, materialized savings movements flow through the
// goal ledger and expense movements through the budget monitor.
func NewRecurrenceScheduler(store RecurrenceStore, notifier *NotificationService, goals *GoalLedger, budgets *BudgetMonitor) *RecurrenceScheduler {
	return &RecurrenceScheduler{
		store:    store,
		notifier: notifier,
		goals:    goals,
		budgets:  budgets,
	}
}

// Run processes every definition due on or before now's date and returns how
// many movements were posted. Only a failing due-definition query aborts the
// batch; per-definition failures are logged and skipped.
func (s *RecurrenceScheduler) Run(ctx context.Context, now time.Time) (int, error) {
	today := core.DateOnly(now)

	defs, err := s.store.DueRecurrenceDefinitions(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find due recurrence definitions: %w", err)
	}

	slog.InfoContext(ctx, "Processing due recurrence definitions",
		"due", len(defs),
		"as_of", today.Format("2006-01-02"))

	posted := 0
	for _, def := range defs {
		if !IsDue(def, today) {
			continue
		}

		if err := s.process(ctx, def, now, today); err != nil {
			slog.ErrorContext(ctx, "Failed to process recurrence definition",
				"definition_id", def.ID,
				"description", def.Template.Description,
				"error", err)
			continue
		}
		posted++
	}

	slog.InfoContext(ctx, "Recurrence run complete",
		"posted", posted,
		"due", len(defs))

	return posted, nil
}

func (s *RecurrenceScheduler) process(ctx context.Context, def core.RecurrenceDefinition, now, today time.Time) error {
	m := def.NewMovementFromTemplate(today)
	if err := m.Validate(); err != nil {
		return fmt.Errorf("materialize movement: %w", err)
	}

	if err := s.store.SaveMovement(ctx, &m); err != nil {
		return fmt.Errorf("save movement: %w", err)
	}

	// Advance the schedule. Posting and advancing are two separate saves; a
	// crash between them means the next tick re-posts, and the movement's
	// deterministic per-occurrence ID makes that re-post an overwrite.
	lastRun := now.UTC()
	def.LastRunAt = &lastRun
	next := NextDueDate(def)
	def.NextDueDate = next
	if Lapsed(def, next) {
		def.Active = false
		slog.InfoContext(ctx, "Recurrence definition lapsed past its end date",
			"definition_id", def.ID,
			"end_date", def.EndDate.Format("2006-01-02"))
	}

	if err := s.store.SaveRecurrenceDefinition(ctx, &def); err != nil {
		// The movement is already posted; losing the advance means the next
		// tick may post again. Surface loudly but keep the batch going.
		return fmt.Errorf("advance schedule: %w", err)
	}

	s.fanOut(ctx, m)

	s.notifier.Dispatch(ctx, def.OwnerID, core.NotificationRecurringPosted,
		"Automated movement posted",
		fmt.Sprintf("%s for %s", def.Template.Description, m.Amount.StringFixed(2)))

	slog.InfoContext(ctx, "Posted movement from recurrence definition",
		"definition_id", def.ID,
		"movement_id", m.ID,
		"kind", m.Kind,
		"amount", m.Amount.String(),
		"next_due", def.NextDueDate.Format("2006-01-02"),
		"active", def.Active)

	return nil
}

// fanOut routes the freshly posted movement into the goal ledger and budget
// monitor. Downstream failures are logged only; the movement is already
// persisted and the schedule already advanced.
func (s *RecurrenceScheduler) fanOut(ctx context.Context, m core.Movement) {
	if s.goals != nil && m.Kind == core.Savings && m.GoalID != "" {
		if _, err := s.goals.Contribute(ctx, m.GoalID, m.Amount); err != nil {
			slog.ErrorContext(ctx, "Failed to apply automated goal contribution",
				"movement_id", m.ID,
				"goal_id", m.GoalID,
				"error", err)
		}
	}

	if s.budgets != nil && m.Kind == core.Expense && m.CategoryID != "" {
		if err := s.budgets.OnExpensePosted(ctx, m.OwnerID, m.CategoryID, m.Amount, core.PeriodOf(m.Date)); err != nil {
			slog.ErrorContext(ctx, "Failed to refresh budget for automated expense",
				"movement_id", m.ID,
				"category_id", m.CategoryID,
				"error", err)
		}
	}
}
