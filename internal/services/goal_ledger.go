package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// goalMilestones are the progress percentages that earn a milestone
// notification, checked from highest to lowest.
var goalMilestones = []float64{75, 50, 25}

// GoalLedger applies contributions to goals and drives their lifecycle.
// Validation errors (invalid amount, wrong state) surface to the caller
// unchanged so the CRUD layer can map them to client messages.
type GoalLedger struct {
	store    GoalStore
	notifier *NotificationService
}

func NewGoalLedger(store GoalStore, notifier *NotificationService) *GoalLedger {
	return &GoalLedger{
		store:    store,
		notifier: notifier,
	}
}

// Contribute adds amount to the goal's progress, auto-completing it when the
// target is reached. Milestone notifications fire when the progress
// percentage crosses 25, 50 or 75; completion fires its own notification.
func (l *GoalLedger) Contribute(ctx context.Context, goalID string, amount decimal.Decimal) (*core.Goal, error) {
	g, err := l.store.Goal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}

	before := g.ProgressPercent()
	if err := g.Contribute(amount, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := l.store.SaveGoal(ctx, g); err != nil {
		return nil, fmt.Errorf("save goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal contribution applied",
		"goal_id", g.ID,
		"amount", amount.String(),
		"current", g.CurrentAmount.String(),
		"state", g.State)

	if g.State == core.GoalCompleted {
		l.notifier.Dispatch(ctx, g.OwnerID, core.NotificationGoalCompleted,
			"Goal completed",
			fmt.Sprintf("%s reached its target of %s", g.Name, g.TargetAmount.StringFixed(2)))
		return g, nil
	}

	if ms, crossed := crossedMilestone(before, g.ProgressPercent()); crossed {
		l.notifier.Dispatch(ctx, g.OwnerID, core.NotificationGoalMilestone,
			"Goal milestone reached",
			fmt.Sprintf("%s is now %.0f%% funded", g.Name, ms))
	}

	return g, nil
}

// Complete marks the goal completed.
func (l *GoalLedger) Complete(ctx context.Context, goalID string) (*core.Goal, error) {
	g, err := l.transition(ctx, goalID, core.GoalCompleted)
	if err != nil {
		return nil, err
	}
	l.notifier.Dispatch(ctx, g.OwnerID, core.NotificationGoalCompleted,
		"Goal completed",
		fmt.Sprintf("%s was marked completed", g.Name))
	return g, nil
}

// Cancel marks the goal cancelled.
func (l *GoalLedger) Cancel(ctx context.Context, goalID string) (*core.Goal, error) {
	return l.transition(ctx, goalID, core.GoalCancelled)
}

// Pause suspends an active goal.
func (l *GoalLedger) Pause(ctx context.Context, goalID string) (*core.Goal, error) {
	return l.transition(ctx, goalID, core.GoalPaused)
}

// Reactivate resumes a paused goal.
func (l *GoalLedger) Reactivate(ctx context.Context, goalID string) (*core.Goal, error) {
	return l.transition(ctx, goalID, core.GoalActive)
}

func (l *GoalLedger) transition(ctx context.Context, goalID string, to core.GoalState) (*core.Goal, error) {
	g, err := l.store.Goal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal: %w", err)
	}

	from := g.State
	if err := g.Transition(to, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := l.store.SaveGoal(ctx, g); err != nil {
		return nil, fmt.Errorf("save goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal state changed",
		"goal_id", g.ID,
		"from", from,
		"to", to)

	return g, nil
}

// crossedMilestone returns the highest milestone boundary crossed between
// the two progress percentages.
func crossedMilestone(before, after float64) (float64, bool) {
	for _, ms := range goalMilestones {
		if before < ms && after >= ms {
			return ms, true
		}
	}
	return 0, false
}
