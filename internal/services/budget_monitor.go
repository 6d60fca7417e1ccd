package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const (
	softAlertRatio = 0.8
	hardAlertRatio = 1.0

	// DefaultSweepRatio is the threshold for the evening sweep over budgets
	// whose triggering path was missed.
	DefaultSweepRatio = 0.9
)

// BudgetMonitor recomputes budget consumption and raises threshold alerts.
// AlertSent on the budget row guarantees at most one alert per row per
// period, no matter how many expenses land after the crossing.
type BudgetMonitor struct {
	store      BudgetStore
	notifier   *NotificationService
	sweepRatio float64
}

func NewBudgetMonitor(store BudgetStore, notifier *NotificationService, sweepRatio float64) *BudgetMonitor {
	if sweepRatio <= 0 {
		sweepRatio = DefaultSweepRatio
	}
	return &BudgetMonitor{
		store:      store,
		notifier:   notifier,
		sweepRatio: sweepRatio,
	}
}

// OnExpensePosted refreshes the budget for the movement's category and
// period after an expense is persisted. Consumption is always recomputed
// from the movements, never incremented, so the stored value cannot drift.
// A missing budget row means nothing to monitor.
func (m *BudgetMonitor) OnExpensePosted(ctx context.Context, ownerID, categoryID string, amount decimal.Decimal, period core.Period) error {
	b, err := m.store.Budget(ctx, ownerID, categoryID, period)
	if err != nil {
		return fmt.Errorf("find budget: %w", err)
	}
	if b == nil || !b.Active {
		slog.DebugContext(ctx, "No active budget for posted expense",
			"owner_id", ownerID,
			"category_id", categoryID,
			"period", period,
			"amount", amount.String())
		return nil
	}

	consumed, err := m.store.SumExpensesByCategoryAndPeriod(ctx, ownerID, categoryID, period)
	if err != nil {
		return fmt.Errorf("recompute consumed: %w", err)
	}
	b.Consumed = consumed

	m.maybeAlert(ctx, b)

	if err := m.store.SaveBudget(ctx, b); err != nil {
		return fmt.Errorf("save budget: %w", err)
	}

	return nil
}

// Sweep scans budgets at or above the sweep threshold that have not alerted
// yet, recomputes their consumption and fires the missing alert. Runs on the
// evening schedule as defense in depth against missed posting hooks.
func (m *BudgetMonitor) Sweep(ctx context.Context) (int, error) {
	budgets, err := m.store.BudgetsNearLimit(ctx, m.sweepRatio)
	if err != nil {
		return 0, fmt.Errorf("find budgets near limit: %w", err)
	}

	alerted := 0
	for i := range budgets {
		b := &budgets[i]

		consumed, err := m.store.SumExpensesByCategoryAndPeriod(ctx, b.OwnerID, b.CategoryID, b.Period)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to recompute budget consumption during sweep",
				"budget_id", b.ID,
				"error", err)
			continue
		}
		b.Consumed = consumed

		// The stored ratio may have been stale; re-check after recompute.
		// The refreshed consumption is saved either way so the next sweep
		// does not rescan a budget that dropped back under the threshold.
		if b.UsedRatio() >= m.sweepRatio && m.maybeAlert(ctx, b) {
			alerted++
		}

		if err := m.store.SaveBudget(ctx, b); err != nil {
			slog.ErrorContext(ctx, "Failed to save budget during sweep",
				"budget_id", b.ID,
				"error", err)
			continue
		}
	}

	slog.InfoContext(ctx, "Budget sweep complete",
		"scanned", len(budgets),
		"alerted", alerted)

	return alerted, nil
}

// maybeAlert fires a single threshold alert for the budget if one is due and
// none was sent this period. Returns true when an alert fired.
func (m *BudgetMonitor) maybeAlert(ctx context.Context, b *core.Budget) bool {
	if b.AlertSent {
		return false
	}

	ratio := b.UsedRatio()
	var title, message string
	switch {
	case ratio >= hardAlertRatio:
		title = "Budget exceeded"
		message = fmt.Sprintf("Spending in %s reached %s of the %s limit for %s",
			b.CategoryID, b.Consumed.StringFixed(2), b.Limit.StringFixed(2), b.Period)
	case ratio >= softAlertRatio:
		title = "Approaching budget limit"
		message = fmt.Sprintf("Spending in %s is at %.0f%% of the %s limit for %s",
			b.CategoryID, ratio*100, b.Limit.StringFixed(2), b.Period)
	default:
		return false
	}

	m.notifier.Dispatch(ctx, b.OwnerID, core.NotificationBudgetAlert, title, message)
	b.AlertSent = true

	slog.InfoContext(ctx, "Budget alert fired",
		"budget_id", b.ID,
		"category_id", b.CategoryID,
		"period", b.Period,
		"used_ratio", fmt.Sprintf("%.3f", ratio))

	return true
}
