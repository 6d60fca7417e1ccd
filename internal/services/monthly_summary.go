package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// MonthlySummaryJob sends each owner a digest of the just-closed month.
// Runs on the first of the month; per-owner failures are logged and the rest
// of the batch continues.
type MonthlySummaryJob struct {
	owners    OwnerReader
	movements MovementReader
	notifier  *NotificationService
	analytics *AnalyticsEngine
}

// NewMonthlySummaryJob wires the summary job. analytics is optional; when
// present, the digest mentions how many of the month's expenses were flagged
// as unusual.
func NewMonthlySummaryJob(owners OwnerReader, movements MovementReader, notifier *NotificationService, analytics *AnalyticsEngine) *MonthlySummaryJob {
	return &MonthlySummaryJob{
		owners:    owners,
		movements: movements,
		notifier:  notifier,
		analytics: analytics,
	}
}

// Run summarizes the month before now's month and returns how many
// summaries were dispatched.
func (j *MonthlySummaryJob) Run(ctx context.Context, now time.Time) (int, error) {
	today := core.DateOnly(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	period := core.PeriodOf(monthStart.AddDate(0, -1, 0))

	owners, err := j.owners.OwnersWithMovements(ctx, period)
	if err != nil {
		return 0, fmt.Errorf("list owners for period %s: %w", period, err)
	}

	sent := 0
	for _, ownerID := range owners {
		if err := j.summarize(ctx, ownerID, period); err != nil {
			slog.ErrorContext(ctx, "Failed to build monthly summary",
				"owner_id", ownerID,
				"period", period,
				"error", err)
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Monthly summary run complete",
		"period", period,
		"owners", len(owners),
		"sent", sent)

	return sent, nil
}

func (j *MonthlySummaryJob) summarize(ctx context.Context, ownerID string, period core.Period) error {
	start, end := period.Bounds()
	movements, err := j.movements.MovementsInWindow(ctx, ownerID, start, end)
	if err != nil {
		return fmt.Errorf("load movements: %w", err)
	}

	income, expenses, savings := decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range movements {
		switch m.Kind {
		case core.Income:
			income = income.Add(m.Amount)
		case core.Expense:
			expenses = expenses.Add(m.Amount)
		case core.Savings:
			savings = savings.Add(m.Amount)
		}
	}

	message := fmt.Sprintf("Income %s, expenses %s, savings %s across %d movements",
		income.StringFixed(2), expenses.StringFixed(2), savings.StringFixed(2), len(movements))
	if flagged := j.countAnomalies(ctx, ownerID, period); flagged > 0 {
		message += fmt.Sprintf(", %d unusual expenses flagged", flagged)
	}

	j.notifier.Dispatch(ctx, ownerID, core.NotificationMonthlySummary,
		fmt.Sprintf("Your %s summary", period), message)

	return nil
}

// countAnomalies counts flagged expenses dated inside the summarized month.
// Analytics failures degrade the digest, they never fail it.
func (j *MonthlySummaryJob) countAnomalies(ctx context.Context, ownerID string, period core.Period) int {
	if j.analytics == nil {
		return 0
	}
	start, end := period.Bounds()
	found, err := j.analytics.DetectAnomalies(ctx, ownerID, end)
	if err != nil {
		slog.WarnContext(ctx, "Anomaly detection unavailable for summary",
			"owner_id", ownerID,
			"period", period,
			"error", err)
		return 0
	}
	flagged := 0
	for _, a := range found {
		if !a.Movement.Date.Before(start) && a.Movement.Date.Before(end) {
			flagged++
		}
	}
	return flagged
}
