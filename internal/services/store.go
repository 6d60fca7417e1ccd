// Package services holds the automation and monitoring engine: recurring
// movement scheduling, the goal lifecycle, budget threshold alerting,
// notification dispatch and the read-only analytics layer.
//
// Services depend on narrow store interfaces defined here; the SQLite
// repository and the in-memory store implement all of them.
package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// RecurrenceStore is the ledger surface used by the recurrence scheduler.
type RecurrenceStore interface {
	// DueRecurrenceDefinitions returns active definitions with a next due
	// date on or before asOf.
	DueRecurrenceDefinitions(ctx context.Context, asOf time.Time) ([]core.RecurrenceDefinition, error)
	SaveRecurrenceDefinition(ctx context.Context, def *core.RecurrenceDefinition) error
	SaveMovement(ctx context.Context, m *core.Movement) error
}

// GoalStore is the ledger surface used by the goal ledger and the goal
// forecast.
type GoalStore interface {
	// Goal returns an error when the goal does not exist.
	Goal(ctx context.Context, id string) (*core.Goal, error)
	SaveGoal(ctx context.Context, g *core.Goal) error
}

// BudgetStore is the ledger surface used by the budget monitor.
type BudgetStore interface {
	// Budget returns (nil, nil) when no budget row exists for the key.
	Budget(ctx context.Context, ownerID, categoryID string, period core.Period) (*core.Budget, error)
	// BudgetsNearLimit returns active, not-yet-alerted budgets whose used
	// ratio is at or above the given threshold.
	BudgetsNearLimit(ctx context.Context, ratio float64) ([]core.Budget, error)
	SaveBudget(ctx context.Context, b *core.Budget) error
	SumExpensesByCategoryAndPeriod(ctx context.Context, ownerID, categoryID string, period core.Period) (decimal.Decimal, error)
}

// MovementReader provides windowed movement queries for analytics and
// summaries. The window is half-open: [from, to).
type MovementReader interface {
	MovementsInWindow(ctx context.Context, ownerID string, from, to time.Time) ([]core.Movement, error)
}

// NotificationStore persists notification records.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *core.Notification) error
}

// NotificationPurger removes old read notifications, returning the number
// deleted.
type NotificationPurger interface {
	PurgeReadNotifications(ctx context.Context, olderThan time.Time) (int64, error)
}

// OwnerReader lists owners with at least one movement in a period.
type OwnerReader interface {
	OwnersWithMovements(ctx context.Context, period core.Period) ([]string, error)
}
