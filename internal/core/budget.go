package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type (
	// Period is a calendar-month bucket in "YYYY-MM" form. The token format
	// is part of the persisted contract and must not change.
	Period string

	// Budget is a per-category spending cap for one period. AlertSent makes
	// threshold alerting single-fire: it never resets within a period, a new
	// period gets a new budget row.
	Budget struct {
		ID         string
		OwnerID    string
		CategoryID string
		Limit      decimal.Decimal
		Period     Period
		Consumed   decimal.Decimal
		AlertSent  bool
		Active     bool
	}
)

const periodLayout = "2006-01"

// PeriodOf returns the period bucket containing the given time.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

func (p Period) Validate() error {
	if _, err := time.Parse(periodLayout, string(p)); err != nil {
		return ErrInvalidPeriod
	}
	return nil
}

// Bounds returns the half-open time range [start, end) covered by the
// period. Zero times for an invalid token.
func (p Period) Bounds() (time.Time, time.Time) {
	start, err := time.Parse(periodLayout, string(p))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return start, start.AddDate(0, 1, 0)
}

// NewBudget creates an active budget with nothing consumed and no alert
// fired.
func NewBudget(ownerID, categoryID string, limit decimal.Decimal, period Period) (*Budget, error) {
	b := &Budget{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		CategoryID: categoryID,
		Limit:      limit,
		Period:     period,
		Consumed:   decimal.Zero,
		Active:     true,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Budget) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyName
	}
	if !b.Limit.IsPositive() {
		return ErrInvalidLimit
	}
	if b.Consumed.IsNegative() {
		return ErrInvalidAmount
	}
	return b.Period.Validate()
}

// UsedRatio returns consumed/limit, zero when the limit is not positive.
func (b *Budget) UsedRatio() float64 {
	if !b.Limit.IsPositive() {
		return 0
	}
	ratio, _ := b.Consumed.Div(b.Limit).Float64()
	return ratio
}
