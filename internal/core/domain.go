package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income   MovementKind = "income"
	Expense  MovementKind = "expense"
	Savings  MovementKind = "savings"
	Loan     MovementKind = "loan"
	Transfer MovementKind = "transfer"
)

type (
	MovementKind string

	// Movement is a single dated money event. Automated movements are the
	// ones materialized by the recurrence scheduler rather than a user.
	Movement struct {
		ID                string
		OwnerID           string
		Kind              MovementKind
		Amount            decimal.Decimal
		Date              time.Time
		CategoryID        string
		SourceID          string
		GoalID            string
		Recurring         bool
		RecurrencePattern Frequency
		Automated         bool
		Notes             string
		CreatedAt         time.Time
	}
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidKind            = errors.New("invalid movement kind")
	ErrInvalidFrequency       = errors.New("invalid frequency")
	ErrInvalidPeriod          = errors.New("invalid period")
	ErrInvalidDate            = errors.New("invalid date")
	ErrEmptyOwner             = errors.New("empty owner id")
	ErrEmptyName              = errors.New("empty name")
	ErrGoalOnNonSavings       = errors.New("goal id only allowed on savings movements")
	ErrSourceOnNonIncome      = errors.New("source id only allowed on income movements")
	ErrGoalNotActive          = errors.New("goal is not active")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidLimit           = errors.New("invalid budget limit")
	ErrInvalidTarget          = errors.New("invalid target amount")
)

func (k MovementKind) Valid() bool {
	switch k {
	case Income, Expense, Savings, Loan, Transfer:
		return true
	}
	return false
}

// NewMovement creates a movement with a fresh ID. Optional fields are set on
// the returned value before calling Validate.
func NewMovement(ownerID string, kind MovementKind, amount decimal.Decimal, date time.Time) Movement {
	return Movement{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Kind:      kind,
		Amount:    amount,
		Date:      date,
		CreatedAt: time.Now().UTC(),
	}
}

func (m Movement) Validate() error {
	if strings.TrimSpace(m.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if !m.Kind.Valid() {
		return ErrInvalidKind
	}
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if m.Date.IsZero() {
		return ErrInvalidDate
	}
	if m.GoalID != "" && m.Kind != Savings {
		return ErrGoalOnNonSavings
	}
	if m.SourceID != "" && m.Kind != Income {
		return ErrSourceOnNonIncome
	}
	if m.Recurring {
		if !m.RecurrencePattern.Valid() {
			return ErrInvalidFrequency
		}
	} else if m.RecurrencePattern != "" {
		return errors.New("recurrence pattern set on non-recurring movement")
	}
	if len(m.Notes) > 500 {
		return errors.New("notes too long (max 500 characters)")
	}
	return nil
}

// DateOnly truncates a timestamp to its calendar date in UTC. Schedule
// comparisons work on dates, never on clock times.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
