package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	GoalActive    GoalState = "active"
	GoalCompleted GoalState = "completed"
	GoalCancelled GoalState = "cancelled"
	GoalPaused    GoalState = "paused"
)

type (
	// GoalState is the persisted lifecycle token of a goal. Completed and
	// cancelled are terminal.
	GoalState string

	// Goal is a savings target with a progress amount and a lifecycle state.
	// CurrentAmount only ever increases, via Contribute.
	Goal struct {
		ID            string
		OwnerID       string
		Name          string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		TargetDate    *time.Time
		Priority      int
		State         GoalState
		CreatedAt     time.Time
		CompletedAt   *time.Time
	}
)

// goalTransitions is the allowed state graph. Terminal states have no
// outgoing edges.
var goalTransitions = map[GoalState][]GoalState{
	GoalActive:    {GoalCompleted, GoalCancelled, GoalPaused},
	GoalPaused:    {GoalActive, GoalCancelled},
	GoalCompleted: {},
	GoalCancelled: {},
}

func (s GoalState) Valid() bool {
	_, ok := goalTransitions[s]
	return ok
}

// CanTransitionTo reports whether the state graph allows moving to the given
// state.
func (s GoalState) CanTransitionTo(to GoalState) bool {
	for _, allowed := range goalTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NewGoal creates an active goal with no progress.
func NewGoal(ownerID, name string, targetAmount decimal.Decimal) (*Goal, error) {
	g := &Goal{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Name:          name,
		TargetAmount:  targetAmount,
		CurrentAmount: decimal.Zero,
		State:         GoalActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Goal) Validate() error {
	if strings.TrimSpace(g.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidTarget
	}
	if g.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if !g.State.Valid() {
		return ErrInvalidStateTransition
	}
	return nil
}

// Contribute adds amount to the goal's progress. When the target is reached
// the goal auto-completes and CompletedAt is stamped.
func (g *Goal) Contribute(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if g.State != GoalActive {
		return ErrGoalNotActive
	}
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	if g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.State = GoalCompleted
		completed := now.UTC()
		g.CompletedAt = &completed
	}
	return nil
}

// Transition moves the goal to the requested state, validating against the
// transition graph.
func (g *Goal) Transition(to GoalState, now time.Time) error {
	if !to.Valid() || !g.State.CanTransitionTo(to) {
		return ErrInvalidStateTransition
	}
	g.State = to
	if to == GoalCompleted {
		completed := now.UTC()
		g.CompletedAt = &completed
	}
	return nil
}

// ProgressPercent returns the goal progress as a percentage of the target,
// zero when the target is not positive.
func (g *Goal) ProgressPercent() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	pct, _ := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
