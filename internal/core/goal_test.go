package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestGoal(t *testing.T, target int64) *Goal {
	t.Helper()
	g, err := NewGoal("owner-1", "emergency fund", decimal.NewFromInt(target))
	if err != nil {
		t.Fatalf("NewGoal() error: %v", err)
	}
	return g
}

func TestGoalState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from GoalState
		to   GoalState
		want bool
	}{
		{GoalActive, GoalCompleted, true},
		{GoalActive, GoalCancelled, true},
		{GoalActive, GoalPaused, true},
		{GoalPaused, GoalActive, true},
		{GoalPaused, GoalCancelled, true},
		{GoalPaused, GoalCompleted, false},
		{GoalCompleted, GoalActive, false},
		{GoalCompleted, GoalCancelled, false},
		{GoalCancelled, GoalActive, false},
		{GoalCancelled, GoalPaused, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestGoal_Contribute(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("non-positive amount rejected", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Contribute(decimal.Zero, now); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Contribute(0) error = %v, want %v", err, ErrInvalidAmount)
		}
	})

	t.Run("adds to current amount", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Contribute(decimal.NewFromInt(250), now); err != nil {
			t.Fatalf("Contribute() error: %v", err)
		}
		if !g.CurrentAmount.Equal(decimal.NewFromInt(250)) {
			t.Errorf("CurrentAmount = %s, want 250", g.CurrentAmount)
		}
		if g.State != GoalActive {
			t.Errorf("State = %s, want active", g.State)
		}
	})

	t.Run("reaching target auto-completes", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Contribute(decimal.NewFromInt(1000), now); err != nil {
			t.Fatalf("Contribute() error: %v", err)
		}
		if g.State != GoalCompleted {
			t.Errorf("State = %s, want completed", g.State)
		}
		if g.CompletedAt == nil {
			t.Error("CompletedAt should be stamped on auto-completion")
		}
	})

	t.Run("overshooting target auto-completes", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Contribute(decimal.NewFromInt(999), now); err != nil {
			t.Fatalf("Contribute() error: %v", err)
		}
		if err := g.Contribute(decimal.NewFromInt(2), now); err != nil {
			t.Fatalf("Contribute() error: %v", err)
		}
		if g.State != GoalCompleted || g.CompletedAt == nil {
			t.Errorf("State = %s, CompletedAt = %v, want completed with timestamp", g.State, g.CompletedAt)
		}
	})

	t.Run("contribution to non-active goal never mutates amount", func(t *testing.T) {
		for _, state := range []GoalState{GoalCompleted, GoalCancelled, GoalPaused} {
			g := newTestGoal(t, 1000)
			g.State = state
			before := g.CurrentAmount
			if err := g.Contribute(decimal.NewFromInt(50), now); !errors.Is(err, ErrGoalNotActive) {
				t.Errorf("Contribute() on %s goal error = %v, want %v", state, err, ErrGoalNotActive)
			}
			if !g.CurrentAmount.Equal(before) {
				t.Errorf("CurrentAmount mutated on rejected contribution to %s goal", state)
			}
		}
	})
}

func TestGoal_Transition(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pause then reactivate", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Transition(GoalPaused, now); err != nil {
			t.Fatalf("Transition(paused) error: %v", err)
		}
		if err := g.Transition(GoalActive, now); err != nil {
			t.Fatalf("Transition(active) error: %v", err)
		}
	})

	t.Run("complete stamps CompletedAt", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Transition(GoalCompleted, now); err != nil {
			t.Fatalf("Transition(completed) error: %v", err)
		}
		if g.CompletedAt == nil || !g.CompletedAt.Equal(now) {
			t.Errorf("CompletedAt = %v, want %v", g.CompletedAt, now)
		}
	})

	t.Run("terminal states reject everything", func(t *testing.T) {
		for _, terminal := range []GoalState{GoalCompleted, GoalCancelled} {
			g := newTestGoal(t, 1000)
			g.State = terminal
			for _, to := range []GoalState{GoalActive, GoalPaused, GoalCompleted, GoalCancelled} {
				if err := g.Transition(to, now); !errors.Is(err, ErrInvalidStateTransition) {
					t.Errorf("Transition(%s -> %s) error = %v, want %v", terminal, to, err, ErrInvalidStateTransition)
				}
			}
		}
	})

	t.Run("unknown target state rejected", func(t *testing.T) {
		g := newTestGoal(t, 1000)
		if err := g.Transition(GoalState("archived"), now); !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("Transition(archived) error = %v, want %v", err, ErrInvalidStateTransition)
		}
	})
}

func TestGoal_ProgressPercent(t *testing.T) {
	g := newTestGoal(t, 1000000)
	if err := g.Contribute(decimal.NewFromInt(250000), time.Now()); err != nil {
		t.Fatalf("Contribute() error: %v", err)
	}
	if pct := g.ProgressPercent(); pct != 25 {
		t.Errorf("ProgressPercent() = %v, want 25", pct)
	}
}
