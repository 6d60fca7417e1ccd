// Package memory is a mutex-guarded in-memory ledger store. It backs the
// service tests and the "memory" data backend, implementing the same store
// interfaces as the SQLite repository.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	mu            sync.Mutex
	movements     map[string]core.Movement
	definitions   map[string]core.RecurrenceDefinition
	goals         map[string]core.Goal
	budgets       map[string]core.Budget
	notifications map[string]core.Notification
	jobRuns       map[string]struct{}
}

func New() *Store {
	return &Store{
		movements:     make(map[string]core.Movement),
		definitions:   make(map[string]core.RecurrenceDefinition),
		goals:         make(map[string]core.Goal),
		budgets:       make(map[string]core.Budget),
		notifications: make(map[string]core.Notification),
		jobRuns:       make(map[string]struct{}),
	}
}

func (s *Store) SaveMovement(_ context.Context, m *core.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.ID] = *m
	return nil
}

func (s *Store) MovementsInWindow(_ context.Context, ownerID string, from, to time.Time) ([]core.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Movement
	for _, m := range s.movements {
		if m.OwnerID != ownerID {
			continue
		}
		if m.Date.Before(from) || !m.Date.Before(to) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) SaveRecurrenceDefinition(_ context.Context, def *core.RecurrenceDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = *def
	return nil
}

func (s *Store) DueRecurrenceDefinitions(_ context.Context, asOf time.Time) ([]core.RecurrenceDefinition, error) {
	day := core.DateOnly(asOf)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurrenceDefinition
	for _, def := range s.definitions {
		if def.Active && !def.NextDueDate.After(day) {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) RecurrenceDefinition(_ context.Context, id string) (*core.RecurrenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[id]
	if !ok {
		return nil, fmt.Errorf("recurrence definition %s: %w", id, ErrNotFound)
	}
	return &def, nil
}

func (s *Store) SaveGoal(_ context.Context, g *core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = *g
	return nil
}

func (s *Store) Goal(_ context.Context, id string) (*core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return &g, nil
}

func (s *Store) SaveBudget(_ context.Context, b *core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.ID] = *b
	return nil
}

func (s *Store) Budget(_ context.Context, ownerID, categoryID string, period core.Period) (*core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.budgets {
		if b.OwnerID == ownerID && b.CategoryID == categoryID && b.Period == period {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) BudgetsNearLimit(_ context.Context, ratio float64) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.Active && !b.AlertSent && b.UsedRatio() >= ratio {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SumExpensesByCategoryAndPeriod(_ context.Context, ownerID, categoryID string, period core.Period) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, m := range s.movements {
		if m.OwnerID == ownerID && m.CategoryID == categoryID && m.Kind == core.Expense && core.PeriodOf(m.Date) == period {
			total = total.Add(m.Amount)
		}
	}
	return total, nil
}

func (s *Store) SaveNotification(_ context.Context, n *core.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = *n
	return nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) PurgeReadNotifications(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for id, n := range s.notifications {
		if n.Read && n.CreatedAt.Before(olderThan) {
			delete(s.notifications, id)
			purged++
		}
	}
	return purged, nil
}

// Notifications returns all notifications for an owner, newest first. Used
// by tests to observe dispatched events.
func (s *Store) Notifications(_ context.Context, ownerID string) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.notifications {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) OwnersWithMovements(_ context.Context, period core.Period) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, m := range s.movements {
		if core.PeriodOf(m.Date) == period {
			seen[m.OwnerID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for owner := range seen {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out, nil
}

// TryAcquireJobRun records a job run for the given day. Returns false when
// the run is already recorded, which callers treat as "someone else ran it".
func (s *Store) TryAcquireJobRun(_ context.Context, jobName, day string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobName + "|" + day
	if _, exists := s.jobRuns[key]; exists {
		return false, nil
	}
	s.jobRuns[key] = struct{}{}
	return true, nil
}

// ReleaseJobRun drops the run record so a failed job can be retried.
func (s *Store) ReleaseJobRun(_ context.Context, jobName, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobRuns, jobName+"|"+day)
	return nil
}
