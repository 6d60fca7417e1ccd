// Package storage is the SQLite persistence layer. One repository implements
// every store interface the services depend on; schema changes go through
// embedded golang-migrate migrations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Timestamps are persisted as RFC3339 UTC strings so schedule comparisons
// can run lexicographically in SQL.
const timeLayout = time.RFC3339

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func decodeTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SQLiteRepository) SaveMovement(ctx context.Context, m *core.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movements (id, owner_id, kind, amount, date, category_id, source_id, goal_id,
			recurring, recurrence_pattern, automated, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			amount = excluded.amount,
			date = excluded.date,
			category_id = excluded.category_id,
			source_id = excluded.source_id,
			goal_id = excluded.goal_id,
			recurring = excluded.recurring,
			recurrence_pattern = excluded.recurrence_pattern,
			automated = excluded.automated,
			notes = excluded.notes`,
		m.ID, m.OwnerID, m.Kind, m.Amount.String(), encodeTime(m.Date),
		m.CategoryID, m.SourceID, m.GoalID,
		m.Recurring, string(m.RecurrencePattern), m.Automated, m.Notes, encodeTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("save movement %s: %w", m.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) MovementsInWindow(ctx context.Context, ownerID string, from, to time.Time) ([]core.Movement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, amount, date, category_id, source_id, goal_id,
			recurring, recurrence_pattern, automated, notes, created_at
		FROM movements
		WHERE owner_id = ? AND date >= ? AND date < ?
		ORDER BY date`,
		ownerID, encodeTime(from), encodeTime(to))
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var out []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMovement(rows *sql.Rows) (core.Movement, error) {
	var (
		m                       core.Movement
		amount, date, createdAt string
		pattern                 string
	)
	err := rows.Scan(&m.ID, &m.OwnerID, &m.Kind, &amount, &date,
		&m.CategoryID, &m.SourceID, &m.GoalID,
		&m.Recurring, &pattern, &m.Automated, &m.Notes, &createdAt)
	if err != nil {
		return core.Movement{}, fmt.Errorf("scan movement: %w", err)
	}

	if m.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Movement{}, fmt.Errorf("decode movement amount %q: %w", amount, err)
	}
	if m.Date, err = decodeTime(date); err != nil {
		return core.Movement{}, fmt.Errorf("decode movement date %q: %w", date, err)
	}
	if m.CreatedAt, err = decodeTime(createdAt); err != nil {
		return core.Movement{}, fmt.Errorf("decode movement created_at %q: %w", createdAt, err)
	}
	m.RecurrencePattern = core.Frequency(pattern)
	return m, nil
}

func (r *SQLiteRepository) SaveRecurrenceDefinition(ctx context.Context, def *core.RecurrenceDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurrence_definitions (id, owner_id, kind, amount, description,
			category_id, source_id, goal_id, frequency, start_date, end_date,
			next_due_date, last_run_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			amount = excluded.amount,
			description = excluded.description,
			category_id = excluded.category_id,
			source_id = excluded.source_id,
			goal_id = excluded.goal_id,
			frequency = excluded.frequency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			next_due_date = excluded.next_due_date,
			last_run_at = excluded.last_run_at,
			active = excluded.active`,
		def.ID, def.OwnerID, def.Template.Kind, def.Template.Amount.String(), def.Template.Description,
		def.Template.CategoryID, def.Template.SourceID, def.Template.GoalID,
		string(def.Frequency), encodeTime(def.StartDate), encodeTimePtr(def.EndDate),
		encodeTime(def.NextDueDate), encodeTimePtr(def.LastRunAt), def.Active)
	if err != nil {
		return fmt.Errorf("save recurrence definition %s: %w", def.ID, err)
	}
	return nil
}

const definitionColumns = `id, owner_id, kind, amount, description, category_id, source_id, goal_id,
	frequency, start_date, end_date, next_due_date, last_run_at, active`

func (r *SQLiteRepository) DueRecurrenceDefinitions(ctx context.Context, asOf time.Time) ([]core.RecurrenceDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+definitionColumns+`
		FROM recurrence_definitions
		WHERE active = 1 AND next_due_date <= ?
		ORDER BY next_due_date, id`,
		encodeTime(core.DateOnly(asOf)))
	if err != nil {
		return nil, fmt.Errorf("query due definitions: %w", err)
	}
	defer rows.Close()

	var out []core.RecurrenceDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RecurrenceDefinition(ctx context.Context, id string) (*core.RecurrenceDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+definitionColumns+`
		FROM recurrence_definitions
		WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query definition: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("recurrence definition %s: %w", id, ErrNotFound)
	}
	def, err := scanDefinition(rows)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func scanDefinition(rows *sql.Rows) (core.RecurrenceDefinition, error) {
	var (
		def                        core.RecurrenceDefinition
		amount, startDate, nextDue string
		endDate, lastRun           sql.NullString
		frequency                  string
	)
	err := rows.Scan(&def.ID, &def.OwnerID, &def.Template.Kind, &amount, &def.Template.Description,
		&def.Template.CategoryID, &def.Template.SourceID, &def.Template.GoalID,
		&frequency, &startDate, &endDate, &nextDue, &lastRun, &def.Active)
	if err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("scan definition: %w", err)
	}

	if def.Template.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("decode definition amount %q: %w", amount, err)
	}
	def.Frequency = core.Frequency(frequency)
	if def.StartDate, err = decodeTime(startDate); err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("decode definition start_date %q: %w", startDate, err)
	}
	if def.NextDueDate, err = decodeTime(nextDue); err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("decode definition next_due_date %q: %w", nextDue, err)
	}
	if def.EndDate, err = decodeTimePtr(endDate); err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("decode definition end_date: %w", err)
	}
	if def.LastRunAt, err = decodeTimePtr(lastRun); err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("decode definition last_run_at: %w", err)
	}
	return def, nil
}

func (r *SQLiteRepository) SaveGoal(ctx context.Context, g *core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, owner_id, name, target_amount, current_amount,
			target_date, priority, state, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			target_amount = excluded.target_amount,
			current_amount = excluded.current_amount,
			target_date = excluded.target_date,
			priority = excluded.priority,
			state = excluded.state,
			completed_at = excluded.completed_at`,
		g.ID, g.OwnerID, g.Name, g.TargetAmount.String(), g.CurrentAmount.String(),
		encodeTimePtr(g.TargetDate), g.Priority, string(g.State),
		encodeTime(g.CreatedAt), encodeTimePtr(g.CompletedAt))
	if err != nil {
		return fmt.Errorf("save goal %s: %w", g.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Goal(ctx context.Context, id string) (*core.Goal, error) {
	var (
		g                          core.Goal
		target, current, createdAt string
		targetDate, completedAt    sql.NullString
		state                      string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, target_amount, current_amount,
			target_date, priority, state, created_at, completed_at
		FROM goals WHERE id = ?`, id).
		Scan(&g.ID, &g.OwnerID, &g.Name, &target, &current,
			&targetDate, &g.Priority, &state, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query goal: %w", err)
	}

	if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("decode goal target_amount %q: %w", target, err)
	}
	if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("decode goal current_amount %q: %w", current, err)
	}
	g.State = core.GoalState(state)
	if g.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode goal created_at %q: %w", createdAt, err)
	}
	if g.TargetDate, err = decodeTimePtr(targetDate); err != nil {
		return nil, fmt.Errorf("decode goal target_date: %w", err)
	}
	if g.CompletedAt, err = decodeTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("decode goal completed_at: %w", err)
	}
	return &g, nil
}

func (r *SQLiteRepository) SaveBudget(ctx context.Context, b *core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, owner_id, category_id, limit_amount, period,
			consumed, alert_sent, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			limit_amount = excluded.limit_amount,
			consumed = excluded.consumed,
			alert_sent = excluded.alert_sent,
			active = excluded.active`,
		b.ID, b.OwnerID, b.CategoryID, b.Limit.String(), string(b.Period),
		b.Consumed.String(), b.AlertSent, b.Active)
	if err != nil {
		return fmt.Errorf("save budget %s: %w", b.ID, err)
	}
	return nil
}

const budgetColumns = `id, owner_id, category_id, limit_amount, period, consumed, alert_sent, active`

// Budget returns (nil, nil) when no row exists: the monitor treats a missing
// budget as "nothing to watch", not as an error.
func (r *SQLiteRepository) Budget(ctx context.Context, ownerID, categoryID string, period core.Period) (*core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets
		WHERE owner_id = ? AND category_id = ? AND period = ?`,
		ownerID, categoryID, string(period))
	if err != nil {
		return nil, fmt.Errorf("query budget: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	b, err := scanBudget(rows)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *SQLiteRepository) BudgetsNearLimit(ctx context.Context, ratio float64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets
		WHERE active = 1 AND alert_sent = 0
			AND CAST(consumed AS REAL) >= CAST(limit_amount AS REAL) * ?
		ORDER BY id`, ratio)
	if err != nil {
		return nil, fmt.Errorf("query budgets near limit: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBudget(rows *sql.Rows) (core.Budget, error) {
	var (
		b               core.Budget
		limit, consumed string
		period          string
	)
	err := rows.Scan(&b.ID, &b.OwnerID, &b.CategoryID, &limit, &period,
		&consumed, &b.AlertSent, &b.Active)
	if err != nil {
		return core.Budget{}, fmt.Errorf("scan budget: %w", err)
	}

	if b.Limit, err = decimal.NewFromString(limit); err != nil {
		return core.Budget{}, fmt.Errorf("decode budget limit %q: %w", limit, err)
	}
	if b.Consumed, err = decimal.NewFromString(consumed); err != nil {
		return core.Budget{}, fmt.Errorf("decode budget consumed %q: %w", consumed, err)
	}
	b.Period = core.Period(period)
	return b, nil
}

// SumExpensesByCategoryAndPeriod totals expense amounts in Go rather than in
// SQL so decimal precision survives the round trip.
func (r *SQLiteRepository) SumExpensesByCategoryAndPeriod(ctx context.Context, ownerID, categoryID string, period core.Period) (decimal.Decimal, error) {
	start, end := period.Bounds()
	rows, err := r.db.QueryContext(ctx, `
		SELECT amount FROM movements
		WHERE owner_id = ? AND category_id = ? AND kind = ?
			AND date >= ? AND date < ?`,
		ownerID, categoryID, string(core.Expense), encodeTime(start), encodeTime(end))
	if err != nil {
		return decimal.Zero, fmt.Errorf("query category expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan expense amount: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("decode expense amount %q: %w", amount, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (r *SQLiteRepository) SaveNotification(ctx context.Context, n *core.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, owner_id, type, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OwnerID, string(n.Type), n.Title, n.Message, n.Read, encodeTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("save notification %s: %w", n.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Notifications(ctx context.Context, ownerID string) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, type, title, message, read, created_at
		FROM notifications
		WHERE owner_id = ?
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n         core.Notification
			typ       string
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.OwnerID, &typ, &n.Title, &n.Message, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = core.NotificationType(typ)
		if n.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("decode notification created_at %q: %w", createdAt, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) PurgeReadNotifications(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE read = 1 AND created_at < ?`,
		encodeTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge read notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) OwnersWithMovements(ctx context.Context, period core.Period) ([]string, error) {
	start, end := period.Bounds()
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT owner_id FROM movements
		WHERE date >= ? AND date < ?
		ORDER BY owner_id`,
		encodeTime(start), encodeTime(end))
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

// TryAcquireJobRun inserts a run marker for the job and day. A conflict means
// another process already ran the job today.
func (r *SQLiteRepository) TryAcquireJobRun(ctx context.Context, jobName, day string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO job_runs (job_name, run_day, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT (job_name, run_day) DO NOTHING`,
		jobName, day, encodeTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("acquire job run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire job run: %w", err)
	}
	return affected > 0, nil
}

// ReleaseJobRun drops the run marker so a failed job can be retried.
func (r *SQLiteRepository) ReleaseJobRun(ctx context.Context, jobName, day string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM job_runs WHERE job_name = ? AND run_day = ?`, jobName, day)
	if err != nil {
		return fmt.Errorf("release job run: %w", err)
	}
	return nil
}
