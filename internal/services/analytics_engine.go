package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

const (
	anomalyWindowDays  = 90
	anomalyStdDevs     = 2.0
	projectionMonths   = 6
	analyticsCacheSize = 256
)

type (
	// MonthProjection is the spend outlook for the current month.
	MonthProjection struct {
		Period            core.Period
		MonthlyAverage    decimal.Decimal
		CurrentMonthSpend decimal.Decimal
		DailyRate         decimal.Decimal
		ProjectedMonthEnd decimal.Decimal
		Comparison        string
	}

	// Anomaly is an expense flagged as a statistical outlier in the trailing
	// window.
	Anomaly struct {
		Movement  core.Movement
		Mean      decimal.Decimal
		Threshold decimal.Decimal
	}

	// GoalForecast is the completion outlook of a goal. Rates are per day.
	GoalForecast struct {
		GoalID              string
		Velocity            decimal.Decimal
		RequiredDailyRate   decimal.Decimal
		ProjectedCompletion *time.Time
		AtRisk              bool
		SuccessProbability  float64
	}
)

// AnalyticsEngine is the read-only statistical layer over persisted
// movements and goals. It never mutates state and fails softly: insufficient
// data yields neutral zero results, not errors. Results are cached per key
// for a short TTL since slightly stale reads are acceptable.
type AnalyticsEngine struct {
	movements MovementReader
	goals     GoalStore

	projections *cache.LRUCache[MonthProjection]
	anomalies   *cache.LRUCache[[]Anomaly]
	forecasts   *cache.LRUCache[GoalForecast]
}

func NewAnalyticsEngine(movements MovementReader, goals GoalStore, cacheTTL time.Duration) *AnalyticsEngine {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AnalyticsEngine{
		movements:   movements,
		goals:       goals,
		projections: cache.NewLRUCache[MonthProjection](analyticsCacheSize, cacheTTL),
		anomalies:   cache.NewLRUCache[[]Anomaly](analyticsCacheSize, cacheTTL),
		forecasts:   cache.NewLRUCache[GoalForecast](analyticsCacheSize, cacheTTL),
	}
}

// RegisterCaches attaches the engine's result caches to the manager's
// periodic expiry sweep.
func (e *AnalyticsEngine) RegisterCaches(m *cache.Manager) {
	m.Register(e.projections)
	m.Register(e.anomalies)
	m.Register(e.forecasts)
}

// ProjectMonth projects the owner's month-end spend from the month-to-date
// daily rate and compares it with the trailing six-month average.
func (e *AnalyticsEngine) ProjectMonth(ctx context.Context, ownerID string, now time.Time) (MonthProjection, error) {
	today := core.DateOnly(now)
	key := fmt.Sprintf("%s:%s", ownerID, today.Format("2006-01-02"))
	if cached, ok := e.projections.Get(key); ok {
		return cached, nil
	}

	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	windowStart := monthStart.AddDate(0, -projectionMonths, 0)

	history, err := e.expensesIn(ctx, ownerID, windowStart, monthStart)
	if err != nil {
		return MonthProjection{}, fmt.Errorf("load expense history: %w", err)
	}
	current, err := e.expensesIn(ctx, ownerID, monthStart, today.AddDate(0, 0, 1))
	if err != nil {
		return MonthProjection{}, fmt.Errorf("load current month expenses: %w", err)
	}

	average := sumAmounts(history).Div(decimal.NewFromInt(projectionMonths))
	spend := sumAmounts(current)

	daysElapsed := today.Day()
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()
	dailyRate := spend.Div(decimal.NewFromInt(int64(daysElapsed)))
	projected := dailyRate.Mul(decimal.NewFromInt(int64(daysInMonth)))

	p := MonthProjection{
		Period:            core.PeriodOf(today),
		MonthlyAverage:    average,
		CurrentMonthSpend: spend,
		DailyRate:         dailyRate,
		ProjectedMonthEnd: projected,
		Comparison:        compareToAverage(projected, average),
	}

	e.projections.Set(key, p)
	return p, nil
}

// DetectAnomalies flags expenses in the trailing 90-day window whose amount
// exceeds the window mean by more than two population standard deviations.
// An empty or single-element window yields no anomalies.
func (e *AnalyticsEngine) DetectAnomalies(ctx context.Context, ownerID string, now time.Time) ([]Anomaly, error) {
	today := core.DateOnly(now)
	key := fmt.Sprintf("%s:%s", ownerID, today.Format("2006-01-02"))
	if cached, ok := e.anomalies.Get(key); ok {
		return cached, nil
	}

	expenses, err := e.expensesIn(ctx, ownerID, today.AddDate(0, 0, -anomalyWindowDays), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load anomaly window: %w", err)
	}
	if len(expenses) == 0 {
		return nil, nil
	}

	amounts := make([]float64, len(expenses))
	var sum float64
	for i, m := range expenses {
		amounts[i], _ = m.Amount.Float64()
		sum += amounts[i]
	}
	mean := sum / float64(len(amounts))

	var sqDiff float64
	for _, a := range amounts {
		sqDiff += (a - mean) * (a - mean)
	}
	stdDev := math.Sqrt(sqDiff / float64(len(amounts)))

	threshold := mean + anomalyStdDevs*stdDev
	var found []Anomaly
	for i, m := range expenses {
		if amounts[i] > threshold {
			found = append(found, Anomaly{
				Movement:  m,
				Mean:      decimal.NewFromFloat(mean).Round(2),
				Threshold: decimal.NewFromFloat(threshold).Round(2),
			})
		}
	}

	e.anomalies.Set(key, found)
	return found, nil
}

// ForecastGoal estimates when the goal will complete at its observed
// contribution velocity and whether that lands past the target date. The
// success probability scales achieved velocity against the required rate,
// damped as the deadline nears, capped to [0, 100].
func (e *AnalyticsEngine) ForecastGoal(ctx context.Context, goalID string, now time.Time) (GoalForecast, error) {
	today := core.DateOnly(now)
	key := fmt.Sprintf("%s:%s", goalID, today.Format("2006-01-02"))
	if cached, ok := e.forecasts.Get(key); ok {
		return cached, nil
	}

	g, err := e.goals.Goal(ctx, goalID)
	if err != nil {
		return GoalForecast{}, fmt.Errorf("load goal: %w", err)
	}

	f := GoalForecast{
		GoalID:            goalID,
		Velocity:          decimal.Zero,
		RequiredDailyRate: decimal.Zero,
	}

	if g.State == core.GoalCompleted {
		f.SuccessProbability = 100
		f.ProjectedCompletion = g.CompletedAt
		e.forecasts.Set(key, f)
		return f, nil
	}

	daysSince := int64(today.Sub(core.DateOnly(g.CreatedAt)).Hours() / 24)
	if daysSince > 0 {
		f.Velocity = g.CurrentAmount.Div(decimal.NewFromInt(daysSince))
	}

	remaining := g.TargetAmount.Sub(g.CurrentAmount)
	if !remaining.IsPositive() {
		f.SuccessProbability = 100
		e.forecasts.Set(key, f)
		return f, nil
	}

	var daysRemaining int64
	if g.TargetDate != nil {
		daysRemaining = int64(core.DateOnly(*g.TargetDate).Sub(today).Hours() / 24)
		if daysRemaining > 0 {
			f.RequiredDailyRate = remaining.Div(decimal.NewFromInt(daysRemaining))
		}
	}

	if f.Velocity.IsPositive() {
		daysToFinish, _ := remaining.Div(f.Velocity).Ceil().Float64()
		projected := today.AddDate(0, 0, int(daysToFinish))
		f.ProjectedCompletion = &projected
		if g.TargetDate != nil {
			f.AtRisk = projected.After(core.DateOnly(*g.TargetDate))
		}
	}

	f.SuccessProbability = successProbability(f.Velocity, f.RequiredDailyRate, daysRemaining, g.TargetDate != nil)

	e.forecasts.Set(key, f)
	return f, nil
}

// successProbability is a heuristic, not a statistic: the ratio of achieved
// to required velocity, damped when little time remains, as a percentage
// capped to [0, 100]. Without a target date there is no required rate and
// the outlook is neutral; a deadline already behind us scores zero.
func successProbability(velocity, required decimal.Decimal, daysRemaining int64, hasTarget bool) float64 {
	if !hasTarget {
		return 50
	}
	if daysRemaining <= 0 || !required.IsPositive() {
		return 0
	}
	ratio, _ := velocity.Div(required).Float64()
	damping := float64(daysRemaining) / float64(daysRemaining+7)
	return math.Max(0, math.Min(100, ratio*damping*100))
}

func (e *AnalyticsEngine) expensesIn(ctx context.Context, ownerID string, from, to time.Time) ([]core.Movement, error) {
	movements, err := e.movements.MovementsInWindow(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	var expenses []core.Movement
	for _, m := range movements {
		if m.Kind == core.Expense {
			expenses = append(expenses, m)
		}
	}
	return expenses, nil
}

func sumAmounts(movements []core.Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Amount)
	}
	return total
}

func compareToAverage(projected, average decimal.Decimal) string {
	if !average.IsPositive() {
		return "no spending history to compare against"
	}
	diff := projected.Sub(average).Div(average).Mul(decimal.NewFromInt(100)).Round(0)
	switch {
	case diff.IsPositive():
		return fmt.Sprintf("projected %s%% above the %d-month average", diff.String(), projectionMonths)
	case diff.IsNegative():
		return fmt.Sprintf("projected %s%% below the %d-month average", diff.Abs().String(), projectionMonths)
	default:
		return fmt.Sprintf("projected in line with the %d-month average", projectionMonths)
	}
}
