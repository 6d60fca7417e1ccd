package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func testDefinition(t *testing.T, freq core.Frequency, start time.Time) core.RecurrenceDefinition {
	t.Helper()
	tpl := core.MovementTemplate{
		Kind:        core.Expense,
		Amount:      decimal.NewFromInt(50),
		Description: "internet bill",
		CategoryID:  "utilities",
	}
	def, err := core.NewRecurrenceDefinition("owner-1", tpl, freq, start)
	if err != nil {
		t.Fatalf("NewRecurrenceDefinition() error: %v", err)
	}
	return def
}

func TestNextDueDate_NeverRun(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	def := testDefinition(t, core.Monthly, start)

	if got := NextDueDate(def); !got.Equal(start) {
		t.Errorf("NextDueDate() = %v, want start date %v", got, start)
	}
}

func TestNextDueDate_Offsets(t *testing.T) {
	lastRun := time.Date(2026, 1, 15, 23, 10, 0, 0, time.UTC)

	tests := []struct {
		freq core.Frequency
		want time.Time
	}{
		{core.Daily, time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)},
		{core.Weekly, time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)},
		{core.Biweekly, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)},
		{core.Monthly, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)},
		{core.Yearly, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			def := testDefinition(t, tt.freq, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
			def.LastRunAt = &lastRun
			if got := NextDueDate(def); !got.Equal(tt.want) {
				t.Errorf("NextDueDate(%s) = %v, want %v", tt.freq, got, tt.want)
			}
		})
	}
}

func TestNextDueDate_MonthEndClamping(t *testing.T) {
	tests := []struct {
		name    string
		lastRun time.Time
		freq    core.Frequency
		want    time.Time
	}{
		{
			name:    "jan 31 monthly lands on last day of february",
			lastRun: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			freq:    core.Monthly,
			want:    time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "jan 31 monthly in a leap year lands on feb 29",
			lastRun: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			freq:    core.Monthly,
			want:    time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "clamped day is not restored in the following month",
			lastRun: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
			freq:    core.Monthly,
			want:    time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "feb 29 yearly lands on feb 28",
			lastRun: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			freq:    core.Yearly,
			want:    time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition(t, tt.freq, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			def.LastRunAt = &tt.lastRun
			if got := NextDueDate(def); !got.Equal(tt.want) {
				t.Errorf("NextDueDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextDueDate_UnknownFrequencyFallsBackToMonthly(t *testing.T) {
	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	def.Frequency = core.Frequency("quarterly")
	lastRun := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	def.LastRunAt = &lastRun

	want := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	if got := NextDueDate(def); !got.Equal(want) {
		t.Errorf("NextDueDate(unknown frequency) = %v, want monthly fallback %v", got, want)
	}
}

func TestNextDueDate_Deterministic(t *testing.T) {
	def := testDefinition(t, core.Biweekly, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	lastRun := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	def.LastRunAt = &lastRun

	first := NextDueDate(def)
	second := NextDueDate(def)
	if !first.Equal(second) {
		t.Errorf("NextDueDate() not deterministic: %v vs %v", first, second)
	}
}

func TestIsDue(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*core.RecurrenceDefinition)
		today  time.Time
		want   bool
	}{
		{
			name:   "due on start date",
			mutate: func(*core.RecurrenceDefinition) {},
			today:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "not due before start date",
			mutate: func(*core.RecurrenceDefinition) {},
			today:  time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
			want:   false,
		},
		{
			name:   "missed run is caught up, not skipped",
			mutate: func(*core.RecurrenceDefinition) {},
			today:  time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "inactive definition never due",
			mutate: func(def *core.RecurrenceDefinition) { def.Active = false },
			today:  time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition(t, core.Monthly, start)
			tt.mutate(&def)
			if got := IsDue(def, tt.today); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLapsed(t *testing.T) {
	def := testDefinition(t, core.Monthly, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

	if Lapsed(def, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Error("Lapsed() without end date should be false")
	}

	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	def.EndDate = &end
	if !Lapsed(def, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)) {
		t.Error("Lapsed() should be true when next due passes the end date")
	}
	if Lapsed(def, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Error("Lapsed() should be false when next due equals the end date")
	}
}
