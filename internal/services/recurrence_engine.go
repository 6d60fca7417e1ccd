// This file implements the pure schedule math for recurrence definitions.
// Each frequency has its own offset strategy; the registry maps frequency
// tokens to strategies the same way new frequencies would be added.

package services

import (
	"time"

	"fintrack/internal/core"
)

// ScheduleOffset advances a run date to the next one for a frequency.
type ScheduleOffset func(from time.Time) time.Time

// scheduleOffsets maps frequency tokens to their offset strategies.
var scheduleOffsets = map[core.Frequency]ScheduleOffset{
	core.Daily:    func(from time.Time) time.Time { return from.AddDate(0, 0, 1) },
	core.Weekly:   func(from time.Time) time.Time { return from.AddDate(0, 0, 7) },
	core.Biweekly: func(from time.Time) time.Time { return from.AddDate(0, 0, 15) },
	core.Monthly:  func(from time.Time) time.Time { return addCalendarMonths(from, 1) },
	core.Yearly:   func(from time.Time) time.Time { return addCalendarMonths(from, 12) },
}

// RegisterScheduleOffset registers an offset strategy for a frequency token,
// allowing extension without touching the engine.
func RegisterScheduleOffset(freq core.Frequency, offset ScheduleOffset) {
	scheduleOffsets[freq] = offset
}

// NextDueDate computes when the definition is next due. A definition that
// has never run is due on its start date; otherwise the frequency offset is
// applied to the date of the last run. An unknown frequency falls back to
// the monthly offset rather than stalling the schedule.
func NextDueDate(def core.RecurrenceDefinition) time.Time {
	if def.LastRunAt == nil {
		return core.DateOnly(def.StartDate)
	}
	offset, ok := scheduleOffsets[def.Frequency]
	if !ok {
		offset = scheduleOffsets[core.Monthly]
	}
	return offset(core.DateOnly(*def.LastRunAt))
}

// IsDue reports whether the definition should run on the given day. Due
// dates in the past still count so missed runs are caught up, never skipped.
func IsDue(def core.RecurrenceDefinition, today time.Time) bool {
	return def.Active && !def.NextDueDate.After(core.DateOnly(today))
}

// Lapsed reports whether the computed next due date falls past the
// definition's end date. Deactivation itself is the scheduler's job; the
// schedule math stays pure.
func Lapsed(def core.RecurrenceDefinition, nextDue time.Time) bool {
	return def.EndDate != nil && nextDue.After(core.DateOnly(*def.EndDate))
}

// addCalendarMonths adds whole calendar months, clamping the day to the last
// day of the target month. time.AddDate would normalize Jan 31 + 1 month
// into March; budgets and schedules expect the end of February instead.
func addCalendarMonths(from time.Time, months int) time.Time {
	y, m, d := from.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := target.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}
