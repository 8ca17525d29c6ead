package ledger

import (
	"strings"
	"time"
)

// Frequency is the closed set of recurrence periods.
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	// FrequencyYearly is accepted on schedules but has no confirmed step yet.
	FrequencyYearly Frequency = "YEARLY"
)

// ParseFrequency normalises s into a known Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Known() {
		return "", ErrUnsupportedFrequency
	}
	return f, nil
}

// Known reports whether f is a member of the enumeration.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Step is one recurrence period.
type Step struct {
	Days   int
	Months int
}

// StepFor resolves the period for f, or ErrUnsupportedFrequency.
func StepFor(f Frequency) (Step, error) {
	switch f {
	case FrequencyWeekly:
		return Step{Days: 7}, nil
	case FrequencyMonthly:
		return Step{Months: 1}, nil
	}
	return Step{}, ErrUnsupportedFrequency
}

// Next advances day by one step. Month steps clamp to the last day of the target
// month, so Jan 31 + 1 month is Feb 28 (or 29).
func (s Step) Next(day time.Time) time.Time {
	day = DateOf(day)
	if s.Months != 0 {
		day = addMonthsClamped(day, s.Months)
	}
	if s.Days != 0 {
		day = day.AddDate(0, 0, s.Days)
	}
	return day
}

// FirstAfter steps from `from` until the result is strictly after `after`.
func (s Step) FirstAfter(from, after time.Time) time.Time {
	next := DateOf(from)
	after = DateOf(after)
	for !next.After(after) {
		next = s.Next(next)
	}
	return next
}

func addMonthsClamped(day time.Time, months int) time.Time {
	y, m, d := day.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}
