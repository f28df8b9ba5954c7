package analytics

import (
	"fmt"
	"strings"
	"time"
)

// WindowKind names a time window relative to a reference instant.
type WindowKind string

const (
	WindowToday         WindowKind = "today"
	WindowThisWeek      WindowKind = "this_week"
	WindowThisMonth     WindowKind = "this_month"
	WindowThisYear      WindowKind = "this_year"
	WindowPreviousMonth WindowKind = "previous_month"
	WindowPreviousYear  WindowKind = "previous_year"

	// The previous period cut at the same point as the current to-date window.
	WindowPreviousMonthToDate WindowKind = "previous_month_to_date"
	WindowPreviousYearToDate  WindowKind = "previous_year_to_date"
)

// MonthLabelLayout formats bucket labels.
const MonthLabelLayout = "2006-01"

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type windowConfig struct {
	weekStart time.Weekday
}

// WindowOption customises window resolution.
type WindowOption func(*windowConfig)

// WithWeekStart sets the first day of the week. Sunday when unset.
func WithWeekStart(day time.Weekday) WindowOption {
	return func(cfg *windowConfig) {
		if day >= time.Sunday && day <= time.Saturday {
			cfg.weekStart = day
		}
	}
}

// ResolveWindow computes the boundaries of kind relative to now.
// To-date windows end at the midnight following now.
func ResolveWindow(now time.Time, kind WindowKind, opts ...WindowOption) (Window, error) {
	cfg := windowConfig{weekStart: time.Sunday}
	for _, opt := range opts {
		opt(&cfg)
	}
	today := StartOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	switch kind {
	case WindowToday:
		return Window{Start: today, End: tomorrow}, nil
	case WindowThisWeek:
		offset := (int(today.Weekday()) - int(cfg.weekStart) + 7) % 7
		return Window{Start: today.AddDate(0, 0, -offset), End: tomorrow}, nil
	case WindowThisMonth:
		return Window{Start: StartOfMonth(now), End: tomorrow}, nil
	case WindowThisYear:
		return Window{Start: StartOfYear(now), End: tomorrow}, nil
	case WindowPreviousMonth:
		current := StartOfMonth(now)
		return Window{Start: current.AddDate(0, -1, 0), End: current}, nil
	case WindowPreviousYear:
		current := StartOfYear(now)
		return Window{Start: current.AddDate(-1, 0, 0), End: current}, nil
	case WindowPreviousMonthToDate:
		start := StartOfMonth(now).AddDate(0, -1, 0)
		last := clampedDate(start.Year(), start.Month(), now.Day(), now.Location())
		return Window{Start: start, End: last.AddDate(0, 0, 1)}, nil
	case WindowPreviousYearToDate:
		start := StartOfYear(now).AddDate(-1, 0, 0)
		last := clampedDate(start.Year(), now.Month(), now.Day(), now.Location())
		return Window{Start: start, End: last.AddDate(0, 0, 1)}, nil
	default:
		return Window{}, fmt.Errorf("analytics: resolve window %q: %w", kind, ErrUnknownWindow)
	}
}

// ParseWindowKind validates a window name.
func ParseWindowKind(raw string) (WindowKind, error) {
	kind := WindowKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case WindowToday, WindowThisWeek, WindowThisMonth, WindowThisYear,
		WindowPreviousMonth, WindowPreviousYear, WindowPreviousMonthToDate, WindowPreviousYearToDate:
		return kind, nil
	}
	return "", fmt.Errorf("analytics: parse window %q: %w", raw, ErrUnknownWindow)
}

// ParseWeekday accepts english weekday names such as "sunday" or "mon".
func ParseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if len(value) >= 3 {
		for day := time.Sunday; day <= time.Saturday; day++ {
			name := strings.ToLower(day.String())
			if strings.HasPrefix(name, value) {
				return day, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("analytics: unknown weekday %q", raw)
}

// TrailingMonths returns n month starts ending with the month containing now, oldest first.
func TrailingMonths(now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	current := StartOfMonth(now)
	months := make([]time.Time, n)
	for i := range n {
		months[i] = current.AddDate(0, i-n+1, 0)
	}
	return months
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfMonth returns midnight on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfYear returns midnight on January 1st of t's year.
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// clampedDate returns midnight of day in the given month, or of the month's last
// day when the month is shorter.
func clampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day(); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func enumerateMonths(from, to time.Time) []time.Time {
	if from.After(to) {
		return nil
	}
	var months []time.Time
	current := StartOfMonth(from)
	end := StartOfMonth(to)
	for !current.After(end) {
		months = append(months, current)
		current = current.AddDate(0, 1, 0)
	}
	return months
}
