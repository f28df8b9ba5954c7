package analytics

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Occurrence is the next calendar date of a recurring date.
type Occurrence struct {
	Date      time.Time
	DaysUntil int
}

// NextOccurrence returns the first date on or after today sharing source's month and day.
// February 29th falls back to February 28th in non-leap years.
func NextOccurrence(source, today time.Time) Occurrence {
	return nextOccurrence(source.Month(), source.Day(), today)
}

func nextOccurrence(month time.Month, dayOfMonth int, today time.Time) Occurrence {
	day := StartOfDay(today)
	candidate := recurrenceIn(month, dayOfMonth, day.Year(), day.Location())
	if candidate.Before(day) {
		candidate = recurrenceIn(month, dayOfMonth, day.Year()+1, day.Location())
	}
	return Occurrence{Date: candidate, DaysUntil: daysBetween(day, candidate)}
}

// YearsCompleted returns the number of full years between source and occurrence.
func YearsCompleted(source, occurrence time.Time) int {
	return occurrence.Year() - source.Year()
}

func recurrenceIn(month time.Month, day, year int, loc *time.Location) time.Time {
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// daysBetween counts calendar days, immune to DST shifts in from's location.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// UpcomingEvents lists recurring dates of active actors due within lookAheadDays of today.
// Work anniversaries are emitted from the first completed year onward.
func UpcomingEvents(actors []Actor, today time.Time, lookAheadDays int) ([]OccurrenceEvent, error) {
	if actors == nil {
		return nil, fmt.Errorf("analytics: upcoming events: %w", ErrNilCollection)
	}
	if lookAheadDays < 0 {
		return nil, fmt.Errorf("analytics: upcoming events: %w", ErrInvalidLookAhead)
	}
	events := make([]OccurrenceEvent, 0)
	for _, actor := range actors {
		if !actor.IsActive {
			continue
		}
		sources := []struct {
			kind EventKind
			date *time.Time
		}{
			{EventBirthday, actor.Birthday},
			{EventMarriageAnniversary, actor.MarriageAnniversary},
			{EventWorkAnniversary, actor.JoinDate},
		}
		for _, src := range sources {
			if src.date == nil || src.date.IsZero() {
				continue
			}
			month, dayOfMonth := src.date.Month(), src.date.Day()
			if actor.recursOnLeapDay(src.kind) {
				month, dayOfMonth = time.February, 29
			}
			next := nextOccurrence(month, dayOfMonth, today)
			if next.DaysUntil > lookAheadDays {
				continue
			}
			years := YearsCompleted(*src.date, next.Date)
			if src.kind == EventWorkAnniversary && years < 1 {
				continue
			}
			if years < 0 {
				years = 0
			}
			events = append(events, OccurrenceEvent{
				ActorID:        actor.ID,
				DisplayName:    actor.DisplayName,
				Kind:           src.kind,
				NextOccurrence: next.Date,
				DaysUntil:      next.DaysUntil,
				YearsCompleted: years,
			})
		}
	}
	sortEvents(events)
	return events, nil
}

func sortEvents(events []OccurrenceEvent) {
	collator := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.DaysUntil != b.DaysUntil {
			return a.DaysUntil < b.DaysUntil
		}
		if cmp := collator.CompareString(a.DisplayName, b.DisplayName); cmp != 0 {
			return cmp < 0
		}
		if a.ActorID != b.ActorID {
			return a.ActorID < b.ActorID
		}
		return kindOrder(a.Kind) < kindOrder(b.Kind)
	})
}

func kindOrder(kind EventKind) int {
	switch kind {
	case EventBirthday:
		return 0
	case EventMarriageAnniversary:
		return 1
	default:
		return 2
	}
}
