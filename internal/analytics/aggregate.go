package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Selector extracts the summed value from a record.
type Selector func(MetricRecord) decimal.Decimal

// ByAmount selects the record amount.
func ByAmount(r MetricRecord) decimal.Decimal { return r.Amount }

// ByQuantity selects the record quantity.
func ByQuantity(r MetricRecord) decimal.Decimal { return r.Quantity }

func selectNonNegative(selector Selector, r MetricRecord) decimal.Decimal {
	value := selector(r)
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}

// SumInWindow sums the selected value of records inside window.
func SumInWindow(records []MetricRecord, window Window, selector Selector) (decimal.Decimal, error) {
	if records == nil {
		return decimal.Zero, fmt.Errorf("analytics: sum in window: %w", ErrNilCollection)
	}
	if selector == nil {
		selector = ByAmount
	}
	total := decimal.Zero
	for _, r := range records {
		if window.Contains(r.OccurredOn) {
			total = total.Add(selectNonNegative(selector, r))
		}
	}
	return total, nil
}

// CountInWindow counts records inside window.
func CountInWindow(records []MetricRecord, window Window) (int, error) {
	if records == nil {
		return 0, fmt.Errorf("analytics: count in window: %w", ErrNilCollection)
	}
	count := 0
	for _, r := range records {
		if window.Contains(r.OccurredOn) {
			count++
		}
	}
	return count, nil
}

// FilterRecords returns the records accepted by keep. A nil keep copies all records.
func FilterRecords(records []MetricRecord, keep func(MetricRecord) bool) []MetricRecord {
	if records == nil {
		return nil
	}
	out := make([]MetricRecord, 0, len(records))
	for _, r := range records {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// ActorFilter keeps records attributed to one of ids.
func ActorFilter(ids []string) func(MetricRecord) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(r MetricRecord) bool {
		_, ok := set[r.ActorID]
		return ok
	}
}

// GrowthPercent returns the percentage change from previous to current.
// A zero baseline yields 100 when current is positive and 0 otherwise.
func GrowthPercent(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return current.Sub(previous).Mul(hundred).Div(previous)
}

// AchievementPercent returns achieved as a percentage of target, 0 when target is 0.
func AchievementPercent(achieved, target decimal.Decimal) decimal.Decimal {
	if target.IsZero() {
		return decimal.Zero
	}
	return achieved.Mul(hundred).Div(target)
}

// TargetFor sums the targets of kind covering periodStart for actorIDs.
// A nil actorIDs includes every actor.
func TargetFor(targets []Target, actorIDs []string, kind PeriodKind, periodStart time.Time) decimal.Decimal {
	var set map[string]struct{}
	if actorIDs != nil {
		set = make(map[string]struct{}, len(actorIDs))
		for _, id := range actorIDs {
			set[id] = struct{}{}
		}
	}
	total := decimal.Zero
	for _, t := range targets {
		if t.PeriodKind != kind || t.Amount.IsNegative() {
			continue
		}
		if set != nil {
			if _, ok := set[t.ActorID]; !ok {
				continue
			}
		}
		if t.PeriodStart.Year() != periodStart.Year() {
			continue
		}
		if kind == PeriodMonthly && t.PeriodStart.Month() != periodStart.Month() {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total
}
