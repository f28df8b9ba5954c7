package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BuildMonthlyBuckets folds two record sources into one bucket per month from
// yearStart's month through now's month. Primary records add to Count and
// AmountA, secondary records add to AmountB.
func BuildMonthlyBuckets(primary, secondary []MetricRecord, yearStart, now time.Time) ([]MonthlyBucket, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("analytics: build monthly buckets: %w", ErrNilCollection)
	}
	start := time.Date(yearStart.Year(), yearStart.Month(), yearStart.Day(), 0, 0, 0, 0, now.Location())
	if start.After(now) {
		return nil, fmt.Errorf("analytics: build monthly buckets: %w", ErrInvalidRange)
	}
	window := Window{Start: start, End: StartOfDay(now).AddDate(0, 0, 1)}
	return foldBuckets(primary, secondary, enumerateMonths(start, now), window), nil
}

// BuildTrailingBuckets folds both sources into the n months ending with now's month.
func BuildTrailingBuckets(primary, secondary []MetricRecord, now time.Time, n int) ([]MonthlyBucket, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("analytics: build trailing buckets: %w", ErrNilCollection)
	}
	months := TrailingMonths(now, n)
	if len(months) == 0 {
		return []MonthlyBucket{}, nil
	}
	window := Window{Start: months[0], End: StartOfDay(now).AddDate(0, 0, 1)}
	return foldBuckets(primary, secondary, months, window), nil
}

func foldBuckets(primary, secondary []MetricRecord, months []time.Time, window Window) []MonthlyBucket {
	buckets := make([]MonthlyBucket, len(months))
	index := make(map[string]int, len(months))
	for i, month := range months {
		label := month.Format(MonthLabelLayout)
		buckets[i] = MonthlyBucket{Month: month, Label: label, AmountA: decimal.Zero, AmountB: decimal.Zero}
		index[label] = i
	}
	loc := window.Start.Location()
	for _, r := range primary {
		if !window.Contains(r.OccurredOn) {
			continue
		}
		if i, ok := index[r.OccurredOn.In(loc).Format(MonthLabelLayout)]; ok {
			buckets[i].Count++
			buckets[i].AmountA = buckets[i].AmountA.Add(selectNonNegative(ByAmount, r))
		}
	}
	for _, r := range secondary {
		if !window.Contains(r.OccurredOn) {
			continue
		}
		if i, ok := index[r.OccurredOn.In(loc).Format(MonthLabelLayout)]; ok {
			buckets[i].AmountB = buckets[i].AmountB.Add(selectNonNegative(ByAmount, r))
		}
	}
	return buckets
}
