package analytics

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultTopN is the leaderboard length when none is requested.
const DefaultTopN = 5

// RankOptions parameterises Rank. Zero values fall back to defaults.
type RankOptions struct {
	Window  *Window
	Filter  func(MetricRecord) bool
	GroupBy func(MetricRecord) string
	Metric  Selector
	TopN    int
	Actors  map[string]Actor
}

// ByActor groups records by actor id.
func ByActor(r MetricRecord) string { return r.ActorID }

// ByGroup groups records by group id.
func ByGroup(r MetricRecord) string { return r.GroupID }

// Rank sums the metric per group and returns the top groups ordered by value
// descending, ties broken by key ascending. Ranks run 1..N without gaps.
// Records without a group key are skipped.
func Rank(records []MetricRecord, opts RankOptions) ([]LeaderboardEntry, error) {
	if records == nil {
		return nil, fmt.Errorf("analytics: rank: %w", ErrNilCollection)
	}
	groupBy := opts.GroupBy
	if groupBy == nil {
		groupBy = ByActor
	}
	metric := opts.Metric
	if metric == nil {
		metric = ByAmount
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	totals := make(map[string]decimal.Decimal)
	for _, r := range records {
		if opts.Window != nil && !opts.Window.Contains(r.OccurredOn) {
			continue
		}
		if opts.Filter != nil && !opts.Filter(r) {
			continue
		}
		key := groupBy(r)
		if key == "" {
			continue
		}
		current, ok := totals[key]
		if !ok {
			current = decimal.Zero
		}
		totals[key] = current.Add(selectNonNegative(metric, r))
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for key, value := range totals {
		entry := LeaderboardEntry{ActorID: key, DisplayName: key, Value: value}
		if actor, ok := opts.Actors[key]; ok {
			if actor.DisplayName != "" {
				entry.DisplayName = actor.DisplayName
			}
			entry.AvatarRef = actor.AvatarRef
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if cmp := entries[i].Value.Cmp(entries[j].Value); cmp != 0 {
			return cmp > 0
		}
		return entries[i].ActorID < entries[j].ActorID
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
