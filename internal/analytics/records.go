package analytics

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Role enumerates the profile roles known to the dashboard.
type Role string

const (
	RoleExecutive Role = "executive"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

// PeriodKind identifies the span a target applies to.
type PeriodKind string

const (
	PeriodMonthly PeriodKind = "monthly"
	PeriodYearly  PeriodKind = "yearly"
)

// MetricRecord is a dated sale or payment.
type MetricRecord struct {
	ID         string          `json:"id"`
	OccurredOn time.Time       `json:"occurred_on"`
	ActorID    string          `json:"actor_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Quantity   decimal.Decimal `json:"quantity"`
	GroupID    string          `json:"group_id,omitempty"`
}

// Actor is a user profile. Date fields recur yearly.
type Actor struct {
	ID                  string     `json:"id"`
	DisplayName         string     `json:"display_name"`
	AvatarRef           string     `json:"avatar_ref,omitempty"`
	Role                Role       `json:"role"`
	ManagerID           string     `json:"manager_id,omitempty"`
	IsActive            bool       `json:"is_active"`
	Birthday            *time.Time `json:"birthday,omitempty"`
	MarriageAnniversary *time.Time `json:"marriage_anniversary,omitempty"`
	JoinDate            *time.Time `json:"join_date,omitempty"`
	// LeapDay lists the date fields recorded as February 29th of a non-leap year.
	// Those fields hold February 28th of the source year and recur on February 29th
	// whenever the target year has one.
	LeapDay []EventKind `json:"leap_day,omitempty"`
}

func (a Actor) recursOnLeapDay(kind EventKind) bool {
	return slices.Contains(a.LeapDay, kind)
}

// Target is a sales goal for an actor over a month or a year.
type Target struct {
	ActorID     string          `json:"actor_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodKind  PeriodKind      `json:"period_kind"`
	Amount      decimal.Decimal `json:"amount"`
}

// MonthlyBucket holds one month of a chart series.
type MonthlyBucket struct {
	Month   time.Time       `json:"month"`
	Label   string          `json:"label"`
	Count   int             `json:"count"`
	AmountA decimal.Decimal `json:"amount_a"`
	AmountB decimal.Decimal `json:"amount_b"`
}

// LeaderboardEntry is a ranked row of a leaderboard.
type LeaderboardEntry struct {
	ActorID     string          `json:"actor_id"`
	DisplayName string          `json:"display_name"`
	AvatarRef   string          `json:"avatar_ref,omitempty"`
	Value       decimal.Decimal `json:"value"`
	Rank        int             `json:"rank"`
}

// EventKind names the recurring date an event was derived from.
type EventKind string

const (
	EventBirthday            EventKind = "birthday"
	EventMarriageAnniversary EventKind = "marriage_anniversary"
	EventWorkAnniversary     EventKind = "work_anniversary"
)

// OccurrenceEvent is an upcoming recurring date of an actor.
type OccurrenceEvent struct {
	ActorID        string    `json:"actor_id"`
	DisplayName    string    `json:"display_name"`
	Kind           EventKind `json:"kind"`
	NextOccurrence time.Time `json:"next_occurrence"`
	DaysUntil      int       `json:"days_until"`
	YearsCompleted int       `json:"years_completed,omitempty"`
}

// Snapshot is the record set a dashboard is computed from.
type Snapshot struct {
	Sales    []MetricRecord
	Payments []MetricRecord
	Targets  []Target
	Actors   []Actor
}

// Rejections tallies rows excluded at ingestion. InvalidDates counts optional
// profile dates that were present but unreadable; their profiles are kept.
type Rejections struct {
	Sales        int `json:"sales"`
	Payments     int `json:"payments"`
	Targets      int `json:"targets"`
	Actors       int `json:"actors"`
	InvalidDates int `json:"invalid_dates"`
}

// Total returns the number of rejected rows across collections. Invalid optional
// dates are not rows and are not included.
func (r Rejections) Total() int {
	return r.Sales + r.Payments + r.Targets + r.Actors
}

// ActorIndex maps actors by id.
func ActorIndex(actors []Actor) map[string]Actor {
	index := make(map[string]Actor, len(actors))
	for _, actor := range actors {
		index[actor.ID] = actor
	}
	return index
}

// TeamOf returns the actor id followed by the ids of its direct reports.
func TeamOf(actors []Actor, actorID string) []string {
	team := []string{actorID}
	for _, actor := range actors {
		if actor.ManagerID == actorID && actor.ID != actorID {
			team = append(team, actor.ID)
		}
	}
	return team
}
