package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SaleRow is an untyped sale as read from the record source.
type SaleRow struct {
	ID         string `validate:"required"`
	OccurredOn string `validate:"required"`
	ActorID    string
	Amount     string
	Quantity   string
	ProjectID  string
}

// PaymentRow is an untyped payment as read from the record source.
type PaymentRow struct {
	ID      string `validate:"required"`
	PaidOn  string `validate:"required"`
	ActorID string
	Amount  string
	SaleID  string
}

// TargetRow is an untyped target as read from the record source.
type TargetRow struct {
	ActorID     string `validate:"required"`
	PeriodStart string `validate:"required"`
	PeriodKind  string `validate:"required,oneof=monthly yearly"`
	Amount      string
}

// ProfileRow is an untyped profile as read from the record source.
type ProfileRow struct {
	ID                  string `validate:"required"`
	DisplayName         string
	AvatarURL           string `validate:"omitempty,max=2048"`
	Role                string `validate:"omitempty,oneof=executive manager admin"`
	ManagerID           string
	IsActive            bool
	Birthday            string
	MarriageAnniversary string
	JoinDate            string
}

// RawSnapshot groups untyped rows of every collection.
type RawSnapshot struct {
	Sales    []SaleRow
	Payments []PaymentRow
	Targets  []TargetRow
	Profiles []ProfileRow
}

var errEmptyDate = errors.New("empty date")

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
}

// Ingestor types raw rows and excludes the ones that fail validation.
// It is safe for concurrent use.
type Ingestor struct {
	validate *validator.Validate
	loc      *time.Location
}

// NewIngestor builds an Ingestor that interprets bare dates in loc.
func NewIngestor(loc *time.Location) *Ingestor {
	if loc == nil {
		loc = time.UTC
	}
	return &Ingestor{validate: validator.New(), loc: loc}
}

// Snapshot types every collection of raw and tallies rejected rows.
func (in *Ingestor) Snapshot(raw RawSnapshot) (Snapshot, Rejections) {
	var snap Snapshot
	var rej Rejections
	snap.Sales, rej.Sales = in.Sales(raw.Sales)
	snap.Payments, rej.Payments = in.Payments(raw.Payments)
	snap.Targets, rej.Targets = in.Targets(raw.Targets)
	snap.Actors, rej.Actors, rej.InvalidDates = in.actors(raw.Profiles)
	return snap, rej
}

// Sales converts sale rows. Negative amounts are clamped to zero.
func (in *Ingestor) Sales(rows []SaleRow) ([]MetricRecord, int) {
	out := make([]MetricRecord, 0, len(rows))
	rejected := 0
	for _, row := range rows {
		record, err := in.sale(row)
		if err != nil {
			rejected++
			continue
		}
		out = append(out, record)
	}
	return out, rejected
}

func (in *Ingestor) sale(row SaleRow) (MetricRecord, error) {
	if err := in.validate.Struct(row); err != nil {
		return MetricRecord{}, err
	}
	occurred, err := in.ParseDate(row.OccurredOn)
	if err != nil {
		return MetricRecord{}, err
	}
	amount, err := parseAmount(row.Amount)
	if err != nil {
		return MetricRecord{}, err
	}
	quantity, err := parseAmount(row.Quantity)
	if err != nil {
		return MetricRecord{}, err
	}
	return MetricRecord{
		ID:         row.ID,
		OccurredOn: occurred,
		ActorID:    strings.TrimSpace(row.ActorID),
		Amount:     amount,
		Quantity:   quantity,
		GroupID:    strings.TrimSpace(row.ProjectID),
	}, nil
}

// Payments converts payment rows. The sale id becomes the group id.
func (in *Ingestor) Payments(rows []PaymentRow) ([]MetricRecord, int) {
	out := make([]MetricRecord, 0, len(rows))
	rejected := 0
	for _, row := range rows {
		if err := in.validate.Struct(row); err != nil {
			rejected++
			continue
		}
		paid, err := in.ParseDate(row.PaidOn)
		if err != nil {
			rejected++
			continue
		}
		amount, err := parseAmount(row.Amount)
		if err != nil {
			rejected++
			continue
		}
		out = append(out, MetricRecord{
			ID:         row.ID,
			OccurredOn: paid,
			ActorID:    strings.TrimSpace(row.ActorID),
			Amount:     amount,
			Quantity:   decimal.Zero,
			GroupID:    strings.TrimSpace(row.SaleID),
		})
	}
	return out, rejected
}

// Targets converts target rows.
func (in *Ingestor) Targets(rows []TargetRow) ([]Target, int) {
	out := make([]Target, 0, len(rows))
	rejected := 0
	for _, row := range rows {
		if err := in.validate.Struct(row); err != nil {
			rejected++
			continue
		}
		start, err := in.ParseDate(row.PeriodStart)
		if err != nil {
			rejected++
			continue
		}
		amount, err := parseAmount(row.Amount)
		if err != nil {
			rejected++
			continue
		}
		out = append(out, Target{
			ActorID:     row.ActorID,
			PeriodStart: start,
			PeriodKind:  PeriodKind(row.PeriodKind),
			Amount:      amount,
		})
	}
	return out, rejected
}

// Actors converts profile rows. A malformed optional date leaves the field unset.
func (in *Ingestor) Actors(rows []ProfileRow) ([]Actor, int) {
	out, rejected, _ := in.actors(rows)
	return out, rejected
}

func (in *Ingestor) actors(rows []ProfileRow) ([]Actor, int, int) {
	out := make([]Actor, 0, len(rows))
	rejected, invalidDates := 0, 0
	for _, row := range rows {
		if err := in.validate.Struct(row); err != nil {
			rejected++
			continue
		}
		role := Role(row.Role)
		if role == "" {
			role = RoleExecutive
		}
		actor := Actor{
			ID:          row.ID,
			DisplayName: strings.TrimSpace(row.DisplayName),
			AvatarRef:   row.AvatarURL,
			Role:        role,
			ManagerID:   strings.TrimSpace(row.ManagerID),
			IsActive:    row.IsActive,
		}
		dates := []struct {
			kind EventKind
			raw  string
			dst  **time.Time
		}{
			{EventBirthday, row.Birthday, &actor.Birthday},
			{EventMarriageAnniversary, row.MarriageAnniversary, &actor.MarriageAnniversary},
			{EventWorkAnniversary, row.JoinDate, &actor.JoinDate},
		}
		for _, d := range dates {
			if strings.TrimSpace(d.raw) == "" {
				continue
			}
			t, leapDay, err := in.recurringDate(d.raw)
			if err != nil {
				invalidDates++
				continue
			}
			*d.dst = &t
			if leapDay {
				actor.LeapDay = append(actor.LeapDay, d.kind)
			}
		}
		out = append(out, actor)
	}
	return out, rejected, invalidDates
}

// ParseDate accepts ISO dates and timestamps. Bare dates resolve to midnight in the
// ingestor location; timestamps are converted to it.
func (in *Ingestor) ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errEmptyDate
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, in.loc)
		if err == nil {
			return t.In(in.loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("analytics: parse date %q", raw)
}

// recurringDate parses a yearly date. February 29th of a non-leap year has no
// time.Time; it becomes February 28th of that year and leapDay is set.
func (in *Ingestor) recurringDate(raw string) (t time.Time, leapDay bool, err error) {
	t, err = in.ParseDate(raw)
	if err == nil {
		return t, false, nil
	}
	value := strings.TrimSpace(raw)
	if len(value) != len("2006-02-29") || value[4:] != "-02-29" {
		return time.Time{}, false, err
	}
	year, convErr := strconv.Atoi(value[:4])
	if convErr != nil || isLeap(year) {
		return time.Time{}, false, err
	}
	return time.Date(year, time.February, 28, 0, 0, 0, 0, in.loc), true, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("analytics: parse amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	return amount, nil
}
