package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salespulse/salespulse/internal/analytics"
)

// Scope selects whose records a dashboard covers.
type Scope string

const (
	ScopeIndividual   Scope = "individual"
	ScopeManager      Scope = "manager"
	ScopeOrganization Scope = "organization"
)

const (
	// DefaultLookAheadDays bounds upcoming events when the caller does not choose.
	DefaultLookAheadDays = 30
	// DefaultTrailingMonths is the length of the trailing chart series.
	DefaultTrailingMonths = 6
)

// DefaultLeaderboardWindows lists the leaderboards composed when none are requested.
var DefaultLeaderboardWindows = []analytics.WindowKind{
	analytics.WindowToday,
	analytics.WindowThisWeek,
	analytics.WindowThisMonth,
	analytics.WindowThisYear,
}

// ParseScope validates a scope name.
func ParseScope(raw string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(raw)))
	switch scope {
	case ScopeIndividual, ScopeManager, ScopeOrganization:
		return scope, nil
	}
	return "", fmt.Errorf("dashboard: parse scope %q: %w", raw, ErrUnknownScope)
}

// Request parameterises a composition. Use NewRequest for defaults.
type Request struct {
	Scope              Scope
	ActorID            string
	Now                time.Time
	LookAheadDays      int
	TopN               int
	LeaderboardWindows []analytics.WindowKind
	TrailingMonths     int
	WeekStart          time.Weekday
}

// NewRequest returns a request with default look-ahead, leaderboards and trailing months.
func NewRequest(scope Scope, actorID string, now time.Time) Request {
	return Request{
		Scope:              scope,
		ActorID:            actorID,
		Now:                now,
		LookAheadDays:      DefaultLookAheadDays,
		TopN:               analytics.DefaultTopN,
		LeaderboardWindows: append([]analytics.WindowKind(nil), DefaultLeaderboardWindows...),
		TrailingMonths:     DefaultTrailingMonths,
		WeekStart:          time.Sunday,
	}
}

// KPIs are the scalar metrics of a dashboard. PreviousMonthSales and
// PreviousYearSales cover the previous period only up to the same calendar day,
// so growth compares periods of equal length.
type KPIs struct {
	SalesToday           decimal.Decimal `json:"sales_today"`
	SalesThisWeek        decimal.Decimal `json:"sales_this_week"`
	SalesMTD             decimal.Decimal `json:"sales_mtd"`
	SalesYTD             decimal.Decimal `json:"sales_ytd"`
	SalesCountMTD        int             `json:"sales_count_mtd"`
	PaymentsMTD          decimal.Decimal `json:"payments_mtd"`
	PaymentsYTD          decimal.Decimal `json:"payments_ytd"`
	QuantityMTD          decimal.Decimal `json:"quantity_mtd"`
	PreviousMonthSales   decimal.Decimal `json:"previous_month_sales"`
	MonthOverMonthGrowth decimal.Decimal `json:"month_over_month_growth"`
	PreviousYearSales    decimal.Decimal `json:"previous_year_sales"`
	YearOverYearGrowth   decimal.Decimal `json:"year_over_year_growth"`
	MonthlyTarget        decimal.Decimal `json:"monthly_target"`
	MonthlyAchievement   decimal.Decimal `json:"monthly_achievement"`
	YearlyTarget         decimal.Decimal `json:"yearly_target"`
	YearlyAchievement    decimal.Decimal `json:"yearly_achievement"`
}

// Bundle is everything a dashboard view renders.
type Bundle struct {
	Scope           Scope                                                 `json:"scope"`
	ActorID         string                                                `json:"actor_id,omitempty"`
	GeneratedAt     time.Time                                             `json:"generated_at"`
	KPIs            KPIs                                                  `json:"kpis"`
	ChartSeries     []analytics.MonthlyBucket                             `json:"chart_series"`
	TrailingSeries  []analytics.MonthlyBucket                             `json:"trailing_series"`
	Leaderboards    map[analytics.WindowKind][]analytics.LeaderboardEntry `json:"leaderboards"`
	UpcomingEvents  []analytics.OccurrenceEvent                           `json:"upcoming_events"`
	Rejections      analytics.Rejections                                  `json:"rejections"`
	SnapshotVersion int64                                                 `json:"snapshot_version"`
}

// scopeView is a request resolved against a snapshot.
type scopeView struct {
	members []string // nil means everybody
	pool    []string // leaderboard population, nil means everybody
	actors  map[string]analytics.Actor
}

func (v scopeView) recordFilter() func(analytics.MetricRecord) bool {
	if v.members == nil {
		return nil
	}
	return analytics.ActorFilter(v.members)
}

func (v scopeView) poolFilter() func(analytics.MetricRecord) bool {
	if v.pool == nil {
		return nil
	}
	return analytics.ActorFilter(v.pool)
}

func resolveScope(snapshot analytics.Snapshot, scope Scope, actorID string) (scopeView, error) {
	view := scopeView{actors: analytics.ActorIndex(snapshot.Actors)}
	switch scope {
	case ScopeOrganization:
		return view, nil
	case ScopeManager, ScopeIndividual:
	default:
		return scopeView{}, fmt.Errorf("dashboard: scope %q: %w", scope, ErrUnknownScope)
	}
	if actorID == "" {
		return scopeView{}, ErrActorRequired
	}
	actor, ok := view.actors[actorID]
	if !ok {
		return scopeView{}, fmt.Errorf("dashboard: actor %q: %w", actorID, ErrActorNotFound)
	}
	if scope == ScopeManager {
		view.members = analytics.TeamOf(snapshot.Actors, actor.ID)
		view.pool = view.members
		return view, nil
	}
	view.members = []string{actor.ID}
	if actor.ManagerID != "" {
		view.pool = analytics.TeamOf(snapshot.Actors, actor.ManagerID)
	}
	return view, nil
}

// Compose derives the dashboard bundle for req from snapshot.
func Compose(snapshot analytics.Snapshot, req Request) (Bundle, error) {
	view, err := resolveScope(snapshot, req.Scope, req.ActorID)
	if err != nil {
		return Bundle{}, err
	}
	if req.Now.IsZero() {
		return Bundle{}, fmt.Errorf("dashboard: compose: reference time required")
	}
	if snapshot.Sales == nil || snapshot.Payments == nil || snapshot.Targets == nil {
		return Bundle{}, fmt.Errorf("dashboard: compose: %w", analytics.ErrNilCollection)
	}

	filter := view.recordFilter()
	sales := analytics.FilterRecords(snapshot.Sales, filter)
	payments := analytics.FilterRecords(snapshot.Payments, filter)

	kpis, err := computeKPIs(sales, payments, snapshot.Targets, view.members, req)
	if err != nil {
		return Bundle{}, err
	}

	chart, err := analytics.BuildMonthlyBuckets(sales, payments, analytics.StartOfYear(req.Now), req.Now)
	if err != nil {
		return Bundle{}, fmt.Errorf("dashboard: compose: %w", err)
	}
	trailing, err := analytics.BuildTrailingBuckets(sales, payments, req.Now, req.TrailingMonths)
	if err != nil {
		return Bundle{}, fmt.Errorf("dashboard: compose: %w", err)
	}

	windows := req.LeaderboardWindows
	if len(windows) == 0 {
		windows = DefaultLeaderboardWindows
	}
	boards := make(map[analytics.WindowKind][]analytics.LeaderboardEntry, len(windows))
	for _, kind := range windows {
		entries, err := leaderboard(snapshot.Sales, view, req, kind)
		if err != nil {
			return Bundle{}, err
		}
		boards[kind] = entries
	}

	events, err := upcoming(snapshot.Actors, view, req)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{
		Scope:          req.Scope,
		ActorID:        req.ActorID,
		GeneratedAt:    req.Now,
		KPIs:           kpis,
		ChartSeries:    chart,
		TrailingSeries: trailing,
		Leaderboards:   boards,
		UpcomingEvents: events,
	}, nil
}

// Leaderboard ranks the scope's leaderboard population for a single window.
func Leaderboard(snapshot analytics.Snapshot, req Request, kind analytics.WindowKind) ([]analytics.LeaderboardEntry, error) {
	view, err := resolveScope(snapshot, req.Scope, req.ActorID)
	if err != nil {
		return nil, err
	}
	return leaderboard(snapshot.Sales, view, req, kind)
}

// Events lists the upcoming occurrences of the scope's actors.
func Events(snapshot analytics.Snapshot, req Request) ([]analytics.OccurrenceEvent, error) {
	view, err := resolveScope(snapshot, req.Scope, req.ActorID)
	if err != nil {
		return nil, err
	}
	return upcoming(snapshot.Actors, view, req)
}

func leaderboard(sales []analytics.MetricRecord, view scopeView, req Request, kind analytics.WindowKind) ([]analytics.LeaderboardEntry, error) {
	window, err := analytics.ResolveWindow(req.Now, kind, analytics.WithWeekStart(req.WeekStart))
	if err != nil {
		return nil, err
	}
	entries, err := analytics.Rank(sales, analytics.RankOptions{
		Window: &window,
		Filter: view.poolFilter(),
		TopN:   req.TopN,
		Actors: view.actors,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: leaderboard %s: %w", kind, err)
	}
	return entries, nil
}

func upcoming(actors []analytics.Actor, view scopeView, req Request) ([]analytics.OccurrenceEvent, error) {
	if actors == nil {
		return nil, fmt.Errorf("dashboard: events: %w", analytics.ErrNilCollection)
	}
	if view.members != nil {
		scoped := make([]analytics.Actor, 0, len(view.members))
		for _, id := range view.members {
			if actor, ok := view.actors[id]; ok {
				scoped = append(scoped, actor)
			}
		}
		actors = scoped
	}
	events, err := analytics.UpcomingEvents(actors, req.Now, req.LookAheadDays)
	if err != nil {
		return nil, fmt.Errorf("dashboard: events: %w", err)
	}
	return events, nil
}

func computeKPIs(sales, payments []analytics.MetricRecord, targets []analytics.Target, members []string, req Request) (KPIs, error) {
	opt := analytics.WithWeekStart(req.WeekStart)
	resolve := func(kind analytics.WindowKind) analytics.Window {
		// Every kind below is known to ResolveWindow.
		w, _ := analytics.ResolveWindow(req.Now, kind, opt)
		return w
	}
	today := resolve(analytics.WindowToday)
	week := resolve(analytics.WindowThisWeek)
	month := resolve(analytics.WindowThisMonth)
	year := resolve(analytics.WindowThisYear)
	prevMonth := resolve(analytics.WindowPreviousMonthToDate)
	prevYear := resolve(analytics.WindowPreviousYearToDate)

	var k KPIs
	sums := []struct {
		dst      *decimal.Decimal
		records  []analytics.MetricRecord
		window   analytics.Window
		selector analytics.Selector
	}{
		{&k.SalesToday, sales, today, analytics.ByAmount},
		{&k.SalesThisWeek, sales, week, analytics.ByAmount},
		{&k.SalesMTD, sales, month, analytics.ByAmount},
		{&k.SalesYTD, sales, year, analytics.ByAmount},
		{&k.PaymentsMTD, payments, month, analytics.ByAmount},
		{&k.PaymentsYTD, payments, year, analytics.ByAmount},
		{&k.QuantityMTD, sales, month, analytics.ByQuantity},
		{&k.PreviousMonthSales, sales, prevMonth, analytics.ByAmount},
		{&k.PreviousYearSales, sales, prevYear, analytics.ByAmount},
	}
	for _, s := range sums {
		total, err := analytics.SumInWindow(s.records, s.window, s.selector)
		if err != nil {
			return KPIs{}, fmt.Errorf("dashboard: kpis: %w", err)
		}
		*s.dst = total
	}
	count, err := analytics.CountInWindow(sales, month)
	if err != nil {
		return KPIs{}, fmt.Errorf("dashboard: kpis: %w", err)
	}
	k.SalesCountMTD = count

	k.MonthOverMonthGrowth = analytics.GrowthPercent(k.SalesMTD, k.PreviousMonthSales)
	k.YearOverYearGrowth = analytics.GrowthPercent(k.SalesYTD, k.PreviousYearSales)
	k.MonthlyTarget = analytics.TargetFor(targets, members, analytics.PeriodMonthly, month.Start)
	k.YearlyTarget = analytics.TargetFor(targets, members, analytics.PeriodYearly, year.Start)
	k.MonthlyAchievement = analytics.AchievementPercent(k.SalesMTD, k.MonthlyTarget)
	k.YearlyAchievement = analytics.AchievementPercent(k.SalesYTD, k.YearlyTarget)
	return k, nil
}

// Values returns the decimal KPIs keyed by their JSON names.
func (k KPIs) Values() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"sales_today":             k.SalesToday,
		"sales_this_week":         k.SalesThisWeek,
		"sales_mtd":               k.SalesMTD,
		"sales_ytd":               k.SalesYTD,
		"sales_count_mtd":         decimal.NewFromInt(int64(k.SalesCountMTD)),
		"payments_mtd":            k.PaymentsMTD,
		"payments_ytd":            k.PaymentsYTD,
		"quantity_mtd":            k.QuantityMTD,
		"previous_month_sales":    k.PreviousMonthSales,
		"month_over_month_growth": k.MonthOverMonthGrowth,
		"previous_year_sales":     k.PreviousYearSales,
		"year_over_year_growth":   k.YearOverYearGrowth,
		"monthly_target":          k.MonthlyTarget,
		"monthly_achievement":     k.MonthlyAchievement,
		"yearly_target":           k.YearlyTarget,
		"yearly_achievement":      k.YearlyAchievement,
	}
}
