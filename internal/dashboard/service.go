package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/observability"
)

const snapshotFlightKey = "snapshot"

// SnapshotSource loads typed record snapshots.
type SnapshotSource interface {
	Load(ctx context.Context) (analytics.Snapshot, analytics.Rejections, error)
}

// Defaults are the request parameters applied when a caller leaves them unset.
type Defaults struct {
	LookAheadDays  int
	TopN           int
	TrailingMonths int
	WeekStart      time.Weekday
	Location       *time.Location
	LoadTimeout    time.Duration
}

// DefaultSettings mirrors the composer defaults in UTC.
func DefaultSettings() Defaults {
	return Defaults{
		LookAheadDays:  DefaultLookAheadDays,
		TopN:           analytics.DefaultTopN,
		TrailingMonths: DefaultTrailingMonths,
		WeekStart:      time.Sunday,
		Location:       time.UTC,
		LoadTimeout:    10 * time.Second,
	}
}

// Service loads snapshots and composes dashboards. Results are never retained;
// concurrent loads share a single query round.
type Service struct {
	source   SnapshotSource
	logger   *slog.Logger
	metrics  *observability.DashboardMetrics
	defaults Defaults
	group    singleflight.Group
	version  atomic.Int64
	now      func() time.Time
}

type loaded struct {
	snapshot   analytics.Snapshot
	rejections analytics.Rejections
}

// NewService wires a snapshot source with logging and metrics.
func NewService(source SnapshotSource, logger *slog.Logger, metrics *observability.DashboardMetrics, defaults Defaults) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.Location == nil {
		defaults.Location = time.UTC
	}
	if defaults.LoadTimeout <= 0 {
		defaults.LoadTimeout = 10 * time.Second
	}
	return &Service{
		source:   source,
		logger:   logger,
		metrics:  metrics,
		defaults: defaults,
		now:      time.Now,
	}
}

// WithNow overrides the clock used for default reference times.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// NewRequest builds a request for scope with the service defaults and the current time.
func (s *Service) NewRequest(scope Scope, actorID string) Request {
	req := NewRequest(scope, actorID, s.now().In(s.defaults.Location))
	req.LookAheadDays = s.defaults.LookAheadDays
	if s.defaults.TopN > 0 {
		req.TopN = s.defaults.TopN
	}
	if s.defaults.TrailingMonths > 0 {
		req.TrailingMonths = s.defaults.TrailingMonths
	}
	req.WeekStart = s.defaults.WeekStart
	return req
}

// Location returns the zone reference times are interpreted in.
func (s *Service) Location() *time.Location {
	return s.defaults.Location
}

// SetSnapshotVersion records a snapshot version announcement. Older versions are ignored.
func (s *Service) SetSnapshotVersion(version int64) {
	for {
		current := s.version.Load()
		if version <= current {
			return
		}
		if s.version.CompareAndSwap(current, version) {
			s.metrics.SetSnapshotVersion(version)
			return
		}
	}
}

// SnapshotVersion returns the latest known snapshot version.
func (s *Service) SnapshotVersion() int64 {
	return s.version.Load()
}

// Dashboard composes the full bundle for req.
func (s *Service) Dashboard(ctx context.Context, req Request) (Bundle, error) {
	start := time.Now()
	data, err := s.load(ctx, req.Scope)
	if err != nil {
		return Bundle{}, err
	}
	bundle, err := Compose(data.snapshot, req)
	if err != nil {
		return Bundle{}, err
	}
	bundle.Rejections = data.rejections
	bundle.SnapshotVersion = s.SnapshotVersion()
	s.metrics.ObserveCompose(string(req.Scope), time.Since(start))
	return bundle, nil
}

// Leaderboard ranks the scope's population over a single window.
func (s *Service) Leaderboard(ctx context.Context, req Request, kind analytics.WindowKind) ([]analytics.LeaderboardEntry, error) {
	data, err := s.load(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	return Leaderboard(data.snapshot, req, kind)
}

// Events lists the scope's upcoming occurrences.
func (s *Service) Events(ctx context.Context, req Request) ([]analytics.OccurrenceEvent, error) {
	data, err := s.load(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	return Events(data.snapshot, req)
}

func (s *Service) load(ctx context.Context, scope Scope) (loaded, error) {
	if s.source == nil {
		return loaded{}, ErrSourceNotConfigured
	}
	resultChan := s.group.DoChan(snapshotFlightKey, func() (interface{}, error) {
		// Detached from the caller; other requests may be waiting on this load.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.defaults.LoadTimeout)
		defer cancel()
		snapshot, rejections, err := s.source.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		if rejections.Total() > 0 || rejections.InvalidDates > 0 {
			s.logger.Debug("rejected records at ingestion",
				slog.Int("sales", rejections.Sales),
				slog.Int("payments", rejections.Payments),
				slog.Int("targets", rejections.Targets),
				slog.Int("actors", rejections.Actors),
				slog.Int("invalid_dates", rejections.InvalidDates))
		}
		return loaded{snapshot: snapshot, rejections: rejections}, nil
	})
	select {
	case <-ctx.Done():
		return loaded{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return loaded{}, fmt.Errorf("dashboard: load snapshot: %w", res.Err)
		}
		if res.Shared {
			s.metrics.IncCoalesced(string(scope))
		}
		data, ok := res.Val.(loaded)
		if !ok {
			return loaded{}, errors.New("dashboard: load snapshot: unexpected result")
		}
		return data, nil
	}
}
