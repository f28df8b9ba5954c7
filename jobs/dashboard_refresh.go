package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/salespulse/salespulse/internal/dashboard"
	jobmetrics "github.com/salespulse/salespulse/internal/jobs"
	"github.com/salespulse/salespulse/internal/observability"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const refreshTimeout = 30 * time.Second

// DashboardComposer is the dashboard behaviour the refresh job depends on.
type DashboardComposer interface {
	NewRequest(scope dashboard.Scope, actorID string) dashboard.Request
	Dashboard(ctx context.Context, req dashboard.Request) (dashboard.Bundle, error)
}

// VersionBumper advances the snapshot version.
type VersionBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// DashboardRefreshJob recomputes a dashboard scope and exports its KPIs as gauges.
type DashboardRefreshJob struct {
	Composer  DashboardComposer
	Bumper    VersionBumper
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Dashboard *observability.DashboardMetrics
	clock     func() time.Time
}

// NewDashboardRefreshJob wires dependencies for the refresh handler.
func NewDashboardRefreshJob(composer DashboardComposer, bumper VersionBumper, logger *slog.Logger, metrics *jobmetrics.Metrics, gauges *observability.DashboardMetrics) *DashboardRefreshJob {
	return &DashboardRefreshJob{
		Composer:  composer,
		Bumper:    bumper,
		Logger:    logger,
		Metrics:   metrics,
		Dashboard: gauges,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard refresh tasks.
func (j *DashboardRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Composer == nil {
		return errors.New("dashboard refresh: handler not configured")
	}
	var payload DashboardRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("dashboard refresh: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Scope == "" {
		payload.Scope = string(dashboard.ScopeOrganization)
	}
	scope, err := dashboard.ParseScope(payload.Scope)
	if err != nil {
		return fmt.Errorf("dashboard refresh: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskDashboardRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.String("scope", string(scope)), slog.String("reason", payload.Reason))
	start := j.now()

	if payload.Bump && j.Bumper != nil {
		version, err := j.Bumper.Bump(ctx)
		if err != nil {
			resultErr = err
			logger.Error("bump snapshot version", slog.Any("error", err))
			return resultErr
		}
		logger.Info("snapshot version bumped", slog.Int64("version", version))
	}

	refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	bundle, err := j.Composer.Dashboard(refreshCtx, j.Composer.NewRequest(scope, payload.ActorID))
	if err != nil {
		resultErr = err
		logger.Error("compose dashboard", slog.Any("error", err))
		return resultErr
	}

	j.publish(bundle)
	logger.Info("refreshed dashboard",
		slog.String("sales_mtd", bundle.KPIs.SalesMTD.StringFixed(2)),
		slog.Int("rejected", bundle.Rejections.Total()),
		slog.Int64("snapshot_version", bundle.SnapshotVersion),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *DashboardRefreshJob) publish(bundle dashboard.Bundle) {
	scope := string(bundle.Scope)
	for name, value := range bundle.KPIs.Values() {
		j.Dashboard.SetKPI(scope, name, value.InexactFloat64())
	}
	j.Dashboard.SetRejections("sales", bundle.Rejections.Sales)
	j.Dashboard.SetRejections("payments", bundle.Rejections.Payments)
	j.Dashboard.SetRejections("targets", bundle.Rejections.Targets)
	j.Dashboard.SetRejections("actors", bundle.Rejections.Actors)
	j.Dashboard.SetRejections("profile_dates", bundle.Rejections.InvalidDates)
}

func (j *DashboardRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardRefresh))
	}
	return slog.Default().With(slog.String("job", TaskDashboardRefresh))
}

func (j *DashboardRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *DashboardRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
