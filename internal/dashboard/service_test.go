package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/observability"
)

type stubSource struct {
	snapshot   analytics.Snapshot
	rejections analytics.Rejections
	err        error
	gate       chan struct{}
	calls      atomic.Int32
}

func (s *stubSource) Load(ctx context.Context) (analytics.Snapshot, analytics.Rejections, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return analytics.Snapshot{}, analytics.Rejections{}, ctx.Err()
		}
	}
	return s.snapshot, s.rejections, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(source SnapshotSource) *Service {
	metrics := observability.NewDashboardMetrics(prometheus.NewRegistry())
	svc := NewService(source, discardLogger(), metrics, DefaultSettings())
	svc.WithNow(func() time.Time { return testNow })
	return svc
}

func TestServiceDashboardAttachesRejectionsAndVersion(t *testing.T) {
	source := &stubSource{snapshot: fixtureSnapshot(), rejections: analytics.Rejections{Sales: 2}}
	svc := newTestService(source)
	svc.SetSnapshotVersion(4)
	svc.SetSnapshotVersion(3)

	bundle, err := svc.Dashboard(context.Background(), svc.NewRequest(ScopeOrganization, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, bundle.Rejections.Sales)
	assert.Equal(t, int64(4), bundle.SnapshotVersion)
	assert.True(t, testNow.Equal(bundle.GeneratedAt))
	assert.Equal(t, int32(1), source.calls.Load())

	_, err = svc.Dashboard(context.Background(), svc.NewRequest(ScopeOrganization, ""))
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load(), "results must not be retained between requests")
}

func TestServiceCoalescesConcurrentLoads(t *testing.T) {
	source := &stubSource{snapshot: fixtureSnapshot(), gate: make(chan struct{})}
	svc := newTestService(source)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Dashboard(context.Background(), svc.NewRequest(ScopeManager, "m1"))
		}(i)
	}
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestServiceCallerCancellation(t *testing.T) {
	source := &stubSource{snapshot: fixtureSnapshot(), gate: make(chan struct{})}
	svc := newTestService(source)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Dashboard(ctx, svc.NewRequest(ScopeOrganization, ""))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(source.gate)
}

func TestServiceErrors(t *testing.T) {
	boom := errors.New("database down")
	svc := newTestService(&stubSource{err: boom})
	_, err := svc.Dashboard(context.Background(), svc.NewRequest(ScopeOrganization, ""))
	require.ErrorIs(t, err, boom)

	empty := NewService(nil, nil, nil, Defaults{})
	_, err = empty.Events(context.Background(), empty.NewRequest(ScopeOrganization, ""))
	require.ErrorIs(t, err, ErrSourceNotConfigured)
}

func TestServiceNewRequestUsesDefaults(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	settings := DefaultSettings()
	settings.Location = wib
	settings.TopN = 3
	settings.LookAheadDays = 14
	settings.WeekStart = time.Monday
	svc := NewService(&stubSource{}, nil, nil, settings)
	svc.WithNow(func() time.Time { return time.Date(2024, 2, 29, 20, 0, 0, 0, time.UTC) })

	req := svc.NewRequest(ScopeIndividual, "e1")
	assert.Equal(t, 3, req.TopN)
	assert.Equal(t, 14, req.LookAheadDays)
	assert.Equal(t, time.Monday, req.WeekStart)
	assert.Equal(t, time.March, req.Now.Month())
	assert.Equal(t, wib, svc.Location())
}

func TestServiceLeaderboardAndEvents(t *testing.T) {
	svc := newTestService(&stubSource{snapshot: fixtureSnapshot()})
	entries, err := svc.Leaderboard(context.Background(), svc.NewRequest(ScopeIndividual, "e3"), analytics.WindowThisMonth)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e3", entries[0].ActorID)

	events, err := svc.Events(context.Background(), svc.NewRequest(ScopeOrganization, ""))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
