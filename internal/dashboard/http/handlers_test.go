package dashboardhttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/dashboard"
	"github.com/salespulse/salespulse/internal/records"
)

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type stubSource struct {
	snapshot analytics.Snapshot
	err      error
}

func (s stubSource) Load(ctx context.Context) (analytics.Snapshot, analytics.Rejections, error) {
	return s.snapshot, analytics.Rejections{Payments: 1}, s.err
}

type stubBumper struct {
	version int64
	err     error
	calls   int
}

func (s *stubBumper) Bump(ctx context.Context) (int64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	s.version++
	return s.version, nil
}

type stubEnqueuer struct {
	reasons []string
	err     error
}

func (s *stubEnqueuer) EnqueueRefresh(ctx context.Context, reason string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.reasons = append(s.reasons, reason)
	return "task-1", nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func testSnapshot() analytics.Snapshot {
	birthday := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)
	return analytics.Snapshot{
		Sales: []analytics.MetricRecord{
			{ID: "s1", OccurredOn: day(2024, 3, 1), ActorID: "a1", Amount: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)},
			{ID: "s2", OccurredOn: day(2024, 3, 9), ActorID: "a2", Amount: decimal.NewFromInt(250), Quantity: decimal.NewFromInt(2)},
			{ID: "s3", OccurredOn: day(2024, 2, 1), ActorID: "a1", Amount: decimal.NewFromInt(80)},
		},
		Payments: []analytics.MetricRecord{
			{ID: "p1", OccurredOn: day(2024, 3, 2), ActorID: "a1", Amount: decimal.NewFromInt(40), GroupID: "s1"},
		},
		Targets: []analytics.Target{},
		Actors: []analytics.Actor{
			{ID: "mgr", DisplayName: "Maya", Role: analytics.RoleManager, IsActive: true},
			{ID: "a1", DisplayName: "Ari", ManagerID: "mgr", IsActive: true, Birthday: &birthday},
			{ID: "a2", DisplayName: "Bima", ManagerID: "mgr", IsActive: true},
		},
	}
}

func newTestRouter(t *testing.T, source dashboard.SnapshotSource, bumper SnapshotBumper, enqueuer RefreshEnqueuer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := dashboard.NewService(source, logger, nil, dashboard.DefaultSettings())
	svc.WithNow(func() time.Time { return fixedNow })
	svc.SetSnapshotVersion(7)
	handler := NewHandler(logger, svc, bumper, enqueuer, time.Second)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func TestDashboardEndpointReturnsBundle(t *testing.T) {
	router := newTestRouter(t, stubSource{snapshot: testSnapshot()}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?scope=organization&window=this_month,this_year", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "7", rr.Header().Get("X-Snapshot-Version"))
	var bundle dashboard.Bundle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bundle))
	assert.Equal(t, dashboard.ScopeOrganization, bundle.Scope)
	assert.True(t, decimal.NewFromInt(350).Equal(bundle.KPIs.SalesMTD))
	assert.Equal(t, 1, bundle.Rejections.Payments)
	assert.Len(t, bundle.Leaderboards, 2)
	require.Len(t, bundle.Leaderboards[analytics.WindowThisMonth], 2)
	assert.Equal(t, "a2", bundle.Leaderboards[analytics.WindowThisMonth][0].ActorID)
	require.Len(t, bundle.UpcomingEvents, 1)
	assert.Equal(t, 5, bundle.UpcomingEvents[0].DaysUntil)
}

func TestDashboardEndpointActorDefaultsToIndividual(t *testing.T) {
	router := newTestRouter(t, stubSource{snapshot: testSnapshot()}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?actor_id=a1&now=2024-03-10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var bundle dashboard.Bundle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bundle))
	assert.Equal(t, dashboard.ScopeIndividual, bundle.Scope)
	assert.True(t, decimal.NewFromInt(100).Equal(bundle.KPIs.SalesMTD))
	assert.True(t, decimal.NewFromInt(40).Equal(bundle.KPIs.PaymentsMTD))
}

func TestDashboardEndpointErrors(t *testing.T) {
	cases := []struct {
		name   string
		source stubSource
		query  string
		status int
	}{
		{"unknown scope", stubSource{snapshot: testSnapshot()}, "scope=galaxy", http.StatusBadRequest},
		{"missing actor", stubSource{snapshot: testSnapshot()}, "scope=manager", http.StatusBadRequest},
		{"unknown actor", stubSource{snapshot: testSnapshot()}, "scope=individual&actor_id=ghost", http.StatusNotFound},
		{"bad integer", stubSource{snapshot: testSnapshot()}, "top_n=five", http.StatusBadRequest},
		{"negative lookahead", stubSource{snapshot: testSnapshot()}, "lookahead_days=-1", http.StatusBadRequest},
		{"unknown window", stubSource{snapshot: testSnapshot()}, "window=fortnight", http.StatusBadRequest},
		{"bad now", stubSource{snapshot: testSnapshot()}, "now=yesterday", http.StatusBadRequest},
		{"source not ready", stubSource{err: records.ErrSourceNotReady}, "", http.StatusServiceUnavailable},
		{"nil collections", stubSource{snapshot: analytics.Snapshot{}}, "", http.StatusServiceUnavailable},
		{"internal", stubSource{err: errors.New("boom")}, "", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, tc.source, nil, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard?"+tc.query, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	router := newTestRouter(t, stubSource{snapshot: testSnapshot()}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/leaderboard?window=this_year&top_n=1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body leaderboardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, analytics.WindowThisYear, body.Window)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "a2", body.Entries[0].ActorID)
	assert.Equal(t, 1, body.Entries[0].Rank)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/leaderboard?window=today,this_year", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventsEndpoint(t *testing.T) {
	router := newTestRouter(t, stubSource{snapshot: testSnapshot()}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/events?lookahead_days=3", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body eventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 3, body.LookAheadDays)
	assert.Empty(t, body.Events)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/events?lookahead_days=10", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, analytics.EventBirthday, body.Events[0].Kind)
	assert.Equal(t, "a1", body.Events[0].ActorID)
}

func TestBumpEndpoint(t *testing.T) {
	bumper := &stubBumper{version: 3}
	enqueuer := &stubEnqueuer{}
	router := newTestRouter(t, stubSource{snapshot: testSnapshot()}, bumper, enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/snapshot/bump", strings.NewReader(`{"reason":"nightly import"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var body bumpResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Version)
	assert.Equal(t, "task-1", body.TaskID)
	assert.Equal(t, []string{"nightly import"}, enqueuer.reasons)

	req = httptest.NewRequest(http.MethodPost, "/api/dashboard/snapshot/bump", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "snapshot bump", enqueuer.reasons[1])
}

func TestBumpEndpointFailures(t *testing.T) {
	router := newTestRouter(t, stubSource{}, &stubBumper{err: errors.New("redis down")}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/snapshot/bump", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	router = newTestRouter(t, stubSource{}, nil, &stubEnqueuer{err: errors.New("queue down")})
	req = httptest.NewRequest(http.MethodPost, "/api/dashboard/snapshot/bump", strings.NewReader(`{not json`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBumpEndpointRateLimited(t *testing.T) {
	router := newTestRouter(t, stubSource{}, &stubBumper{}, nil)
	var last int
	for range 11 {
		req := httptest.NewRequest(http.MethodPost, "/api/dashboard/snapshot/bump", nil)
		req.Header.Set(sourceHeader, "importer")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
