package dashboardhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/dashboard"
	"github.com/salespulse/salespulse/internal/platform/httpx"
	"github.com/salespulse/salespulse/internal/records"
)

const defaultRequestTimeout = 2 * time.Second

// DashboardService defines the dashboard contract used by the handler.
type DashboardService interface {
	NewRequest(scope dashboard.Scope, actorID string) dashboard.Request
	Location() *time.Location
	SnapshotVersion() int64
	Dashboard(ctx context.Context, req dashboard.Request) (dashboard.Bundle, error)
	Leaderboard(ctx context.Context, req dashboard.Request, kind analytics.WindowKind) ([]analytics.LeaderboardEntry, error)
	Events(ctx context.Context, req dashboard.Request) ([]analytics.OccurrenceEvent, error)
}

// SnapshotBumper advances the snapshot version.
type SnapshotBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// RefreshEnqueuer schedules a background dashboard refresh and returns the task id.
type RefreshEnqueuer interface {
	EnqueueRefresh(ctx context.Context, reason string) (string, error)
}

// Handler serves the dashboard JSON API.
type Handler struct {
	logger   *slog.Logger
	service  DashboardService
	bumper   SnapshotBumper
	enqueuer RefreshEnqueuer
	validate *validator.Validate
	timeout  time.Duration
}

// NewHandler constructs the dashboard HTTP handler. bumper and enqueuer may be nil.
func NewHandler(logger *slog.Logger, service DashboardService, bumper SnapshotBumper, enqueuer RefreshEnqueuer, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			if name, _, _ := strings.Cut(field.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return &Handler{
		logger:   logger,
		service:  service,
		bumper:   bumper,
		enqueuer: enqueuer,
		validate: validate,
		timeout:  timeout,
	}
}

type queryParams struct {
	Scope          string   `query:"scope" validate:"omitempty,oneof=individual manager organization"`
	ActorID        string   `query:"actor_id" validate:"omitempty,max=64"`
	Now            string   `query:"now"`
	LookAheadDays  *int     `query:"lookahead_days" validate:"omitempty,min=0,max=366"`
	TopN           *int     `query:"top_n" validate:"omitempty,min=1,max=100"`
	TrailingMonths *int     `query:"trailing_months" validate:"omitempty,min=0,max=36"`
	WeekStart      string   `query:"week_start" validate:"omitempty,min=3"`
	Windows        []string `query:"window" validate:"omitempty,max=6,dive,required"`
}

type bumpRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

type bumpResponse struct {
	Version int64  `json:"version"`
	TaskID  string `json:"task_id,omitempty"`
}

type leaderboardResponse struct {
	Window  analytics.WindowKind         `json:"window"`
	Entries []analytics.LeaderboardEntry `json:"entries"`
}

type eventsResponse struct {
	LookAheadDays int                         `json:"lookahead_days"`
	Events        []analytics.OccurrenceEvent `json:"events"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseQuery(r)
	if err != nil {
		h.respond(w, err)
		return
	}
	req, err := h.buildRequest(params)
	if err != nil {
		h.respond(w, err)
		return
	}
	if len(params.Windows) > 0 {
		req.LeaderboardWindows = req.LeaderboardWindows[:0]
		for _, raw := range params.Windows {
			kind, err := analytics.ParseWindowKind(raw)
			if err != nil {
				h.respond(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
				return
			}
			req.LeaderboardWindows = append(req.LeaderboardWindows, kind)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	bundle, err := h.service.Dashboard(ctx, req)
	if err != nil {
		h.respond(w, err)
		return
	}
	w.Header().Set("X-Snapshot-Version", strconv.FormatInt(bundle.SnapshotVersion, 10))
	httpx.JSON(w, http.StatusOK, bundle)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseQuery(r)
	if err != nil {
		h.respond(w, err)
		return
	}
	req, err := h.buildRequest(params)
	if err != nil {
		h.respond(w, err)
		return
	}
	kind := analytics.WindowThisMonth
	if len(params.Windows) > 1 {
		h.respond(w, fmt.Errorf("%w: a single window is accepted", httpx.ErrValidation))
		return
	}
	if len(params.Windows) == 1 {
		kind, err = analytics.ParseWindowKind(params.Windows[0])
		if err != nil {
			h.respond(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	entries, err := h.service.Leaderboard(ctx, req, kind)
	if err != nil {
		h.respond(w, err)
		return
	}
	h.setVersionHeader(w)
	httpx.JSON(w, http.StatusOK, leaderboardResponse{Window: kind, Entries: entries})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseQuery(r)
	if err != nil {
		h.respond(w, err)
		return
	}
	req, err := h.buildRequest(params)
	if err != nil {
		h.respond(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	events, err := h.service.Events(ctx, req)
	if err != nil {
		h.respond(w, err)
		return
	}
	h.setVersionHeader(w)
	httpx.JSON(w, http.StatusOK, eventsResponse{LookAheadDays: req.LookAheadDays, Events: events})
}

func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	var body bumpRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.respond(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		h.respond(w, fmt.Errorf("%w: %s", httpx.ErrValidation, fieldErrors(err)))
		return
	}
	if strings.TrimSpace(body.Reason) == "" {
		body.Reason = "snapshot bump"
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	var resp bumpResponse
	if h.bumper != nil {
		version, err := h.bumper.Bump(ctx)
		if err != nil {
			h.logError("bump snapshot version", err)
			h.respond(w, fmt.Errorf("%w: snapshot version unavailable", httpx.ErrUnavailable))
			return
		}
		resp.Version = version
	}
	if h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueRefresh(ctx, body.Reason)
		if err != nil {
			h.logError("enqueue dashboard refresh", err)
			h.respond(w, fmt.Errorf("%w: refresh queue unavailable", httpx.ErrUnavailable))
			return
		}
		resp.TaskID = taskID
	}
	h.logger.Info("snapshot bumped", slog.Int64("version", resp.Version), slog.String("task_id", resp.TaskID), slog.String("reason", body.Reason))
	httpx.JSON(w, http.StatusAccepted, resp)
}

func (h *Handler) parseQuery(r *http.Request) (queryParams, error) {
	q := r.URL.Query()
	params := queryParams{
		Scope:     strings.ToLower(strings.TrimSpace(q.Get("scope"))),
		ActorID:   strings.TrimSpace(q.Get("actor_id")),
		Now:       strings.TrimSpace(q.Get("now")),
		WeekStart: strings.TrimSpace(q.Get("week_start")),
	}
	for _, raw := range q["window"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				params.Windows = append(params.Windows, part)
			}
		}
	}
	ints := []struct {
		name string
		dst  **int
	}{
		{"lookahead_days", &params.LookAheadDays},
		{"top_n", &params.TopN},
		{"trailing_months", &params.TrailingMonths},
	}
	for _, field := range ints {
		raw := strings.TrimSpace(q.Get(field.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return queryParams{}, fmt.Errorf("%w: %s must be an integer", httpx.ErrValidation, field.name)
		}
		*field.dst = &value
	}
	if err := h.validate.Struct(params); err != nil {
		return queryParams{}, fmt.Errorf("%w: %s", httpx.ErrValidation, fieldErrors(err))
	}
	return params, nil
}

func (h *Handler) buildRequest(params queryParams) (dashboard.Request, error) {
	scope := dashboard.ScopeOrganization
	switch {
	case params.Scope != "":
		scope = dashboard.Scope(params.Scope)
	case params.ActorID != "":
		scope = dashboard.ScopeIndividual
	}
	req := h.service.NewRequest(scope, params.ActorID)
	if params.Now != "" {
		now, err := parseNow(params.Now, h.service.Location())
		if err != nil {
			return dashboard.Request{}, fmt.Errorf("%w: now must be a date or RFC3339 timestamp", httpx.ErrValidation)
		}
		req.Now = now
	}
	if params.LookAheadDays != nil {
		req.LookAheadDays = *params.LookAheadDays
	}
	if params.TopN != nil {
		req.TopN = *params.TopN
	}
	if params.TrailingMonths != nil {
		req.TrailingMonths = *params.TrailingMonths
	}
	if params.WeekStart != "" {
		day, err := analytics.ParseWeekday(params.WeekStart)
		if err != nil {
			return dashboard.Request{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		req.WeekStart = day
	}
	return req, nil
}

func parseNow(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}

func (h *Handler) setVersionHeader(w http.ResponseWriter) {
	w.Header().Set("X-Snapshot-Version", strconv.FormatInt(h.service.SnapshotVersion(), 10))
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, dashboard.ErrActorRequired),
		errors.Is(err, dashboard.ErrUnknownScope),
		errors.Is(err, analytics.ErrUnknownWindow),
		errors.Is(err, analytics.ErrInvalidLookAhead):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, dashboard.ErrActorNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, analytics.ErrNilCollection),
		errors.Is(err, dashboard.ErrSourceNotConfigured),
		errors.Is(err, records.ErrSourceNotReady):
		h.logError("dashboard data not ready", err)
		httpx.Problem(w, http.StatusServiceUnavailable, "Data Not Ready", "dashboard records are not available yet")
	case errors.Is(err, context.DeadlineExceeded):
		h.logError("dashboard timeout", err)
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "dashboard computation timed out")
	case errors.Is(err, context.Canceled):
		return
	default:
		if !errors.Is(err, httpx.ErrUnavailable) && !errors.Is(err, httpx.ErrNotFound) {
			h.logError("dashboard request", err)
		}
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
}

func fieldErrors(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(vErrs))
	for _, fieldErr := range vErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag()))
	}
	return strings.Join(parts, ", ")
}
