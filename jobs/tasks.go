package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/salespulse/salespulse/internal/dashboard"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardRefresh recomputes the organisation dashboard and publishes its KPIs.
	TaskDashboardRefresh = "dashboard:refresh"
)

// DashboardRefreshPayload configures a dashboard refresh run.
type DashboardRefreshPayload struct {
	Scope   string `json:"scope"`
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// Bump advances the snapshot version before recomputing.
	Bump bool `json:"bump,omitempty"`
}

// NewDashboardRefreshTask creates an Asynq task for refreshing a dashboard scope.
func NewDashboardRefreshTask(payload DashboardRefreshPayload, opts ...asynq.Option) (*asynq.Task, error) {
	payload.Scope = strings.TrimSpace(payload.Scope)
	if payload.Scope == "" {
		payload.Scope = string(dashboard.ScopeOrganization)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return asynq.NewTask(TaskDashboardRefresh, body, opts...), nil
}
