package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/salespulse/salespulse/internal/app"
	"github.com/salespulse/salespulse/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// opsCLI wraps manual management helpers for the refresh queue.
type opsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
	out       io.Writer
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

func runOps(ctx context.Context, cfg *app.Config, args []string, out io.Writer) int {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpts)
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	cli := &opsCLI{client: client, inspector: inspector, out: out}
	if err := cli.run(ctx, args); err != nil {
		fmt.Fprintf(out, "salespulse: %v\n", err)
		return 1
	}
	return 0
}

func (c *opsCLI) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: salespulse [serve|refresh|queue|scheduled]")
	}
	switch args[0] {
	case "refresh":
		fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
		fs.SetOutput(c.out)
		scope := fs.String("scope", "organization", "dashboard scope to recompute")
		actor := fs.String("actor", "", "actor id for individual and manager scopes")
		reason := fs.String("reason", "manual refresh", "reason recorded with the task")
		bump := fs.Bool("bump", true, "advance the snapshot version first")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		info, err := c.trigger(ctx, jobs.DashboardRefreshPayload{Scope: *scope, ActorID: *actor, Reason: *reason, Bump: *bump})
		if err != nil {
			return err
		}
		return c.print(map[string]string{"task_id": info.ID, "queue": info.Queue})
	case "queue":
		stats, err := c.inspectQueue()
		if err != nil {
			return err
		}
		return c.print(stats)
	case "scheduled":
		tasks, err := c.listScheduled(10)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(tasks))
		for _, task := range tasks {
			ids = append(ids, task.ID)
		}
		return c.print(map[string][]string{"scheduled": ids})
	}
	return fmt.Errorf("unsupported command %q", args[0])
}

func (c *opsCLI) trigger(ctx context.Context, payload jobs.DashboardRefreshPayload) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("ops: client not configured")
	}
	task, err := jobs.NewDashboardRefreshTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

func (c *opsCLI) inspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("ops: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func (c *opsCLI) listScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("ops: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func (c *opsCLI) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
