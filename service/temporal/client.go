package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// A warm run still in flight when the next one is due is skipped.
const skipOverlap = enumspb.SCHEDULE_OVERLAP_POLICY_SKIP

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) warmAction(input WarmCacheInput) *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        "warm-cache",
		Workflow:  WarmCacheWorkflow,
		TaskQueue: c.taskQueue,
		Args:      []any{input},
	}
}

// createCacheWarmSchedule creates the cache warm schedule.
func (c *Client) createCacheWarmSchedule(ctx context.Context, interval time.Duration, input WarmCacheInput) error {
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: CacheWarmScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Action:  c.warmAction(input),
		Overlap: skipOverlap,
		Memo: map[string]any{
			"limit":      input.Limit,
			"pages":      input.Pages,
			"created_by": "solexplorer",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"schedule_id", CacheWarmScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", CacheWarmScheduleID, err)
	}

	c.logger.Info("cache warm schedule created",
		"schedule_id", CacheWarmScheduleID,
		"interval", interval,
		"limit", input.Limit,
		"pages", input.Pages,
	)
	return nil
}

// UpsertCacheWarmSchedule creates the cache warm schedule, or updates its
// interval and input if it already exists.
func (c *Client) UpsertCacheWarmSchedule(ctx context.Context, interval time.Duration, input WarmCacheInput) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, CacheWarmScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", CacheWarmScheduleID,
			"error", err,
		)
		return c.createCacheWarmSchedule(ctx, interval, input)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			in.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			in.Description.Schedule.Action = c.warmAction(input)
			return &client.ScheduleUpdate{
				Schedule: &in.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"schedule_id", CacheWarmScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", CacheWarmScheduleID, err)
	}

	c.logger.Info("cache warm schedule updated",
		"schedule_id", CacheWarmScheduleID,
		"interval", interval,
		"limit", input.Limit,
		"pages", input.Pages,
	)
	return nil
}

// DeleteCacheWarmSchedule deletes the cache warm schedule.
func (c *Client) DeleteCacheWarmSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, CacheWarmScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"schedule_id", CacheWarmScheduleID,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", CacheWarmScheduleID, err)
	}

	c.logger.Info("cache warm schedule deleted", "schedule_id", CacheWarmScheduleID)
	return nil
}

// WarmNow runs WarmCacheWorkflow once, outside the schedule, and waits for it.
func (c *Client) WarmNow(ctx context.Context, input WarmCacheInput) (*WarmCacheResult, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("warm-cache-manual-%d", time.Now().UnixNano()),
		TaskQueue: c.taskQueue,
	}, WarmCacheWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start cache warm workflow: %w", err)
	}

	c.logger.Info("cache warm workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	var result WarmCacheResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("cache warm workflow failed: %w", err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...any) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...any) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...any) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...any) {
	l.logger.Error(msg, keyvals...)
}
