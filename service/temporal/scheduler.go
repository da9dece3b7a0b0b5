package temporal

import (
	"context"
	"time"
)

// CacheWarmScheduleID is the ID of the Temporal schedule that triggers
// WarmCacheWorkflow.
const CacheWarmScheduleID = "solexplorer-cache-warm"

// Scheduler manages the Temporal schedule for block cache warming.
type Scheduler interface {
	// UpsertCacheWarmSchedule creates the schedule, or updates its interval
	// and input if it already exists.
	UpsertCacheWarmSchedule(ctx context.Context, interval time.Duration, input WarmCacheInput) error

	// DeleteCacheWarmSchedule deletes the schedule.
	DeleteCacheWarmSchedule(ctx context.Context) error
}

var _ Scheduler = (*Client)(nil)
