package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	exists    bool
	interval  time.Duration
	input     WarmCacheInput
	upserts   int
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertCacheWarmSchedule records the schedule.
func (m *MockScheduler) UpsertCacheWarmSchedule(ctx context.Context, interval time.Duration, input WarmCacheInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	m.exists = true
	m.interval = interval
	m.input = input
	m.upserts++
	return nil
}

// DeleteCacheWarmSchedule records that the schedule was deleted.
func (m *MockScheduler) DeleteCacheWarmSchedule(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if !m.exists {
		return fmt.Errorf("schedule %q not found", CacheWarmScheduleID)
	}

	m.exists = false
	return nil
}

// SetCreateError makes UpsertCacheWarmSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetDeleteError makes DeleteCacheWarmSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// Schedule returns the recorded schedule and whether it exists.
func (m *MockScheduler) Schedule() (time.Duration, WarmCacheInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.input, m.exists
}

// UpsertCount returns how many times the schedule was upserted.
func (m *MockScheduler) UpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
