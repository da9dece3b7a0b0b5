package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// HeadSource reports the current chain head slot.
type HeadSource interface {
	HeadSlot(ctx context.Context) (uint64, error)
}

// HeadWatcher polls a HeadSource and publishes an event each time the head
// advances. It never publishes a slot lower than or equal to one it already
// published.
type HeadWatcher struct {
	source    HeadSource
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	last uint64
}

// NewHeadWatcher creates a watcher that polls every interval.
func NewHeadWatcher(source HeadSource, publisher Publisher, interval time.Duration, logger *slog.Logger) *HeadWatcher {
	return &HeadWatcher{
		source:    source,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Run polls until ctx is done.
func (w *HeadWatcher) Run(ctx context.Context) error {
	w.logger.Info("head watcher started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "head poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("head watcher stopped", "last_slot", w.last)
			return nil
		case <-ticker.C:
		}
	}
}

// poll reads the head once and publishes it if it moved forward.
func (w *HeadWatcher) poll(ctx context.Context) (bool, error) {
	slot, err := w.source.HeadSlot(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read head slot: %w", err)
	}
	if slot <= w.last {
		return false, nil
	}

	event := NewHeadEvent(slot, w.last, w.now())
	if err := w.publisher.PublishHead(ctx, event); err != nil {
		return false, fmt.Errorf("failed to publish head %d: %w", slot, err)
	}

	w.last = slot
	return true, nil
}
