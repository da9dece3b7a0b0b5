package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solexplorer/service/explorer"
	"github.com/brojonat/solexplorer/service/metrics"
)

// WarmCacheInput contains the input parameters for warming the block cache.
type WarmCacheInput struct {
	Limit int `json:"limit"` // blocks per page
	Pages int `json:"pages"` // pages to warm, starting at the head
}

// WarmCacheResult summarizes one cache warm run.
type WarmCacheResult struct {
	HeadSlot   uint64    `json:"head_slot"`
	Blocks     int       `json:"blocks"`
	Pages      int       `json:"pages"`
	NewestSlot uint64    `json:"newest_slot"`
	OldestSlot uint64    `json:"oldest_slot"`
	WarmedAt   time.Time `json:"warmed_at"`
	Error      *string   `json:"error,omitempty"`
}

// WarmBlocksPageInput contains parameters for the WarmBlocksPage activity.
type WarmBlocksPageInput struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// WarmBlocksPageResult contains the result of loading one page of blocks.
type WarmBlocksPageResult struct {
	HeadSlot uint64   `json:"head_slot"`
	Slots    []uint64 `json:"slots"`
}

// BlockLister loads pages of recent blocks. Loading a finalized block also
// caches it, so listing is enough to warm the cache. *explorer.Service
// implements it.
type BlockLister interface {
	ListBlocks(ctx context.Context, page, limit int) (*explorer.Page[explorer.Block], error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	blocks  BlockLister
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(blocks BlockLister, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		blocks:  blocks,
		metrics: m,
		logger:  logger,
	}
}

// WarmBlocksPage loads one page of the block list through the block cache.
func (a *Activities) WarmBlocksPage(ctx context.Context, input WarmBlocksPageInput) (*WarmBlocksPageResult, error) {
	start := time.Now()

	page, err := a.blocks.ListBlocks(ctx, input.Page, input.Limit)
	if err != nil {
		a.record("error", 0, start)
		a.logger.ErrorContext(ctx, "failed to warm blocks page",
			"page", input.Page,
			"limit", input.Limit,
			"error", err,
		)
		return nil, fmt.Errorf("failed to list blocks page %d: %w", input.Page, err)
	}

	result := &WarmBlocksPageResult{
		HeadSlot: page.Total,
		Slots:    make([]uint64, len(page.Items)),
	}
	for i, b := range page.Items {
		result.Slots[i] = b.Slot
	}

	a.record("success", len(result.Slots), start)
	a.logger.DebugContext(ctx, "warmed blocks page",
		"page", input.Page,
		"head", result.HeadSlot,
		"blocks", len(result.Slots),
		"duration", time.Since(start),
	)

	return result, nil
}

func (a *Activities) record(status string, blocks int, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordCacheWarm(status, blocks, time.Since(start).Seconds())
	}
}
