package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const (
	defaultWarmLimit = 50
	defaultWarmPages = 1
)

// WarmCacheWorkflow loads the most recent pages of blocks so the block list
// and block lookups are served from the cache. It is triggered by a Temporal
// schedule.
//
// Pages are warmed newest first and the workflow stops at the first page
// that fails after retries. Blocks from earlier pages stay cached.
func WarmCacheWorkflow(ctx workflow.Context, input WarmCacheInput) (*WarmCacheResult, error) {
	logger := workflow.GetLogger(ctx)

	if input.Limit < 1 {
		input.Limit = defaultWarmLimit
	}
	if input.Pages < 1 {
		input.Pages = defaultWarmPages
	}
	logger.Info("WarmCacheWorkflow started", "limit", input.Limit, "pages", input.Pages)

	result := &WarmCacheResult{
		WarmedAt: workflow.Now(ctx),
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	for page := 1; page <= input.Pages; page++ {
		var pageResult *WarmBlocksPageResult
		err := workflow.ExecuteActivity(ctx, a.WarmBlocksPage, WarmBlocksPageInput{
			Page:  page,
			Limit: input.Limit,
		}).Get(ctx, &pageResult)
		if err != nil {
			errMsg := fmt.Sprintf("failed to warm page %d: %v", page, err)
			result.Error = &errMsg
			return result, fmt.Errorf("failed to warm page %d: %w", page, err)
		}

		result.Pages++
		if pageResult.HeadSlot > result.HeadSlot {
			result.HeadSlot = pageResult.HeadSlot
		}
		for _, slot := range pageResult.Slots {
			result.Blocks++
			if slot > result.NewestSlot {
				result.NewestSlot = slot
			}
			if result.OldestSlot == 0 || slot < result.OldestSlot {
				result.OldestSlot = slot
			}
		}

		// The next page would start past genesis.
		if uint64(page*input.Limit) > pageResult.HeadSlot {
			break
		}
	}

	logger.Info("WarmCacheWorkflow completed",
		"head", result.HeadSlot,
		"pages", result.Pages,
		"blocks", result.Blocks,
	)

	return result, nil
}
