// Package retry implements C11: a single relaxed-settings pass over a
// batch's timeout-category failures after the main pipeline completes.
package retry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/adtechscan/crawler/internal/crawler/browser"
	"github.com/adtechscan/crawler/pkg/types"
)

const maxRetryConcurrency = 3

// Runner re-attempts timeout-classified failures with relaxed timeouts
// and capped concurrency, per spec.md §4.11.
type Runner struct {
	pool      browser.Acquirer
	payloadJS string
	logger    *zap.Logger
}

func New(pool browser.Acquirer, payloadJS string, logger *zap.Logger) *Runner {
	return &Runner{pool: pool, payloadJS: payloadJS, logger: logger}
}

// RelaxedConfig derives C11's relaxed browser.Config from the batch's
// normal settings: the soft timeout doubled and the hard timeout tripled
// to approximate a tripled protocol budget. The concurrency cap of 3 is
// applied by Run, not here.
func RelaxedConfig(normal *browser.Config) *browser.Config {
	relaxed := *normal
	relaxed.SoftTimeout = normal.SoftTimeout * 2
	relaxed.HardTimeout = normal.HardTimeout * 3
	return &relaxed
}

// Run partitions results into timeout-category failures and the rest,
// re-runs only the former with cfg relaxed via RelaxedConfig at up to
// min(normalConcurrency, 3) at a time, and returns the merged set with
// each retried URL's final outcome replacing the original.
func (r *Runner) Run(ctx context.Context, cfg *browser.Config, normalConcurrency int, opts browser.ExtractOptions, results []types.TaskResult) []types.TaskResult {
	merged := make([]types.TaskResult, len(results))
	copy(merged, results)

	task := browser.NewTask(r.pool, RelaxedConfig(cfg), r.payloadJS, r.logger)

	concurrency := normalConcurrency
	if concurrency <= 0 || concurrency > maxRetryConcurrency {
		concurrency = maxRetryConcurrency
	}
	slots := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, result := range merged {
		if !isTimeoutFailure(result) {
			continue
		}
		i, result := i, result
		wg.Add(1)
		slots <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			r.logger.Info("retrying timeout failure with relaxed settings", zap.String("url", result.URL))
			merged[i] = task.Run(ctx, result.URL, opts)
		}()
	}
	wg.Wait()

	return merged
}

func isTimeoutFailure(result types.TaskResult) bool {
	if result.Kind != types.ResultError || result.Detailed == nil {
		return false
	}
	return result.Detailed.Category == types.CategoryTimeout
}
