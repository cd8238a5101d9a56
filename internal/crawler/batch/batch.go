// Package batch implements C10: slicing a URL range into fixed-size
// batches, running each through the pipeline, persisting progress
// atomically, and recovering from transient per-batch failures.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/adtechscan/crawler/internal/crawler/browser"
	"github.com/adtechscan/crawler/internal/crawler/retry"
	"github.com/adtechscan/crawler/internal/crawler/sink"
	"github.com/adtechscan/crawler/internal/crawler/tracker"
	"github.com/adtechscan/crawler/pkg/types"
)

const (
	interBatchDelay   = 5 * time.Second
	recoveryWait      = 10 * time.Second
	progressFileMode  = 0o644
)

// Pipeline runs one batch's worth of URLs end to end (preflight, fan-out
// into the browser pool, classification) and returns a TaskResult per
// URL, in no particular order. A pipeline error is treated as a
// batch-wide transient fault triggering C10's recovery strategy.
type Pipeline func(ctx context.Context, urls []string, concurrency int) ([]types.TaskResult, error)

// Orchestrator drives the batch state machine described by spec.md's
// C10 table: Idle -> Running -> Succeeded, or Running -> Recovering ->
// Succeeded|Failed.
type Orchestrator struct {
	progressDir      string
	store            *tracker.Store
	sink             *sink.Sink
	retryRunner      *retry.Runner
	verifySkips      bool
	retryConcurrency int
	logger           *zap.Logger
}

func New(progressDir string, store *tracker.Store, s *sink.Sink, retryRunner *retry.Runner, verifySkips bool, retryConcurrency int, logger *zap.Logger) (*Orchestrator, error) {
	if err := os.MkdirAll(progressDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir %q: %w", progressDir, err)
	}
	return &Orchestrator{
		progressDir:      progressDir,
		store:            store,
		sink:             s,
		retryRunner:      retryRunner,
		verifySkips:      verifySkips,
		retryConcurrency: retryConcurrency,
		logger:           logger,
	}, nil
}

// Run slices urls into batches of batchSize starting at resumeFrom (1-based
// batch number) and drives each through pipeline, persisting progress
// after every batch. cfg and opts are forwarded to the retry pass.
func (o *Orchestrator) Run(ctx context.Context, urls []string, startURL, batchSize, resumeFrom int, concurrency int, cfg *browser.Config, opts browser.ExtractOptions, pipeline Pipeline) (*types.BatchProgress, error) {
	total := int(math.Ceil(float64(len(urls)) / float64(batchSize)))
	if total == 0 {
		total = 1
	}

	progressPath := o.progressPath(startURL, startURL+len(urls)-1)
	progress, err := o.loadProgress(progressPath, startURL, startURL+len(urls)-1, batchSize)
	if err != nil {
		return nil, err
	}

	for b := resumeFrom; b <= total; b++ {
		lo := (b - 1) * batchSize
		hi := lo + batchSize
		if hi > len(urls) {
			hi = len(urls)
		}
		if lo >= hi {
			break
		}
		slice := urls[lo:hi]
		batchRange := [2]int{startURL + lo, startURL + hi - 1}

		o.logger.Info("starting batch", zap.Int("batch", b), zap.Ints("range", batchRange[:]))
		start := time.Now()

		results, err := o.runWithRecovery(ctx, slice, concurrency, cfg, opts, pipeline)
		duration := time.Since(start)

		if err != nil {
			progress.FailedBatches = append(progress.FailedBatches, types.FailedBatch{
				BatchNumber: b,
				Range:       batchRange,
				FailedAt:    time.Now().UTC(),
				Duration:    duration,
				Reason:      err.Error(),
			})
			o.logger.Error("batch failed after recovery attempt", zap.Int("batch", b), zap.Error(err))
			if err := o.saveProgress(progressPath, progress); err != nil {
				return progress, err
			}
			time.Sleep(interBatchDelay)
			continue
		}

		stats := o.writeResults(slice, results)
		if o.verifySkips {
			stats.SkipVerification = o.verifySkipped(ctx, slice, results)
		}

		progress.CompletedBatches = append(progress.CompletedBatches, types.CompletedBatch{
			BatchNumber: b,
			Range:       batchRange,
			CompletedAt: time.Now().UTC(),
			Duration:    duration,
			Statistics:  stats,
		})
		o.logger.Info("batch completed", zap.Int("batch", b), zap.Int("processed", stats.URLsProcessed), zap.Int("errors", stats.Errors))

		if err := o.saveProgress(progressPath, progress); err != nil {
			return progress, err
		}
		time.Sleep(interBatchDelay)
	}

	return progress, nil
}

// runWithRecovery runs pipeline once at the requested concurrency; on
// error it halves concurrency, waits, and retries exactly once before
// surfacing the failure to the caller.
func (o *Orchestrator) runWithRecovery(ctx context.Context, slice []string, concurrency int, cfg *browser.Config, opts browser.ExtractOptions, pipeline Pipeline) ([]types.TaskResult, error) {
	results, err := pipeline(ctx, slice, concurrency)
	if err == nil {
		return o.retryRunner.Run(ctx, cfg, concurrency, opts, results), nil
	}

	o.logger.Warn("batch pipeline failed, entering recovery", zap.Error(err))
	time.Sleep(recoveryWait)

	recoveredConcurrency := concurrency / 2
	if recoveredConcurrency < 1 {
		recoveredConcurrency = 1
	}
	results, err = pipeline(ctx, slice, recoveredConcurrency)
	if err != nil {
		return nil, fmt.Errorf("batch failed after recovery retry: %w", err)
	}
	return o.retryRunner.Run(ctx, cfg, recoveredConcurrency, opts, results), nil
}

// writeResults persists results and tallies statistics. slice is the
// full batch; results only covers urls that actually reached the
// pipeline (already-processed urls are filtered out upstream), so the
// gap between the two counts is urls skipped, not urls processed.
func (o *Orchestrator) writeResults(slice []string, results []types.TaskResult) types.BatchStatistics {
	stats := types.BatchStatistics{
		URLsProcessed: len(results),
		URLsSkipped:   len(slice) - len(results),
	}

	if err := o.sink.WriteBatch(results); err != nil {
		o.logger.Error("writing batch results to sink", zap.Error(err))
	}

	for _, r := range results {
		if err := o.store.MarkTaskResult(context.Background(), r); err != nil {
			o.logger.Error("marking task result in tracker", zap.String("url", r.URL), zap.Error(err))
		}
		switch r.Kind {
		case types.ResultSuccess:
			stats.SuccessfulExtractions++
		case types.ResultNoData:
			stats.NoAdTech++
		case types.ResultError:
			stats.Errors++
		}
	}
	return stats
}

// verifySkipped cross-checks the tracker for every URL that wasn't
// present in results (i.e. filtered out upstream as already processed)
// and flags any that the tracker doesn't actually know about.
func (o *Orchestrator) verifySkipped(ctx context.Context, slice []string, results []types.TaskResult) *types.SkipVerification {
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.URL] = struct{}{}
	}

	var skipped []string
	for _, u := range slice {
		if _, ok := seen[u]; !ok {
			skipped = append(skipped, u)
		}
	}
	if len(skipped) == 0 {
		return nil
	}

	found, missing, err := o.store.VerifyUrls(ctx, skipped)
	if err != nil {
		o.logger.Error("skip verification failed", zap.Error(err))
		return nil
	}
	return &types.SkipVerification{
		ClaimedSkipped: len(skipped),
		FoundInTracker: len(found),
		Discrepant:     missing,
	}
}

func (o *Orchestrator) progressPath(start, end int) string {
	return filepath.Join(o.progressDir, fmt.Sprintf("batch-progress-%d-%d.json", start, end))
}

func (o *Orchestrator) loadProgress(path string, start, end, batchSize int) (*types.BatchProgress, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &types.BatchProgress{
			StartURL:  start,
			EndURL:    end,
			BatchSize: batchSize,
			StartTime: time.Now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress file %q: %w", path, err)
	}

	var progress types.BatchProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, fmt.Errorf("parsing progress file %q: %w", path, err)
	}
	return &progress, nil
}

func (o *Orchestrator) saveProgress(path string, progress *types.BatchProgress) error {
	raw, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling batch progress: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, progressFileMode); err != nil {
		return fmt.Errorf("writing batch progress: %w", err)
	}
	return os.Rename(tmp, path)
}

// Summary formats the final user-visible report: totals plus a
// copy-pasteable retry invocation per failed batch, which reruns the
// same URL span and resumes it at that batch.
func Summary(progress *types.BatchProgress, inputFile string) string {
	var processed, skipped, success, errs, noAdTech int
	for _, c := range progress.CompletedBatches {
		processed += c.Statistics.URLsProcessed
		skipped += c.Statistics.URLsSkipped
		success += c.Statistics.SuccessfulExtractions
		errs += c.Statistics.Errors
		noAdTech += c.Statistics.NoAdTech
	}

	summary := fmt.Sprintf(
		"batches: %d completed, %d failed | processed=%d skipped=%d success=%d errors=%d noAdTech=%d",
		len(progress.CompletedBatches), len(progress.FailedBatches), processed, skipped, success, errs, noAdTech,
	)

	for _, f := range progress.FailedBatches {
		summary += fmt.Sprintf(
			"\nretry: --batchMode --startUrl=%d --totalUrls=%d --batchSize=%d --resumeBatch=%d %s",
			progress.StartURL, progress.EndURL-progress.StartURL+1, progress.BatchSize, f.BatchNumber, inputFile,
		)
	}
	return summary
}
