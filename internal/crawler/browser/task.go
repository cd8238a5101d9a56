// Package browser drives a pool of headless browser contexts that render
// one page per task, isolate crashes to that task, and enforce the
// dual soft/hard timeout contract.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/adtechscan/crawler/internal/crawler/classify"
	"github.com/adtechscan/crawler/pkg/types"
)

// Acquirer is satisfied by both Pool and SimplePool.
type Acquirer interface {
	Acquire(url string) (*Instance, error)
	Release(inst *Instance)
}

// Task runs one page through navigate -> settle -> extract -> classify.
type Task struct {
	pool      Acquirer
	cfg       *Config
	blocklist *ResourceBlocklist
	payloadJS string
	logger    *zap.Logger
}

func NewTask(pool Acquirer, cfg *Config, payloadJS string, logger *zap.Logger) *Task {
	return &Task{
		pool:      pool,
		cfg:       cfg,
		blocklist: NewResourceBlocklist(cfg.BlockedResourceTypes),
		payloadJS: payloadJS,
		logger:    logger,
	}
}

// Run implements the C7 contract plus the §4.6 per-URL retry ceiling: it
// attempts the page up to cfg.MaxRetries+1 times, retrying only
// transient failures (not permanent errors, not the non-retryable
// crash codes IsNonRetryableCrash already isolates). Once the ceiling
// is hit the URL is skipped with MAX_RETRIES_EXCEEDED rather than the
// last attempt's own error.
func (t *Task) Run(ctx context.Context, url string, opts ExtractOptions) types.TaskResult {
	maxAttempts := t.cfg.MaxRetries + 1

	var result types.TaskResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result = t.attempt(ctx, url, opts)
		if !isRetryableFailure(result) {
			return result
		}
		if attempt < maxAttempts {
			t.logger.Info("retrying transient failure within run",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Int("maxAttempts", maxAttempts))
		}
	}
	return types.NewErrorResult(url, classify.MaxRetriesResult(url),
		fmt.Sprintf("failed %d time(s), last error: %s", maxAttempts, result.Message))
}

// isRetryableFailure reports whether a failed attempt should consume
// another slot in Run's retry ceiling. Success, no-data, permanent
// errors, and non-retryable crashes are never retried.
func isRetryableFailure(result types.TaskResult) bool {
	if result.Kind != types.ResultError || result.Detailed == nil {
		return false
	}
	if result.Detailed.Permanent() {
		return false
	}
	switch result.Detailed.Code {
	case types.CodeBrowserCrashNoRetry, types.CodePuppeteerMainFrame:
		return false
	}
	return true
}

// attempt runs the page exactly once: configure the page, navigate
// under the soft timeout, sleep the settle interval, run the
// extraction payload, and classify the outcome. The hard timeout
// (cfg.HardTimeout, when positive) is added to ctx once an instance is
// acquired and is enforced by force-closing the tab via context.AfterFunc.
func (t *Task) attempt(ctx context.Context, url string, opts ExtractOptions) types.TaskResult {
	inst, err := t.pool.Acquire(url)
	if err != nil {
		return types.NewErrorResult(url, classify.FromError(url, types.PhasePreflight, err), err.Error())
	}
	defer t.pool.Release(inst)

	if t.cfg.HardTimeout > 0 {
		var hardCancel context.CancelFunc
		ctx, hardCancel = context.WithTimeout(ctx, t.cfg.HardTimeout)
		defer hardCancel()
	}

	tabCtx, tabCancel := inst.NewPageContext()
	defer tabCancel()
	stopHard := context.AfterFunc(ctx, tabCancel)
	defer stopHard()

	softCtx, softCancel := context.WithTimeout(tabCtx, t.cfg.SoftTimeout)
	defer softCancel()

	detached := make(chan struct{}, 1)
	stopProbe := make(chan struct{})
	go watchForDetach(tabCtx, stopProbe, func() {
		select {
		case detached <- struct{}{}:
		default:
		}
		softCancel()
	})
	defer close(stopProbe)

	var statusCode int
	var statusMu sync.Mutex

	navErr := chromedp.Run(softCtx, t.navigateTasks(url, &statusCode, &statusMu))

	select {
	case <-detached:
		return types.NewErrorResult(url, classify.DetachedResult(url), "page detached during navigation")
	default:
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
		return types.NewErrorResult(url, classify.HardTimeoutResult(url), "hard timeout exceeded")
	}

	if navErr != nil && !errors.Is(navErr, context.DeadlineExceeded) {
		if classify.IsNonRetryableCrash(navErr) {
			return types.NewErrorResult(url, classify.CrashResult(url, navErr), navErr.Error())
		}
		return types.NewErrorResult(url, classify.FromError(url, types.PhaseNavigation, navErr), navErr.Error())
	}

	statusMu.Lock()
	code := statusCode
	statusMu.Unlock()

	if code >= 400 {
		return types.NewErrorResult(url, classify.HTTPStatusResult(url, code), fmt.Sprintf("navigation completed with status %d", code))
	}

	select {
	case <-time.After(t.cfg.SettleInterval):
	case <-ctx.Done():
		return types.NewErrorResult(url, classify.HardTimeoutResult(url), "hard timeout exceeded during settle")
	}

	data, err := t.extractWithOptions(tabCtx, url, opts)
	if err != nil {
		return types.NewErrorResult(url, classify.FromError(url, types.PhaseExtraction, err), err.Error())
	}

	data.URL = url
	data.Date = time.Now().UTC().Format("2006-01-02")

	if data.HasAdTech() {
		return types.NewSuccessResult(data)
	}
	return types.NewNoDataResult(url)
}

func (t *Task) extractWithOptions(ctx context.Context, url string, opts ExtractOptions) (types.PageData, error) {
	expr, err := buildExtractionExpression(t.payloadJS, opts)
	if err != nil {
		return types.PageData{}, err
	}

	var raw json.RawMessage
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return types.PageData{}, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	var data types.PageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return types.PageData{}, fmt.Errorf("%w: decoding payload result: %v", ErrExtractFailed, err)
	}
	return data, nil
}

// navigateTasks builds the chromedp task sequence: stealth injection,
// resource blocking, and navigation + readiness wait.
func (t *Task) navigateTasks(url string, statusCode *int, statusMu *sync.Mutex) chromedp.Tasks {
	return chromedp.Tasks{
		page.Enable(),
		page.AddScriptToEvaluateOnNewDocument(stealthScript),
		network.Enable(),
		fetch.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			chromedp.ListenTarget(ctx, func(ev interface{}) {
				switch e := ev.(type) {
				case *fetch.EventRequestPaused:
					go t.handlePausedRequest(ctx, e)
				case *network.EventResponseReceived:
					if e.Response.URL == url || statusMatchesTarget(e.Response.URL, url) {
						statusMu.Lock()
						if *statusCode == 0 {
							*statusCode = int(e.Response.Status)
						}
						statusMu.Unlock()
					}
				}
			})
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
}

func (t *Task) handlePausedRequest(ctx context.Context, ev *fetch.EventRequestPaused) {
	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	c := chromedp.FromContext(cmdCtx)
	execCtx := cdp.WithExecutor(cmdCtx, c.Target)

	if t.blocklist.IsBlocked(string(ev.ResourceType)) {
		if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx); err != nil {
			t.logger.Debug("failed to block request", zap.String("url", ev.Request.URL), zap.Error(err))
		}
		return
	}
	if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
		t.logger.Debug("failed to continue request", zap.String("url", ev.Request.URL), zap.Error(err))
		fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx)
	}
}

func statusMatchesTarget(responseURL, target string) bool {
	return responseURL == target
}
