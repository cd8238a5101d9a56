package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// watchForDetach polls at 4 Hz whether the page is still attached; on
// detachment it calls detected once and returns, so the task can abort
// instead of waiting out the soft timeout. The caller stops the probe
// via stopCh.
func watchForDetach(ctx context.Context, stopCh <-chan struct{}, detected func()) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			err := chromedp.Run(probeCtx, page.Enable())
			cancel()
			if err != nil {
				detected()
				return
			}
		}
	}
}
