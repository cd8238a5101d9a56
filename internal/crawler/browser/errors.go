package browser

import "errors"

// Sentinel errors of the browser package. classify.FromError classifies
// errors by their message text only; it does not check these via
// errors.Is.
var (
	ErrWaitTimeout   = errors.New("wait timeout exceeded")
	ErrNavigateFailed = errors.New("navigation failed")
	ErrExtractFailed = errors.New("extraction payload failed")
	ErrHardTimeout   = errors.New("hard timeout exceeded")
	ErrPageDetached  = errors.New("page detached")

	ErrPoolShutdown = errors.New("browser pool is shutting down")
	ErrInstanceDead = errors.New("browser instance is dead")
	ErrLaunchFailed = errors.New("browser launch failed")
)
