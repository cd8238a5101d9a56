package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adtechscan/crawler/pkg/types"
)

func TestIsRetryableFailureSkipsSuccessAndNoData(t *testing.T) {
	assert.False(t, isRetryableFailure(types.NewSuccessResult(types.PageData{URL: "https://example.com"})))
	assert.False(t, isRetryableFailure(types.NewNoDataResult("https://example.com")))
}

func TestIsRetryableFailureSkipsPermanentErrors(t *testing.T) {
	permanent := types.NewErrorResult("https://example.com",
		types.DetailedError{Category: types.CategoryNetwork, Code: types.CodeDNSResolutionFailed}, "dns failed")
	assert.False(t, isRetryableFailure(permanent))
}

func TestIsRetryableFailureSkipsNonRetryableCrashCodes(t *testing.T) {
	crash := types.NewErrorResult("https://example.com",
		types.DetailedError{Category: types.CategoryBrowser, Code: types.CodeBrowserCrashNoRetry}, "target closed")
	assert.False(t, isRetryableFailure(crash))

	mainFrame := types.NewErrorResult("https://example.com",
		types.DetailedError{Category: types.CategoryBrowser, Code: types.CodePuppeteerMainFrame}, "main frame too early")
	assert.False(t, isRetryableFailure(mainFrame))
}

func TestIsRetryableFailureRetriesTransientErrors(t *testing.T) {
	timeout := types.NewErrorResult("https://example.com",
		types.DetailedError{Category: types.CategoryTimeout, Code: types.CodeTimeout}, "timed out")
	assert.True(t, isRetryableFailure(timeout))

	connReset := types.NewErrorResult("https://example.com",
		types.DetailedError{Category: types.CategoryNetwork, Code: types.CodeConnReset}, "connection reset")
	assert.True(t, isRetryableFailure(connReset))
}
