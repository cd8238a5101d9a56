package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adtechscan/crawler/internal/crawler/browser"
	"github.com/adtechscan/crawler/pkg/types"
)

func TestRelaxedConfigScalesTimeouts(t *testing.T) {
	normal := &browser.Config{SoftTimeout: 25 * time.Second, HardTimeout: 65 * time.Second}
	relaxed := RelaxedConfig(normal)

	assert.Equal(t, 50*time.Second, relaxed.SoftTimeout)
	assert.Equal(t, 195*time.Second, relaxed.HardTimeout)
	assert.Equal(t, 25*time.Second, normal.SoftTimeout, "original config must be untouched")
}

func TestIsTimeoutFailure(t *testing.T) {
	timeoutResult := types.NewErrorResult("https://example.com", types.DetailedError{Category: types.CategoryTimeout}, "timed out")
	assert.True(t, isTimeoutFailure(timeoutResult))

	dnsResult := types.NewErrorResult("https://example.com", types.DetailedError{Category: types.CategoryNetwork}, "dns failed")
	assert.False(t, isTimeoutFailure(dnsResult))

	successResult := types.NewSuccessResult(types.PageData{URL: "https://example.com"})
	assert.False(t, isTimeoutFailure(successResult))
}
