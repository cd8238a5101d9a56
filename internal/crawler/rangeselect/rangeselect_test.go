package rangeselect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func seq(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = "u" + string(rune('0'+i))
	}
	return urls
}

func TestSelectEmptyExpressionIsNoOp(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "", zaptest.NewLogger(t))
	assert.Equal(t, urls, result.Selected)
	assert.Empty(t, result.Warning)
}

func TestSelectStartEnd(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "2-4", zaptest.NewLogger(t))
	assert.Equal(t, urls[1:4], result.Selected)
}

func TestSelectOpenEnded(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "3-", zaptest.NewLogger(t))
	assert.Equal(t, urls[2:], result.Selected)
}

func TestSelectOpenStarted(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "-3", zaptest.NewLogger(t))
	assert.Equal(t, urls[:3], result.Selected)
}

func TestSelectStartBeyondLengthIsEmptyWithWarning(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "10-12", zaptest.NewLogger(t))
	assert.Empty(t, result.Selected)
	assert.NotEmpty(t, result.Warning)
}

func TestSelectStartAfterEndFallsThroughToEndWithWarning(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "4-2", zaptest.NewLogger(t))
	assert.Equal(t, urls[3:], result.Selected)
	assert.NotEmpty(t, result.Warning)
}

func TestSelectInvalidNumericsPassesThroughUnchanged(t *testing.T) {
	urls := seq(5)
	result := Select(urls, "abc-def", zaptest.NewLogger(t))
	assert.Equal(t, urls, result.Selected)
	assert.NotEmpty(t, result.Warning)
}
