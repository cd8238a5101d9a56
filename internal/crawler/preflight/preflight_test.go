package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/adtechscan/crawler/pkg/types"
)

func TestRunSkipsDNSWhenDisabled(t *testing.T) {
	checker := New(Config{CheckDNS: false}, zaptest.NewLogger(t))
	results := checker.Run(context.Background(), []string{"https://example.com"})
	outcome := results["https://example.com"]
	assert.True(t, outcome.PassedDNS)
	assert.True(t, outcome.PassedSSL)
}

func TestRunFlagsUnresolvableHostWithSkipReason(t *testing.T) {
	checker := New(Config{CheckDNS: true, DNSConcurrency: 2, SkipDNSFailed: true}, zaptest.NewLogger(t))
	results := checker.Run(context.Background(), []string{"https://this-host-does-not-exist.invalid.example.nonexistent"})
	outcome := results["https://this-host-does-not-exist.invalid.example.nonexistent"]
	assert.False(t, outcome.PassedDNS)
	assert.Equal(t, types.CodeDNSResolutionFailed, outcome.SkipReason)
}

func TestRunWarnsWithoutSkippingWhenSkipDNSFailedDisabled(t *testing.T) {
	checker := New(Config{CheckDNS: true, DNSConcurrency: 2, SkipDNSFailed: false}, zaptest.NewLogger(t))
	results := checker.Run(context.Background(), []string{"https://this-host-does-not-exist.invalid.example.nonexistent"})
	outcome := results["https://this-host-does-not-exist.invalid.example.nonexistent"]
	assert.False(t, outcome.PassedDNS)
	assert.Empty(t, outcome.SkipReason)
	assert.NotEmpty(t, outcome.Warnings)
}
