package domainvalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(Config{})
	require.NoError(t, err)
	return v
}

func TestValidateAcceptsOrdinaryURL(t *testing.T) {
	v := newTestValidator(t)
	assert.NoError(t, v.Validate("https://example.com/page"))
}

func TestValidateRejectsMalformed(t *testing.T) {
	v := newTestValidator(t)
	assert.ErrorIs(t, v.Validate("not a url"), ErrMalformed)
}

func TestValidateRejectsIPLiteralByDefault(t *testing.T) {
	v := newTestValidator(t)
	assert.ErrorIs(t, v.Validate("http://93.184.216.34/"), ErrIPLiteral)
}

func TestValidateAllowsIPLiteralWhenConfigured(t *testing.T) {
	v, err := New(Config{AllowIPLiterals: true})
	require.NoError(t, err)
	assert.NoError(t, v.Validate("http://93.184.216.34/"))
}

func TestValidateRejectsReservedTLD(t *testing.T) {
	v := newTestValidator(t)
	assert.ErrorIs(t, v.Validate("http://site.test/"), ErrReservedTLD)
	assert.ErrorIs(t, v.Validate("http://foo.invalid/"), ErrReservedTLD)
}

func TestValidateRejectsSingleLabelHost(t *testing.T) {
	v := newTestValidator(t)
	assert.ErrorIs(t, v.Validate("http://localhost/"), ErrTooFewLabels)
}

func TestValidateRejectsBlocklistedHost(t *testing.T) {
	v, err := New(Config{Blocklist: []string{"*.staging.example.com"}})
	require.NoError(t, err)
	assert.ErrorIs(t, v.Validate("https://api.staging.example.com/"), ErrBlocklisted)
}

func TestFilterPartitionsInOrder(t *testing.T) {
	v := newTestValidator(t)
	valid, rejected := v.Filter([]string{"https://a.example.com", "not a url", "https://b.example.com"})
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, valid)
	assert.Equal(t, []string{"not a url"}, rejected)
}
