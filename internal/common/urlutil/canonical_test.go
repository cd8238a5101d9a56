package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips default https port", "https://example.com:443/path", "https://example.com/path"},
		{"strips default http port", "http://example.com:80/path", "http://example.com/path"},
		{"keeps non-default port", "https://example.com:8443/path", "https://example.com:8443/path"},
		{"drops fragment", "https://example.com/path#section", "https://example.com/path"},
		{"drops trailing slash on host-only", "https://example.com/", "https://example.com"},
		{"keeps trailing slash on deeper path", "https://example.com/a/", "https://example.com/a/"},
		{"keeps query string", "https://example.com/path?a=1", "https://example.com/path?a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCanonicalizeRejectsNonAbsolute(t *testing.T) {
	_, err := Canonicalize("/just/a/path")
	assert.Error(t, err)

	_, err = Canonicalize("ftp://example.com/file")
	assert.Error(t, err)
}
