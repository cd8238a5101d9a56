package browser

import (
	"encoding/json"
	"fmt"
)

// stealthScript is injected before every navigation via
// Page.addScriptToEvaluateOnNewDocument so it runs before any page script,
// matching go-rod-stealth's approach of patching navigator.webdriver
// ahead of document load rather than patching it after the fact.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
`

// ExtractOptions is the options object forwarded verbatim to the
// extraction payload; field names match the in-page payload contract.
type ExtractOptions struct {
	DiscoveryMode       bool   `json:"discoveryMode"`
	ExtractMetadata     bool   `json:"extractMetadata"`
	AdUnitDetail        string `json:"adUnitDetail"`
	ModuleDetail        string `json:"moduleDetail"`
	IdentityDetail      bool   `json:"identityDetail"`
	PrebidConfigDetail  bool   `json:"prebidConfigDetail"`
	IdentityUsageDetail bool   `json:"identityUsageDetail"`
}

// buildExtractionExpression wraps the opaque payload source (a JavaScript
// function expression supplied by the caller, called with one argument)
// so it receives the marshaled options object and its return value
// round-trips as JSON.
// The payload itself is out of scope -- this only wires its calling
// convention, per §6's "opaque string passed to the browser" contract.
func buildExtractionExpression(payloadJS string, opts ExtractOptions) (string, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("marshaling extraction options: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", payloadJS, string(optsJSON)), nil
}
