// Package classify implements the C8 error taxonomy: a deterministic,
// pure mapping from a raw error or signal to a types.DetailedError.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/adtechscan/crawler/pkg/types"
)

// FromError maps a raw navigation/extraction error to a DetailedError.
// Matchers are evaluated in the order specified by §4.8; first match wins.
func FromError(url string, phase types.Phase, err error) types.DetailedError {
	if err == nil {
		return unknownResult(url, phase, "")
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "net::err_name_not_resolved"):
		return detailed(url, types.CategoryNetwork, "dns", types.PhaseNavigation, types.CodeNameNotResolved, msg)
	case strings.Contains(lower, "net::err_cert"):
		return detailed(url, types.CategorySSL, "certificate", types.PhaseNavigation, certCode(lower), msg)
	case strings.Contains(lower, "navigation timeout") || strings.Contains(lower, "timeout"):
		return detailed(url, types.CategoryTimeout, "navigation", types.PhaseNavigation, types.CodeTimeout, msg)
	case strings.Contains(lower, "protocol error"):
		return detailed(url, types.CategoryBrowser, "protocol", phase, types.CodeProtocolError, msg)
	case strings.Contains(lower, "session closed") || strings.Contains(lower, "target closed"):
		return detailed(url, types.CategoryBrowser, "session", phase, types.CodeSessionClosed, msg)
	case strings.Contains(lower, "execution context was destroyed"):
		return detailed(url, types.CategoryExtraction, "frame", types.PhaseExtraction, types.CodeDetachedFrame, msg)
	case strings.Contains(lower, "requesting main frame too early"):
		return detailed(url, types.CategoryBrowser, "main_frame", phase, types.CodePuppeteerMainFrame, msg)
	case strings.Contains(lower, "econnrefused"):
		return detailed(url, types.CategoryNetwork, "connection", types.PhaseNavigation, types.CodeConnRefused, msg)
	case strings.Contains(lower, "econnreset"):
		return detailed(url, types.CategoryNetwork, "connection", types.PhaseNavigation, types.CodeConnReset, msg)
	case strings.Contains(lower, "etimedout"):
		return detailed(url, types.CategoryNetwork, "connection", types.PhaseNavigation, types.CodeConnTimedOut, msg)
	default:
		return unknownResult(url, phase, msg)
	}
}

// HTTPStatusResult classifies a navigation that completed with a bad
// response status, per §9's resolved open question: any status >= 400 is
// an Error regardless of page body.
func HTTPStatusResult(url string, status int) types.DetailedError {
	return detailed(url, types.CategoryContent, "http", types.PhaseNavigation, types.HTTPCode(status),
		fmt.Sprintf("navigation completed with HTTP status %d", status))
}

func HardTimeoutResult(url string) types.DetailedError {
	return detailed(url, types.CategoryTimeout, "hard", types.PhaseNavigation, types.CodeHardTimeout, "hard timeout exceeded")
}

func DetachedResult(url string) types.DetailedError {
	return detailed(url, types.CategoryBrowser, "crash", types.PhaseNavigation, types.CodeDetachedFrame, "page detached")
}

// IsNonRetryableCrash reports whether err matches one of the fatal
// substrings the browser pool treats as an isolation boundary per §4.6:
// the task is abandoned and the URL is not retried within this run.
func IsNonRetryableCrash(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "target closed") ||
		strings.Contains(lower, "session closed") ||
		strings.Contains(lower, "protocol error") ||
		strings.Contains(lower, "requesting main frame too early")
}

// CrashResult builds the DetailedError for a non-retryable crash detected
// by IsNonRetryableCrash, choosing between the two codes §4.6 names.
func CrashResult(url string, err error) types.DetailedError {
	code := types.CodeBrowserCrashNoRetry
	if strings.Contains(strings.ToLower(err.Error()), "main frame too early") {
		code = types.CodePuppeteerMainFrame
	}
	return detailed(url, types.CategoryBrowser, "crash", types.PhaseNavigation, code, err.Error())
}

func MaxRetriesResult(url string) types.DetailedError {
	return detailed(url, types.CategoryOther, "unknown", types.PhaseNavigation, types.CodeMaxRetriesExceeded, "max retries exceeded")
}

func DNSFailedResult(url string) types.DetailedError {
	return detailed(url, types.CategoryNetwork, "dns", types.PhasePreflight, types.CodeDNSResolutionFailed, "DNS resolution failed during preflight")
}

func SSLFailedResult(url string) types.DetailedError {
	return detailed(url, types.CategorySSL, "validation", types.PhasePreflight, types.CodeSSLValidationFailed, "TLS handshake failed during preflight")
}

func unknownResult(url string, phase types.Phase, msg string) types.DetailedError {
	if msg == "" {
		msg = "unknown processing error"
	}
	return detailed(url, types.CategoryOther, "unknown", phase, types.CodeUnknownProcessing, msg)
}

func certCode(lowerMsg string) string {
	switch {
	case strings.Contains(lowerMsg, "date_invalid"):
		return types.CodeCertPrefix + "DATE_INVALID"
	case strings.Contains(lowerMsg, "authority_invalid"):
		return types.CodeCertPrefix + "AUTHORITY_INVALID"
	case strings.Contains(lowerMsg, "common_name_invalid"):
		return types.CodeCertPrefix + "COMMON_NAME_INVALID"
	default:
		return types.CodeCertPrefix + "INVALID"
	}
}

func detailed(url string, cat types.ErrorCategory, sub string, phase types.Phase, code, msg string) types.DetailedError {
	return types.DetailedError{
		Category:    cat,
		SubCategory: sub,
		Phase:       phase,
		Code:        code,
		URL:         url,
		Timestamp:   time.Now().UTC(),
		Message:     msg,
	}
}
