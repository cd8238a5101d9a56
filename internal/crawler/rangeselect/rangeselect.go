// Package rangeselect implements C2: a 1-based inclusive range selector
// applied to the ordered candidate sequence produced by the URL loader.
package rangeselect

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Result carries the selected subsequence plus any warning the caller
// should surface, matching C2's warn-don't-fail posture.
type Result struct {
	Selected []string
	Warning  string
}

// Select applies rangeExpr to urls per spec.md §4.2:
//   - "s-e" selects positions s..e
//   - "s-" selects s..len
//   - "-e" (or a missing start) selects 1..e
//   - s > len(urls) yields an empty selection with a warning
//   - s > e with both given is treated as s..len with a warning
//   - unparseable numerics pass the original sequence through unchanged, with a warning
//
// An empty rangeExpr is a no-op: the full sequence is returned unchanged.
func Select(urls []string, rangeExpr string, logger *zap.Logger) Result {
	rangeExpr = strings.TrimSpace(rangeExpr)
	if rangeExpr == "" {
		return Result{Selected: urls}
	}

	start, end, ok := parseRange(rangeExpr, len(urls))
	if !ok {
		msg := "range expression \"" + rangeExpr + "\" is not valid; using the full sequence unchanged"
		logWarning(logger, msg)
		return Result{Selected: urls, Warning: msg}
	}

	if start > len(urls) {
		msg := "range start exceeds sequence length; selection is empty"
		logWarning(logger, msg)
		return Result{Selected: nil, Warning: msg}
	}

	var warning string
	if end < start {
		warning = "range end precedes start; selecting through the end of the sequence instead"
		logWarning(logger, warning)
		end = len(urls)
	}
	if end > len(urls) {
		end = len(urls)
	}
	if start < 1 {
		start = 1
	}

	return Result{Selected: urls[start-1 : end], Warning: warning}
}

// parseRange splits "s-e", "s-", "-e" into 1-based bounds. A bare
// integer with no hyphen is treated as "s-s" (a single position).
func parseRange(expr string, length int) (start, end int, ok bool) {
	idx := strings.Index(expr, "-")
	if idx == -1 {
		n, err := strconv.Atoi(expr)
		if err != nil {
			return 0, 0, false
		}
		return n, n, true
	}

	startPart := strings.TrimSpace(expr[:idx])
	endPart := strings.TrimSpace(expr[idx+1:])

	switch {
	case startPart == "" && endPart == "":
		return 0, 0, false
	case startPart == "":
		e, err := strconv.Atoi(endPart)
		if err != nil {
			return 0, 0, false
		}
		return 1, e, true
	case endPart == "":
		s, err := strconv.Atoi(startPart)
		if err != nil {
			return 0, 0, false
		}
		return s, length, true
	default:
		s, err1 := strconv.Atoi(startPart)
		e, err2 := strconv.Atoi(endPart)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return s, e, true
	}
}

func logWarning(logger *zap.Logger, msg string) {
	if logger != nil {
		logger.Warn(msg)
	}
}
