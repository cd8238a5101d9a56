package loader

import "errors"

// ErrSourceUnavailable wraps any failure to reach or parse a URL source,
// surfaced to callers as C1's URL_SOURCE_UNAVAILABLE outcome.
var ErrSourceUnavailable = errors.New("url source unavailable")
