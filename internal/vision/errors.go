package vision

import "errors"

// ErrUpstreamUnavailable is returned when the vision service fails or
// returns an unusable response. Extraction has no fallback chain; the
// failure is surfaced to the user.
var ErrUpstreamUnavailable = errors.New("vision service unavailable")
