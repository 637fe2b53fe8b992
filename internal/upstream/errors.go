package upstream

import "errors"

// ErrMaxRetriesExceeded is returned by Client.Query when the per-query retry budget (spec §4.2) is
// exhausted without any attempt returning a usable response.
var ErrMaxRetriesExceeded = errors.New("upstream: max retries exceeded")
