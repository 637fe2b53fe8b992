package upstream

import (
	"sync"

	"golang.org/x/net/http2"
)

// connHolder is the versioned connection slot described in spec §4.2: a query goroutine that finds
// a dead or timed-out connection may only clear it if the version it observed is still current,
// which stops two concurrent failures from both clearing the slot (or the second one clobbering a
// connection the reconnect goroutine has already replaced).
type connHolder struct {
	mu      sync.Mutex
	conn    *http2.ClientConn
	version uint64
}

// snapshot returns the current connection (possibly nil) and its version.
func (h *connHolder) snapshot() (*http2.ClientConn, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn, h.version
}

// invalidate clears the held connection if, and only if, observedVersion is still current. Returns
// false if the slot moved on underneath the caller - in which case some other goroutine already
// dealt with it. Client.Query does not use the result: duplicate reconnect requests are coalesced
// by the capacity-1 reconnect channel.
func (h *connHolder) invalidate(observedVersion uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.version != observedVersion {
		return false
	}
	h.conn = nil
	h.version++
	return true
}

// store installs a freshly dialed connection, bumping the version so that any query still holding
// a snapshot of the prior (nil) state won't double-invalidate it.
func (h *connHolder) store(conn *http2.ClientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conn = conn
	h.version++
}
