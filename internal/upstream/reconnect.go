package upstream

import (
	"crypto/tls"
	"errors"
	"io"
	"syscall"
	"time"

	"golang.org/x/net/http2"
)

// reconnectLoop owns the lifetime of c.holder's contents. It runs once at startup and thereafter
// every time something is sent on c.reconnectCh, per spec §4.2. It never returns; it exits only when
// the process does.
func (c *Client) reconnectLoop() {
	c.attemptReconnect()
	for range c.reconnectCh {
		c.attemptReconnect()
	}
}

// requestReconnect nudges reconnectLoop without blocking. The channel has capacity 1, so a burst of
// failing queries collapses into a single pending reconnect request rather than a queue of them.
func (c *Client) requestReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// attemptReconnect dials a fresh connection, retrying with capped exponential backoff up to
// ReconnectMaxAttempts times. If the holder already has a usable connection (set by a concurrent
// reconnect, or because the caller's failure turned out to be transient) it does nothing.
func (c *Client) attemptReconnect() {
	if conn, _ := c.holder.snapshot(); conn != nil && conn.CanTakeNewRequest() {
		return
	}

	delay := c.consts.ReconnectInitialBackoff
	for attempt := 0; attempt < c.consts.ReconnectMaxAttempts; attempt++ {
		conn, err := c.dial()
		if err == nil {
			c.holder.store(conn)
			c.reconnects.Add(1)
			c.logf("connected to %s", c.serverName)
			return
		}

		c.logf("unable to connect to %s: %v", c.serverName, err)
		if isNetworkUnreachable(err) {
			delay = c.consts.ReconnectUnreachableBackoff
		}

		time.Sleep(delay)
		delay *= 2
		if delay > c.consts.ReconnectMaxBackoff {
			delay = c.consts.ReconnectMaxBackoff
		}
	}
}

// dial opens a new TLS connection to the upstream and upgrades it to a single HTTP/2 ClientConn.
// Unlike net/http's Transport, http2.Transport lets us hold a reference to exactly one persistent
// connection per upstream rather than pooling an unbounded, unaccountable set of them.
func (c *Client) dial() (*http2.ClientConn, error) {
	rawConn, err := tls.Dial("tcp", c.addr, c.tlsConfig)
	if err != nil {
		return nil, err
	}

	conn, err := c.transport.NewClientConn(rawConn)
	if err != nil {
		rawConn.Close()
		return nil, err
	}

	return conn, nil
}

// isNetworkUnreachable reports whether err looks like ENETUNREACH (errno 51 on BSD/macOS, 101 on
// Linux) or an unexpected EOF -
// both treated as "don't bother retrying quickly, the network itself is down" per spec §4.2.
func isNetworkUnreachable(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno == syscall.ENETUNREACH {
		return true
	}
	return false
}
