// Package upstream holds a single persistent HTTP/2 connection to one DoH upstream and keeps it
// alive in the background, independent of whatever queries are in flight. This is the engine room
// of race-dns-proxy: internal/race fans a query out to several of these concurrently and takes
// whichever answers first.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/http2"

	"github.com/racedns/race-dns-proxy/internal/constants"
)

// Querier is the contract internal/registry and internal/race depend on, rather than the concrete
// Client, so a fake can stand in for tests that don't want to dial real connections.
type Querier interface {
	Query(ctx context.Context, q *dns.Msg) (*dns.Msg, error)
}

// Client is a self-healing DoH client bound to exactly one upstream address. It is safe for
// concurrent use: many goroutines may call Query at once while a single background goroutine
// (re)establishes the connection as needed.
type Client struct {
	addr       string // "<ip>:<port>"
	serverName string // TLS SNI and DoH :authority / Host
	tlsConfig  *tls.Config
	consts     constants.Constants
	transport  *http2.Transport
	logw       io.Writer

	holder      connHolder
	reconnectCh chan struct{}

	successes  atomic.Uint64
	failures   atomic.Uint64
	reconnects atomic.Uint64
}

// New creates a Client for the upstream at addr, presenting serverName as TLS SNI, and starts its
// background reconnect goroutine, which dials the first connection immediately. tlsConfig is cloned
// with its ServerName overridden and ALPN set to "h2", so a single base config may be shared across
// many upstreams with different hostnames. logw receives human-readable connection-lifecycle lines; pass nil (or
// io.Discard) for silence.
func New(addr, serverName string, tlsConfig *tls.Config, logw io.Writer) *Client {
	if logw == nil {
		logw = io.Discard
	}

	cfg := tlsConfig.Clone()
	cfg.ServerName = serverName
	cfg.NextProtos = []string{"h2"}

	c := &Client{
		addr:        addr,
		serverName:  serverName,
		tlsConfig:   cfg,
		consts:      constants.Get(),
		transport:   &http2.Transport{},
		logw:        logw,
		reconnectCh: make(chan struct{}, 1),
	}

	go c.reconnectLoop()

	return c
}

// ServerName returns the configured TLS SNI / DoH hostname, used by internal/race and
// internal/registry for display and log purposes.
func (c *Client) ServerName() string {
	return c.serverName
}

// Query sends q to the upstream and returns its response, retrying over the per-query retry budget
// described in spec §4.2: up to QueryMaxRetries attempts, starting at QueryInitialBackoff and
// doubling up to QueryMaxBackoff, each attempt bounded by QueryTimeout. A reconnect is requested at
// most once per call, the first time an attempt fails or finds no usable connection.
func (c *Client) Query(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	backoff := c.consts.QueryInitialBackoff
	reconnectSent := false

	for attempt := 0; ; attempt++ {
		conn, version := c.holder.snapshot()
		if conn != nil && conn.CanTakeNewRequest() {
			qctx, cancel := context.WithTimeout(ctx, c.consts.QueryTimeout)
			resp, err := c.doRequest(qctx, conn, q)
			cancel()
			if err == nil {
				c.successes.Add(1)
				return resp, nil
			}
			c.failures.Add(1)
			c.logf("query to %s failed: %v", c.serverName, err)
			c.holder.invalidate(version)
		}

		if attempt+1 >= c.consts.QueryMaxRetries {
			return nil, fmt.Errorf("upstream %s: %w", c.serverName, ErrMaxRetriesExceeded)
		}

		if !reconnectSent {
			c.requestReconnect()
			reconnectSent = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.consts.QueryMaxBackoff {
			backoff = c.consts.QueryMaxBackoff
		}
	}
}

// doRequest performs exactly one DoH round trip over an already-established connection.
func (c *Client) doRequest(ctx context.Context, conn *http2.ClientConn, q *dns.Msg) (*dns.Msg, error) {
	binary, err := q.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	url := "https://" + c.serverName + c.consts.Rfc8484Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(binary))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Host = c.serverName
	req.Header.Set(c.consts.AcceptHeader, c.consts.Rfc8484AcceptValue)
	req.Header.Set(c.consts.ContentTypeHeader, c.consts.Rfc8484AcceptValue)
	req.Header.Set(c.consts.UserAgentHeader, c.consts.ProgramName+"/"+c.consts.Version+" ("+c.consts.PackageURL+")")

	resp, err := conn.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("round trip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad HTTP status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if ct := resp.Header.Get(c.consts.ContentTypeHeader); ct != c.consts.Rfc8484AcceptValue {
		return nil, fmt.Errorf("unexpected Content-Type %q", ct)
	}

	if uint(len(body)) < c.consts.MinimumViableDNSMessage {
		return nil, fmt.Errorf("response length %d below minimum viable %d", len(body), c.consts.MinimumViableDNSMessage)
	}

	reply := &dns.Msg{}
	if err := reply.Unpack(body); err != nil {
		return nil, fmt.Errorf("unpack response: %w", err)
	}

	return reply, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	fmt.Fprintf(c.logw, format+"\n", args...)
}
