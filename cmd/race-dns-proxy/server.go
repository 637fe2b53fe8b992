package main

/*

This module is the thin DNS-server wrapper around internal/race.Handler. It owns the listening
socket (one instance per transport: UDP and TCP) and translates between miekg/dns's server framework
and the race handler's Resolve call, tracking peak concurrency for status reporting along the way.

The one piece of logic that lives here rather than in internal/race is truncation. A response
assembled by the race handler can easily be larger than what our downstream client can accept over
UDP, and UDP and TCP clients have different size limits. We never clear TC=1 once the upstream (or
our own truncation) set it - some other DNS proxies are known to clear it, but that just hides
information the client is entitled to have and is able to act on.

*/

import (
	"fmt"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/racedns/race-dns-proxy/internal/concurrencytracker"
	"github.com/racedns/race-dns-proxy/internal/dnsutil"
	"github.com/racedns/race-dns-proxy/internal/race"
)

type stats struct {
	successCount int // Queries answered and written back to the client without error
	writeErrors  int // Queries where WriteMsg to the client failed
}

type server struct {
	handler       *race.Handler
	listenAddress string
	transport     string // One of consts.DNSUDPTransport / consts.DNSTCPTransport
	server        *dns.Server
	cct           concurrencytracker.Counter // Track peak concurrent server requests

	mu sync.RWMutex // Protects stats below
	stats
}

// start starts the dns server and writes to errorChan at server exit. We use the server's
// NotifyStartedFunc to wait until the socket is actually open before returning, rather than
// guessing with a sleep.
func (t *server) start(errorChan chan error, wg *sync.WaitGroup) {
	var notifyWG sync.WaitGroup
	var once sync.Once

	notifyWG.Add(1)
	t.server = &dns.Server{Addr: t.listenAddress, Net: t.transport, Handler: t, NotifyStartedFunc: func() {
		once.Do(func() { notifyWG.Done() })
	}, IdleTimeout: func() time.Duration { return consts.TCPIdleTimeout }}

	wg.Add(1) // Add to caller's waitGroup
	go func() {
		errorChan <- t.server.ListenAndServe()
		once.Do(func() { notifyWG.Done() })
		wg.Done()
	}()
	notifyWG.Wait() // Wait for dns.Server notify before returning to say server is listening (or failed)
}

// ServeDNS is called once per query in a newly created go-routine.
func (t *server) ServeDNS(writer dns.ResponseWriter, query *dns.Msg) {
	t.cct.Add() // Track peak concurrency for reporting purposes
	defer t.cct.Done()

	if cfg.logFile != "" {
		fmt.Fprintln(logw, "Cl:"+writer.RemoteAddr().String()+":"+dnsutil.CompactMsgString(query))
	}

	resp := t.handler.Resolve(query)

	// Truncation is a server-framework concern (it depends on the transport the query arrived
	// on), so it lives here rather than in internal/race, which has no notion of transport.
	if t.transport == consts.DNSUDPTransport {
		limit := consts.DNSTruncateThreshold
		if opt := query.IsEdns0(); opt != nil && int(opt.UDPSize()) > limit {
			limit = int(opt.UDPSize())
		}
		if resp.Len() > limit {
			resp.Truncate(limit)
			resp.Truncated = true
		}
	}

	if err := writer.WriteMsg(resp); err != nil {
		t.addFailureStats()
		if cfg.logFile != "" {
			fmt.Fprintln(logw, "CE:"+err.Error())
		}
		return
	}

	t.addSuccessStats()
	if cfg.logFile != "" {
		fmt.Fprintln(logw, "CO:"+dnsutil.CompactMsgString(resp))
	}
}

// stop performs an orderly shutdown of the listen socket.
func (t *server) stop() {
	if t.server != nil {
		t.server.Shutdown()
	}
}
