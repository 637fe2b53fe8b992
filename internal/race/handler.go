// Package race implements the entry point called once per inbound query: it selects which
// configured upstreams are candidates for the query's name, fans the query out to all of them
// concurrently, and forwards the client the first acceptable answer to arrive.
package race

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/miekg/dns"

	"github.com/racedns/race-dns-proxy/internal/domain"
	"github.com/racedns/race-dns-proxy/internal/registry"
)

// Handler implements dns.Handler, racing each query against the registry's upstreams.
type Handler struct {
	registry *registry.Registry
	logw     io.Writer
}

// New creates a Handler over reg. logw receives one line per upstream outcome plus the final
// routing decision; pass nil (or io.Discard) for silence.
func New(reg *registry.Registry, logw io.Writer) *Handler {
	if logw == nil {
		logw = io.Discard
	}
	return &Handler{registry: reg, logw: logw}
}

// ServeDNS meets github.com/miekg/dns.Handler.
func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	resp := h.Resolve(r)
	if err := w.WriteMsg(resp); err != nil {
		h.logf("failed to send response to %s: %v", w.RemoteAddr(), err)
	}
}

// queryResult is one upstream's outcome, collected for fallback selection per spec §4.3.
type queryResult struct {
	name    string
	elapsed time.Duration
	resp    *dns.Msg
	err     error
}

// Resolve runs the race for one query and always returns a response message - it never returns an
// error, since total failure is itself a SERVFAIL reply per spec §4.3 step 6.
func (h *Handler) Resolve(r *dns.Msg) *dns.Msg {
	if len(r.Question) == 0 {
		return servfail(r)
	}
	qName := r.Question[0].Name

	candidates, specific := selectCandidates(h.registry.All(), qName)
	if len(candidates) == 0 {
		h.logf("◼ no upstream configured for %s", qName)
		return servfail(r)
	}
	if specific {
		h.logf("using specific provider(s) for %s", qName)
	}

	resultsCh := make(chan queryResult, len(candidates))
	for _, c := range candidates {
		go func(c registry.Entry) {
			start := time.Now()
			resp, err := c.Client.Query(context.Background(), r)
			resultsCh <- queryResult{name: c.Name, elapsed: time.Since(start), resp: resp, err: err}
		}(c)
	}

	collected := make([]queryResult, 0, len(candidates))
	remaining := len(candidates)

	for remaining > 0 {
		res := <-resultsCh
		remaining--

		if res.err != nil {
			h.logf("✘ %s: %v", res.name, res.err)
			continue
		}

		collected = append(collected, res)

		if isAcceptable(res.resp.Rcode) {
			h.logf("✔ %s: %s", res.name, res.elapsed)
			if remaining > 0 {
				go h.drain(resultsCh, remaining)
			}
			return frame(r, res.resp)
		}

		h.logf("◼ %s: %s (%s)", res.name, dns.RcodeToString[res.resp.Rcode], res.elapsed)
	}

	if fallback := h.selectFallback(collected); fallback != nil {
		return frame(r, fallback.resp)
	}

	h.logf("✘ all upstream queries failed for %s", qName)
	return servfail(r)
}

// drain keeps receiving from resultsCh after a response has already been sent, purely so every
// upstream's outcome gets logged per spec §4.3 step 4's "continue draining" requirement, without
// making the client wait on the slowest upstream.
func (h *Handler) drain(resultsCh chan queryResult, remaining int) {
	for i := 0; i < remaining; i++ {
		res := <-resultsCh
		if res.err != nil {
			h.logf("✘ %s: %v", res.name, res.err)
			continue
		}
		h.logf("◼ %s: %s (%s)", res.name, dns.RcodeToString[res.resp.Rcode], res.elapsed)
	}
}

// selectFallback implements the priority order from spec §4.3 step 5: first NXDomain, else first
// ServFail, else the first response of any code. Returns nil if collected is empty.
func (h *Handler) selectFallback(collected []queryResult) *queryResult {
	var first, nxdomain, servFail *queryResult
	for i := range collected {
		res := &collected[i]
		if first == nil {
			first = res
		}
		if nxdomain == nil && res.resp.Rcode == dns.RcodeNameError {
			nxdomain = res
		}
		if servFail == nil && res.resp.Rcode == dns.RcodeServerFailure {
			servFail = res
		}
	}

	chosen := first
	switch {
	case nxdomain != nil:
		chosen = nxdomain
	case servFail != nil:
		chosen = servFail
	}
	if chosen != nil {
		h.logf("● fallback response (%s) from %s", dns.RcodeToString[chosen.resp.Rcode], chosen.name)
	}
	return chosen
}

// isAcceptable reports whether rcode is good enough to forward immediately rather than held as a
// fallback candidate: anything other than ServFail or NXDomain.
func isAcceptable(rcode int) bool {
	return rcode != dns.RcodeServerFailure && rcode != dns.RcodeNameError
}

// selectCandidates implements spec §4.3 step 2: upstreams with a non-universal rule set that
// matches qName take priority over the universal ("default") upstreams; the two sets are never
// combined. Returns the chosen set and whether it was the specific set.
func selectCandidates(entries []registry.Entry, qName string) ([]registry.Entry, bool) {
	var specific, universal []registry.Entry
	for _, e := range entries {
		if e.RuleSet.IsUniversal() {
			universal = append(universal, e)
			continue
		}
		if domain.Matches(qName, e.RuleSet) {
			specific = append(specific, e)
		}
	}

	if len(specific) > 0 {
		return specific, true
	}
	return universal, false
}

func (h *Handler) logf(format string, args ...interface{}) {
	fmt.Fprintf(h.logw, format+"\n", args...)
}
