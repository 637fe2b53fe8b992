// Package registry turns the provider list loaded by internal/config into the live set of
// upstream.Client connections the race handler fans queries out to.
package registry

import (
	"crypto/tls"
	"io"

	"github.com/racedns/race-dns-proxy/internal/config"
	"github.com/racedns/race-dns-proxy/internal/domain"
	"github.com/racedns/race-dns-proxy/internal/reporter"
	"github.com/racedns/race-dns-proxy/internal/upstream"
)

// Entry binds one configured upstream's live client to the domain rules that gate whether it's a
// candidate for a given query. Client is the narrow upstream.Querier interface rather than the
// concrete type, so tests can substitute a fake instead of dialing real connections.
type Entry struct {
	Name    string
	Client  upstream.Querier
	RuleSet domain.RuleSet
}

// Registry is the ordered, immutable-after-Build set of configured upstreams.
type Registry struct {
	entries []Entry
}

// Build dials (asynchronously; see upstream.New) one Client per provider and returns the resulting
// Registry. tlsConfig is the shared base client TLS configuration - each upstream.Client clones it
// and sets its own ServerName. logw receives per-upstream connection-lifecycle log lines.
func Build(providers []config.Provider, tlsConfig *tls.Config, logw io.Writer) *Registry {
	entries := make([]Entry, 0, len(providers))
	for _, p := range providers {
		entries = append(entries, Entry{
			Name:    p.Name,
			Client:  upstream.New(p.Addr, p.Hostname, tlsConfig, logw),
			RuleSet: p.RuleSet,
		})
	}

	return &Registry{entries: entries}
}

// New wraps a pre-built entry list directly, bypassing Build's dialing. Exported for tests in other
// packages (internal/race) that need a Registry fronting fake upstream.Querier implementations.
func New(entries []Entry) *Registry {
	return &Registry{entries: entries}
}

// All returns every configured entry, in configuration order, regardless of domain rules.
// internal/race performs candidate selection over this list; see its specific-beats-universal rule.
func (r *Registry) All() []Entry {
	return r.entries
}

// Reporters returns one reporter.Reporter per configured upstream that implements it (in practice
// every real upstream.Client), in configuration order.
func (r *Registry) Reporters() []reporter.Reporter {
	reporters := make([]reporter.Reporter, 0, len(r.entries))
	for _, e := range r.entries {
		if rep, ok := e.Client.(reporter.Reporter); ok {
			reporters = append(reporters, rep)
		}
	}

	return reporters
}
