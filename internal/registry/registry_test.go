package registry

import (
	"crypto/tls"
	"testing"

	"github.com/racedns/race-dns-proxy/internal/config"
	"github.com/racedns/race-dns-proxy/internal/domain"
	"github.com/racedns/race-dns-proxy/internal/upstream"
)

func testProviders() []config.Provider {
	return []config.Provider{
		{
			Name:     "cloudflare",
			Addr:     "127.0.0.1:1",
			Hostname: "cloudflare-dns.com",
			RuleSet:  domain.RuleSet{},
		},
		{
			Name:     "regional",
			Addr:     "127.0.0.1:2",
			Hostname: "dns.corp.internal",
			RuleSet:  domain.RuleSet{Includes: []string{"corp.internal"}},
		},
	}
}

func TestBuildPreservesOrder(t *testing.T) {
	reg := Build(testProviders(), &tls.Config{InsecureSkipVerify: true}, nil)

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Name != "cloudflare" || all[1].Name != "regional" {
		t.Fatalf("expected configuration order preserved, got %+v", all)
	}
	client, ok := all[0].Client.(*upstream.Client)
	if !ok {
		t.Fatalf("expected Build to use a real *upstream.Client, got %T", all[0].Client)
	}
	if client.ServerName() != "cloudflare-dns.com" {
		t.Errorf("expected cloudflare client bound to cloudflare-dns.com, got %s", client.ServerName())
	}
}

func TestReportersOneClientPerEntry(t *testing.T) {
	reg := Build(testProviders(), &tls.Config{InsecureSkipVerify: true}, nil)

	reporters := reg.Reporters()
	if len(reporters) != 2 {
		t.Fatalf("expected 2 reporters, got %d", len(reporters))
	}
	if reporters[0].Name() != "upstream cloudflare-dns.com" {
		t.Errorf("unexpected reporter name: %s", reporters[0].Name())
	}
}
