package race

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/racedns/race-dns-proxy/internal/domain"
	"github.com/racedns/race-dns-proxy/internal/registry"
)

// fakeQuerier is a scripted upstream.Querier: it waits delay then returns either resp or err.
type fakeQuerier struct {
	delay time.Duration
	resp  *dns.Msg
	err   error
}

func (f *fakeQuerier) Query(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	reply := f.resp.Copy()
	reply.Id = q.Id
	return reply, nil
}

func answerMsg(rcode int, withA bool) *dns.Msg {
	m := new(dns.Msg)
	m.Rcode = rcode
	if withA {
		rr, _ := dns.NewRR("example.com. 300 IN A 93.184.216.34")
		m.Answer = append(m.Answer, rr)
	}
	return m
}

func newQuery(name string) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(name), dns.TypeA)
	return q
}

func registryOf(entries ...registry.Entry) *registry.Registry {
	return registry.New(entries)
}

func TestHappyRaceFastestWins(t *testing.T) {
	reg := registryOf(
		registry.Entry{Name: "A", Client: &fakeQuerier{delay: 20 * time.Millisecond, resp: answerMsg(dns.RcodeSuccess, true)}},
		registry.Entry{Name: "B", Client: &fakeQuerier{delay: 50 * time.Millisecond, resp: answerMsg(dns.RcodeSuccess, true)}},
	)
	h := New(reg, nil)
	q := newQuery("example.com")

	start := time.Now()
	resp := h.Resolve(q)
	elapsed := time.Since(start)

	if resp.Id != q.Id {
		t.Errorf("expected response Id %d, got %d", q.Id, resp.Id)
	}
	if resp.Rcode != dns.RcodeSuccess {
		t.Errorf("expected NOERROR, got %s", dns.RcodeToString[resp.Rcode])
	}
	if elapsed > 40*time.Millisecond {
		t.Errorf("expected the faster upstream to win within ~20ms, took %s", elapsed)
	}
}

func TestNegativeFirstDiscarded(t *testing.T) {
	reg := registryOf(
		registry.Entry{Name: "A", Client: &fakeQuerier{delay: 10 * time.Millisecond, resp: answerMsg(dns.RcodeNameError, false)}},
		registry.Entry{Name: "B", Client: &fakeQuerier{delay: 40 * time.Millisecond, resp: answerMsg(dns.RcodeSuccess, true)}},
	)
	h := New(reg, nil)
	resp := h.Resolve(newQuery("example.com"))

	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected client to receive the later NOERROR, got %s", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) != 1 {
		t.Errorf("expected 1 answer, got %d", len(resp.Answer))
	}
}

func TestAllNegativeFallbackPrefersNXDomain(t *testing.T) {
	reg := registryOf(
		registry.Entry{Name: "A", Client: &fakeQuerier{delay: 10 * time.Millisecond, resp: answerMsg(dns.RcodeServerFailure, false)}},
		registry.Entry{Name: "B", Client: &fakeQuerier{delay: 20 * time.Millisecond, resp: answerMsg(dns.RcodeNameError, false)}},
	)
	h := New(reg, nil)
	resp := h.Resolve(newQuery("example.com"))

	if resp.Rcode != dns.RcodeNameError {
		t.Errorf("expected NXDomain to win the fallback, got %s", dns.RcodeToString[resp.Rcode])
	}
}

func TestSpecificProviderRoutingExcludesUniversal(t *testing.T) {
	// The universal upstream answers at once with no records, so it would win if it were raced.
	specific := &fakeQuerier{delay: 20 * time.Millisecond, resp: answerMsg(dns.RcodeSuccess, true)}
	universal := &fakeQuerier{resp: answerMsg(dns.RcodeSuccess, false)}

	reg := registryOf(
		registry.Entry{Name: "A", Client: specific, RuleSet: domain.RuleSet{Includes: []string{"corp.internal"}}},
		registry.Entry{Name: "B", Client: universal, RuleSet: domain.RuleSet{}},
	)
	h := New(reg, nil)
	resp := h.Resolve(newQuery("host.corp.internal"))

	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected success, got %s", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) != 1 {
		t.Errorf("expected the specific upstream's answer, got %d answers", len(resp.Answer))
	}
}

func TestAllFailedYieldsServfail(t *testing.T) {
	reg := registryOf(
		registry.Entry{Name: "A", Client: &fakeQuerier{err: errors.New("boom")}},
		registry.Entry{Name: "B", Client: &fakeQuerier{err: errors.New("boom")}},
	)
	h := New(reg, nil)
	q := newQuery("example.com")
	resp := h.Resolve(q)

	if resp.Rcode != dns.RcodeServerFailure {
		t.Errorf("expected SERVFAIL, got %s", dns.RcodeToString[resp.Rcode])
	}
	if resp.Id != q.Id {
		t.Errorf("expected SERVFAIL to carry request Id %d, got %d", q.Id, resp.Id)
	}
	if len(resp.Answer) != 0 {
		t.Errorf("expected empty answers on total failure, got %d", len(resp.Answer))
	}
}

func TestNoCandidateYieldsServfail(t *testing.T) {
	reg := registryOf() // no upstreams at all
	h := New(reg, nil)
	resp := h.Resolve(newQuery("example.com"))

	if resp.Rcode != dns.RcodeServerFailure {
		t.Errorf("expected SERVFAIL when no upstream is configured, got %s", dns.RcodeToString[resp.Rcode])
	}
}
