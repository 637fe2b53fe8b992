package race

import "github.com/miekg/dns"

// frame builds the wire response sent to the client from a winning upstream message: the header,
// question, and id come from request (per spec §4.4, "zone is empty" means we never echo the
// upstream's own question section), while the response code and payload sections come from msg.
func frame(request, msg *dns.Msg) *dns.Msg {
	out := new(dns.Msg)
	out.SetReply(request)
	out.Rcode = msg.Rcode
	out.Authoritative = msg.Authoritative
	out.Truncated = msg.Truncated
	out.RecursionAvailable = msg.RecursionAvailable
	out.Answer = msg.Answer
	out.Ns = msg.Ns
	out.Extra = msg.Extra
	return out
}

// servfail synthesizes an empty SERVFAIL reply to request, used when no candidate upstream exists
// or every candidate failed outright.
func servfail(request *dns.Msg) *dns.Msg {
	out := new(dns.Msg)
	out.SetReply(request)
	out.Rcode = dns.RcodeServerFailure
	return out
}
