/*
Package constants provides common values used across all race-dns-proxy packages. Usage is to call
the global Get() function which returns the Constants by value ensuring that any modifications made
(accidental or otherwise) will not affect other modules when they call Get().

Typical usage:

    consts := constants.Get()
    fmt.Println("I am", consts.ProgramName, "based on", consts.RFC)

The primary reason for making this a constructed struct rather than the more typical const () block
is so that it can be fed directly into templating packages for printing usage messages.
*/
package constants

import "time"

// Constants contains the system-wide constants
type Constants struct {
	ProgramName string
	Version     string
	PackageURL  string
	RFC         string

	AcceptHeader       string // Place in every upstream request
	ContentTypeHeader  string
	UserAgentHeader    string
	Rfc8484AcceptValue string

	Rfc8484Path string // DoH query path - RFC8484 §4.1.1

	DNSDefaultPort          string
	DNSUDPTransport         string
	DNSTCPTransport         string
	MinimumViableDNSMessage uint // MsgHdr + one Question with zero length name
	DNSTruncateThreshold    int  // A message larger than this size may be truncated unless EDNS0
	MaximumViableDNSMessage uint // RFC8484 defines an upper limit

	// Upstream per-query retry budget (internal/upstream, spec §4.2)
	QueryTimeout        time.Duration
	QueryMaxRetries     int
	QueryInitialBackoff time.Duration
	QueryMaxBackoff     time.Duration

	// Reconnection task retry budget (internal/upstream, spec §4.2)
	ReconnectMaxAttempts        int
	ReconnectInitialBackoff     time.Duration
	ReconnectMaxBackoff         time.Duration
	ReconnectUnreachableBackoff time.Duration

	// TCP idle limit imposed by the server framework (spec §5, §6)
	TCPIdleTimeout time.Duration

	DefaultHost       string
	DefaultPort       string
	DefaultConfigFile string
	DefaultLogLevel   string
	LogLevelEnvVar    string
}

var readOnlyConstants *Constants

// createReadOnlyConstants creates a read-only copy of the Constants which is copied whenever a
// caller asks for the constants set.
func createReadOnlyConstants() {
	readOnlyConstants = &Constants{
		ProgramName: "race-dns-proxy",
		Version:     "v0.1.0",
		PackageURL:  "https://github.com/racedns/race-dns-proxy",
		RFC:         "RFC8484",

		AcceptHeader:       "Accept",
		ContentTypeHeader:  "Content-Type",
		UserAgentHeader:    "User-Agent",
		Rfc8484AcceptValue: "application/dns-message",

		Rfc8484Path: "/dns-query",

		DNSDefaultPort:          "53",
		DNSUDPTransport:         "udp",
		DNSTCPTransport:         "tcp",
		MinimumViableDNSMessage: 16,
		DNSTruncateThreshold:    512,
		MaximumViableDNSMessage: 65535,

		QueryTimeout:        3 * time.Second,
		QueryMaxRetries:     6,
		QueryInitialBackoff: 200 * time.Millisecond,
		QueryMaxBackoff:     600 * time.Millisecond,

		ReconnectMaxAttempts:        5,
		ReconnectInitialBackoff:     300 * time.Millisecond,
		ReconnectMaxBackoff:         3 * time.Second,
		ReconnectUnreachableBackoff: 5 * time.Second,

		TCPIdleTimeout: 10 * time.Second,

		DefaultHost:       "[::]",
		DefaultPort:       "5653",
		DefaultConfigFile: "race-dns-proxy.toml",
		DefaultLogLevel:   "info",
		LogLevelEnvVar:    "RACE_DNS_PROXY_LOG",
	}
}

func init() {
	createReadOnlyConstants()
}

// Get returns a copy of the Constants struct. Return by value so internal values cannot be
// inadvertently changed by callers.
func Get() Constants {
	return *readOnlyConstants
}
