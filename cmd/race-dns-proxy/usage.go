package main

import (
	"fmt"
	"io"
	"text/template"

	"github.com/racedns/race-dns-proxy/internal/constants"
)

// The "flag" package is not tty aware so we've arbitrarily picked 100 columns as a conservative tty
// width for the usage output.

const usageMessageTemplate = `
NAME
          {{.ProgramName}} -- a racing DNS-over-HTTPS proxy

SYNOPSIS
          {{.ProgramName}} [options]

DESCRIPTION
          {{.ProgramName}} accepts ordinary DNS queries over UDP and TCP and resolves them by fanning
          each query out, concurrently, to every configured DNS-over-HTTPS ({{.RFC}}) upstream whose
          domain rules match the query name, then answering with whichever upstream responds first
          with an acceptable code. NXDomain and ServFail responses are held back as fallback
          candidates rather than accepted outright, so a slower but successful upstream still wins
          the race against a fast failure.

          Upstreams are configured in a TOML file (-c/--config) as a list of providers, each with an
          address, a TLS server name, and an optional set of domain-suffix include/exclude rules.
          Providers with no rules are "universal" and are consulted for any query that no
          rule-matching provider claims.

          Each upstream gets exactly one persistent HTTP/2 connection, kept alive by a background
          reconnection task independent of whatever queries are in flight, so a single slow or
          failing upstream never blocks queries being raced against the others.

INVOCATION
          A typical invocation binds the wildcard address on the default port and reads providers
          from the default configuration file:

              $ {{.ProgramName}} --config race-dns-proxy.toml

          or with an explicit bind address, port, and log file:

              $ {{.ProgramName}} --host 127.0.0.1 --port 5353 --config providers.toml --log /var/log/race-dns-proxy.log

          Once running, queries can be issued at the configured listen address:

              $ dig @127.0.0.1 -p 5353 example.com

CONFIGURATION FILE
          The TOML file named by -c/--config contains one [providers.<name>] stanza per upstream,
          plus an optional [domain_groups] table of named domain-suffix lists a provider can
          reference to restrict which queries it is a candidate for:

              [domain_groups]
              corp = ["corp.internal"]

              [providers.cloudflare]
              addr     = "1.1.1.1:443"
              hostname = "cloudflare-dns.com"

              [providers.corp]
              addr          = "10.0.0.53:443"
              hostname      = "dns.corp.internal"
              domain_groups = ["corp"]

          A provider with no domain_groups is "universal"; prefixing an entry with "!" makes it an
          exclude instead of an include. Provider keys are sorted alphabetically as a tiebreaker
          only; candidate and fallback selection do not otherwise depend on that ordering.

LOGGING
          If --log is supplied, log lines are written to a file at that path, rotated when it
          reaches 100 MB (it is not rotated daily). Certain lines (startup, shutdown, status
          reports) are also always echoed to the terminal. The RACE_DNS_PROXY_LOG environment
          variable (default "info") is reported in the startup line; it does not change which
          lines are logged.

OPTIONS
`

func usage(out io.Writer) {
	tmpl, err := template.New("usage").Parse(usageMessageTemplate)
	if err != nil {
		panic(err) // We've messed up our template
	}
	err = tmpl.Execute(out, consts)
	if err != nil {
		panic(err) // We've messed up our template
	}
	flagSet.SetOutput(out)
	flagSet.PrintDefaults()
	fmt.Fprintln(out, "\nVersion:", consts.Version)
}

// parseCommandLine sets up the flags-to-config mapping and parses the supplied command line
// arguments. It starts from scratch each time to make it easier for test wrappers to use.
func parseCommandLine(args []string) error {
	c := constants.Get()

	flagSet.BoolVar(&cfg.help, "help", false, "Print usage message to Stdout then exit(0)")
	flagSet.BoolVar(&cfg.version, "version", false, "Print version and exit")

	flagSet.StringVar(&cfg.host, "h", c.DefaultHost, "Bind `address` for UDP and TCP listeners")
	flagSet.StringVar(&cfg.host, "host", c.DefaultHost, "Bind `address` for UDP and TCP listeners")

	flagSet.StringVar(&cfg.port, "p", c.DefaultPort, "Bind `port` for UDP and TCP listeners")
	flagSet.StringVar(&cfg.port, "port", c.DefaultPort, "Bind `port` for UDP and TCP listeners")

	flagSet.StringVar(&cfg.configFile, "c", c.DefaultConfigFile, "`path` to the TOML provider configuration file")
	flagSet.StringVar(&cfg.configFile, "config", c.DefaultConfigFile, "`path` to the TOML provider configuration file")

	flagSet.StringVar(&cfg.logFile, "log", "", "`path` to a size-rotated log file (unset disables file logging)")

	return flagSet.Parse(args[1:])
}
