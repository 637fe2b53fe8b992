package main

// config holds the command-line surface for race-dns-proxy: a bind address, a port, a path to the
// TOML provider configuration and an optional log file. Everything else (TLS roots, timeouts,
// retry budgets) comes from internal/constants or internal/config's per-provider TOML, not flags.
type config struct {
	help    bool
	version bool

	host       string
	port       string
	configFile string
	logFile    string
}
