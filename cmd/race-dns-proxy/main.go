// race-dns-proxy listens for inbound DNS queries and resolves each one by racing it against every
// configured DNS-over-HTTPS upstream whose domain rules match the query name.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/racedns/race-dns-proxy/internal/config"
	"github.com/racedns/race-dns-proxy/internal/constants"
	"github.com/racedns/race-dns-proxy/internal/logline"
	"github.com/racedns/race-dns-proxy/internal/osutil"
	"github.com/racedns/race-dns-proxy/internal/race"
	"github.com/racedns/race-dns-proxy/internal/registry"
	"github.com/racedns/race-dns-proxy/internal/reporter"
	"github.com/racedns/race-dns-proxy/internal/tlsutil"
)

// Program-wide variables
var (
	consts = constants.Get()
	cfg    *config

	stdout io.Writer // Raw os.Stdout/os.Stderr, or test buffers
	stderr io.Writer
	logw   *logline.Writer // Tees to a rotating file (if configured) plus stdout/stderr

	startTime   = time.Now()
	mainStateMu sync.Mutex
	mainState   = map[mainTransition]bool{}
	stopChannel chan os.Signal
	flagSet     *flag.FlagSet
)

type mainTransition int

const (
	Started mainTransition = iota
	Stopped
)

func setMain(t mainTransition) {
	mainStateMu.Lock()
	defer mainStateMu.Unlock()
	mainState[t] = true
}

// isMain reports whether mainExecute has reached transition t. Used by tests to synchronize with
// the main loop without sleeping blindly.
func isMain(t mainTransition) bool {
	mainStateMu.Lock()
	defer mainStateMu.Unlock()
	return mainState[t]
}

//////////////////////////////////////////////////////////////////////

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.ProgramName, ": ")
	fmt.Fprintln(stderr, args...)

	return 1
}

func stopMain() {
	stopChannel <- os.Interrupt
}

//////////////////////////////////////////////////////////////////////
// main wrappers make it easy for test programs
//////////////////////////////////////////////////////////////////////

// mainInit resets everything so mainExecute can be called multiple times in one program execution.
// stopChannel is buffered as the reader may disappear if there is a fatal error and multiple
// writers may try to write to the channel and we don't want those writers to stall forever.
func mainInit(out io.Writer, err io.Writer) {
	cfg = &config{}
	stdout = out
	stderr = err
	logw = logline.New("", stdout, stderr)
	mainState = map[mainTransition]bool{}
	stopChannel = make(chan os.Signal, 4) // All reasonable signals cause us to quit or report stats
	osutil.SignalNotify(stopChannel)
}

func main() {
	mainInit(os.Stdout, os.Stderr)
	os.Exit(mainExecute(os.Args))
}

func mainExecute(args []string) int {
	flagSet = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	if err := parseCommandLine(args); err != nil {
		return 1 // Error already printed by the flag package
	}
	if cfg.help {
		usage(stdout)
		return 0
	}
	if cfg.version {
		fmt.Fprintln(stdout, consts.ProgramName, "Version:", consts.Version)
		return 0
	}

	if cfg.logFile != "" {
		logw = logline.New(cfg.logFile, stdout, stderr)
	}

	providers, err := config.Load(cfg.configFile)
	if err != nil {
		return fatal(err)
	}
	if len(providers) == 0 {
		return fatal("configuration", cfg.configFile, "defines no providers")
	}

	// A single base TLS config, verifying against the system root CAs, is cloned per-upstream by
	// internal/registry/internal/upstream with ServerName overridden to each provider's hostname.
	tlsConfig, err := tlsutil.NewClientTLSConfig(true, nil, "", "")
	if err != nil {
		return fatal(err)
	}

	reg := registry.Build(providers, tlsConfig, logw)
	handler := race.New(reg, logw)

	logLevel := logline.LevelFromEnv(consts.LogLevelEnvVar, consts.DefaultLogLevel)
	fmt.Fprintln(logw, logline.Stdout(consts.ProgramName+" "+consts.Version+" starting, log level "+logLevel))

	addr := cfg.host
	if strings.Contains(addr, ":") && !strings.HasPrefix(addr, "[") {
		addr = "[" + addr + "]" // Wrap unadorned IPv6 addresses so we can append a port
	}
	addr = addr + ":" + cfg.port

	var reporters []reporter.Reporter
	var servers []*server

	errorChannel := make(chan error, 2) // One per transport
	wg := &sync.WaitGroup{}

	for _, transport := range []string{consts.DNSUDPTransport, consts.DNSTCPTransport} {
		s := &server{handler: handler, listenAddress: addr, transport: transport}
		s.start(errorChannel, wg)
		fmt.Fprintln(logw, logline.Stdout("Starting "+s.Name()))
		reporters = append(reporters, s)
		servers = append(servers, s)
	}
	reporters = append(reporters, reg.Reporters()...)

	setMain(Started)
	nextStatusIn := nextInterval(time.Now(), 15*time.Minute)

Running:
	for {
		select {
		case s := <-stopChannel:
			if osutil.IsSignalUSR1(s) {
				statusReport("User1", false, reporters)
				break
			}
			fmt.Fprintln(logw, logline.Stdout("Signal "+s.String()))
			break Running // All signals bar USR1 cause loop exit

		case err := <-errorChannel:
			return fatal(err) // No cleanup if we got a server startup error

		case <-time.After(nextStatusIn):
			statusReport("Status", true, reporters)
			nextStatusIn = nextInterval(time.Now(), 15*time.Minute)
		}
	}

	for _, s := range servers {
		s.stop()
	}

	setMain(Stopped)
	wg.Wait() // Wait for all servers to shut down

	statusReport("Status", true, reporters) // One last report prior to exiting
	fmt.Fprintln(logw, logline.Stdout(consts.ProgramName+" "+consts.Version+" Exiting after "+uptime()))

	return 0
}

// nextInterval calculates the duration to the modulo interval next time. If now is 00:01:17 and
// interval is 30s then return is 13s which is the duration to the next modulo of 00:01:30.
func nextInterval(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}

// uptime calculates how long this server has been running, in a print-friendly granularity.
func uptime() string {
	return time.Since(startTime).Truncate(time.Second).String()
}

// statusReport prints stats about the server and all known reporters.
func statusReport(what string, resetCounters bool, reporters []reporter.Reporter) {
	fmt.Fprintln(logw, logline.Stdout("Status Up: "+consts.ProgramName+" "+consts.Version+" "+uptime()))
	for _, r := range reporters {
		reps := strings.Split(r.Report(resetCounters), "\n")
		for _, s := range reps {
			if len(s) > 0 {
				fmt.Fprintln(logw, logline.Stdout(fmt.Sprintf("%s %s: %s", what, r.Name(), s)))
			}
		}
	}
}
