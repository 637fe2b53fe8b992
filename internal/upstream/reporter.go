package upstream

import "fmt"

// Name meets internal/reporter.Reporter.
func (c *Client) Name() string {
	return "upstream " + c.serverName
}

// Report meets internal/reporter.Reporter, returning a one-line summary of this upstream's query
// and reconnect counters.
func (c *Client) Report(resetCounters bool) string {
	ok := c.successes.Load()
	errs := c.failures.Load()
	reconnects := c.reconnects.Load()

	if resetCounters {
		c.successes.Store(0)
		c.failures.Store(0)
		c.reconnects.Store(0)
	}

	return fmt.Sprintf("%s: ok=%d errs=%d reconnects=%d", c.serverName, ok, errs, reconnects)
}
