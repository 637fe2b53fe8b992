package main

import "fmt"

//////////////////////////////////////////////////////////////////////
// reporter implementation
//////////////////////////////////////////////////////////////////////

// addSuccessStats records that one query was answered and written back to the client.
func (t *server) addSuccessStats() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successCount++
}

// addFailureStats records that writing the response back to the client failed.
func (t *server) addFailureStats() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.writeErrors++
}

func (t *server) Name() string {
	return "Server (" + t.listenAddress + "/" + t.transport + ")"
}

func (t *server) Report(resetCounters bool) string {
	if resetCounters {
		t.mu.Lock()
		defer t.mu.Unlock()
	} else {
		t.mu.RLock()
		defer t.mu.RUnlock()
	}

	s := fmt.Sprintf("ok=%d writeErrs=%d Concurrency=%d", t.successCount, t.writeErrors, t.cct.Peak(resetCounters))

	if resetCounters {
		t.stats = stats{}
	}

	return s
}
