package main

import (
	"strings"
	"testing"
)

func TestReporter(t *testing.T) {
	s := &server{listenAddress: "127.0.0.1", transport: "udp"}
	name := s.Name()
	if !strings.Contains(name, "127.0.0.1/udp") {
		t.Error("Name does not contain listen address and transport", name)
	}

	rep1 := s.Report(false)
	s.addSuccessStats()
	rep2 := s.Report(true)
	if rep2 == rep1 {
		t.Error("Report should have changed after a success was recorded", rep1, rep2)
	}
	rep2 = s.Report(false)
	if rep2 != rep1 {
		t.Error("Reset-counters report should equal the initial (zeroed) report", rep1, rep2)
	}

	s.addSuccessStats()
	s.addSuccessStats()
	s.addFailureStats()
	rep1 = s.Report(false)
	rep2 = s.Report(false)
	if rep1 != rep2 {
		t.Error("Report(false) should not reset counters", rep1, rep2)
	}
	if !strings.Contains(rep1, "ok=2") {
		t.Error("expected ok=2 in report", rep1)
	}
	if !strings.Contains(rep1, "writeErrs=1") {
		t.Error("expected writeErrs=1 in report", rep1)
	}
}
