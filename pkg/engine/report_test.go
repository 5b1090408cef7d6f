package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/rigup/rigup/pkg/probe"
)

func TestReportReflectsLiveState(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b"))
	prober := &fakeProber{statuses: map[string][]probe.Status{
		"a": {probe.StatusSatisfied},
		"b": {probe.StatusMissing},
	}}

	rep := BuildReport(context.Background(), reg, prober, testProfile(), []string{"a", "b"}, nil)
	if len(rep.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rep.Rows))
	}
	if rep.Rows[0].State != StateSatisfied {
		t.Fatalf("row a state = %s, want %s", rep.Rows[0].State, StateSatisfied)
	}
	if rep.Rows[1].State != StateMissing {
		t.Fatalf("row b state = %s, want %s", rep.Rows[1].State, StateMissing)
	}
	if rep.Satisfied() {
		t.Fatal("report claims satisfied with a missing row")
	}
}

func TestReportPreservesUnverifiedOutcome(t *testing.T) {
	c := testCap("battlenet")
	c.Interactive = true
	c.Hint = "finish the installer in the launcher window"
	reg := testRegistry(t, c)

	prober := &fakeProber{statuses: map[string][]probe.Status{
		"battlenet": {probe.StatusMissing},
	}}
	result := &RunResult{
		RunID:  "run-1",
		Status: RunStatusUnverified,
		States: map[string]CapabilityState{"battlenet": StateAttemptedUnverified},
		Records: []ExecutionRecord{{
			CapabilityID: "battlenet",
			Outcome:      RecordAttempted,
		}},
	}

	rep := BuildReport(context.Background(), reg, prober, testProfile(), []string{"battlenet"}, result)
	if rep.Rows[0].State != StateAttemptedUnverified {
		t.Fatalf("state = %s, want %s", rep.Rows[0].State, StateAttemptedUnverified)
	}
	if rep.Rows[0].Hint == "" {
		t.Fatal("expected hint for unverified capability")
	}

	out := rep.Render()
	if !strings.Contains(out, "attempted-unverified") {
		t.Fatalf("render missing state:\n%s", out)
	}
	if !strings.Contains(out, "Manual follow-up:") {
		t.Fatalf("render missing hint section:\n%s", out)
	}
}

func TestReportProbeWinsOverStaleRunState(t *testing.T) {
	reg := testRegistry(t, testCap("a"))
	prober := &fakeProber{statuses: map[string][]probe.Status{
		"a": {probe.StatusSatisfied},
	}}
	result := &RunResult{
		States: map[string]CapabilityState{"a": StateAttemptedUnverified},
	}

	rep := BuildReport(context.Background(), reg, prober, testProfile(), []string{"a"}, result)
	if rep.Rows[0].State != StateSatisfied {
		t.Fatalf("state = %s, want %s", rep.Rows[0].State, StateSatisfied)
	}
}
