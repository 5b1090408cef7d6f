package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
)

// ReportRow is one requested capability in the final report.
type ReportRow struct {
	CapabilityID string          `json:"capability_id" yaml:"capability_id"`
	Label        string          `json:"label" yaml:"label"`
	State        CapabilityState `json:"state" yaml:"state"`
	Checks       string          `json:"checks" yaml:"checks"`
	Hint         string          `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Report is the end-of-run summary. Rows come from a fresh probe of every
// requested capability, so the report reflects live system state rather
// than what the executor believes it did. Run outcomes that a probe cannot
// observe (attempted-unverified, failed) are preserved from the run.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	RunID       string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Status      RunStatus       `json:"status,omitempty" yaml:"status,omitempty"`
	Profile     profile.Profile `json:"profile" yaml:"profile"`
	Rows        []ReportRow     `json:"rows" yaml:"rows"`
}

// BuildReport re-probes the requested capabilities (in declaration order)
// and merges in the run result when one is given.
func BuildReport(ctx context.Context, reg *registry.Registry, prober Prober, prof profile.Profile, requested []string, result *RunResult) Report {
	rep := Report{
		GeneratedAt: time.Now().UTC(),
		Profile:     prof,
	}
	if result != nil {
		rep.RunID = result.RunID
		rep.Status = result.Status
	}

	wanted := make(map[string]bool, len(requested))
	for _, id := range requested {
		wanted[id] = true
	}

	for _, c := range reg.All() {
		if !wanted[c.ID] {
			continue
		}
		res := prober.Probe(ctx, &c)
		row := ReportRow{
			CapabilityID: c.ID,
			Label:        c.Label,
			State:        fromProbe(res.Status),
			Checks:       fmt.Sprintf("%d/%d", res.Passed, res.Total),
		}
		if result != nil {
			if st, ok := result.States[c.ID]; ok {
				switch st {
				case StateAttemptedUnverified:
					if row.State != StateSatisfied {
						row.State = StateAttemptedUnverified
					}
				case StateFailed, StateSkipped:
					if row.State != StateSatisfied {
						row.State = st
					}
				}
			}
		}
		if c.Hint != "" && (row.State != StateSatisfied || acted(result, c.ID)) {
			row.Hint = c.Hint
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep
}

// acted reports whether the run changed anything for the capability.
func acted(result *RunResult, capID string) bool {
	if result == nil {
		return false
	}
	for _, rec := range result.Records {
		if rec.CapabilityID == capID &&
			(rec.Outcome == RecordSuccess || rec.Outcome == RecordAttempted) {
			return true
		}
	}
	return false
}

// Satisfied reports whether every row ended satisfied.
func (r Report) Satisfied() bool {
	for _, row := range r.Rows {
		if row.State != StateSatisfied {
			return false
		}
	}
	return true
}

// Render formats the report as an aligned text table with a trailing hint
// section.
func (r Report) Render() string {
	var b strings.Builder

	idW, labelW := len("CAPABILITY"), len("LABEL")
	for _, row := range r.Rows {
		if len(row.CapabilityID) > idW {
			idW = len(row.CapabilityID)
		}
		if len(row.Label) > labelW {
			labelW = len(row.Label)
		}
	}

	fmt.Fprintf(&b, "%-*s  %-*s  %-20s  %s\n", idW, "CAPABILITY", labelW, "LABEL", "STATE", "CHECKS")
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%-*s  %-*s  %-20s  %s\n", idW, row.CapabilityID, labelW, row.Label, string(row.State), row.Checks)
	}

	var hints []ReportRow
	for _, row := range r.Rows {
		if row.Hint != "" {
			hints = append(hints, row)
		}
	}
	if len(hints) > 0 {
		b.WriteString("\nManual follow-up:\n")
		for _, row := range hints {
			fmt.Fprintf(&b, "  %s: %s\n", row.CapabilityID, row.Hint)
		}
	}
	return b.String()
}
