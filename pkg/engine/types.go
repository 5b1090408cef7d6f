package engine

import (
	"time"

	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/profile"
)

// CapabilityState is the per-capability state across a provisioning run.
//
// Unknown -> {Satisfied | Missing | PartiallySatisfied} (probe), then for
// requested, unsatisfied capabilities:
// Scheduled -> Executing -> {Satisfied | Failed | AttemptedUnverified}
// (final re-probe). Terminal states: Satisfied, Failed, AttemptedUnverified.
type CapabilityState string

const (
	StateUnknown   CapabilityState = "unknown"
	StateSatisfied CapabilityState = "satisfied"
	StateMissing   CapabilityState = "missing"
	StatePartial   CapabilityState = "partially-satisfied"
	StateScheduled CapabilityState = "scheduled"
	StateExecuting CapabilityState = "executing"
	StateFailed    CapabilityState = "failed"
	StateSkipped   CapabilityState = "skipped"

	// StateAttemptedUnverified marks interactive capabilities whose
	// installer was launched but whose outcome the executor cannot
	// classify.
	StateAttemptedUnverified CapabilityState = "attempted-unverified"
)

// IsTerminal reports whether the state is final for a run.
func (s CapabilityState) IsTerminal() bool {
	return s == StateSatisfied || s == StateFailed ||
		s == StateAttemptedUnverified || s == StateSkipped
}

// fromProbe maps a probe classification onto a capability state.
func fromProbe(status probe.Status) CapabilityState {
	switch status {
	case probe.StatusSatisfied:
		return StateSatisfied
	case probe.StatusPartial:
		return StatePartial
	default:
		return StateMissing
	}
}

// PlanEntry is one ordered step of a plan.
type PlanEntry struct {
	// CapabilityID identifies the capability to act on.
	CapabilityID string `json:"capability_id"`

	// Label is the capability's human-readable name.
	Label string `json:"label"`

	// Reason is the probe classification that put the entry in the plan.
	Reason probe.Status `json:"reason"`

	// Order is the position in the topological order.
	Order int `json:"order"`

	// Interactive mirrors the capability flag for display.
	Interactive bool `json:"interactive,omitempty"`
}

// Plan is the ordered sequence of capabilities to execute, derived from
// (requested set minus satisfied set), expanded with unsatisfied
// transitive dependencies and topologically sorted. An empty plan is a
// valid, successful outcome. Plans are built once per run and discarded
// after execution.
type Plan struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Entries   []PlanEntry `json:"entries"`

	// Requested is the full requested capability set, including already
	// satisfied capabilities, for final reporting.
	Requested []string `json:"requested"`

	// Profile is the system profile the plan was built against.
	Profile profile.Profile `json:"profile"`
}

// Empty reports whether the system is already fully provisioned.
func (p *Plan) Empty() bool {
	return len(p.Entries) == 0
}

// RecordOutcome classifies one execution record.
type RecordOutcome string

const (
	RecordSuccess RecordOutcome = "success"
	RecordFailure RecordOutcome = "failure"
	RecordSkipped RecordOutcome = "skipped"

	// RecordAttempted marks unverifiable interactive actions.
	RecordAttempted RecordOutcome = "attempted"
)

// ExecutionRecord is one append-only audit entry per attempted action.
// Records are never mutated after creation.
type ExecutionRecord struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	CapabilityID string        `json:"capability_id"`
	Action       string        `json:"action"`
	Outcome      RecordOutcome `json:"outcome"`
	Summary      string        `json:"summary,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
}

// RunStatus is the overall status of a provisioning run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"

	// RunStatusUnverified means no action failed but at least one
	// interactive capability awaits manual verification.
	RunStatusUnverified RunStatus = "unverified"
)

// RunResult aggregates the outcome of executing a plan.
type RunResult struct {
	RunID       string                     `json:"run_id"`
	Status      RunStatus                  `json:"status"`
	States      map[string]CapabilityState `json:"states"`
	Records     []ExecutionRecord          `json:"records"`
	StartedAt   time.Time                  `json:"started_at"`
	CompletedAt time.Time                  `json:"completed_at"`

	// FailedCapability names the capability that aborted the run, if any.
	FailedCapability string `json:"failed_capability,omitempty"`
}
