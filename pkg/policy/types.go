package policy

import (
	"time"

	"github.com/rigup/rigup/pkg/profile"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block the plan.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the plan.
	SeverityError Severity = "error"
)

// Policy is one named rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are collected from
	// the package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`
}

// Violation is a single finding from policy evaluation.
type Violation struct {
	Policy     string `json:"policy"`
	Severity   string `json:"severity"`
	Capability string `json:"capability,omitempty"`
	Message    string `json:"message"`
}

// Result aggregates policy evaluation over a plan.
type Result struct {
	// Allowed is false when any error-severity violation was found.
	Allowed     bool        `json:"allowed"`
	Violations  []Violation `json:"violations,omitempty"`
	Warnings    []Violation `json:"warnings,omitempty"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// EntryInput is one plan entry as seen by policies.
type EntryInput struct {
	CapabilityID   string `json:"capability_id"`
	Interactive    bool   `json:"interactive"`
	RequiresSecret string `json:"requires_secret,omitempty"`
	SecretPresent  bool   `json:"secret_present"`
}

// Input is the document handed to Rego evaluation.
type Input struct {
	Profile    profile.Profile `json:"profile"`
	Unattended bool            `json:"unattended"`
	Entries    []EntryInput    `json:"entries"`
}
