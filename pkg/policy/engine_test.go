package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/profile"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestServerDeniesInteractiveCapabilities(t *testing.T) {
	e := testEngine(t)

	input := Input{
		Profile: profile.Profile{ComputerType: profile.ComputerServer},
		Entries: []EntryInput{
			{CapabilityID: "container-engine"},
			{CapabilityID: "battlenet-client", Interactive: true},
		},
	}
	result, err := e.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected plan to be denied on server")
	}
	if len(result.Violations) != 1 || result.Violations[0].Capability != "battlenet-client" {
		t.Fatalf("violations = %+v, want one for battlenet-client", result.Violations)
	}
}

func TestWorkstationAllowsInteractiveCapabilities(t *testing.T) {
	e := testEngine(t)

	input := Input{
		Profile: profile.Profile{ComputerType: profile.ComputerWorkstation},
		Entries: []EntryInput{
			{CapabilityID: "battlenet-client", Interactive: true},
		},
	}
	result, err := e.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("plan denied on workstation: %+v", result.Violations)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %+v, want none", result.Warnings)
	}
}

func TestUnattendedInteractiveWarnsWithoutBlocking(t *testing.T) {
	e := testEngine(t)

	input := Input{
		Profile:    profile.Profile{ComputerType: profile.ComputerWorkstation},
		Unattended: true,
		Entries: []EntryInput{
			{CapabilityID: "epic-client", Interactive: true},
		},
	}
	result, err := e.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("warning severity must not block the plan: %+v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Capability != "epic-client" {
		t.Fatalf("warnings = %+v, want one for epic-client", result.Warnings)
	}
}

func TestMissingSecretDenied(t *testing.T) {
	e := testEngine(t)

	input := Input{
		Profile: profile.Profile{ComputerType: profile.ComputerWorkstation},
		Entries: []EntryInput{
			{CapabilityID: "tailscale-vpn", RequiresSecret: "RIGUP_TAILSCALE_AUTHKEY", SecretPresent: false},
		},
	}
	result, err := e.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected plan with unresolved secret to be denied")
	}

	input.Entries[0].SecretPresent = true
	result, err = e.EvaluatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("plan denied with secret present: %+v", result.Violations)
	}
}
