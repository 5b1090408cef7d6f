package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
)

func testCap(id string, deps ...string) registry.Capability {
	return registry.Capability{
		ID:        id,
		Label:     id,
		DependsOn: deps,
		Checks:    []registry.Check{{Kind: registry.CheckCommand, Command: id}},
		Actions: []registry.Action{{
			Kind:    registry.ActionCommand,
			Command: map[profile.Family][]string{"": {"true"}},
		}},
	}
}

func testRegistry(t *testing.T, caps ...registry.Capability) *registry.Registry {
	t.Helper()
	reg, err := registry.New(caps)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func testProfile() profile.Profile {
	return profile.Profile{
		Family:       profile.FamilyArch,
		Distro:       "arch",
		ComputerType: profile.ComputerWorkstation,
		GPU:          profile.GPUNvidia,
		User:         "tester",
		Home:         "/home/tester",
	}
}

func probeResults(statuses map[string]probe.Status) map[string]probe.Result {
	out := make(map[string]probe.Result, len(statuses))
	for id, st := range statuses {
		out[id] = probe.Result{CapabilityID: id, Status: st, Total: 1}
	}
	return out
}

func planIDs(p *Plan) []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.CapabilityID
	}
	return ids
}

func TestPlanSkipsSatisfiedCapabilities(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	plan, err := pl.Build(context.Background(), testProfile(), []string{"a", "b"}, probeResults(map[string]probe.Status{
		"a": probe.StatusSatisfied,
		"b": probe.StatusMissing,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := planIDs(plan)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("plan entries = %v, want [b]", got)
	}
}

func TestPlanExpandsUnsatisfiedDependencies(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b", "a"), testCap("c", "b"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	plan, err := pl.Build(context.Background(), testProfile(), []string{"c"}, probeResults(map[string]probe.Status{
		"a": probe.StatusMissing,
		"b": probe.StatusMissing,
		"c": probe.StatusMissing,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := planIDs(plan)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("plan entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plan entries = %v, want %v", got, want)
		}
	}
}

func TestPlanExcludesSatisfiedDependencies(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b", "a"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	plan, err := pl.Build(context.Background(), testProfile(), []string{"b"}, probeResults(map[string]probe.Status{
		"a": probe.StatusSatisfied,
		"b": probe.StatusMissing,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := planIDs(plan)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("plan entries = %v, want [b]", got)
	}
}

func TestPlanEmptyWhenAllSatisfied(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b", "a"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	plan, err := pl.Build(context.Background(), testProfile(), []string{"a", "b"}, probeResults(map[string]probe.Status{
		"a": probe.StatusSatisfied,
		"b": probe.StatusSatisfied,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !plan.Empty() {
		t.Fatalf("plan entries = %v, want empty plan", planIDs(plan))
	}
}

func TestPlanGrowsMonotonically(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b", "a"), testCap("c"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())
	results := probeResults(map[string]probe.Status{
		"a": probe.StatusMissing,
		"b": probe.StatusMissing,
		"c": probe.StatusMissing,
	})

	small, err := pl.Build(context.Background(), testProfile(), []string{"b"}, results)
	if err != nil {
		t.Fatalf("Build small: %v", err)
	}
	large, err := pl.Build(context.Background(), testProfile(), []string{"b", "c"}, results)
	if err != nil {
		t.Fatalf("Build large: %v", err)
	}

	in := make(map[string]bool)
	for _, id := range planIDs(large) {
		in[id] = true
	}
	for _, id := range planIDs(small) {
		if !in[id] {
			t.Fatalf("capability %s lost when requested set grew", id)
		}
	}
}

func TestPlanStableDeclarationOrderForIndependents(t *testing.T) {
	reg := testRegistry(t, testCap("z-first"), testCap("a-second"), testCap("m-third"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	plan, err := pl.Build(context.Background(), testProfile(), []string{"m-third", "a-second", "z-first"}, probeResults(map[string]probe.Status{
		"z-first":  probe.StatusMissing,
		"a-second": probe.StatusMissing,
		"m-third":  probe.StatusMissing,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := planIDs(plan)
	want := []string{"z-first", "a-second", "m-third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plan entries = %v, want declaration order %v", got, want)
		}
	}
}

func TestPlanRejectsUnknownCapability(t *testing.T) {
	reg := testRegistry(t, testCap("a"))
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	_, err := pl.Build(context.Background(), testProfile(), []string{"nope"}, nil)
	if !IsConfigError(err) {
		t.Fatalf("Build error = %v, want config error", err)
	}
}

func TestPlanRejectsMissingSecret(t *testing.T) {
	const secret = "RIGUP_TEST_PLANNER_SECRET"
	os.Unsetenv(secret)

	c := testCap("vpn")
	c.RequiresSecret = secret
	reg := testRegistry(t, c)
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())
	results := probeResults(map[string]probe.Status{"vpn": probe.StatusMissing})

	_, err := pl.Build(context.Background(), testProfile(), []string{"vpn"}, results)
	var perr *ProvisionError
	if !errors.As(err, &perr) || perr.Code != ErrCodeMissingSecret {
		t.Fatalf("Build error = %v, want MISSING_SECRET config error", err)
	}

	t.Setenv(secret, "tskey-test")
	if _, err := pl.Build(context.Background(), testProfile(), []string{"vpn"}, results); err != nil {
		t.Fatalf("Build with secret set: %v", err)
	}
}

func TestPlanOrdersBuiltinGPUBeforeToolkit(t *testing.T) {
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry.Default: %v", err)
	}
	pl := NewPlanner(reg, nil, nil, zerolog.Nop())

	statuses := make(map[string]probe.Status)
	for _, c := range reg.All() {
		statuses[c.ID] = probe.StatusMissing
	}
	plan, err := pl.Build(context.Background(), testProfile(), []string{"nvidia-container-toolkit"}, probeResults(statuses))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pos := make(map[string]int)
	for i, id := range planIDs(plan) {
		pos[id] = i
	}
	for _, pair := range [][2]string{
		{"base-packages", "container-engine"},
		{"gpu-driver", "nvidia-container-toolkit"},
		{"container-engine", "nvidia-container-toolkit"},
	} {
		before, after := pair[0], pair[1]
		bi, ok := pos[before]
		if !ok {
			t.Fatalf("expected %s in plan %v", before, planIDs(plan))
		}
		ai, ok := pos[after]
		if !ok {
			t.Fatalf("expected %s in plan %v", after, planIDs(plan))
		}
		if bi >= ai {
			t.Fatalf("%s at %d should precede %s at %d", before, bi, after, ai)
		}
	}
}

func TestPlanProbesDependenciesOutsideRequestedSet(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b", "a"))
	prober := &fakeProber{statuses: map[string][]probe.Status{
		"a": {probe.StatusSatisfied},
	}}
	pl := NewPlanner(reg, prober, nil, zerolog.Nop())

	// Only b was probed up front; a is a dependency outside the requested
	// set and is already satisfied on the host.
	plan, err := pl.Build(context.Background(), testProfile(), []string{"b"}, probeResults(map[string]probe.Status{
		"b": probe.StatusMissing,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := planIDs(plan)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("plan entries = %v, want [b]", got)
	}
}

func TestPlanSchedulesUnsatisfiedUnprobedDependency(t *testing.T) {
	reg := testRegistry(t, testCap("a"), testCap("b", "a"))
	prober := &fakeProber{statuses: map[string][]probe.Status{
		"a": {probe.StatusMissing},
	}}
	pl := NewPlanner(reg, prober, nil, zerolog.Nop())

	plan, err := pl.Build(context.Background(), testProfile(), []string{"b"}, probeResults(map[string]probe.Status{
		"b": probe.StatusMissing,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := planIDs(plan)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("plan entries = %v, want [a b]", got)
	}
}

func TestPlanPromptsForMissingSecret(t *testing.T) {
	const secret = "RIGUP_TEST_PROMPTED_SECRET"
	os.Unsetenv(secret)
	defer os.Unsetenv(secret)

	c := testCap("vpn")
	c.RequiresSecret = secret
	reg := testRegistry(t, c)

	asked := ""
	prompt := func(name string) (string, bool) {
		asked = name
		return "tskey-prompted", true
	}
	pl := NewPlanner(reg, nil, prompt, zerolog.Nop())
	results := probeResults(map[string]probe.Status{"vpn": probe.StatusMissing})

	if _, err := pl.Build(context.Background(), testProfile(), []string{"vpn"}, results); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if asked != secret {
		t.Fatalf("prompted for %q, want %q", asked, secret)
	}
	if got := os.Getenv(secret); got != "tskey-prompted" {
		t.Fatalf("secret env = %q, want prompted value", got)
	}
}

func TestPlanFailsWhenPromptDeclined(t *testing.T) {
	const secret = "RIGUP_TEST_DECLINED_SECRET"
	os.Unsetenv(secret)

	c := testCap("vpn")
	c.RequiresSecret = secret
	reg := testRegistry(t, c)

	prompt := func(string) (string, bool) { return "", false }
	pl := NewPlanner(reg, nil, prompt, zerolog.Nop())
	results := probeResults(map[string]probe.Status{"vpn": probe.StatusMissing})

	_, err := pl.Build(context.Background(), testProfile(), []string{"vpn"}, results)
	var perr *ProvisionError
	if !errors.As(err, &perr) || perr.Code != ErrCodeMissingSecret {
		t.Fatalf("Build error = %v, want MISSING_SECRET config error", err)
	}
}
