package commands

import (
	"testing"

	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
)

func TestFilterApplicableDropsInapplicableConfiguredCapabilities(t *testing.T) {
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry.Default: %v", err)
	}

	server := profile.Profile{
		Family:       profile.FamilyDebian,
		GPU:          profile.GPUNone,
		ComputerType: profile.ComputerServer,
	}

	// Gaming capabilities and the GPU driver are explicitly enabled but
	// cannot apply to a headless server without a GPU.
	configured := []string{"base-packages", "battlenet-client", "gpu-driver", "container-engine"}
	got, err := filterApplicable(reg, server, configured)
	if err != nil {
		t.Fatalf("filterApplicable: %v", err)
	}

	want := []string{"base-packages", "container-engine"}
	if len(got) != len(want) {
		t.Fatalf("kept = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kept = %v, want %v", got, want)
		}
	}
}

func TestFilterApplicableRejectsUnknownCapability(t *testing.T) {
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry.Default: %v", err)
	}
	prof := profile.Profile{
		Family:       profile.FamilyArch,
		GPU:          profile.GPUNvidia,
		ComputerType: profile.ComputerWorkstation,
	}
	if _, err := filterApplicable(reg, prof, []string{"base-packages", "ghost"}); err == nil {
		t.Fatal("expected error for unknown configured capability")
	}
}
