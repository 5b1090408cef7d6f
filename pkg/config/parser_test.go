package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadValidConfig(t *testing.T) {
	content := `
computer_type: "workstation"
gpu:           "nvidia"
capabilities: ["base-packages", "container-engine"]
unattended:     false
action_timeout: "45m"
log_level:      "debug"
`
	cfg, err := NewParser().LoadBytes([]byte(content), "rigup.cue")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if cfg.ComputerType != "workstation" {
		t.Fatalf("computer_type = %s, want workstation", cfg.ComputerType)
	}
	if cfg.GPU != "nvidia" {
		t.Fatalf("gpu = %s, want nvidia", cfg.GPU)
	}
	if len(cfg.Capabilities) != 2 || cfg.Capabilities[1] != "container-engine" {
		t.Fatalf("capabilities = %v", cfg.Capabilities)
	}
	if cfg.Timeout() != 45*time.Minute {
		t.Fatalf("timeout = %s, want 45m", cfg.Timeout())
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	content := `
computer_type: "workstation"
tpyo:          true
`
	if _, err := NewParser().LoadBytes([]byte(content), "rigup.cue"); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadRejectsBadEnum(t *testing.T) {
	content := `computer_type: "laptop"`
	if _, err := NewParser().LoadBytes([]byte(content), "rigup.cue"); err == nil {
		t.Fatal("expected invalid computer_type to be rejected")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	content := `action_timeout: "sometime"`
	if _, err := NewParser().LoadBytes([]byte(content), "rigup.cue"); err == nil {
		t.Fatal("expected invalid action_timeout to be rejected")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigup.cue")
	if err := os.WriteFile(path, []byte(`gpu: "none"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := NewParser().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GPU != "none" {
		t.Fatalf("gpu = %s, want none", cfg.GPU)
	}
}

func TestDefaultTimeout(t *testing.T) {
	cfg := Default()
	if cfg.Timeout() != 30*time.Minute {
		t.Fatalf("timeout = %s, want 30m", cfg.Timeout())
	}
}

func TestResolvePathsHonorsXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	t.Setenv("XDG_DATA_HOME", "")
	p := ResolvePaths("/home/tester")

	if p.DatabasePath() != "/tmp/xdg-state/rigup/rigup.db" {
		t.Fatalf("db path = %s", p.DatabasePath())
	}
	if p.AuditLogPath() != "/tmp/xdg-state/rigup/audit.log" {
		t.Fatalf("audit path = %s", p.AuditLogPath())
	}
	if p.DataDir != "/home/tester/.local/share/rigup" {
		t.Fatalf("data dir = %s", p.DataDir)
	}
}
