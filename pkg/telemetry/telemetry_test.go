package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/registry"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigup.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info().Str("component", "probe").Msg("probing capability")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"component":"probe"`) {
		t.Fatalf("log output = %s, want component field", data)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigup.log")
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info().Msg("suppressed")
	logger.Warn().Msg("emitted")

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "suppressed") {
		t.Fatalf("info line leaked past warn level: %s", data)
	}
	if !strings.Contains(string(data), "emitted") {
		t.Fatalf("warn line missing: %s", data)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported log format")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for otlp exporter without endpoint")
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	// Must not panic on nil collectors.
	m.ObserveRun("succeeded", 0)
	m.ObserveAction("container-engine", "success")
	m.ObserveProbe("container-engine", 0)

	inner := &stubProber{}
	if got := m.Prober(inner); got != engine.Prober(inner) {
		t.Fatal("disabled metrics must return the prober unwrapped")
	}
}

type stubProber struct {
	calls int
}

func (s *stubProber) Probe(_ context.Context, c *registry.Capability) probe.Result {
	s.calls++
	return probe.Result{CapabilityID: c.ID, Status: probe.StatusSatisfied}
}

func TestMetricsProberObservesDurations(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "rigup"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	inner := &stubProber{}
	wrapped := m.Prober(inner)
	got := wrapped.Probe(context.Background(), &registry.Capability{ID: "container-engine"})
	if got.Status != probe.StatusSatisfied || got.CapabilityID != "container-engine" {
		t.Fatalf("result = %+v, want pass-through from the inner prober", got)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "rigup_probe_duration_seconds" {
			continue
		}
		if n := len(mf.GetMetric()); n != 1 {
			t.Fatalf("probe duration series = %d, want 1", n)
		}
		if c := mf.GetMetric()[0].GetHistogram().GetSampleCount(); c != 1 {
			t.Fatalf("probe duration samples = %d, want 1", c)
		}
		return
	}
	t.Fatal("probe duration histogram was never fed")
}
