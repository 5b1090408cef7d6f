package config

import (
	"time"
)

// Config is the user-facing rigup configuration, loaded from a CUE file.
// Every field is optional; zero values fall back to detection or defaults.
type Config struct {
	// ComputerType overrides the workstation/server classification.
	ComputerType string `json:"computer_type,omitempty" validate:"omitempty,oneof=workstation server"`

	// GPU overrides GPU detection.
	GPU string `json:"gpu,omitempty" validate:"omitempty,oneof=auto nvidia amd intel none"`

	// Capabilities is the requested capability set. Empty means every
	// capability applicable to the profile.
	Capabilities []string `json:"capabilities,omitempty"`

	// Unattended disables anything requiring a human at the keyboard.
	Unattended bool `json:"unattended,omitempty"`

	// ActionTimeout bounds a single corrective action, as a Go duration
	// string. Empty means 30m.
	ActionTimeout string `json:"action_timeout,omitempty"`

	// LogLevel and LogFormat configure logging (see telemetry).
	LogLevel  string `json:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=console json"`

	// MetricsListen, when set, serves Prometheus metrics during runs.
	MetricsListen string `json:"metrics_listen,omitempty"`

	// TraceExporter selects the trace exporter (none, stdout, otlp).
	TraceExporter string `json:"trace_exporter,omitempty" validate:"omitempty,oneof=none stdout otlp"`

	// TraceEndpoint is the OTLP gRPC endpoint.
	TraceEndpoint string `json:"trace_endpoint,omitempty"`
}

// Timeout returns the parsed action timeout.
func (c *Config) Timeout() time.Duration {
	if c.ActionTimeout == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.ActionTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}
