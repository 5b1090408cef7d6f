package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/registry"
)

// Metrics provides Prometheus metrics for provisioning runs. With
// Enabled=false every method is a no-op, so callers never have to
// nil-check.
type Metrics struct {
	config MetricsConfig

	runsCompleted  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	actionsApplied *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	failures       *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of provisioning runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of provisioning runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"status"},
		),
		actionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_applied_total",
				Help:      "Total number of corrective actions applied",
			},
			[]string{"capability", "outcome"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of capability probes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Total failures by capability",
			},
			[]string{"capability"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.runsCompleted,
		m.runDuration,
		m.actionsApplied,
		m.probeDuration,
		m.failures,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Serve exposes /metrics on the configured address until the context ends.
// It returns immediately when no listen address is configured.
func (m *Metrics) Serve(ctx context.Context) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: m.config.ListenAddress, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// ObserveRun records the outcome and duration of a completed run.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveAction records one applied action.
func (m *Metrics) ObserveAction(capability, outcome string) {
	if !m.config.Enabled {
		return
	}
	m.actionsApplied.WithLabelValues(capability, outcome).Inc()
	if outcome == string(engine.RecordFailure) {
		m.failures.WithLabelValues(capability).Inc()
	}
}

// ObserveProbe records one probe duration.
func (m *Metrics) ObserveProbe(capability string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.probeDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// Sink adapts the metrics collector to engine.Sink so the executor feeds
// it alongside the stores.
func (m *Metrics) Sink() engine.Sink {
	return metricsSink{m: m}
}

// Prober wraps an engine.Prober so every probe feeds the probe duration
// histogram. With metrics disabled the inner prober is returned unwrapped.
func (m *Metrics) Prober(inner engine.Prober) engine.Prober {
	if !m.config.Enabled {
		return inner
	}
	return timedProber{m: m, inner: inner}
}

type timedProber struct {
	m     *Metrics
	inner engine.Prober
}

func (p timedProber) Probe(ctx context.Context, c *registry.Capability) probe.Result {
	start := time.Now()
	result := p.inner.Probe(ctx, c)
	p.m.ObserveProbe(c.ID, time.Since(start))
	return result
}

type metricsSink struct {
	m *Metrics
}

func (metricsSink) RunStarted(context.Context, *engine.RunResult, *engine.Plan) error { return nil }

func (metricsSink) StateChanged(context.Context, string, string, engine.CapabilityState) error {
	return nil
}

func (s metricsSink) RecordAppended(_ context.Context, rec engine.ExecutionRecord) error {
	s.m.ObserveAction(rec.CapabilityID, string(rec.Outcome))
	return nil
}

func (s metricsSink) RunCompleted(_ context.Context, result *engine.RunResult) error {
	s.m.ObserveRun(string(result.Status), result.CompletedAt.Sub(result.StartedAt))
	return nil
}
