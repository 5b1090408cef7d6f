package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/stores"
	"github.com/rigup/rigup/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		yes        bool
		unattended bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the system onto the requested capability set",
		Long: `Apply probes, plans, gates the plan through policy, and executes it
one capability at a time. The first action failure aborts the run. The
command finishes with a re-probed status table reflecting live state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if unattended {
				a.cfg.Unattended = true
			}

			// The audit log opens before anything can go wrong so that
			// failures during planning and policy evaluation leave a
			// trace too, not just execution failures.
			audit, err := stores.OpenAuditLog(a.paths.AuditLogPath())
			if err != nil {
				return err
			}
			defer audit.Close()

			if err := applyRun(cmd, a, audit, yes); err != nil {
				if auditErr := audit.Error(err); auditErr != nil {
					a.logger.Warn().Err(auditErr).Msg("could not audit the failure")
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&unattended, "unattended", false, "no prompts; interactive capabilities stay unverified")
	return cmd
}

func applyRun(cmd *cobra.Command, a *app, audit *stores.AuditLog, yes bool) error {
	plan, polResult, err := buildPlan(cmd, a)
	if err != nil {
		return err
	}
	printPolicyFindings(polResult)
	if !polResult.Allowed {
		return fmt.Errorf("plan rejected by policy")
	}

	requested, err := a.requested()
	if err != nil {
		return err
	}

	if plan.Empty() {
		fmt.Println("Nothing to do: every requested capability is satisfied.")
		report := engine.BuildReport(cmd.Context(), a.reg, a.prober(), a.prof, requested, nil)
		fmt.Print(report.Render())
		return nil
	}

	printPlan(plan)
	if !yes && !a.cfg.Unattended {
		if !confirm() {
			fmt.Println("Aborted.")
			return nil
		}
	}

	return runApply(cmd.Context(), a, audit, plan, requested)
}

// telemetryConfig maps the user-facing config onto the telemetry defaults.
func telemetryConfig(a *app) (telemetry.Config, error) {
	tcfg := telemetry.DefaultConfig()
	if a.cfg.LogLevel != "" {
		tcfg.Logging.Level = a.cfg.LogLevel
	}
	if a.cfg.LogFormat != "" {
		tcfg.Logging.Format = a.cfg.LogFormat
	}
	tcfg.Metrics.ListenAddress = a.cfg.MetricsListen
	if a.cfg.TraceExporter != "" && a.cfg.TraceExporter != "none" {
		tcfg.Tracing.Enabled = true
		tcfg.Tracing.Exporter = a.cfg.TraceExporter
		tcfg.Tracing.Endpoint = a.cfg.TraceEndpoint
		tcfg.Tracing.Insecure = true
	}
	if err := tcfg.Validate(); err != nil {
		return telemetry.Config{}, err
	}
	return tcfg, nil
}

func runApply(ctx context.Context, a *app, audit *stores.AuditLog, plan *engine.Plan, requested []string) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: a.paths.DatabasePath()})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	tcfg, err := telemetryConfig(a)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return err
	}
	if tcfg.Metrics.ListenAddress != "" {
		go func() {
			if err := metrics.Serve(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion)
	if err != nil {
		return err
	}
	defer func() {
		_ = tracer.Shutdown(context.Background())
	}()

	sink := engine.MultiSink{
		Sinks:  []engine.Sink{store, audit, metrics.Sink()},
		Logger: a.logger,
	}

	prober := metrics.Prober(a.prober())
	executor := engine.NewExecutor(a.reg, prober, a.runner(), sink, a.logger)
	executor.ActionTimeout = a.cfg.Timeout()

	spanCtx, span := tracer.Start(ctx, "apply", trace.WithAttributes(
		attribute.String("plan.id", plan.ID),
		attribute.Int("plan.entries", len(plan.Entries)),
	))
	result, execErr := executor.Execute(spanCtx, plan)
	telemetry.RecordError(span, execErr)
	span.End()

	report := engine.BuildReport(ctx, a.reg, prober, a.prof, requested, result)
	fmt.Print(report.Render())

	if execErr != nil {
		return execErr
	}
	if result.Status == engine.RunStatusUnverified {
		fmt.Println("\nSome interactive installers were launched; verify them manually and re-run `rigup probe`.")
	}
	return nil
}

func confirm() bool {
	fmt.Print("Proceed? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
