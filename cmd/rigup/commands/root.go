package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rigup/rigup/pkg/actions"
	"github.com/rigup/rigup/pkg/config"
	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
	"github.com/rigup/rigup/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rigup",
		Short: "rigup - declarative Linux workstation provisioning",
		Long: `rigup converges a Linux machine onto a declared capability set:
packages, drivers, container tooling, VPN, and game-client compatibility
prefixes.

It probes the live system first, plans only the missing pieces in
dependency order, executes them one at a time, and finishes with a
re-probed status table.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}

// app bundles the pieces every command needs: resolved config, paths,
// logger, registry, and the detected profile.
type app struct {
	cfg    *config.Config
	paths  config.Paths
	logger zerolog.Logger
	reg    *registry.Registry
	prof   profile.Profile
}

// loadApp resolves configuration and detects the system profile.
func loadApp() (*app, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve home directory: %w", err)
	}
	paths := config.ResolvePaths(home)

	cfgFile := configPath
	if cfgFile == "" {
		cfgFile = paths.ConfigFile
	}

	cfg := config.Default()
	if _, err := os.Stat(cfgFile); err == nil {
		cfg, err = config.NewParser().Load(cfgFile)
		if err != nil {
			return nil, err
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	logCfg := telemetry.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := telemetry.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}

	computerType := profile.ComputerType(cfg.ComputerType)
	if computerType == "" {
		computerType = profile.ComputerWorkstation
	}
	gpu := profile.GPUType(cfg.GPU)
	if gpu == "" {
		gpu = profile.GPUAutoDetect
	}

	prof, err := profile.Detect(logger, profile.Options{
		GPU:          gpu,
		ComputerType: computerType,
	})
	if err != nil {
		return nil, err
	}

	reg, err := registry.Default()
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		paths:  paths,
		logger: logger,
		reg:    reg,
		prof:   prof,
	}, nil
}

// requested resolves the requested capability set: the configured list
// intersected with the profile's applicable capabilities, or every
// applicable capability when no list is configured. Applicability always
// wins over the enable flags, so a server never schedules gaming
// capabilities and an AMD host never schedules the NVIDIA driver.
func (a *app) requested() ([]string, error) {
	if len(a.cfg.Capabilities) > 0 {
		ids, err := filterApplicable(a.reg, a.prof, a.cfg.Capabilities)
		if err != nil {
			return nil, err
		}
		for _, dropped := range missing(a.cfg.Capabilities, ids) {
			a.logger.Debug().Str("capability", dropped).Msg("configured capability not applicable to this host")
		}
		return ids, nil
	}

	applicable, err := a.reg.Applicable(a.prof)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(applicable))
	for i := range applicable {
		ids[i] = applicable[i].ID
	}
	return ids, nil
}

// filterApplicable validates a configured capability list and drops the
// entries whose applicability predicate does not hold for the profile.
func filterApplicable(reg *registry.Registry, prof profile.Profile, ids []string) ([]string, error) {
	applicable, err := reg.Applicable(prof)
	if err != nil {
		return nil, err
	}
	ok := make(map[string]bool, len(applicable))
	for _, c := range applicable {
		ok[c.ID] = true
	}

	var out []string
	for _, id := range ids {
		if _, found := reg.Get(id); !found {
			return nil, fmt.Errorf("unknown capability in config: %s", id)
		}
		if ok[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// missing returns the ids present in all but absent from kept.
func missing(all, kept []string) []string {
	in := make(map[string]bool, len(kept))
	for _, id := range kept {
		in[id] = true
	}
	var out []string
	for _, id := range all {
		if !in[id] {
			out = append(out, id)
		}
	}
	return out
}

func (a *app) prober() *probe.Prober {
	return probe.New(probe.LocalHost{}, a.prof, a.paths.DataDir, a.logger)
}

func (a *app) runner() *actions.Runner {
	fetcher := actions.NewFetcher(a.paths.CacheDir, a.cfg.Timeout(), a.logger)
	return actions.NewRunner(actions.LocalExec{}, fetcher, a.prof, a.paths.DataDir, a.logger)
}

// capabilitiesByID returns the registry capabilities for the requested IDs
// in declaration order.
func (a *app) capabilitiesByID(ids []string) []registry.Capability {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []registry.Capability
	for _, c := range a.reg.All() {
		if wanted[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
