// Package probe classifies the current satisfaction state of capabilities.
// Probes are read-only: command lookups, package queries, service state,
// file existence and content, group membership and installed-application
// markers. A probe that cannot run (missing probe tool, unreadable file)
// classifies the check as failed rather than erroring the run, so partial
// systems converge toward re-execution instead of aborting.
package probe

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
)

// Status classifies a capability's satisfaction state.
type Status string

const (
	// StatusSatisfied means every sub-check passed.
	StatusSatisfied Status = "satisfied"

	// StatusMissing means no sub-check passed, or the capability has
	// never been acted on.
	StatusMissing Status = "missing"

	// StatusPartial means some but not all sub-checks passed. The
	// capability is still scheduled for idempotent re-execution.
	StatusPartial Status = "partially-satisfied"
)

// CheckResult is the outcome of a single sub-check.
type CheckResult struct {
	Kind      registry.CheckKind `json:"kind"`
	Target    string             `json:"target"`
	Satisfied bool               `json:"satisfied"`
	Note      string             `json:"note,omitempty"`
}

// Result is the outcome of probing one capability.
type Result struct {
	CapabilityID string        `json:"capability_id"`
	Status       Status        `json:"status"`
	Passed       int           `json:"passed"`
	Total        int           `json:"total"`
	Checks       []CheckResult `json:"checks"`
	ProbedAt     time.Time     `json:"probed_at"`
}

// Prober runs capability checks against a host.
type Prober struct {
	host    Host
	profile profile.Profile
	dataDir string
	logger  zerolog.Logger
}

// New creates a prober for the local host. dataDir is the rigup data root
// (~/.local/share/rigup) under which capability data directories live.
func New(host Host, p profile.Profile, dataDir string, logger zerolog.Logger) *Prober {
	return &Prober{
		host:    host,
		profile: p,
		dataDir: dataDir,
		logger:  logger.With().Str("component", "probe").Logger(),
	}
}

// Probe classifies a single capability.
func (pr *Prober) Probe(ctx context.Context, c *registry.Capability) Result {
	result := Result{
		CapabilityID: c.ID,
		Total:        len(c.Checks),
		Checks:       make([]CheckResult, 0, len(c.Checks)),
		ProbedAt:     time.Now(),
	}

	for i := range c.Checks {
		cr := pr.runCheck(ctx, c, &c.Checks[i])
		if cr.Satisfied {
			result.Passed++
		}
		result.Checks = append(result.Checks, cr)
	}

	switch {
	case result.Passed == result.Total:
		result.Status = StatusSatisfied
	case result.Passed > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusMissing
	}

	pr.logger.Debug().
		Str("capability", c.ID).
		Str("status", string(result.Status)).
		Int("passed", result.Passed).
		Int("total", result.Total).
		Msg("Probed capability")

	return result
}

// ProbeAll classifies every given capability, keyed by ID.
func (pr *Prober) ProbeAll(ctx context.Context, caps []registry.Capability) map[string]Result {
	results := make(map[string]Result, len(caps))
	for i := range caps {
		results[caps[i].ID] = pr.Probe(ctx, &caps[i])
	}
	return results
}

// runCheck dispatches one sub-check. Inability to run the check is
// reported as unsatisfied with a note, never as an error.
func (pr *Prober) runCheck(ctx context.Context, c *registry.Capability, check *registry.Check) CheckResult {
	switch check.Kind {
	case registry.CheckCommand:
		return pr.checkCommand(check)
	case registry.CheckPackage:
		return pr.checkPackage(ctx, check)
	case registry.CheckUnitActive:
		return pr.checkUnit(ctx, check, "is-active", "active")
	case registry.CheckUnitEnabled:
		return pr.checkUnit(ctx, check, "is-enabled", "enabled")
	case registry.CheckFileExists:
		return pr.checkFileExists(check)
	case registry.CheckFileContains:
		return pr.checkFileContains(check)
	case registry.CheckGroupMember:
		return pr.checkGroupMember(check)
	case registry.CheckMarker:
		return pr.checkMarker(c, check)
	default:
		return CheckResult{
			Kind: check.Kind,
			Note: "unknown check kind",
		}
	}
}

func (pr *Prober) checkCommand(check *registry.Check) CheckResult {
	_, err := pr.host.LookPath(check.Command)
	return CheckResult{
		Kind:      check.Kind,
		Target:    check.Command,
		Satisfied: err == nil,
	}
}

func (pr *Prober) checkPackage(ctx context.Context, check *registry.Check) CheckResult {
	name, ok := check.Package[pr.profile.Family]
	if !ok {
		return CheckResult{
			Kind:   check.Kind,
			Note:   "no package mapping for " + string(pr.profile.Family),
		}
	}

	var argv []string
	switch pr.profile.Family {
	case profile.FamilyArch:
		argv = []string{"pacman", "-Qi", name}
	case profile.FamilyFedora, profile.FamilySuse:
		argv = []string{"rpm", "-q", name}
	case profile.FamilyDebian:
		argv = []string{"dpkg-query", "-W", "-f=${Status}", name}
	}

	out, err := pr.host.Output(ctx, argv[0], argv[1:]...)
	satisfied := err == nil
	if satisfied && pr.profile.Family == profile.FamilyDebian {
		satisfied = strings.Contains(out, "install ok installed")
	}

	return CheckResult{
		Kind:      check.Kind,
		Target:    name,
		Satisfied: satisfied,
	}
}

func (pr *Prober) checkUnit(ctx context.Context, check *registry.Check, verb, want string) CheckResult {
	out, err := pr.host.Output(ctx, "systemctl", verb, check.Unit)
	// systemctl exits non-zero for inactive/disabled units; the output
	// still carries the state, so only the trimmed text decides.
	state := strings.TrimSpace(out)
	_ = err
	return CheckResult{
		Kind:      check.Kind,
		Target:    check.Unit,
		Satisfied: state == want,
		Note:      state,
	}
}

func (pr *Prober) checkFileExists(check *registry.Check) CheckResult {
	path := pr.expandHome(check.Path)
	return CheckResult{
		Kind:      check.Kind,
		Target:    path,
		Satisfied: pr.host.FileExists(path),
	}
}

func (pr *Prober) checkFileContains(check *registry.Check) CheckResult {
	path := pr.expandHome(check.Path)
	data, err := pr.host.ReadFile(path)
	if err != nil {
		return CheckResult{
			Kind:   check.Kind,
			Target: path,
			Note:   "unreadable",
		}
	}
	return CheckResult{
		Kind:      check.Kind,
		Target:    path,
		Satisfied: strings.Contains(string(data), check.Content),
	}
}

func (pr *Prober) checkGroupMember(check *registry.Check) CheckResult {
	groups, err := pr.host.UserGroups()
	if err != nil {
		return CheckResult{
			Kind:   check.Kind,
			Target: check.Group,
			Note:   "groups unavailable",
		}
	}
	for _, g := range groups {
		if g == check.Group {
			return CheckResult{Kind: check.Kind, Target: check.Group, Satisfied: true}
		}
	}
	return CheckResult{Kind: check.Kind, Target: check.Group}
}

func (pr *Prober) checkMarker(c *registry.Capability, check *registry.Check) CheckResult {
	path := filepath.Join(pr.dataDir, c.DataDir, check.Marker)
	return CheckResult{
		Kind:      check.Kind,
		Target:    path,
		Satisfied: pr.host.FileExists(path),
	}
}

// expandHome resolves a leading ~ against the invoking user's home.
func (pr *Prober) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(pr.profile.Home, path[2:])
	}
	return path
}
