// Package actions executes the corrective steps of a capability against
// the local host: package installation, service enablement, group
// membership, config file writes, artifact downloads, compatibility-prefix
// initialization and interactive installer launches. Every mutation is
// preceded by a satisfaction check so repeated runs converge instead of
// duplicating work.
package actions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
)

// Exec abstracts process execution so tests substitute a fake.
type Exec interface {
	// Run executes argv with the given extra environment and returns the
	// combined output.
	Run(ctx context.Context, argv []string, env []string) (string, error)

	// Start launches argv detached with the given extra environment. The
	// process is not supervised afterwards.
	Start(ctx context.Context, argv []string, env []string) error
}

// LocalExec runs commands on the local host.
type LocalExec struct{}

// Run executes argv and returns combined stdout/stderr.
func (LocalExec) Run(ctx context.Context, argv []string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Start launches argv in the background and releases the process handle.
func (LocalExec) Start(ctx context.Context, argv []string, env []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Outcome summarizes one applied action for the execution record.
type Outcome struct {
	// Kind is the action kind applied.
	Kind registry.ActionKind `json:"kind"`

	// Changed is false when the action found the state already in place.
	Changed bool `json:"changed"`

	// Summary is a one-line human account (captured output tail on
	// failure).
	Summary string `json:"summary"`

	// Unverified marks interactive launches whose outcome cannot be
	// classified.
	Unverified bool `json:"unverified,omitempty"`
}

// Runner applies registry actions resolved against the OS profile.
type Runner struct {
	exec      Exec
	fetcher   *Fetcher
	profile   profile.Profile
	dataDir   string
	logger    zerolog.Logger
	refreshed bool
}

// NewRunner creates an action runner. dataDir is the rigup data root under
// which capability data directories live.
func NewRunner(e Exec, fetcher *Fetcher, p profile.Profile, dataDir string, logger zerolog.Logger) *Runner {
	return &Runner{
		exec:    e,
		fetcher: fetcher,
		profile: p,
		dataDir: dataDir,
		logger:  logger.With().Str("component", "actions").Logger(),
	}
}

// Apply executes one action of a capability.
func (r *Runner) Apply(ctx context.Context, c *registry.Capability, action *registry.Action) (Outcome, error) {
	switch action.Kind {
	case registry.ActionPackages:
		return r.applyPackages(ctx, action)
	case registry.ActionUnitEnable:
		return r.applyUnitEnable(ctx, action)
	case registry.ActionGroupAdd:
		return r.applyGroupAdd(ctx, action)
	case registry.ActionFileWrite:
		return r.applyFileWrite(action)
	case registry.ActionDownload:
		return r.applyDownload(ctx, action)
	case registry.ActionPrefixInit:
		return r.applyPrefixInit(ctx, c)
	case registry.ActionGUILaunch:
		return r.applyGUILaunch(ctx, c, action)
	case registry.ActionCommand:
		return r.applyCommand(ctx, action)
	default:
		return Outcome{}, fmt.Errorf("unknown action kind: %s", action.Kind)
	}
}

func (r *Runner) applyPackages(ctx context.Context, action *registry.Action) (Outcome, error) {
	packages, ok := action.Packages[r.profile.Family]
	if !ok {
		return Outcome{}, fmt.Errorf("no package list for family %s", r.profile.Family)
	}

	// Refresh the package database once per process before the first
	// install; pacman in particular fails on a stale database.
	if !r.refreshed {
		if argv := refreshArgv(r.profile.Family); argv != nil {
			if out, err := r.exec.Run(ctx, argv, nil); err != nil {
				return Outcome{Kind: action.Kind, Summary: tail(out)},
					fmt.Errorf("package database refresh failed: %w", err)
			}
		}
		r.refreshed = true
	}

	argv, err := installArgv(r.profile.Family, packages)
	if err != nil {
		return Outcome{}, err
	}

	out, err := r.exec.Run(ctx, argv, nil)
	if err != nil {
		return Outcome{Kind: action.Kind, Summary: tail(out)},
			fmt.Errorf("package install failed: %w", err)
	}

	r.logger.Info().Strs("packages", packages).Msg("Installed packages")
	return Outcome{
		Kind:    action.Kind,
		Changed: true,
		Summary: fmt.Sprintf("installed %s", strings.Join(packages, ", ")),
	}, nil
}

func (r *Runner) applyUnitEnable(ctx context.Context, action *registry.Action) (Outcome, error) {
	state, _ := r.exec.Run(ctx, []string{"systemctl", "is-enabled", action.Unit}, nil)
	active, _ := r.exec.Run(ctx, []string{"systemctl", "is-active", action.Unit}, nil)
	if strings.TrimSpace(state) == "enabled" && strings.TrimSpace(active) == "active" {
		return Outcome{Kind: action.Kind, Summary: action.Unit + " already enabled"}, nil
	}

	out, err := r.exec.Run(ctx, []string{"systemctl", "enable", "--now", action.Unit}, nil)
	if err != nil {
		return Outcome{Kind: action.Kind, Summary: tail(out)},
			fmt.Errorf("failed to enable %s: %w", action.Unit, err)
	}

	return Outcome{Kind: action.Kind, Changed: true, Summary: "enabled " + action.Unit}, nil
}

func (r *Runner) applyGroupAdd(ctx context.Context, action *registry.Action) (Outcome, error) {
	if r.profile.User == "" {
		return Outcome{}, fmt.Errorf("cannot resolve invoking user for group change")
	}

	out, err := r.exec.Run(ctx, []string{"usermod", "-aG", action.Group, r.profile.User}, nil)
	if err != nil {
		return Outcome{Kind: action.Kind, Summary: tail(out)},
			fmt.Errorf("failed to add %s to group %s: %w", r.profile.User, action.Group, err)
	}

	return Outcome{
		Kind:    action.Kind,
		Changed: true,
		Summary: fmt.Sprintf("added %s to group %s", r.profile.User, action.Group),
	}, nil
}

func (r *Runner) applyFileWrite(action *registry.Action) (Outcome, error) {
	path := r.expandHome(action.Path)

	if existing, err := os.ReadFile(path); err == nil && string(existing) == action.Content {
		return Outcome{Kind: action.Kind, Summary: path + " already up to date"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Outcome{}, err
	}
	mode := os.FileMode(action.Mode)
	if mode == 0 {
		mode = 0o644
	}
	if err := os.WriteFile(path, []byte(action.Content), mode); err != nil {
		return Outcome{Kind: action.Kind},
			fmt.Errorf("failed to write %s: %w", path, err)
	}

	return Outcome{Kind: action.Kind, Changed: true, Summary: "wrote " + path}, nil
}

func (r *Runner) applyDownload(ctx context.Context, action *registry.Action) (Outcome, error) {
	url, err := r.fetcher.Resolve(ctx, action.Release)
	if err != nil {
		return Outcome{Kind: action.Kind}, err
	}

	artifact, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return Outcome{Kind: action.Kind}, err
	}

	dest := r.expandHome(action.Dest)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Outcome{}, err
	}

	if strings.HasSuffix(artifact, ".tar.gz") || strings.HasSuffix(artifact, ".tgz") {
		out, err := r.exec.Run(ctx, []string{"tar", "-xzf", artifact, "-C", dest}, nil)
		if err != nil {
			return Outcome{Kind: action.Kind, Summary: tail(out)},
				fmt.Errorf("failed to extract %s: %w", artifact, err)
		}
	}

	return Outcome{
		Kind:    action.Kind,
		Changed: true,
		Summary: fmt.Sprintf("installed %s into %s", filepath.Base(artifact), dest),
	}, nil
}

func (r *Runner) applyPrefixInit(ctx context.Context, c *registry.Capability) (Outcome, error) {
	if c.DataDir == "" {
		return Outcome{}, fmt.Errorf("capability %s has no data directory for prefix init", c.ID)
	}

	// Prefix contents live under pfx/, the layout Proton creates.
	prefix := filepath.Join(r.dataDir, c.DataDir, "pfx")
	if _, err := os.Stat(filepath.Join(prefix, "system.reg")); err == nil {
		return Outcome{Kind: registry.ActionPrefixInit, Summary: "prefix already initialized"}, nil
	}

	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return Outcome{}, err
	}

	env := []string{"WINEPREFIX=" + prefix, "WINEDLLOVERRIDES=mscoree,mshtml="}
	out, err := r.exec.Run(ctx, []string{"wineboot", "--init"}, env)
	if err != nil {
		return Outcome{Kind: registry.ActionPrefixInit, Summary: tail(out)},
			fmt.Errorf("prefix init failed: %w", err)
	}

	return Outcome{Kind: registry.ActionPrefixInit, Changed: true, Summary: "initialized " + prefix}, nil
}

func (r *Runner) applyGUILaunch(ctx context.Context, c *registry.Capability, action *registry.Action) (Outcome, error) {
	installer, err := r.fetcher.Fetch(ctx, action.Installer)
	if err != nil {
		return Outcome{Kind: action.Kind}, err
	}

	prefix := filepath.Join(r.dataDir, c.DataDir, "pfx")
	env := []string{"WINEPREFIX=" + prefix}

	argv := []string{"wine", installer}
	if strings.HasSuffix(installer, ".msi") {
		argv = []string{"wine", "msiexec", "/i", installer}
	}

	// Fire and forget: the installer is interactive and its exit code is
	// not authoritative. Wait only for the settle delay so the window has
	// appeared before control returns.
	if err := r.exec.Start(ctx, argv, env); err != nil {
		return Outcome{Kind: action.Kind},
			fmt.Errorf("failed to launch installer: %w", err)
	}

	settle := action.SettleDelay
	if settle <= 0 {
		settle = 10 * time.Second
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return Outcome{Kind: action.Kind, Unverified: true, Summary: "launch interrupted"}, ctx.Err()
	}

	r.logger.Info().Str("capability", c.ID).Msg("Launched interactive installer, verify manually")
	return Outcome{
		Kind:       action.Kind,
		Changed:    true,
		Unverified: true,
		Summary:    "installer launched, verify manually",
	}, nil
}

func (r *Runner) applyCommand(ctx context.Context, action *registry.Action) (Outcome, error) {
	argv, ok := action.Command[r.profile.Family]
	if !ok {
		argv, ok = action.Command[""]
	}
	if !ok || len(argv) == 0 {
		return Outcome{}, fmt.Errorf("no command for family %s", r.profile.Family)
	}

	resolved, err := substituteEnv(argv)
	if err != nil {
		return Outcome{Kind: action.Kind}, err
	}

	out, err := r.exec.Run(ctx, resolved, nil)
	if err != nil {
		return Outcome{Kind: action.Kind, Summary: tail(out)},
			fmt.Errorf("command %s failed: %w", argv[0], err)
	}

	return Outcome{Kind: action.Kind, Changed: true, Summary: "ran " + argv[0]}, nil
}

// substituteEnv replaces env:NAME tokens inside arguments with the value
// of the environment variable, keeping secrets out of the static registry.
func substituteEnv(argv []string) ([]string, error) {
	out := make([]string, len(argv))
	for i, arg := range argv {
		if idx := strings.Index(arg, "env:"); idx >= 0 {
			name := arg[idx+4:]
			value, ok := os.LookupEnv(name)
			if !ok {
				return nil, fmt.Errorf("required environment variable %s is not set", name)
			}
			arg = arg[:idx] + value
		}
		out[i] = arg
	}
	return out, nil
}

// expandHome resolves a leading ~ against the invoking user's home.
func (r *Runner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(r.profile.Home, path[2:])
	}
	return path
}

// tail returns the last few lines of command output for the audit record.
func tail(out string) string {
	out = strings.TrimSpace(out)
	lines := strings.Split(out, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
