package registry

import (
	"time"

	"github.com/rigup/rigup/pkg/profile"
)

// CheckKind identifies a read-only satisfaction probe.
type CheckKind string

const (
	// CheckCommand passes when a binary is resolvable in PATH.
	CheckCommand CheckKind = "command"

	// CheckPackage passes when the package is installed per the family's
	// package manager query verb.
	CheckPackage CheckKind = "package"

	// CheckUnitActive passes when the systemd unit is active.
	CheckUnitActive CheckKind = "unit-active"

	// CheckUnitEnabled passes when the systemd unit is enabled.
	CheckUnitEnabled CheckKind = "unit-enabled"

	// CheckFileExists passes when the path exists.
	CheckFileExists CheckKind = "file-exists"

	// CheckFileContains passes when the file exists and contains the
	// expected content.
	CheckFileContains CheckKind = "file-contains"

	// CheckGroupMember passes when the invoking user is in the group.
	CheckGroupMember CheckKind = "group-member"

	// CheckMarker passes when an installed-application marker exists
	// inside the capability's isolated data directory.
	CheckMarker CheckKind = "marker"
)

// Check is one read-only sub-check of a capability. Compound capabilities
// declare several; all must pass for the capability to probe Satisfied.
type Check struct {
	Kind CheckKind `json:"kind"`

	// Command is the binary name for CheckCommand.
	Command string `json:"command,omitempty"`

	// Package maps distribution families onto the package name queried
	// for CheckPackage. A family with no entry is treated as Missing.
	Package map[profile.Family]string `json:"package,omitempty"`

	// Unit is the systemd unit for CheckUnitActive/CheckUnitEnabled.
	Unit string `json:"unit,omitempty"`

	// Path is the filesystem path for CheckFileExists/CheckFileContains.
	// A leading ~ expands to the invoking user's home.
	Path string `json:"path,omitempty"`

	// Content is the expected substring for CheckFileContains.
	Content string `json:"content,omitempty"`

	// Group is the group name for CheckGroupMember.
	Group string `json:"group,omitempty"`

	// Marker is a path relative to the capability data directory for
	// CheckMarker.
	Marker string `json:"marker,omitempty"`
}

// ActionKind identifies a corrective action class.
type ActionKind string

const (
	// ActionPackages installs packages with the family's package manager.
	ActionPackages ActionKind = "packages"

	// ActionUnitEnable enables and starts a systemd unit.
	ActionUnitEnable ActionKind = "unit-enable"

	// ActionGroupAdd adds the invoking user to a group.
	ActionGroupAdd ActionKind = "group-add"

	// ActionFileWrite writes a config file, skipped when content matches.
	ActionFileWrite ActionKind = "file-write"

	// ActionDownload fetches a release artifact into a destination
	// directory, skipped when the destination marker already exists.
	ActionDownload ActionKind = "download"

	// ActionPrefixInit initializes the capability's compatibility prefix.
	ActionPrefixInit ActionKind = "prefix-init"

	// ActionGUILaunch starts an interactive installer in the background
	// and waits only for a fixed settle delay. Its exit code is not
	// authoritative.
	ActionGUILaunch ActionKind = "gui-launch"

	// ActionCommand runs an arbitrary per-family command.
	ActionCommand ActionKind = "command"
)

// Action is one corrective step of a capability, resolved against the OS
// profile at execution time.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Packages maps families onto package lists for ActionPackages.
	Packages map[profile.Family][]string `json:"packages,omitempty"`

	// Unit is the systemd unit for ActionUnitEnable.
	Unit string `json:"unit,omitempty"`

	// Group is the group name for ActionGroupAdd.
	Group string `json:"group,omitempty"`

	// Path and Content describe the file for ActionFileWrite. Mode 0 means
	// 0644.
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Mode    uint32 `json:"mode,omitempty"`

	// Release describes the artifact source for ActionDownload.
	Release *ReleaseSource `json:"release,omitempty"`

	// Dest is the extraction/installation directory for ActionDownload.
	Dest string `json:"dest,omitempty"`

	// Command maps families onto argv for ActionCommand. The empty-family
	// key "" is the fallback used when no family-specific entry exists.
	Command map[profile.Family][]string `json:"command,omitempty"`

	// Installer is the installer artifact URL for ActionGUILaunch.
	Installer string `json:"installer,omitempty"`

	// SettleDelay is how long the executor waits after launching an
	// interactive installer before moving on.
	SettleDelay time.Duration `json:"settle_delay,omitempty"`
}

// ReleaseSource locates a downloadable artifact, either a direct URL or
// the latest matching asset of a GitHub repository release.
type ReleaseSource struct {
	// URL is a direct artifact URL; takes precedence over Repo.
	URL string `json:"url,omitempty"`

	// Repo is an owner/name GitHub repository whose latest release is
	// resolved through the releases API.
	Repo string `json:"repo,omitempty"`

	// AssetSuffix selects the release asset by filename suffix.
	AssetSuffix string `json:"asset_suffix,omitempty"`
}

// Capability is a named unit of desired system state. Capabilities are
// declared once at startup and never mutated; the planner and executor
// consume them read-only.
type Capability struct {
	// ID is the unique identifier, e.g. "container-engine".
	ID string `json:"id" validate:"required"`

	// Label is the human-readable name shown in plans and reports.
	Label string `json:"label" validate:"required"`

	// When is a Starlark predicate over the OS profile deciding whether
	// the capability applies to this host. Empty means always applicable.
	When string `json:"when,omitempty"`

	// DependsOn lists capability IDs that must be satisfied first. The
	// resulting graph must be acyclic; cycles fail registry load.
	DependsOn []string `json:"depends_on,omitempty"`

	// Interactive marks GUI-installer capabilities whose exit code is not
	// authoritative. The executor records them as attempted rather than
	// succeeded or failed.
	Interactive bool `json:"interactive,omitempty"`

	// RequiresSecret names an environment variable that must be resolved
	// before the capability can be scheduled (e.g. a VPN auth key).
	RequiresSecret string `json:"requires_secret,omitempty"`

	// Checks are the read-only sub-checks classifying satisfaction.
	Checks []Check `json:"checks" validate:"min=1"`

	// Actions are the ordered corrective steps.
	Actions []Action `json:"actions"`

	// DataDir, when set, is the capability's isolated data directory
	// relative to ~/.local/share/rigup. Marker checks and prefix actions
	// resolve against it.
	DataDir string `json:"data_dir,omitempty"`

	// Hint is operator-facing next-step text printed when the capability
	// was acted on, e.g. "log out and back in for the group change".
	Hint string `json:"hint,omitempty"`
}
