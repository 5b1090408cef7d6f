// Package profile resolves the target-system facts rigup plans against:
// distribution family, package-manager command set, GPU vendor and the
// computer type. The profile is detected once at startup and passed
// read-only to the probe engine, planner and executor.
package profile

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Family identifies a supported distribution family.
type Family string

const (
	FamilyArch   Family = "arch"
	FamilyFedora Family = "fedora"
	FamilyDebian Family = "debian"
	FamilySuse   Family = "suse"
)

// Validate checks that the family is one rigup knows how to drive.
func (f Family) Validate() error {
	switch f {
	case FamilyArch, FamilyFedora, FamilyDebian, FamilySuse:
		return nil
	default:
		return fmt.Errorf("unsupported distribution family: %s", f)
	}
}

// GPUType identifies the detected (or overridden) GPU vendor.
type GPUType string

const (
	GPUNvidia     GPUType = "nvidia"
	GPUAMD        GPUType = "amd"
	GPUIntel      GPUType = "intel"
	GPUNone       GPUType = "none"
	GPUAutoDetect GPUType = "auto"
)

// ComputerType distinguishes interactive workstations from headless servers.
type ComputerType string

const (
	ComputerWorkstation ComputerType = "workstation"
	ComputerServer      ComputerType = "server"
)

// Profile holds the resolved target-system facts. It is immutable after
// Detect returns; components receive it by value.
type Profile struct {
	// Family is the distribution family driving package-name resolution.
	Family Family `json:"family"`

	// Distro is the raw ID from os-release, kept for reporting.
	Distro string `json:"distro"`

	// Version is the distribution version string, if published.
	Version string `json:"version"`

	// PackageManager is the package manager binary for the family.
	PackageManager string `json:"package_manager"`

	// GPU is the detected or overridden GPU vendor.
	GPU GPUType `json:"gpu"`

	// ComputerType is workstation or server, from configuration.
	ComputerType ComputerType `json:"computer_type"`

	// Hostname, Kernel and Arch are informational facts for reporting.
	Hostname string `json:"hostname"`
	Kernel   string `json:"kernel"`
	Arch     string `json:"arch"`

	// User is the invoking (non-root) user whose home receives
	// per-capability data directories.
	User string `json:"user"`

	// Home is the invoking user's home directory.
	Home string `json:"home"`
}

// familyForID maps os-release ID/ID_LIKE tokens onto families.
var familyForID = map[string]Family{
	"arch":                FamilyArch,
	"archarm":             FamilyArch,
	"manjaro":             FamilyArch,
	"endeavouros":         FamilyArch,
	"fedora":              FamilyFedora,
	"rhel":                FamilyFedora,
	"centos":              FamilyFedora,
	"nobara":              FamilyFedora,
	"debian":              FamilyDebian,
	"ubuntu":              FamilyDebian,
	"pop":                 FamilyDebian,
	"linuxmint":           FamilyDebian,
	"opensuse":            FamilySuse,
	"opensuse-tumbleweed": FamilySuse,
	"opensuse-leap":       FamilySuse,
	"suse":                FamilySuse,
}

// managerForFamily maps families onto their package manager binary.
var managerForFamily = map[Family]string{
	FamilyArch:   "pacman",
	FamilyFedora: "dnf",
	FamilyDebian: "apt-get",
	FamilySuse:   "zypper",
}

// Options control detection overrides supplied by configuration.
type Options struct {
	// GPU overrides auto-detection when not GPUAutoDetect.
	GPU GPUType

	// ComputerType is required; it is never auto-detected.
	ComputerType ComputerType

	// OSReleasePath overrides /etc/os-release, used by tests.
	OSReleasePath string
}

// Detect resolves the profile for the local host. An unrecognized
// distribution is a configuration error: nothing has been mutated yet and
// nothing will be.
func Detect(logger zerolog.Logger, opts Options) (Profile, error) {
	p := Profile{
		GPU:          opts.GPU,
		ComputerType: opts.ComputerType,
		Arch:         runtime.GOARCH,
	}

	if p.ComputerType != ComputerWorkstation && p.ComputerType != ComputerServer {
		return Profile{}, fmt.Errorf("invalid computer type: %q", opts.ComputerType)
	}

	path := opts.OSReleasePath
	if path == "" {
		path = "/etc/os-release"
	}
	release, err := parseOSRelease(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	p.Distro = release["ID"]
	p.Version = release["VERSION_ID"]
	p.Family, err = resolveFamily(release)
	if err != nil {
		return Profile{}, err
	}
	p.PackageManager = managerForFamily[p.Family]

	if p.GPU == "" || p.GPU == GPUAutoDetect {
		p.GPU = detectGPU()
	}

	if hostname, err := os.Hostname(); err == nil {
		p.Hostname = hostname
	}
	if out, err := exec.Command("uname", "-r").Output(); err == nil {
		p.Kernel = strings.TrimSpace(string(out))
	}

	p.User, p.Home = invokingUser()

	logger.Info().
		Str("family", string(p.Family)).
		Str("distro", p.Distro).
		Str("gpu", string(p.GPU)).
		Str("computer_type", string(p.ComputerType)).
		Msg("Resolved system profile")

	return p, nil
}

// resolveFamily maps ID, falling back to ID_LIKE tokens.
func resolveFamily(release map[string]string) (Family, error) {
	if family, ok := familyForID[release["ID"]]; ok {
		return family, nil
	}
	for _, like := range strings.Fields(release["ID_LIKE"]) {
		if family, ok := familyForID[like]; ok {
			return family, nil
		}
	}
	return "", fmt.Errorf("unsupported distribution: id=%q id_like=%q",
		release["ID"], release["ID_LIKE"])
}

// parseOSRelease reads the KEY=value pairs from an os-release file.
func parseOSRelease(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		fields[key] = strings.Trim(value, `"`)
	}
	return fields, scanner.Err()
}

// detectGPU scans lspci output for a VGA/3D controller vendor. Absence of
// lspci or of a discrete GPU yields GPUNone rather than an error.
func detectGPU() GPUType {
	out, err := exec.Command("lspci").Output()
	if err != nil {
		return GPUNone
	}
	return classifyGPU(string(out))
}

// classifyGPU picks the vendor from lspci output. NVIDIA wins over an
// integrated Intel controller when both are present.
func classifyGPU(lspci string) GPUType {
	lower := strings.ToLower(lspci)
	var found GPUType = GPUNone
	for _, line := range strings.Split(lower, "\n") {
		if !strings.Contains(line, "vga") && !strings.Contains(line, "3d controller") {
			continue
		}
		switch {
		case strings.Contains(line, "nvidia"):
			return GPUNvidia
		// Bounded vendor tokens: a bare "amd" or "ati" also matches
		// inside "Corporation".
		case strings.Contains(line, "advanced micro devices"),
			strings.Contains(line, "[amd/ati]"),
			strings.Contains(line, "ati technologies"):
			found = GPUAMD
		case strings.Contains(line, "intel") && found == GPUNone:
			found = GPUIntel
		}
	}
	return found
}

// invokingUser resolves the user whose home directories receive data dirs.
// Under sudo this is the original user, not root.
func invokingUser() (string, string) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.Username, u.HomeDir
		}
	}
	if u, err := user.Current(); err == nil {
		return u.Username, u.HomeDir
	}
	return "", os.Getenv("HOME")
}

// StarlarkVars exposes the profile facts that applicability predicates may
// reference.
func (p Profile) StarlarkVars() map[string]interface{} {
	return map[string]interface{}{
		"family":        string(p.Family),
		"distro":        p.Distro,
		"gpu":           string(p.GPU),
		"computer_type": string(p.ComputerType),
		"arch":          p.Arch,
	}
}
