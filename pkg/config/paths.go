package config

import (
	"os"
	"path/filepath"
)

// Paths resolves the XDG directory layout used by rigup.
type Paths struct {
	// ConfigFile is the CUE configuration file.
	ConfigFile string

	// StateDir holds the run database and the audit log.
	StateDir string

	// DataDir holds capability data directories (Wine prefixes and
	// downloaded artifacts).
	DataDir string

	// CacheDir holds downloaded installers and release artifacts.
	CacheDir string
}

// ResolvePaths derives the layout from the XDG environment with the usual
// fallbacks under home.
func ResolvePaths(home string) Paths {
	configHome := envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	stateHome := envOr("XDG_STATE_HOME", filepath.Join(home, ".local", "state"))
	dataHome := envOr("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	cacheHome := envOr("XDG_CACHE_HOME", filepath.Join(home, ".cache"))

	return Paths{
		ConfigFile: filepath.Join(configHome, "rigup", "rigup.cue"),
		StateDir:   filepath.Join(stateHome, "rigup"),
		DataDir:    filepath.Join(dataHome, "rigup"),
		CacheDir:   filepath.Join(cacheHome, "rigup"),
	}
}

// DatabasePath is the sqlite run database.
func (p Paths) DatabasePath() string {
	return filepath.Join(p.StateDir, "rigup.db")
}

// AuditLogPath is the append-only audit log.
func (p Paths) AuditLogPath() string {
	return filepath.Join(p.StateDir, "audit.log")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
