package actions

import (
	"fmt"

	"github.com/rigup/rigup/pkg/profile"
)

// managerVerbs holds the package-manager argv templates for one
// distribution family. Capability package names are data in the registry;
// the verbs here are the only per-family code-adjacent knowledge.
type managerVerbs struct {
	// binary is the package manager executable.
	binary string

	// install is the argv prefix for installing packages.
	install []string

	// refresh is the argv for refreshing the package database, run once
	// per process before the first install. Nil means not needed.
	refresh []string
}

var verbsForFamily = map[profile.Family]managerVerbs{
	profile.FamilyArch: {
		binary:  "pacman",
		install: []string{"-S", "--noconfirm", "--needed"},
		refresh: []string{"-Sy"},
	},
	profile.FamilyFedora: {
		binary:  "dnf",
		install: []string{"install", "-y"},
	},
	profile.FamilyDebian: {
		binary:  "apt-get",
		install: []string{"install", "-y"},
		refresh: []string{"update"},
	},
	profile.FamilySuse: {
		binary:  "zypper",
		install: []string{"install", "-y"},
		refresh: []string{"refresh"},
	},
}

// installArgv resolves the install command for a family and package list.
func installArgv(family profile.Family, packages []string) ([]string, error) {
	verbs, ok := verbsForFamily[family]
	if !ok {
		return nil, fmt.Errorf("no package manager verbs for family %s", family)
	}
	argv := append([]string{verbs.binary}, verbs.install...)
	return append(argv, packages...), nil
}

// refreshArgv resolves the package database refresh command, or nil when
// the family does not need one.
func refreshArgv(family profile.Family) []string {
	verbs, ok := verbsForFamily[family]
	if !ok || verbs.refresh == nil {
		return nil
	}
	return append([]string{verbs.binary}, verbs.refresh...)
}
