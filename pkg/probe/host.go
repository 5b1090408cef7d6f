package probe

import (
	"context"
	"os"
	"os/exec"
	"os/user"
	"strings"
)

// Host abstracts the read-only host inspection primitives the prober
// needs, so tests run against a fake instead of the live system.
type Host interface {
	// LookPath resolves a binary in PATH.
	LookPath(name string) (string, error)

	// Output runs a command and returns its combined trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// FileExists reports whether the path exists.
	FileExists(path string) bool

	// ReadFile returns the file contents.
	ReadFile(path string) ([]byte, error)

	// UserGroups returns the invoking user's group names.
	UserGroups() ([]string, error)
}

// LocalHost inspects the machine rigup runs on.
type LocalHost struct{}

// LookPath resolves a binary in PATH.
func (LocalHost) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Output runs a command, returning stdout even when the command exits
// non-zero (systemctl reports state on stdout alongside its exit code).
func (LocalHost) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// FileExists reports whether the path exists.
func (LocalHost) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile returns the file contents.
func (LocalHost) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// UserGroups returns the group names of the current user. Under sudo the
// original user is resolved so group-membership probes reflect the account
// that will actually use docker and friends.
func (LocalHost) UserGroups() ([]string, error) {
	u, err := currentUser()
	if err != nil {
		return nil, err
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		g, err := user.LookupGroupId(id)
		if err != nil {
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}

func currentUser() (*user.User, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u, nil
		}
	}
	return user.Current()
}
