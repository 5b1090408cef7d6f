package registry

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/rigup/rigup/pkg/profile"
)

// applicability evaluates capability `when` predicates against the OS
// profile. Predicates are plain Starlark expressions over the profile
// facts, e.g. `gpu == "nvidia" and computer_type == "workstation"`.

// parsePredicate syntax-checks a predicate at registry load time so a typo
// fails fast instead of at plan time.
func parsePredicate(capID, expr string) error {
	if expr == "" {
		return nil
	}
	opts := &syntax.FileOptions{}
	if _, err := opts.ParseExpr("when", expr, 0); err != nil {
		return fmt.Errorf("capability %s: invalid applicability predicate: %w", capID, err)
	}
	return nil
}

// Applies evaluates the capability's predicate against the profile.
// Capabilities without a predicate always apply.
func (c *Capability) Applies(p profile.Profile) (bool, error) {
	if c.When == "" {
		return true, nil
	}

	thread := &starlark.Thread{
		Name: "rigup-when",
		Print: func(_ *starlark.Thread, _ string) {
			// predicates have no output channel
		},
	}

	predeclared := starlark.StringDict{}
	for key, val := range p.StarlarkVars() {
		converted, err := toStarlarkValue(val)
		if err != nil {
			return false, fmt.Errorf("capability %s: convert %s: %w", c.ID, key, err)
		}
		predeclared[key] = converted
	}

	opts := &syntax.FileOptions{}
	expr, err := opts.ParseExpr("when", c.When, 0)
	if err != nil {
		return false, fmt.Errorf("capability %s: invalid applicability predicate: %w", c.ID, err)
	}
	value, err := starlark.EvalExprOptions(opts, thread, expr, predeclared)
	if err != nil {
		return false, fmt.Errorf("capability %s: predicate evaluation failed: %w", c.ID, err)
	}

	return bool(value.Truth()), nil
}

// toStarlarkValue converts the profile fact values (strings and bools)
// into Starlark values.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	default:
		return nil, fmt.Errorf("unsupported predicate input type %T", v)
	}
}
