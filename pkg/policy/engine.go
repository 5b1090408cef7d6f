package policy

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/registry"
)

// Engine evaluates Rego policies against a plan before execution.
type Engine struct {
	policies []Policy
	logger   zerolog.Logger
}

// NewEngine creates a policy engine with the built-in policies and
// verifies they compile.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: BuiltinPolicies(),
		logger:   logger.With().Str("component", "policy").Logger(),
	}
	for i := range e.policies {
		p := &e.policies[i]
		r := rego.New(
			rego.Module(p.Name, p.Rego),
			rego.Query(denyQuery(p.Rego)),
		)
		if _, err := r.PrepareForEval(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// BuildInput assembles the policy input document from the plan and the
// registry.
func BuildInput(reg *registry.Registry, plan *engine.Plan, unattended bool) Input {
	in := Input{
		Profile:    plan.Profile,
		Unattended: unattended,
	}
	for _, entry := range plan.Entries {
		ei := EntryInput{CapabilityID: entry.CapabilityID, Interactive: entry.Interactive}
		if c, ok := reg.Get(entry.CapabilityID); ok && c.RequiresSecret != "" {
			ei.RequiresSecret = c.RequiresSecret
			_, ei.SecretPresent = os.LookupEnv(c.RequiresSecret)
		}
		in.Entries = append(in.Entries, ei)
	}
	return in
}

// EvaluatePlan runs every enabled policy over the input and partitions the
// findings into blocking violations and warnings.
func (e *Engine) EvaluatePlan(ctx context.Context, input Input) (*Result, error) {
	result := &Result{Allowed: true, EvaluatedAt: time.Now().UTC()}

	for i := range e.policies {
		p := &e.policies[i]
		if !p.Enabled {
			continue
		}
		findings, err := e.evaluatePolicy(ctx, p, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", p.Name, err)
		}
		for _, v := range findings {
			if v.Severity == string(SeverityError) {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	e.logger.Debug().
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Msg("plan policy evaluation completed")
	return result, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, p *Policy, input Input) ([]Violation, error) {
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(denyQuery(p.Rego)),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var out []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				out = append(out, makeViolation(p, d))
			}
		}
	}
	return out, nil
}

func makeViolation(p *Policy, finding interface{}) Violation {
	v := Violation{Policy: p.Name, Severity: string(p.Severity)}
	switch f := finding.(type) {
	case string:
		v.Message = f
	case map[string]interface{}:
		if msg, ok := f["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := f["severity"].(string); ok {
			v.Severity = sev
		}
		if capID, ok := f["capability"].(string); ok {
			v.Capability = capID
		}
	default:
		v.Message = fmt.Sprintf("%v", finding)
	}
	return v
}

// denyQuery derives the data.<package>.deny query from the module source.
func denyQuery(module string) string {
	for _, line := range strings.Split(module, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return "data." + parts[1] + ".deny"
			}
		}
	}
	return "data.rigup.policies.deny"
}
