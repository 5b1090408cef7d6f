package engine

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/profile"
	"github.com/rigup/rigup/pkg/registry"
)

// SecretPrompt asks the operator for a secret value. ok is false when the
// operator declined or no prompt channel exists (unattended runs).
type SecretPrompt func(name string) (value string, ok bool)

// Planner turns a requested capability set plus probe results into an
// ordered plan.
type Planner struct {
	registry *registry.Registry
	prober   Prober
	prompt   SecretPrompt
	logger   zerolog.Logger
}

// NewPlanner constructs a planner over the given registry. prober fills in
// probe results for dependencies outside the requested set; prompt, when
// non-nil, is the fallback for secrets missing from the environment.
func NewPlanner(reg *registry.Registry, prober Prober, prompt SecretPrompt, logger zerolog.Logger) *Planner {
	return &Planner{
		registry: reg,
		prober:   prober,
		prompt:   prompt,
		logger:   logger.With().Str("component", "planner").Logger(),
	}
}

// Build derives the plan: requested capabilities that probed unsatisfied,
// expanded with their unsatisfied transitive dependencies, in stable
// topological order. Capabilities that are already satisfied never appear,
// even as dependencies of included entries. Dependencies without a probe
// result are probed here, so a satisfied dependency outside the requested
// set is never scheduled. Adding capabilities to the requested set never
// removes entries from the resulting plan.
func (pl *Planner) Build(ctx context.Context, prof profile.Profile, requested []string, results map[string]probe.Result) (*Plan, error) {
	probes := make(map[string]probe.Result, len(results))
	for id, res := range results {
		probes[id] = res
	}

	include := make(map[string]bool)

	var expand func(id string) error
	expand = func(id string) error {
		c, ok := pl.registry.Get(id)
		if !ok {
			return NewConfigError("unknown capability: "+id, nil).WithCode(ErrCodeValidation)
		}
		res, probed := probes[id]
		if !probed && pl.prober != nil {
			res = pl.prober.Probe(ctx, c)
			probes[id] = res
			probed = true
		}
		if probed && res.Status == probe.StatusSatisfied {
			return nil
		}
		if include[id] {
			return nil
		}
		include[id] = true
		for _, dep := range c.DependsOn {
			if err := expand(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range requested {
		if err := expand(id); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(include))
	for _, c := range pl.registry.All() {
		if include[c.ID] {
			ids = append(ids, c.ID)
		}
	}

	ordered, err := topoSort(pl.registry, ids)
	if err != nil {
		return nil, NewConfigError("plan ordering failed", err).WithCode(ErrCodeCycle)
	}

	if err := pl.resolveSecrets(ordered); err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Requested: append([]string(nil), requested...),
		Profile:   prof,
	}
	for i, id := range ordered {
		c, _ := pl.registry.Get(id)
		reason := probe.StatusMissing
		if res, ok := probes[id]; ok {
			reason = res.Status
		}
		plan.Entries = append(plan.Entries, PlanEntry{
			CapabilityID: id,
			Label:        c.Label,
			Reason:       reason,
			Order:        i,
			Interactive:  c.Interactive,
		})
	}

	pl.logger.Info().
		Str("plan_id", plan.ID).
		Int("requested", len(requested)).
		Int("entries", len(plan.Entries)).
		Msg("plan built")
	return plan, nil
}

// resolveSecrets fails the plan before any mutation when a scheduled
// capability needs a secret that is neither in the environment nor
// supplied through the prompt.
func (pl *Planner) resolveSecrets(ids []string) error {
	for _, id := range ids {
		c, _ := pl.registry.Get(id)
		if c.RequiresSecret == "" {
			continue
		}
		if _, ok := os.LookupEnv(c.RequiresSecret); ok {
			continue
		}
		if pl.prompt != nil {
			if value, ok := pl.prompt(c.RequiresSecret); ok {
				if err := os.Setenv(c.RequiresSecret, value); err != nil {
					return NewInternalError("failed to store secret", err).WithCapability(id)
				}
				continue
			}
		}
		return NewConfigError("required secret "+c.RequiresSecret+" is not set", nil).
			WithCode(ErrCodeMissingSecret).
			WithCapability(id)
	}
	return nil
}
