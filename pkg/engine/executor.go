package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rigup/rigup/pkg/actions"
	"github.com/rigup/rigup/pkg/probe"
	"github.com/rigup/rigup/pkg/registry"
)

// Prober classifies a capability against the live system.
type Prober interface {
	Probe(ctx context.Context, c *registry.Capability) probe.Result
}

// ActionApplier performs one corrective action.
type ActionApplier interface {
	Apply(ctx context.Context, c *registry.Capability, action *registry.Action) (actions.Outcome, error)
}

// Sink receives run lifecycle notifications. Implementations persist them
// (sqlite store, audit log) or export them (metrics, events).
type Sink interface {
	RunStarted(ctx context.Context, result *RunResult, plan *Plan) error
	StateChanged(ctx context.Context, runID, capabilityID string, state CapabilityState) error
	RecordAppended(ctx context.Context, rec ExecutionRecord) error
	RunCompleted(ctx context.Context, result *RunResult) error
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) RunStarted(context.Context, *RunResult, *Plan) error                 { return nil }
func (NopSink) StateChanged(context.Context, string, string, CapabilityState) error { return nil }
func (NopSink) RecordAppended(context.Context, ExecutionRecord) error               { return nil }
func (NopSink) RunCompleted(context.Context, *RunResult) error                      { return nil }

// MultiSink fans notifications out to several sinks. Sink errors are
// collected by the caller's logger, never propagated: persistence problems
// must not abort provisioning.
type MultiSink struct {
	Sinks  []Sink
	Logger zerolog.Logger
}

func (m MultiSink) RunStarted(ctx context.Context, r *RunResult, p *Plan) error {
	for _, s := range m.Sinks {
		if err := s.RunStarted(ctx, r, p); err != nil {
			m.Logger.Warn().Err(err).Msg("sink rejected run start")
		}
	}
	return nil
}

func (m MultiSink) StateChanged(ctx context.Context, runID, capID string, st CapabilityState) error {
	for _, s := range m.Sinks {
		if err := s.StateChanged(ctx, runID, capID, st); err != nil {
			m.Logger.Warn().Err(err).Msg("sink rejected state change")
		}
	}
	return nil
}

func (m MultiSink) RecordAppended(ctx context.Context, rec ExecutionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAppended(ctx, rec); err != nil {
			m.Logger.Warn().Err(err).Msg("sink rejected execution record")
		}
	}
	return nil
}

func (m MultiSink) RunCompleted(ctx context.Context, r *RunResult) error {
	for _, s := range m.Sinks {
		if err := s.RunCompleted(ctx, r); err != nil {
			m.Logger.Warn().Err(err).Msg("sink rejected run completion")
		}
	}
	return nil
}

// Executor runs a plan strictly in order, one capability at a time.
// Provisioning mutates shared host state (package databases, systemd,
// groups), so steps are never parallelized.
type Executor struct {
	registry *registry.Registry
	prober   Prober
	runner   ActionApplier
	sink     Sink
	logger   zerolog.Logger
	now      func() time.Time

	// ActionTimeout bounds a single corrective action. Zero means no
	// limit beyond the run context.
	ActionTimeout time.Duration
}

// NewExecutor constructs an executor. A nil sink is replaced by NopSink.
func NewExecutor(reg *registry.Registry, prober Prober, runner ActionApplier, sink Sink, logger zerolog.Logger) *Executor {
	if sink == nil {
		sink = NopSink{}
	}
	return &Executor{
		registry: reg,
		prober:   prober,
		runner:   runner,
		sink:     sink,
		logger:   logger.With().Str("component", "executor").Logger(),
		now:      time.Now,
	}
}

// Execute walks the plan in order. Each step is re-probed before acting,
// so a capability satisfied out of band (or by an earlier step) is skipped
// without side effects. After the step's actions run, the capability is
// probed again to verify the system converged. The first action failure
// aborts the run and marks the remaining entries skipped. Interactive
// capabilities never fail verification: they end as attempted-unverified.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New().String(),
		Status:    RunStatusRunning,
		States:    make(map[string]CapabilityState, len(plan.Entries)),
		StartedAt: e.now().UTC(),
	}
	for _, entry := range plan.Entries {
		result.States[entry.CapabilityID] = StateScheduled
	}
	_ = e.sink.RunStarted(ctx, result, plan)

	logger := e.logger.With().Str("run_id", result.RunID).Logger()
	var runErr error

	for i, entry := range plan.Entries {
		if runErr != nil {
			e.setState(ctx, result, entry.CapabilityID, StateSkipped)
			e.append(ctx, result, ExecutionRecord{
				RunID:        result.RunID,
				CapabilityID: entry.CapabilityID,
				Outcome:      RecordSkipped,
				Summary:      "skipped after earlier failure",
				StartedAt:    e.now().UTC(),
				CompletedAt:  e.now().UTC(),
			})
			continue
		}

		c, ok := e.registry.Get(entry.CapabilityID)
		if !ok {
			runErr = NewInternalError("plan references unknown capability", nil).
				WithCode(ErrCodeInternal).
				WithCapability(entry.CapabilityID)
			e.setState(ctx, result, entry.CapabilityID, StateFailed)
			result.FailedCapability = entry.CapabilityID
			continue
		}

		e.setState(ctx, result, entry.CapabilityID, StateExecuting)
		logger.Info().
			Str("capability", c.ID).
			Int("step", i+1).
			Int("of", len(plan.Entries)).
			Msg("executing")

		// Earlier steps or out-of-band changes may have satisfied this
		// capability already.
		pre := e.prober.Probe(ctx, c)
		if pre.Status == probe.StatusSatisfied {
			e.setState(ctx, result, entry.CapabilityID, StateSatisfied)
			e.append(ctx, result, ExecutionRecord{
				RunID:        result.RunID,
				CapabilityID: c.ID,
				Outcome:      RecordSkipped,
				Summary:      "already satisfied",
				StartedAt:    e.now().UTC(),
				CompletedAt:  e.now().UTC(),
			})
			continue
		}

		if err := e.runActions(ctx, result, c); err != nil {
			e.setState(ctx, result, entry.CapabilityID, StateFailed)
			result.FailedCapability = entry.CapabilityID
			runErr = err
			continue
		}

		final := e.verify(ctx, c)
		e.setState(ctx, result, entry.CapabilityID, final)
		if final == StateFailed {
			result.FailedCapability = entry.CapabilityID
			runErr = NewActionError("capability still unsatisfied after actions", nil).
				WithCode(ErrCodeActionFailed).
				WithCapability(c.ID)
		}
	}

	result.CompletedAt = e.now().UTC()
	result.Status = e.finalStatus(result, runErr)
	_ = e.sink.RunCompleted(ctx, result)

	logger.Info().
		Str("status", string(result.Status)).
		Int("records", len(result.Records)).
		Msg("run finished")
	return result, runErr
}

// runActions applies every action of the capability in order, recording
// each one. The first error stops the capability.
func (e *Executor) runActions(ctx context.Context, result *RunResult, c *registry.Capability) error {
	for i := range c.Actions {
		action := &c.Actions[i]
		started := e.now().UTC()
		outcome, err := e.applyOne(ctx, c, action)
		rec := ExecutionRecord{
			RunID:        result.RunID,
			CapabilityID: c.ID,
			Action:       string(action.Kind),
			StartedAt:    started,
			CompletedAt:  e.now().UTC(),
		}
		if err != nil {
			rec.Outcome = RecordFailure
			rec.Summary = err.Error()
			e.append(ctx, result, rec)
			return NewActionError("action failed", err).
				WithCode(ErrCodeActionFailed).
				WithCapability(c.ID).
				WithAction(string(action.Kind))
		}
		if outcome.Unverified {
			rec.Outcome = RecordAttempted
		} else {
			rec.Outcome = RecordSuccess
		}
		rec.Summary = outcome.Summary
		e.append(ctx, result, rec)
	}
	return nil
}

// applyOne runs a single action under the configured action timeout.
func (e *Executor) applyOne(ctx context.Context, c *registry.Capability, action *registry.Action) (actions.Outcome, error) {
	if e.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ActionTimeout)
		defer cancel()
	}
	return e.runner.Apply(ctx, c, action)
}

// verify re-probes the capability after its actions ran. Interactive
// installers run detached in a GUI the executor cannot observe, so a
// non-satisfied result maps to attempted-unverified instead of failed.
func (e *Executor) verify(ctx context.Context, c *registry.Capability) CapabilityState {
	res := e.prober.Probe(ctx, c)
	if res.Status == probe.StatusSatisfied {
		return StateSatisfied
	}
	if c.Interactive {
		return StateAttemptedUnverified
	}
	return StateFailed
}

func (e *Executor) finalStatus(result *RunResult, runErr error) RunStatus {
	if runErr != nil {
		return RunStatusFailed
	}
	for _, st := range result.States {
		if st == StateAttemptedUnverified {
			return RunStatusUnverified
		}
	}
	return RunStatusSucceeded
}

func (e *Executor) setState(ctx context.Context, result *RunResult, capID string, st CapabilityState) {
	result.States[capID] = st
	_ = e.sink.StateChanged(ctx, result.RunID, capID, st)
}

func (e *Executor) append(ctx context.Context, result *RunResult, rec ExecutionRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	result.Records = append(result.Records, rec)
	_ = e.sink.RecordAppended(ctx, rec)
}
