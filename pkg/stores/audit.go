package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rigup/rigup/pkg/engine"
)

// AuditLog appends run events as JSON lines to a plain text file, one
// entry per line. The file is opened append-only and entries are never
// rewritten, so the log survives crashes mid-run and remains greppable.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

type auditEntry struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	RunID      string    `json:"run_id,omitempty"`
	PlanID     string    `json:"plan_id,omitempty"`
	Capability string    `json:"capability,omitempty"`
	Action     string    `json:"action,omitempty"`
	State      string    `json:"state,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// OpenAuditLog opens (or creates) the audit log at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLog{file: f}, nil
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	return a.file.Close()
}

func (a *AuditLog) write(e auditEntry) error {
	e.Time = time.Now().UTC()
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Error records a fatal error. Configuration failures happen before any
// run exists, so the entry carries no run id; they still must reach the
// audit log before the process exits.
func (a *AuditLog) Error(err error) error {
	return a.write(auditEntry{
		Event:   "error",
		Summary: err.Error(),
	})
}

// RunStarted implements engine.Sink.
func (a *AuditLog) RunStarted(_ context.Context, result *engine.RunResult, plan *engine.Plan) error {
	return a.write(auditEntry{
		Event:  "run-started",
		RunID:  result.RunID,
		PlanID: plan.ID,
	})
}

// StateChanged implements engine.Sink.
func (a *AuditLog) StateChanged(_ context.Context, runID, capabilityID string, state engine.CapabilityState) error {
	return a.write(auditEntry{
		Event:      "state-changed",
		RunID:      runID,
		Capability: capabilityID,
		State:      string(state),
	})
}

// RecordAppended implements engine.Sink.
func (a *AuditLog) RecordAppended(_ context.Context, rec engine.ExecutionRecord) error {
	return a.write(auditEntry{
		Event:      "action-recorded",
		RunID:      rec.RunID,
		Capability: rec.CapabilityID,
		Action:     rec.Action,
		Outcome:    string(rec.Outcome),
		Summary:    rec.Summary,
	})
}

// RunCompleted implements engine.Sink.
func (a *AuditLog) RunCompleted(_ context.Context, result *engine.RunResult) error {
	return a.write(auditEntry{
		Event:  "run-completed",
		RunID:  result.RunID,
		Status: string(result.Status),
	})
}
