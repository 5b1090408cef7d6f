package stores

import "time"

// Run is one persisted provisioning run.
type Run struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	Status      string     `json:"status"`
	Requested   string     `json:"requested"`
	Profile     string     `json:"profile"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Record is one persisted execution record. Records are append-only and
// never updated.
type Record struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	CapabilityID string    `json:"capability_id"`
	Action       string    `json:"action"`
	Outcome      string    `json:"outcome"`
	Summary      string    `json:"summary,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// StateChange is one persisted capability state transition.
type StateChange struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	CapabilityID string    `json:"capability_id"`
	State        string    `json:"state"`
	ChangedAt    time.Time `json:"changed_at"`
}
