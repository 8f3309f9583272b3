// Package feature provides the persistent feature queue and its state
// machine. Each project keeps a single SQLite database (features.db) in
// its root directory holding the backlog, the append-only status change
// log, dependency edges, and agent registration rows.
package feature

import "time"

// Status is the logical state of a feature, derived from its flags.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPassing    Status = "passing"
)

// Feature is a unit of work in the backlog. Lower priority runs sooner;
// ties break on id.
type Feature struct {
	ID                   int64      `json:"id"`
	Priority             int64      `json:"priority"`
	Category             string     `json:"category"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	Steps                []string   `json:"steps"`
	Passes               bool       `json:"passes"`
	InProgress           bool       `json:"in_progress"`
	AssignedToAgentID    string     `json:"assigned_to_agent_id,omitempty"`
	AttemptCount         int        `json:"attempt_count"`
	VerificationCommand  string     `json:"verification_command,omitempty"`
	VerificationEvidence string     `json:"verification_evidence,omitempty"`
	MarkedPassingAt      *time.Time `json:"marked_passing_at,omitempty"`
}

// Status returns the logical state derived from the pass/progress flags.
func (f *Feature) Status() Status {
	switch {
	case f.Passes:
		return StatusPassing
	case f.InProgress:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// StatusChange is one row of the append-only audit log. Rows are written
// only after the parent transition commits and are never modified.
type StatusChange struct {
	ID                 int64     `json:"id"`
	FeatureID          int64     `json:"feature_id"`
	FeatureName        string    `json:"feature_name"`
	OldStatus          Status    `json:"old_status"`
	NewStatus          Status    `json:"new_status"`
	Evidence           string    `json:"evidence,omitempty"`
	VerificationOutput string    `json:"verification_output,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// DependencyKind tags a dependency edge.
type DependencyKind string

const (
	DependencyBlocks   DependencyKind = "blocks"
	DependencyRequires DependencyKind = "requires"
	DependencyRelated  DependencyKind = "related"
)

// Valid reports whether the kind is one of the known tags.
func (k DependencyKind) Valid() bool {
	switch k {
	case DependencyBlocks, DependencyRequires, DependencyRelated:
		return true
	}
	return false
}

// Blocking reports whether edges of this kind gate scheduling.
// "related" edges are informational only.
func (k DependencyKind) Blocking() bool {
	return k == DependencyBlocks || k == DependencyRequires
}

// Dependency is a directed edge: FeatureID depends on DependsOnID.
type Dependency struct {
	ID          int64          `json:"id"`
	FeatureID   int64          `json:"feature_id"`
	DependsOnID int64          `json:"depends_on_id"`
	Kind        DependencyKind `json:"kind"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AgentStatus is the lifecycle state of a supervised agent subprocess.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentPaused  AgentStatus = "paused"
	AgentStopped AgentStatus = "stopped"
	AgentCrashed AgentStatus = "crashed"
)

// Agent is the persisted registration row for a spawned agent process.
// Rows are created on spawn, updated on status change and heartbeat,
// and deleted on clean stop. Crashed rows persist until a later spawn
// reuses the id or cleanup removes them.
type Agent struct {
	AgentID          string      `json:"agent_id"`
	ProjectName      string      `json:"project_name"`
	Status           AgentStatus `json:"status"`
	Model            string      `json:"model"`
	YoloMode         bool        `json:"yolo_mode"`
	PID              int         `json:"pid"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	LastHeartbeat    *time.Time  `json:"last_heartbeat,omitempty"`
	CurrentFeatureID *int64      `json:"current_feature_id,omitempty"`
}

// Stats summarizes backlog progress.
type Stats struct {
	Passing    int     `json:"passing"`
	InProgress int     `json:"in_progress"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// SkipResult reports the priority rotation performed by Skip.
type SkipResult struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	OldPriority int64  `json:"old_priority"`
	NewPriority int64  `json:"new_priority"`
	Message     string `json:"message"`
}

// CreateItem is the validated input for Create and CreateBulk.
type CreateItem struct {
	Category    string   `json:"category"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}
