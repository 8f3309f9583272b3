// Package events provides the typed event bus the core pushes
// observer events through. Transports (HTTP, WebSocket, CLI) subscribe
// and forward; the core never blocks on a slow observer.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates event payloads on the wire.
type Type string

const (
	TypeProgress            Type = "progress"
	TypeFeatureUpdate       Type = "feature_update"
	TypeAgentPool           Type = "agent_pool"
	TypeAgentLog            Type = "agent_log"
	TypeAgentInstanceStatus Type = "agent_instance_status"
	TypeDependencyResolved  Type = "dependency_resolved"
)

// Event is the tagged union pushed to subscribers.
type Event interface {
	EventType() Type
}

// Progress reports backlog completion after a committed transition.
type Progress struct {
	Passing    int     `json:"passing"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

func (Progress) EventType() Type { return TypeProgress }

// FeatureUpdate reports a single feature's pass flag after a
// committed transition.
type FeatureUpdate struct {
	FeatureID int64 `json:"feature_id"`
	Passes    bool  `json:"passes"`
}

func (FeatureUpdate) EventType() Type { return TypeFeatureUpdate }

// AgentSnapshot is one agent's state inside an AgentPool event.
type AgentSnapshot struct {
	AgentID          string     `json:"agent_id"`
	Status           string     `json:"status"`
	PID              int        `json:"pid,omitempty"`
	Model            string     `json:"model"`
	YoloMode         bool       `json:"yolo_mode"`
	CurrentFeatureID *int64     `json:"current_feature_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}

// AgentPool reports the pool composition after spawn/stop/reap.
type AgentPool struct {
	ProjectName  string          `json:"project_name"`
	Agents       []AgentSnapshot `json:"agents"`
	ActiveCount  int             `json:"active_count"`
	IdleCount    int             `json:"idle_count"`
	WorkingCount int             `json:"working_count"`
}

func (AgentPool) EventType() Type { return TypeAgentPool }

// AgentLog carries one sanitized output line from an agent subprocess.
type AgentLog struct {
	AgentID   string    `json:"agent_id"`
	Line      string    `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

func (AgentLog) EventType() Type { return TypeAgentLog }

// AgentInstanceStatus reports one agent's lifecycle transition.
type AgentInstanceStatus struct {
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
	FeatureID *int64 `json:"feature_id,omitempty"`
}

func (AgentInstanceStatus) EventType() Type { return TypeAgentInstanceStatus }

// DependencyResolved reports features unblocked by a feature passing.
type DependencyResolved struct {
	FeatureID           int64   `json:"feature_id"`
	UnblockedFeatureIDs []int64 `json:"unblocked_feature_ids"`
}

func (DependencyResolved) EventType() Type { return TypeDependencyResolved }

// Marshal serializes an event as a JSON object with a "type"
// discriminator alongside the payload fields.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("flatten event payload: %w", err)
	}

	typeTag, err := json.Marshal(e.EventType())
	if err != nil {
		return nil, fmt.Errorf("marshal event type: %w", err)
	}
	fields["type"] = typeTag

	return json.Marshal(fields)
}
