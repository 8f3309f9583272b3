package feature

import (
	"database/sql"
	"fmt"
	"time"
)

// RegisterAgent upserts the registration row for a spawned agent. A
// reused agent id replaces the previous row entirely.
func (s *Store) RegisterAgent(a *Agent) error {
	_, err := s.Exec(`
		INSERT INTO agents (agent_id, project_name, status, model, yolo_mode, pid, created_at, started_at, last_heartbeat, current_feature_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			project_name = excluded.project_name,
			status = excluded.status,
			model = excluded.model,
			yolo_mode = excluded.yolo_mode,
			pid = excluded.pid,
			created_at = excluded.created_at,
			started_at = excluded.started_at,
			last_heartbeat = excluded.last_heartbeat,
			current_feature_id = excluded.current_feature_id
	`, a.AgentID, a.ProjectName, string(a.Status), a.Model, a.YoloMode, nullInt(a.PID),
		formatTime(a.CreatedAt), formatNullableTime(a.StartedAt), formatNullableTime(a.LastHeartbeat), a.CurrentFeatureID)
	if err != nil {
		return fmt.Errorf("register agent %s: %w", a.AgentID, err)
	}
	return nil
}

// UpdateAgentStatus records a lifecycle transition and refreshes the
// heartbeat. A nil featureID clears the current assignment.
func (s *Store) UpdateAgentStatus(agentID string, status AgentStatus, featureID *int64) error {
	res, err := s.Exec(`
		UPDATE agents SET status = ?, current_feature_id = ?, last_heartbeat = ? WHERE agent_id = ?
	`, string(status), featureID, formatTime(time.Now()), agentID)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", agentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent %s: %w", agentID, err)
	}
	if n == 0 {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}

// TouchAgent refreshes the heartbeat without changing status.
func (s *Store) TouchAgent(agentID string) error {
	_, err := s.Exec(`UPDATE agents SET last_heartbeat = ? WHERE agent_id = ?`, formatTime(time.Now()), agentID)
	if err != nil {
		return fmt.Errorf("touch agent %s: %w", agentID, err)
	}
	return nil
}

// DeleteAgent removes an agent's registration row. Missing rows are not
// an error; stop paths race with reap paths.
func (s *Store) DeleteAgent(agentID string) error {
	if _, err := s.Exec(`DELETE FROM agents WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete agent %s: %w", agentID, err)
	}
	return nil
}

// GetAgent fetches one registration row, or nil when absent.
func (s *Store) GetAgent(agentID string) (*Agent, error) {
	row := s.QueryRow(`
		SELECT agent_id, project_name, status, model, yolo_mode, pid, created_at, started_at, last_heartbeat, current_feature_id
		FROM agents WHERE agent_id = ?
	`, agentID)

	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	return a, nil
}

// ListAgents returns all registration rows ordered by creation time.
func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.Query(`
		SELECT agent_id, project_name, status, model, yolo_mode, pid, created_at, started_at, last_heartbeat, current_feature_id
		FROM agents ORDER BY created_at ASC, agent_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		a         Agent
		status    string
		pid       sql.NullInt64
		createdAt string
		startedAt sql.NullString
		heartbeat sql.NullString
		featureID sql.NullInt64
	)
	err := row.Scan(&a.AgentID, &a.ProjectName, &status, &a.Model, &a.YoloMode, &pid,
		&createdAt, &startedAt, &heartbeat, &featureID)
	if err != nil {
		return nil, err
	}

	a.Status = AgentStatus(status)
	if pid.Valid {
		a.PID = int(pid.Int64)
	}
	if t, err := parseTime(createdAt); err == nil {
		a.CreatedAt = t
	}
	a.StartedAt = parseNullableTime(startedAt)
	a.LastHeartbeat = parseNullableTime(heartbeat)
	if featureID.Valid {
		id := featureID.Int64
		a.CurrentFeatureID = &id
	}
	return &a, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
