package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one record per phase execution. The task log is append-only.
type Task struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	AgentID      string   `json:"agent_id"`
	AgentName    string   `json:"agent_name,omitempty"`
	AgentRole    string   `json:"agent_role,omitempty"`
	Phase        string   `json:"phase"`
	Title        string   `json:"title"`
	Output       string   `json:"output,omitempty"`
	FilesCreated []string `json:"files_created,omitempty"`
	Status       string   `json:"status"` // pending | running | completed | failed
	CreatedAt    int64    `json:"created_at"`
}

// AppendTask inserts a task record. Tasks are never mutated afterward.
func (s *Store) AppendTask(t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	if t.Status == "" {
		t.Status = "pending"
	}

	var files string
	if len(t.FilesCreated) > 0 {
		blob, err := json.Marshal(t.FilesCreated)
		if err != nil {
			return fmt.Errorf("failed to marshal files created: %w", err)
		}
		files = string(blob)
	}

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, project_id, agent_id, phase, title, output, files_created, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.AgentID, t.Phase, t.Title,
		sql.NullString{String: t.Output, Valid: t.Output != ""},
		sql.NullString{String: files, Valid: files != ""},
		t.Status, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append task: %w", err)
	}
	return nil
}

// ListTasks returns a project's tasks newest first, with the owning agent's
// name and role embedded.
func (s *Store) ListTasks(projectID string) ([]*Task, error) {
	query := `
	SELECT t.id, t.project_id, t.agent_id, a.name, a.role, t.phase, t.title,
	       t.output, t.files_created, t.status, t.created_at
	FROM tasks t
	LEFT JOIN agents a ON a.id = t.agent_id
	WHERE t.project_id = ?
	ORDER BY t.created_at DESC
	`
	rows, err := s.db.Query(query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		var agentName, agentRole, output, files sql.NullString
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.AgentID, &agentName, &agentRole, &t.Phase,
			&t.Title, &output, &files, &t.Status, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if agentName.Valid {
			t.AgentName = agentName.String
		}
		if agentRole.Valid {
			t.AgentRole = agentRole.String
		}
		if output.Valid {
			t.Output = output.String
		}
		if files.Valid && files.String != "" {
			_ = json.Unmarshal([]byte(files.String), &t.FilesCreated)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
