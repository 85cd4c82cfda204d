package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent is a named role scoped to one project. An empty AllowedFolders means
// orchestrator-level, unrestricted.
type Agent struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	AllowedFolders []string `json:"allowed_folders"`
	IsDefault      bool     `json:"is_default"`
	Approved       bool     `json:"approved"`
	Position       int      `json:"position"`
	CreatedAt      int64    `json:"created_at"`
}

// defaultAgents is the fixed set seeded 1:1 per project at creation.
var defaultAgents = []Agent{
	{Name: "Master", Role: "orchestrator", AllowedFolders: nil, Position: 0},
	{Name: "Architecture", Role: "architecture", AllowedFolders: nil, Position: 1},
	{Name: "Database", Role: "database", AllowedFolders: []string{"db"}, Position: 2},
	{Name: "Backend", Role: "backend", AllowedFolders: []string{"backend"}, Position: 3},
	{Name: "Frontend", Role: "frontend", AllowedFolders: []string{"frontend"}, Position: 4},
}

// SeedDefaultAgents creates the five default agents for a new project.
func (s *Store) SeedDefaultAgents(projectID string) error {
	now := time.Now().UnixMilli()
	for _, a := range defaultAgents {
		folders, err := json.Marshal(a.AllowedFolders)
		if err != nil {
			return fmt.Errorf("failed to marshal allowed folders: %w", err)
		}
		_, err = s.db.Exec(
			`INSERT INTO agents (id, project_id, name, role, allowed_folders, is_default, approved, position, created_at)
			 VALUES (?, ?, ?, ?, ?, 1, 1, ?, ?)`,
			uuid.New().String(), projectID, a.Name, a.Role, string(folders), a.Position, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed agent %s: %w", a.Name, err)
		}
	}
	return nil
}

// AddAgent appends a custom agent after the highest existing position.
// Custom agents start unapproved.
func (s *Store) AddAgent(projectID, name, role string, allowedFolders []string) (*Agent, error) {
	var maxPos sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(position) FROM agents WHERE project_id = ?`, projectID).Scan(&maxPos)
	if err != nil {
		return nil, fmt.Errorf("failed to find max agent position: %w", err)
	}
	position := 5
	if maxPos.Valid {
		position = int(maxPos.Int64) + 1
	}

	if allowedFolders == nil {
		allowedFolders = []string{}
	}
	folders, err := json.Marshal(allowedFolders)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allowed folders: %w", err)
	}

	a := &Agent{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		Name:           name,
		Role:           role,
		AllowedFolders: allowedFolders,
		Position:       position,
		CreatedAt:      time.Now().UnixMilli(),
	}
	_, err = s.db.Exec(
		`INSERT INTO agents (id, project_id, name, role, allowed_folders, is_default, approved, position, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		a.ID, a.ProjectID, a.Name, a.Role, string(folders), a.Position, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add agent: %w", err)
	}
	return a, nil
}

// ListAgents returns a project's agents ordered by position.
func (s *Store) ListAgents(projectID string) ([]*Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, name, role, allowed_folders, is_default, approved, position, created_at
		 FROM agents WHERE project_id = ? ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// GetAgentByRole returns the first agent with the given role in a project.
func (s *Store) GetAgentByRole(projectID, role string) (*Agent, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, name, role, allowed_folders, is_default, approved, position, created_at
		 FROM agents WHERE project_id = ? AND role = ? ORDER BY position ASC LIMIT 1`, projectID, role)
	a, err := scanAgent(row)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAgent(row interface{ Scan(...any) error }) (*Agent, error) {
	a := &Agent{}
	var folders sql.NullString
	var isDefault, approved int
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Role, &folders, &isDefault, &approved, &a.Position, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}
	a.IsDefault = isDefault == 1
	a.Approved = approved == 1
	if folders.Valid && folders.String != "" {
		_ = json.Unmarshal([]byte(folders.String), &a.AllowedFolders)
	}
	return a, nil
}
