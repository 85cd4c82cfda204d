package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openroger/openroger/internal/phase"
)

// Project is the top-level entity walked through the phase pipeline.
type Project struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Prompt          string         `json:"prompt"`
	UserID          string         `json:"user_id"`
	CurrentPhase    phase.Phase    `json:"current_phase"`
	Status          string         `json:"status"` // active | paused | completed | rejected
	WorkspacePath   string         `json:"workspace_path,omitempty"`
	FolderStructure map[string]any `json:"folder_structure,omitempty"`
	CreatedAt       int64          `json:"created_at"`
	UpdatedAt       int64          `json:"updated_at"`
}

// CreateProjectInput holds the parameters for creating a new project.
type CreateProjectInput struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
}

const projectColumns = `id, name, prompt, user_id, current_phase, status, workspace_path, folder_structure, created_at, updated_at`

// CreateProject creates a new project in the initial phase. An empty name
// defaults to the first 50 characters of the prompt.
func (s *Store) CreateProject(input CreateProjectInput) (*Project, error) {
	if input.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	name := input.Name
	if name == "" {
		name = input.Prompt
		if len(name) > 50 {
			name = name[:50]
		}
	}

	now := time.Now().UnixMilli()
	p := &Project{
		ID:           uuid.New().String(),
		Name:         name,
		Prompt:       input.Prompt,
		UserID:       input.UserID,
		CurrentPhase: phase.First,
		Status:       phase.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
	INSERT INTO projects (id, name, prompt, user_id, current_phase, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, p.ID, p.Name, p.Prompt, p.UserID, string(p.CurrentPhase), p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	p := &Project{}
	var currentPhase string
	var workspacePath, folderStructure sql.NullString

	err := row.Scan(
		&p.ID, &p.Name, &p.Prompt, &p.UserID, &currentPhase, &p.Status,
		&workspacePath, &folderStructure, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	p.CurrentPhase = phase.Phase(currentPhase)
	if workspacePath.Valid {
		p.WorkspacePath = workspacePath.String
	}
	if folderStructure.Valid && folderStructure.String != "" {
		_ = json.Unmarshal([]byte(folderStructure.String), &p.FolderStructure)
	}
	return p, nil
}

// GetProject retrieves a project by ID. Returns nil when not found.
func (s *Store) GetProject(id string) (*Project, error) {
	return scanProject(s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
}

// GetProjectForUser retrieves a project only if it belongs to userID.
func (s *Store) GetProjectForUser(id, userID string) (*Project, error) {
	return scanProject(s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ? AND user_id = ?`, id, userID))
}

// ListProjects lists a user's projects, newest first.
func (s *Store) ListProjects(userID string) ([]*Project, error) {
	rows, err := s.db.Query(`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateWorkspace records the workspace path and folder-structure snapshot.
func (s *Store) UpdateWorkspace(id, workspacePath string, structure map[string]any) error {
	blob, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("failed to marshal folder structure: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.Exec(
		`UPDATE projects SET workspace_path = ?, folder_structure = ?, updated_at = ? WHERE id = ?`,
		workspacePath, string(blob), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return nil
}

// UpdateFolderStructure refreshes the folder-structure snapshot.
func (s *Store) UpdateFolderStructure(id string, structure map[string]any) error {
	blob, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("failed to marshal folder structure: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.Exec(
		`UPDATE projects SET folder_structure = ?, updated_at = ? WHERE id = ?`,
		string(blob), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update folder structure: %w", err)
	}
	return nil
}

// AdvancePhase moves a project from one phase to the next. The transition is
// optimistic: it only applies if the row still holds `from`, and `to` must be
// exactly one step forward, so the pointer can never skip or move backward.
func (s *Store) AdvancePhase(id string, from, to phase.Phase) error {
	if from.Next() != to {
		return fmt.Errorf("invalid phase transition %s -> %s", from, to)
	}
	now := time.Now().UnixMilli()
	res, err := s.db.Exec(
		`UPDATE projects SET current_phase = ?, updated_at = ? WHERE id = ? AND current_phase = ?`,
		string(to), now, id, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to advance phase: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project %s is no longer in phase %s", id, from)
	}
	return nil
}

// UpdateStatus updates a project's status.
func (s *Store) UpdateStatus(id, status string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.Exec(`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}
