package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openroger/openroger/internal/phase"
)

// Approval records one human decision at a phase gate.
type Approval struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Phase     phase.Phase  `json:"phase"`
	UserID    string       `json:"user_id"`
	Action    phase.Action `json:"action"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt int64        `json:"created_at"`
}

// AddApproval appends a decision to the project's approval history.
func (s *Store) AddApproval(a *Approval) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO approvals (id, project_id, phase, user_id, action, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, string(a.Phase), a.UserID, string(a.Action),
		sql.NullString{String: a.Comment, Valid: a.Comment != ""},
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add approval: %w", err)
	}
	return nil
}

// ListApprovals returns a project's decisions newest first.
func (s *Store) ListApprovals(projectID string) ([]*Approval, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, phase, user_id, action, comment, created_at
		 FROM approvals WHERE project_id = ? ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*Approval
	for rows.Next() {
		a := &Approval{}
		var comment sql.NullString
		var ph, action string
		if err := rows.Scan(&a.ID, &a.ProjectID, &ph, &a.UserID, &action, &comment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		a.Phase = phase.Phase(ph)
		a.Action = phase.Action(action)
		if comment.Valid {
			a.Comment = comment.String
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
