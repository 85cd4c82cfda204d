package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		prompt           TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		current_phase    TEXT NOT NULL DEFAULT 'architecture',
		status           TEXT NOT NULL DEFAULT 'active',
		workspace_path   TEXT,
		folder_structure TEXT,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
	CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);

	CREATE TABLE IF NOT EXISTS agents (
		id              TEXT PRIMARY KEY,
		project_id      TEXT NOT NULL,
		name            TEXT NOT NULL,
		role            TEXT NOT NULL,
		allowed_folders TEXT,
		is_default      INTEGER NOT NULL DEFAULT 0,
		approved        INTEGER NOT NULL DEFAULT 0,
		position        INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL,
		agent_id      TEXT NOT NULL,
		phase         TEXT NOT NULL,
		title         TEXT NOT NULL,
		output        TEXT,
		files_created TEXT,
		status        TEXT NOT NULL DEFAULT 'pending',
		created_at    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

	CREATE TABLE IF NOT EXISTS approvals (
		id         TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		phase      TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		action     TEXT NOT NULL,
		comment    TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_project ON approvals(project_id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}
